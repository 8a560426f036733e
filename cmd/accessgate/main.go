package main

import "github.com/ppiankov/accessgate/internal/cli"

func main() {
	cli.Execute()
}
