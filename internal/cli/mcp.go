package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	agmcp "github.com/ppiankov/accessgate/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs accessgate as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: evaluate, verify_audit, audit_log, cross_domain, redact, metrics.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	gw, logger, cfg, err := openGateway()
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer logger.Sync()
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "accessgate MCP server running on stdio")
	if cfg.Bundle != "" {
		fmt.Fprintf(os.Stderr, "Bundle: %s\n", cfg.Bundle)
	}
	fmt.Fprintln(os.Stderr)

	err = agmcp.New(gw, version, logger).Run(ctx)

	// Print decision counters on exit
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Session metrics:")
	out, _ := json.MarshalIndent(gw.Metrics(), "", "  ")
	fmt.Fprintln(os.Stderr, string(out))

	return err
}
