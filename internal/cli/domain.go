package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/accessgate/internal/client"
)

var domainAddr string

func init() {
	rootCmd.AddCommand(domainCmd)
	domainCmd.AddCommand(domainCheckCmd)
	domainCmd.AddCommand(domainListCmd)
	domainCheckCmd.Flags().StringVar(&domainAddr, "addr", "", "Ask a running server at host:port")
}

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Cross-tenant domain operations",
}

var domainCheckCmd = &cobra.Command{
	Use:   "check <source-tenant> <target-tenant>",
	Short: "Check whether one tenant may reach another tenant's data",
	Long:  "Exits 0 if allowed, 1 if not.",
	Args:  cobra.ExactArgs(2),
	RunE:  runDomainCheck,
}

var domainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tenant domains",
	RunE:  runDomainList,
}

func runDomainCheck(cmd *cobra.Command, args []string) error {
	var (
		ok     bool
		reason string
	)
	if domainAddr != "" {
		c, err := client.New(domainAddr)
		if err != nil {
			return err
		}
		ok, reason = c.CheckCrossDomain(cmd.Context(), args[0], args[1])
		c.Close()
	} else {
		gw, logger, _, err := openGateway()
		if err != nil {
			return err
		}
		ok, reason = gw.ExplainCrossDomain(args[0], args[1])
		gw.Close()
		_ = logger.Sync()
	}

	if ok {
		fmt.Printf("%s %s -> %s: %s\n", okFmt("ALLOWED"), args[0], args[1], reason)
		return nil
	}
	fmt.Printf("%s %s -> %s: %s\n", errFmt("DENIED"), args[0], args[1], reason)
	os.Exit(1)
	return nil
}

func runDomainList(cmd *cobra.Command, args []string) error {
	gw, logger, _, err := openGateway()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer gw.Close()

	domains := gw.ListDomains()
	if len(domains) == 0 {
		fmt.Println("No domains configured.")
		return nil
	}
	for _, d := range domains {
		cross := errFmt("no cross-domain")
		if d.CrossDomainAllowed {
			cross = okFmt("cross-domain")
		}
		fmt.Printf("%-16s %-12s %s allowed=%v blocked=%v\n",
			d.TenantID, d.DomainName, cross, d.AllowedDomains, d.BlockedDomains)
	}
	return nil
}
