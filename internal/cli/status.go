package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/client"
)

var (
	statusAddr string
	statusJSON bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Read metrics from a running server at host:port")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print metrics as JSON")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show decision counters and audit chain health",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var (
		m     access.Metrics
		valid bool
		n     int
	)
	if statusAddr != "" {
		c, err := client.New(statusAddr)
		if err != nil {
			return err
		}
		defer c.Close()
		if m, err = c.Metrics(cmd.Context()); err != nil {
			return fmt.Errorf("query %s: %w", statusAddr, err)
		}
		vr, err := c.VerifyAudit(cmd.Context(), false)
		if err != nil {
			return fmt.Errorf("query %s: %w", statusAddr, err)
		}
		valid, n = vr.Valid, vr.Entries
	} else {
		gw, logger, _, err := openGateway()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer gw.Close()
		m = gw.Metrics()
		vr := gw.VerifyAuditChain()
		valid, n = vr.Valid, vr.Entries
	}

	if statusJSON {
		out, _ := json.MarshalIndent(map[string]any{
			"metrics":       m,
			"audit_valid":   valid,
			"audit_entries": n,
		}, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("requests       %d (allow %d, deny %d, conditional %d)\n", m.TotalRequests, m.Allowed, m.Denied, m.Conditional)
	fmt.Printf("last 24h       %d requests, %d denials\n", m.Requests24h, m.Denials24h)
	fmt.Printf("policies       %d active\n", m.ActivePolicies)
	fmt.Printf("encryption     %d tenants\n", m.TenantsEncrypted)
	if valid {
		fmt.Printf("audit chain    %s (%d entries retained)\n", okFmt("valid"), n)
		return nil
	}
	fmt.Printf("audit chain    %s\n", errFmt("BROKEN"))
	os.Exit(1)
	return nil
}
