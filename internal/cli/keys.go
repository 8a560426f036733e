package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/accessgate/internal/tenantkey"
)

var (
	keysAlgorithm    string
	keysRotationDays int
	keysDueWithin    time.Duration
)

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysConfigureCmd, keysRotateCmd, keysListCmd, keysDueCmd)
	keysConfigureCmd.Flags().StringVar(&keysAlgorithm, "algorithm", tenantkey.AES256GCM,
		"Algorithm ("+strings.Join(tenantkey.Algorithms(), "|")+")")
	keysConfigureCmd.Flags().IntVar(&keysRotationDays, "rotation-days", tenantkey.DefaultRotationDays, "Days between rotations")
	keysDueCmd.Flags().DurationVar(&keysDueWithin, "within", 0, "Also list keys due within this window (e.g. 168h)")
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Per-tenant encryption key metadata",
	Long: "Manages key identifiers, versions and rotation schedules per tenant.\n" +
		"Key material is never stored. Changes persist only with --database.",
}

var keysConfigureCmd = &cobra.Command{
	Use:   "configure <tenant>",
	Short: "Issue key metadata for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(func(k keyAdmin) error {
			c, err := k.ConfigureEncryption(args[0], keysAlgorithm, keysRotationDays)
			if err != nil {
				return err
			}
			printKey(c)
			return nil
		})
	},
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate <tenant>",
	Short: "Rotate a tenant's key now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(func(k keyAdmin) error {
			c, err := k.RotateKey(args[0])
			if err != nil {
				return err
			}
			printKey(c)
			return nil
		})
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List key metadata for all tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(func(k keyAdmin) error {
			for _, c := range k.ListKeys() {
				printKey(c)
			}
			return nil
		})
	},
}

var keysDueCmd = &cobra.Command{
	Use:   "due",
	Short: "List tenants whose key rotation is due",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(func(k keyAdmin) error {
			due := k.KeysDue(time.Now().Add(keysDueWithin))
			if len(due) == 0 {
				fmt.Println(okFmt("No rotations due."))
				return nil
			}
			for _, c := range due {
				printKey(c)
			}
			return nil
		})
	},
}

type keyAdmin interface {
	ConfigureEncryption(tenantID, algorithm string, rotationDays int) (tenantkey.Config, error)
	RotateKey(tenantID string) (tenantkey.Config, error)
	ListKeys() []tenantkey.Config
	KeysDue(at time.Time) []tenantkey.Config
}

func withKeys(fn func(keyAdmin) error) error {
	gw, logger, cfg, err := openGateway()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer gw.Close()
	if cfg.Database == "" {
		fmt.Fprintln(os.Stderr, warnFmt("warning: no --database configured; key changes are not persisted"))
	}
	return fn(gw)
}

func printKey(c tenantkey.Config) {
	next := c.NextRotation.Format(time.DateOnly)
	if !c.NextRotation.After(time.Now()) {
		next = warnFmt(next + " (due)")
	}
	fmt.Printf("%-16s %-18s v%-3d %s  next rotation %s\n",
		c.TenantID, c.Algorithm, c.KeyVersion, dimFmt(c.KeyID), next)
}
