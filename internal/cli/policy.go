package cli

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/policy"
	"github.com/ppiankov/accessgate/internal/profile"
)

func init() {
	rootCmd.AddCommand(policyCmd, profileCmd)
	policyCmd.AddCommand(policyListCmd, policyShowCmd, policyValidateCmd)
	profileCmd.AddCommand(profileListCmd, profileTemplatesCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect access policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List policies in evaluation order",
	RunE:  runPolicyList,
}

var policyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one policy as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyShow,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <bundle.yaml>",
	Short: "Validate a bundle file without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyValidate,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect user ABAC profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list [tenant]",
	Short: "List profiles, optionally for one tenant",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileList,
}

var profileTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List built-in profile templates",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range profile.Templates() {
			fmt.Println(name)
		}
	},
}

func runPolicyList(cmd *cobra.Command, args []string) error {
	gw, logger, _, err := openGateway()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer gw.Close()

	policies, err := gw.ListPolicies()
	if err != nil {
		return err
	}
	// Evaluation order: priority, then id.
	slices.SortStableFunc(policies, func(a, b policy.AccessPolicy) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, p := range policies {
		state := okFmt("enabled ")
		if !p.Enabled {
			state = dimFmt("disabled")
		}
		tenant := p.TenantID
		if tenant == "" {
			tenant = "*"
		}
		fmt.Printf("%5d  %-6s %s %-32s tenant=%s resources=%s\n",
			p.Priority, p.Effect, state, p.ID, tenant, strings.Join(p.ResourcePatterns, ","))
	}
	fmt.Printf("\n%d policies, %d enabled, hash %s\n",
		len(policies), policy.CountEnabled(policies), dimFmt(policy.Hash(policies)))
	return nil
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	gw, logger, _, err := openGateway()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer gw.Close()

	p, err := gw.GetPolicy(args[0])
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}
	b, hash, err := bundle.LoadWithHash(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errFmt("INVALID:"), err)
		os.Exit(1)
	}
	fmt.Printf("%s %d policies, %d profiles, %d filters, %d domains, %d encryption entries\n",
		okFmt("OK:"), len(b.Policies), len(b.Profiles), len(b.Filters), len(b.Domains), len(b.Encryption))
	fmt.Println(dimFmt(hash))
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	gw, logger, _, err := openGateway()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer gw.Close()

	tenant := ""
	if len(args) == 1 {
		tenant = args[0]
	}
	profiles, err := gw.ListProfiles(tenant)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		fmt.Printf("%-16s %-16s %-13s roles=%s jurisdictions=%s\n",
			p.TenantID, p.UserID, p.Clearance, strings.Join(p.Roles, ","), strings.Join(p.Jurisdictions, ","))
	}
	return nil
}
