package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/policydiff"
)

var diffFormat string

func init() {
	policyCmd.AddCommand(policyDiffCmd)
	policyDiffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two bundles and show changes",
	Long: `Loads two bundle files and shows what changed in human-readable terms:
policies, profiles, clearance filters, domains and encryption added, removed
or changed, each change marked stricter or looser where that is decidable.`,
	Args: cobra.ExactArgs(2),
	RunE: runPolicyDiff,
}

func runPolicyDiff(cmd *cobra.Command, args []string) error {
	oldBundle, oldHash, err := bundle.LoadWithHash(args[0])
	if err != nil {
		return fmt.Errorf("load old bundle: %w", err)
	}
	newBundle, newHash, err := bundle.LoadWithHash(args[1])
	if err != nil {
		return fmt.Errorf("load new bundle: %w", err)
	}

	result := policydiff.Diff(oldBundle, newBundle)
	result.OldPath, result.NewPath = args[0], args[1]
	result.OldHash, result.NewHash = oldHash, newHash

	switch diffFormat {
	case "json":
		out, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(policydiff.FormatText(result))
	}
	return nil
}
