package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/integrity"
	"github.com/ppiankov/accessgate/internal/systemd"
)

var (
	initDir      string
	initForce    bool
	initSystemd  bool
	initChecksum bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default ~/.accessgate)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initSystemd, "systemd", false, "Also write a hardened accessgate.service unit")
	initCmd.Flags().BoolVar(&initChecksum, "checksum", false, "Record this binary's sha256 for integrity checks")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap accessgate configuration",
	Long: `Creates the config directory with a config.yaml and an annotated
bundle.yaml containing example policies, profiles, domains and
encryption settings.

Default location: ~/.accessgate/`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := initConfigDir()
	if err != nil {
		return err
	}

	var created []string

	bundlePath := filepath.Join(dir, "bundle.yaml")
	if wrote, err := writeIfMissing(bundlePath, bundle.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, bundlePath)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if wrote, err := writeIfMissing(configPath, defaultConfigYAML(dir)); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	if initSystemd {
		wrote, err := writeUnit(dir, configPath)
		if err != nil {
			return err
		}
		if wrote {
			created = append(created, filepath.Join(dir, systemd.UnitName))
		}
	}
	if initChecksum {
		hash, err := integrity.HashSelf()
		if err != nil {
			return err
		}
		sumPath := filepath.Join(dir, "binary.sha256")
		if err := os.WriteFile(sumPath, []byte(hash+"\n"), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", sumPath, err)
		}
		created = append(created, sumPath)
	}

	fmt.Println("accessgate init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	if initSystemd {
		fmt.Println("Install the service:")
		fmt.Printf("  sudo cp %s %s\n", filepath.Join(dir, systemd.UnitName), systemd.InstalledUnitPath)
		fmt.Println("  sudo systemctl daemon-reload && sudo systemctl enable --now accessgate")
		fmt.Println()
	}

	fmt.Println("Verify:")
	fmt.Println("  accessgate doctor")
	fmt.Println()
	fmt.Println("Try a decision:")
	fmt.Println("  accessgate check --tenant metro-pd --user det-harris --resource-type case_file \\")
	fmt.Println("    --clearance standard --sensitivity restricted --attr status=open --explain")
	return nil
}

// writeUnit renders the service unit and records its hash so doctor can
// detect later edits to the installed copy.
func writeUnit(dir, configPath string) (bool, error) {
	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("cannot resolve executable path: %w", err)
	}
	unitPath := filepath.Join(dir, systemd.UnitName)
	wrote, err := writeIfMissing(unitPath, systemd.ServiceTemplate(exe, configPath, dir))
	if err != nil || !wrote {
		return wrote, err
	}
	return true, systemd.RecordUnitHash(unitPath, unitHashPath(dir))
}

func unitHashPath(dir string) string {
	return filepath.Join(dir, systemd.UnitName+".sha256")
}

func initConfigDir() (string, error) {
	if initDir != "" {
		return initDir, nil
	}
	dir, err := config.DefaultDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return dir, nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func defaultConfigYAML(dir string) string {
	return fmt.Sprintf(`# accessgate runtime configuration.
# Every key can be overridden by ACCESSGATE_<SECTION>_<KEY>, e.g.
# ACCESSGATE_SERVER_PORT=6000.

bundle: %s
database: %s

server:
  port: 50051
  metrics_addr: ""
  reload: true
  # Evaluations per tenant/user per window. 0 disables the limit.
  rate_limit:
    max_requests: 0
    window: 1m

audit:
  log: %s
  max_entries: 100000

domain:
  # open or closed: decision for tenants without a domain config.
  missing_config: open

log:
  level: info
  format: console

# Webhooks fired after an audit entry is committed.
# alerts:
#   - url: https://hooks.slack.com/services/T000/B000/XXXX
#     format: slack        # generic, slack or pagerduty
#     events: [deny]
`,
		filepath.Join(dir, "bundle.yaml"),
		filepath.Join(dir, "accessgate.db"),
		filepath.Join(dir, "audit.jsonl"),
	)
}
