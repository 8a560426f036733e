package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/bundle"
	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/gateway"
	"github.com/ppiankov/accessgate/internal/integrity"
	"github.com/ppiankov/accessgate/internal/systemd"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, bundle, database and audit chain",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	var checks []checkResult
	if err != nil {
		checks = append(checks, checkResult{label: "config", detail: err.Error(), fix: "accessgate init"})
	} else {
		checks = diagnose(cfg)
	}

	if !printChecks(os.Stdout, checks) {
		fmt.Println()
		fmt.Println("Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

func diagnose(cfg *config.Config) []checkResult {
	checks := []checkResult{binaryCheck()}

	switch {
	case cfg.Bundle == "":
		checks = append(checks, checkResult{
			label:  "bundle",
			ok:     true,
			detail: "none configured, built-in default-deny only",
		})
	default:
		if _, err := os.Stat(cfg.Bundle); err != nil {
			checks = append(checks, checkResult{label: "bundle", detail: "missing: " + cfg.Bundle, fix: "accessgate init"})
		} else if b, hash, err := bundle.LoadWithHash(cfg.Bundle); err != nil {
			checks = append(checks, checkResult{label: "bundle", detail: err.Error(), fix: "accessgate policy validate " + cfg.Bundle})
		} else {
			checks = append(checks, checkResult{
				label:  "bundle",
				ok:     true,
				detail: fmt.Sprintf("%d policies, %d profiles (%s)", len(b.Policies), len(b.Profiles), hash[:19]),
			})
		}
	}

	if cfg.Audit.Log != "" {
		res := audit.VerifyFile(cfg.Audit.Log)
		c := checkResult{label: "audit log", ok: res.Valid, detail: fmt.Sprintf("%d entries verified", res.Entries)}
		if !res.Valid {
			c.detail = fmt.Sprintf("broken at entry %d: %s", res.ErrorIndex, res.Error)
			c.fix = "restore " + cfg.Audit.Log + " from backup"
		}
		checks = append(checks, c)
	}

	gw, err := gateway.New(*cfg, nil)
	if err != nil {
		return append(checks, checkResult{label: "gateway", detail: err.Error()})
	}
	defer gw.Close()

	if cfg.Database != "" {
		res := gw.VerifyPersistedAudit()
		c := checkResult{label: "database", ok: res.Valid, detail: fmt.Sprintf("%s, %d audit entries verified", cfg.Database, res.Entries)}
		if !res.Valid {
			c.detail = fmt.Sprintf("audit broken at entry %d: %s", res.ErrorIndex, res.Error)
		}
		checks = append(checks, c)
	} else {
		checks = append(checks, checkResult{label: "database", ok: true, detail: "none, state is in memory"})
	}

	if c, ok := unitCheck(); ok {
		checks = append(checks, c)
	}

	m := gw.Metrics()
	checks = append(checks, checkResult{
		label:  "policies",
		ok:     m.ActivePolicies > 0,
		detail: fmt.Sprintf("%d active", m.ActivePolicies),
		fix:    "enable at least the default-deny policy",
	})

	if due := gw.KeysDue(time.Now()); len(due) > 0 {
		checks = append(checks, checkResult{
			label:  "key rotation",
			detail: fmt.Sprintf("%d tenants overdue", len(due)),
			fix:    "accessgate keys due",
		})
	} else {
		checks = append(checks, checkResult{label: "key rotation", ok: true, detail: fmt.Sprintf("%d tenants, none due", m.TenantsEncrypted)})
	}
	return checks
}

func binaryCheck() checkResult {
	res, err := integrity.VerifySelf()
	switch {
	case err != nil:
		return checkResult{label: "binary", detail: err.Error(), fix: "reinstall accessgate from a trusted release"}
	case res.Skipped:
		return checkResult{label: "binary", ok: true, detail: "no checksum installed (dev build)"}
	}
	return checkResult{label: "binary", ok: true, detail: "checksum verified " + res.Actual[:16]}
}

// unitCheck compares the installed unit against the hash recorded by
// init --systemd. It reports nothing when either is absent.
func unitCheck() (checkResult, bool) {
	dir, err := config.DefaultDir()
	if err != nil {
		return checkResult{}, false
	}
	if _, err := os.Stat(systemd.InstalledUnitPath); err != nil {
		return checkResult{}, false
	}
	if _, err := os.Stat(unitHashPath(dir)); err != nil {
		return checkResult{}, false
	}
	if msg := systemd.CheckUnitHash(systemd.InstalledUnitPath, unitHashPath(dir)); msg != "" {
		return checkResult{label: "systemd unit", detail: msg, fix: "accessgate init --systemd --force"}, true
	}
	return checkResult{label: "systemd unit", ok: true, detail: systemd.InstalledUnitPath + " unchanged"}, true
}

// printChecks writes one line per check and reports whether all passed.
func printChecks(w io.Writer, checks []checkResult) bool {
	allOK := true
	for _, c := range checks {
		mark := okFmt("✓")
		if !c.ok {
			mark = errFmt("✗")
			allOK = false
		}
		line := fmt.Sprintf("%s %-14s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(w, line)
	}
	return allOK
}
