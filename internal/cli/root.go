package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/gateway"
	"github.com/ppiankov/accessgate/internal/logging"
)

var (
	cfgFile string
	v       = config.New()
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "accessgate",
	Short: "Attribute-based access control gateway with a tamper-evident audit chain",
	Long: "Decides whether a user may act on a resource from clearance, roles,\n" +
		"jurisdictions and resource attributes. Every decision is appended to a\n" +
		"hash-chained audit log. Allowed payloads are redacted per clearance.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./config.yaml or ~/.accessgate/config.yaml)")
	pf.String("bundle", "", "Policy bundle YAML")
	pf.String("database", "", "SQLite database for policies, profiles, keys and audit")
	pf.String("audit-log", "", "JSONL audit log mirroring the chain")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (console|json)")

	bindFlag(v, "bundle", "bundle")
	bindFlag(v, "database", "database")
	bindFlag(v, "audit.log", "audit-log")
	bindFlag(v, "log.level", "log-level")
	bindFlag(v, "log.format", "log-format")
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errFmt("error:"), err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// openGateway loads config, builds the logger and the gateway. Callers
// close the gateway and sync the logger.
func openGateway() (*gateway.Gateway, *zap.Logger, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, nil, err
	}
	gw, err := gateway.New(*cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return gw, logger, cfg, nil
}
