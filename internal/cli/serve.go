package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/accessgate/internal/alert"
	"github.com/ppiankov/accessgate/internal/config"
	"github.com/ppiankov/accessgate/internal/integrity"
	"github.com/ppiankov/accessgate/internal/model"
	"github.com/ppiankov/accessgate/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.Int("port", 50051, "gRPC listen port")
	f.String("metrics-addr", "", "Serve Prometheus /metrics on this address (e.g. :9090)")
	f.Bool("reload", true, "Re-apply the bundle when the file changes")
	f.Int("rate-limit", 0, "Evaluations allowed per tenant/user per server.rate_limit.window (0 disables)")
	f.Int("max-audit-entries", 0, "Audit entries retained in memory (0 keeps the configured default)")

	for key, flag := range map[string]string{
		"server.port":                    "port",
		"server.metrics_addr":            "metrics-addr",
		"server.reload":                  "reload",
		"server.rate_limit.max_requests": "rate-limit",
	} {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC access gateway",
	Long: "Runs accessgate as a central decision service over gRPC.\n" +
		"Clients evaluate requests remotely; every decision lands in the audit chain.\n" +
		"Supports hot-reload of the bundle file and a Prometheus endpoint.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if n, _ := cmd.Flags().GetInt("max-audit-entries"); n > 0 {
		v.Set("audit.max_entries", n)
	}
	gw, logger, cfg, err := openGateway()
	if err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	defer logger.Sync()
	defer gw.Close()

	if err := verifyBinary(cmd.Context(), cfg, logger); err != nil {
		return err
	}

	srv := server.New(gw, server.Config{
		Port:        cfg.Server.Port,
		MetricsAddr: cfg.Server.MetricsAddr,
		RateLimit:   cfg.Server.RateLimit,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(srv.ServeMetrics)

	if cfg.Server.Reload && cfg.Bundle != "" {
		reloader, err := server.NewReloader(gw, []string{cfg.Bundle}, logger)
		if err != nil {
			logger.Warn("hot-reload disabled", zap.Error(err))
		} else {
			g.Go(func() error { return reloader.Run(ctx) })
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down access gateway...")
		srv.GracefulStop()
		return nil
	})

	fmt.Fprintf(os.Stderr, "accessgate listening on :%d\n", cfg.Server.Port)
	if cfg.Bundle != "" {
		fmt.Fprintf(os.Stderr, "Bundle: %s %s\n", cfg.Bundle, dimFmt(gw.BundleHash()))
	}
	if cfg.Database != "" {
		fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.Database)
	}
	if cfg.Server.MetricsAddr != "" {
		fmt.Fprintf(os.Stderr, "Metrics: http://%s/metrics\n", cfg.Server.MetricsAddr)
	}
	fmt.Fprintln(os.Stderr)

	return g.Wait()
}

// verifyBinary refuses to serve from a binary that fails its checksum and
// sends the tamper event to every alert webhook subscribed to denials.
func verifyBinary(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	res, err := integrity.VerifySelf()
	switch {
	case errors.Is(err, integrity.ErrMismatch):
		logger.Error("binary tamper detected",
			zap.String("binary", res.Binary),
			zap.String("expected", res.Expected),
			zap.String("actual", res.Actual))
		ev := integrity.TamperEvent(res, time.Now())
		for _, a := range cfg.Alerts {
			if !slices.Contains(a.Events, string(model.Deny)) {
				continue
			}
			if serr := alert.Send(ctx, a, ev); serr != nil {
				logger.Warn("tamper alert delivery failed", zap.String("url", a.URL), zap.Error(serr))
			}
		}
		return err
	case err != nil:
		return err
	case res.Skipped:
		logger.Warn("integrity check skipped: no build-time hash or checksum file")
	default:
		logger.Info("binary checksum verified", zap.String("sha256", res.Actual))
	}
	return nil
}
