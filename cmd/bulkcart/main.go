package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/bulkcart/config"
	"github.com/mohammad-safakhou/bulkcart/internal/app"
	"github.com/mohammad-safakhou/bulkcart/internal/telemetry"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var cfgPath string
	var root = &cobra.Command{
		Use:           "bulkcart",
		Short:         "Add spreadsheet line items to a storefront cart",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(
		runCMD(&cfgPath),
		loginCMD(&cfgPath),
		scheduleCMD(&cfgPath),
		migrateCMD(&cfgPath),
		historyCMD(&cfgPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Printf("[BULKCART] %v", err)
		os.Exit(app.ExitCode(err))
	}
}

// loadConfig reads the configuration and applies the debug log flags.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", app.ErrSetup, err)
	}
	if cfg.General.Debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
	return cfg, nil
}

// startTelemetry serves metrics and exports traces when enabled. The
// returned stop func flushes pending spans.
func startTelemetry(ctx context.Context, cfg *config.Config) (*telemetry.Metrics, func(), error) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}, nil
	}
	metrics := telemetry.NewMetrics()
	go func() {
		if err := telemetry.Serve(ctx, cfg.Telemetry.MetricsAddr, metrics.Handler(), nil); err != nil {
			log.Printf("[TELEMETRY] metrics server: %v", err)
		}
	}()
	tracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, "bulkcart", version)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: tracing: %w", app.ErrSetup, err)
	}
	return metrics, func() {
		if err := tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[TELEMETRY] shutdown tracing: %v", err)
		}
	}, nil
}
