package main

import (
	"encoding/json"
	"os"

	"github.com/mohammad-safakhou/bulkcart/internal/app"
	"github.com/spf13/cobra"
)

func runCMD(cfgPath *string) *cobra.Command {
	var asJSON bool
	var run = &cobra.Command{
		Use:   "run",
		Short: "Process every spreadsheet line item once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			metrics, stopTelemetry, err := startTelemetry(ctx, cfg)
			if err != nil {
				return err
			}
			defer stopTelemetry()

			deps, err := app.Open(ctx, cfg, app.OpenOptions{Source: true, Metrics: metrics})
			if err != nil {
				return err
			}
			defer deps.Close()

			report, err := app.NewRunner(cfg, deps, nil).Run(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return nil
		},
	}
	run.Flags().BoolVar(&asJSON, "json", false, "print the item results as JSON")
	return run
}
