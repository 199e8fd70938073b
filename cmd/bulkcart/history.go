package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mohammad-safakhou/bulkcart/internal/app"
	"github.com/mohammad-safakhou/bulkcart/internal/store"
	"github.com/mohammad-safakhou/bulkcart/models"
	"github.com/spf13/cobra"
)

func historyCMD(cfgPath *string) *cobra.Command {
	var limit int
	var history = &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded batches, or the items of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return fmt.Errorf("%w: %w", app.ErrSetup, err)
			}
			pctx, cancel := context.WithTimeout(ctx, cfg.Storage.Postgres.Timeout)
			st, err := store.NewWithDSN(pctx, dsn)
			cancel()
			if err != nil {
				return fmt.Errorf("%w: postgres: %w", app.ErrSetup, err)
			}
			defer st.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()
			if len(args) == 1 {
				items, err := st.ItemResults(ctx, args[0])
				if err != nil {
					return err
				}
				printItems(w, items)
				return nil
			}
			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			printRuns(w, runs)
			return nil
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "number of batches to list")
	return history
}

func printRuns(w *tabwriter.Writer, runs []store.RunRecord) {
	fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tTOTAL\tADDED\tFAILED")
	for _, r := range runs {
		failed := r.Counts[models.ItemStatusAddFailed] + r.Counts[models.ItemStatusFailed]
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Total, r.Counts[models.ItemStatusAdded], failed)
	}
}

func printItems(w *tabwriter.Writer, items []models.ItemResult) {
	fmt.Fprintln(w, "ROW\tCODE\tQTY\tSTATUS\tAVAILABLE\tURL\tERROR")
	for _, it := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Row, it.Code, it.Quantity, it.Status,
			models.Deref(it.AvailableQuantity, "-"), it.ProductURL, it.Error)
	}
}
