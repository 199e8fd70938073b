package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/bulkcart/internal/app"
	"github.com/mohammad-safakhou/bulkcart/internal/scheduler"
	redis_tokenstore "github.com/mohammad-safakhou/bulkcart/internal/session/tokenstore/redis"
	"github.com/spf13/cobra"
)

func scheduleCMD(cfgPath *string) *cobra.Command {
	var schedule = &cobra.Command{
		Use:   "schedule",
		Short: "Run the batch on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Schedule.Validate(); err != nil {
				return fmt.Errorf("%w: %w", app.ErrSetup, err)
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
			runner := app.NewRunner(cfg, deps, nil)

			opts := []scheduler.Option{scheduler.WithRunOnStart(cfg.Schedule.RunOnStart)}
			if cfg.Schedule.Lock {
				rc := cfg.Storage.Redis
				client, err := redis_tokenstore.Conn(ctx, rc.Addr(), rc.Password, rc.DB, rc.Timeout)
				if err != nil {
					return fmt.Errorf("%w: schedule lock: %w", app.ErrSetup, err)
				}
				defer client.Close()
				opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(client), cfg.Schedule.LockKey, cfg.Schedule.LockTTL))
			}

			s, err := scheduler.New(cfg.Schedule.Cron, func(ctx context.Context) error {
				_, err := runner.Run(ctx)
				return err
			}, opts...)
			if err != nil {
				return fmt.Errorf("%w: %w", app.ErrSetup, err)
			}
			return s.Run(ctx)
		},
	}
	return schedule
}
