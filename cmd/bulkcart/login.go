package main

import (
	"log"

	"github.com/mohammad-safakhou/bulkcart/internal/app"
	"github.com/spf13/cobra"
)

func loginCMD(cfgPath *string) *cobra.Command {
	var force bool
	var login = &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token without adding items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			deps, err := app.Open(ctx, cfg, app.OpenOptions{})
			if err != nil {
				return err
			}
			defer deps.Close()

			sess, err := app.NewRunner(cfg, deps, nil).Login(ctx, force)
			if err != nil {
				return err
			}
			if sess.Restored {
				log.Printf("[BULKCART] stored session for %s is valid", sess.Identity)
			} else {
				log.Printf("[BULKCART] logged in as %s", sess.Identity)
			}
			return nil
		},
	}
	login.Flags().BoolVar(&force, "force", false, "discard the stored token and log in again")
	return login
}
