package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/DukeRupert/folio/internal"
	"github.com/DukeRupert/folio/internal/email"
)

func newVerifyCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check SMTP connectivity and print the transport that would be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.NewConfig()
			if err != nil {
				return fmt.Errorf("config initialization failed: %w", err)
			}
			if cfg.MailProvider != internal.MailProviderSMTP {
				fmt.Fprintf(cmd.OutOrStdout(), "mail provider is %s, nothing to verify\n", cfg.MailProvider)
				return nil
			}

			logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)
			selector := newSelector(cfg, email.NewSMTPTransport(nil), logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := selector.Run(ctx); err != nil {
				return fmt.Errorf("no transport verified: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]\n", selector.Current(), selector.State())
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Maximum time for the whole selection")

	return cmd
}
