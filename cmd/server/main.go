package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	root := &cobra.Command{
		Use:   "folio",
		Short: "Portfolio contact form relay.",
		Long: `folio receives contact form submissions from the portfolio site and
relays them to the owner's mailbox over SMTP, SendGrid or Amazon SES.`,
		SilenceUsage: true,
		// Running the binary without a subcommand starts the server.
		RunE: serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(newVerifyCommand())

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
