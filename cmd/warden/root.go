package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	envServer    = "WARDEN_SERVER"
	envToken     = "WARDEN_TOKEN"
	defaultServe = "http://localhost:8080/api"
)

type options struct {
	server  string
	token   string
	timeout time.Duration
}

func (o *options) client() *client {
	return newClient(o.server, o.token, o.timeout)
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "warden",
		Short:         "Detect and redact sensitive information in documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("server") {
				if v := os.Getenv(envServer); v != "" {
					opts.server = v
				}
			}
			if opts.token == "" {
				opts.token = os.Getenv(envToken)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", defaultServe, "Base URL of the warden API (env "+envServer+")")
	flags.StringVar(&opts.token, "token", "", "Bearer token for authenticated servers (env "+envToken+")")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout for individual HTTP requests")

	rootCmd.AddCommand(newVerifyCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newCategoriesCommand(opts))

	return rootCmd
}
