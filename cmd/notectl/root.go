package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:8080"

type commandContext struct {
	apiURL  string
	timeout time.Duration
	json    bool
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(c.apiURL, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	defaultURL := os.Getenv("NOTECTL_API_URL")
	if defaultURL == "" {
		defaultURL = defaultAPIURL
	}

	rootCmd := &cobra.Command{
		Use:           "notectl",
		Short:         "Import recipe notes and follow their processing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.apiURL, "api", defaultURL, "Base URL of the recipe API service")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&ctx.json, "json", false, "Print raw JSON instead of tables")

	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newNotesCommand(ctx))
	rootCmd.AddCommand(newProgressCommand(ctx))
	rootCmd.AddCommand(newActionsCommand(ctx))
	rootCmd.AddCommand(newPatternsCommand(ctx))

	return rootCmd
}
