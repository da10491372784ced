package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"warden/cli/api"
)

var (
	serverURL string
	client    *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Health watchdog and remediation CLI",
	Long: `Warden watches a cluster's core services, aggregates health reports
and drives automated remediation when a service stays down.

Check status, trigger remediations, and read the audit trail from the terminal.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = api.New(serverURL, os.Getenv("WARDEN_API_TOKEN"))
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultURL := os.Getenv("WARDEN_SERVER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:7070"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultURL, "Warden server URL")
}
