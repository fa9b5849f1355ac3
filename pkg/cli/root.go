// Package cli implements the querychat command-line client. It talks to a
// running server over HTTP; it never touches the database directly.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var host, user, session string

	rootCmd := &cobra.Command{
		Use:           "querychat",
		Short:         "Ask analytics questions in plain English",
		Long:          "Command-line client for the querychat analytics service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("QUERYCHAT_HOST"); v != "" {
					host = v
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().StringVar(&user, "user", "cli", "user id for rate limiting and audit")
	rootCmd.PersistentFlags().StringVar(&session, "session", "", "session id for follow-up questions (defaults to user)")

	client := func() *Client { return NewClient(host) }
	rootCmd.AddCommand(newAskCmd(client, &user, &session))
	rootCmd.AddCommand(newTemplatesCmd(client))
	rootCmd.AddCommand(newAuditCmd(client))

	return rootCmd
}
