// Package main is the entry point for the nsapi command-line client.
// It builds governed API requests from command-line arguments and prints
// the decoded responses.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for nsapi.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nsapi",
		Short: "Rate-governed NationStates API client",
		Long: `A command-line client for the NationStates API.

All requests are serialized and paced against the API's published rate
budget; 429 and transient 5xx responses are retried automatically.

The API terms require a User-Agent identifying you; set one with --agent
or in the config file.

Example:
  nsapi query nation=testlandia fullname population
  nsapi dump nations regions`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("agent", "A", "", "User-Agent to identify this script (nation name and contact)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newDumpCmd())

	return rootCmd
}
