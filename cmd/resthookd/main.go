// Command resthookd runs the REST-Hook API and delivery engine, and carries
// the operator commands for API keys, stats and migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cfg := &daemonConfig{}

	rootCmd := &cobra.Command{
		Use:           "resthookd",
		Short:         "REST-Hook subscription and webhook delivery daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newKeysCmd(cfg),
		newJobsCmd(cfg),
		newStatsCmd(cfg),
		newSigningSecretCmd(),
	)

	return rootCmd
}
