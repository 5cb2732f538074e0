package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newMigrateCmd(cfg *daemonConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}

			logger.Info("migrations applied", "store", cfg.Store.Driver)
			return nil
		},
	}
}
