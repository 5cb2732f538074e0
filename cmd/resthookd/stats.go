package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd(cfg *daemonConfig) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a tenant's delivery statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			r, s, err := openRelay(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := r.DeliveryLog().Stats(cmd.Context(), tenantID)
			if err != nil {
				return err
			}

			return writeIndentedJSON(cmd, stats)
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant ID")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func writeIndentedJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
