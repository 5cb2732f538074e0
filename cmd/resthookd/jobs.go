package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/resthook/id"
)

func newJobsCmd(cfg *daemonConfig) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and replay delivery jobs",
	}

	replayCmd := &cobra.Command{
		Use:   "replay <job-id>",
		Short: "Requeue a failed job with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID: %w", err)
			}

			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			r, s, err := openRelay(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			j, err := r.Replay(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s (attempts %d-%d)\n", j.ID, j.Attempt, j.MaxAttempts)
			return nil
		},
	}

	attemptsCmd := &cobra.Command{
		Use:   "attempts <job-id>",
		Short: "Print the delivery log of a job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return fmt.Errorf("invalid job ID: %w", err)
			}

			logger, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			r, s, err := openRelay(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := r.DeliveryLog().Attempts(cmd.Context(), jobID)
			if err != nil {
				return err
			}

			return writeIndentedJSON(cmd, entries)
		},
	}

	jobsCmd.AddCommand(replayCmd, attemptsCmd)
	return jobsCmd
}
