package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/id"
)

func newKeysCmd(cfg *daemonConfig) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage tenant API keys",
	}

	var tenantID string
	keysCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "tenant ID")
	_ = keysCmd.MarkPersistentFlagRequired("tenant")

	var (
		label     string
		expiresIn time.Duration
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key and print its secret once",
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

			in := apikey.IssueInput{Label: label}
			if expiresIn > 0 {
				at := time.Now().UTC().Add(expiresIn)
				in.ExpiresAt = &at
			}

			secret, k, err := r.Keys().Issue(cmd.Context(), tenantID, in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", k.ID)
			fmt.Fprintf(out, "tenant: %s\n", k.TenantID)
			fmt.Fprintf(out, "secret: %s\n", secret)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&label, "label", "", "free-form label")
	issueCmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "key lifetime, e.g. 720h (0 = never)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's API keys",
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

			keys, err := r.Keys().List(cmd.Context(), tenantID)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPREFIX\tLABEL\tACTIVE\tLAST USED")
			for _, k := range keys {
				lastUsed := "-"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", k.ID, k.Prefix, k.Label, k.Usable(time.Now()), lastUsed)
			}
			return tw.Flush()
		},
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyID, err := id.ParseAPIKeyID(args[0])
			if err != nil {
				return fmt.Errorf("invalid key ID: %w", err)
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

			if err := r.Keys().Revoke(cmd.Context(), keyID, tenantID); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", keyID)
			return nil
		},
	}

	keysCmd.AddCommand(issueCmd, listCmd, revokeCmd)
	return keysCmd
}
