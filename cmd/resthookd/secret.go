package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/resthook/signature"
)

func newSigningSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signing-secret",
		Short: "Generate a secret for engine.signing_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), signature.GenerateSecret())
			return err
		},
	}
}
