package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ipblacklist/internal/support"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Encode or decode sync tokens locally",
		Annotations: map[string]string{offlineAnnotation: "true"},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "encode <RFC3339 time>",
			Short: "Build a sync token for a point in time",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, err := time.Parse(time.RFC3339Nano, args[0])
				if err != nil {
					return fmt.Errorf("parse time: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), support.EncodeSyncToken(t))
				return nil
			},
		},
		&cobra.Command{
			Use:   "decode <token>",
			Short: "Show the point in time a sync token refers to",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				t, ok := support.DecodeSyncToken(args[0])
				if !ok {
					return fmt.Errorf("invalid sync token")
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339Nano))
				return nil
			},
		},
	)
	return cmd
}
