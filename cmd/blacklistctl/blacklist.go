package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ipblacklist/internal/api/dto"
	"ipblacklist/internal/config"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <ip>",
		Short: "Report an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, created, err := getClient(cmd).Register(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			status := "attributed"
			if created {
				status = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ", status)
			printEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|ip>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := getClient(cmd).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var byFrequency bool

	c := &cobra.Command{
		Use:   "list",
		Short: "List active entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := getClient(cmd).List(cmd.Context(), byFrequency)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				printEntry(cmd.OutOrStdout(), entry)
			}
			return nil
		},
	}

	c.Flags().BoolVar(&byFrequency, "by-frequency", false, "Most reported entries first")
	return c
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			if err := getClient(cmd).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var (
		token        string
		watch        bool
		settingsPath string
	)

	c := &cobra.Command{
		Use:   "sync",
		Short: "Print entries created since a sync token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval := config.DefaultConfig().SyncPollInterval()
			if settingsPath != "" {
				cfg, err := config.LoadSettings(settingsPath)
				if err != nil {
					return err
				}
				interval = cfg.SyncPollInterval()
			}

			// Responses overlap near the token.
			seen := make(map[uint64]struct{})
			for {
				resp, err := getClient(cmd).Sync(cmd.Context(), token)
				if err != nil {
					return err
				}
				for _, entry := range resp.Entries {
					if _, ok := seen[entry.ID]; ok {
						continue
					}
					seen[entry.ID] = struct{}{}
					printEntry(cmd.OutOrStdout(), entry)
				}
				token = resp.Token
				if !watch {
					fmt.Fprintf(cmd.OutOrStdout(), "token %s\n", token)
					return nil
				}

				select {
				case <-cmd.Context().Done():
					fmt.Fprintf(cmd.OutOrStdout(), "token %s\n", token)
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	c.Flags().StringVar(&token, "token", "", "Token returned by a previous sync")
	c.Flags().BoolVar(&watch, "watch", false, "Keep polling for changes")
	c.Flags().StringVar(&settingsPath, "settings", "", "Settings file supplying the poll interval")
	return c
}

func printEntry(w io.Writer, entry dto.BlacklistEntryResponse) {
	fmt.Fprintf(w, "%d\t%s\tfrequency=%d\tcreated=%s\n",
		entry.ID, entry.BlackIP, entry.Frequency, entry.CreatedUTC.Format(time.RFC3339))
}
