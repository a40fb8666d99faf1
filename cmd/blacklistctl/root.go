package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"ipblacklist/internal/client"
)

type ctxKey string

const clientKey ctxKey = "blacklistclient"

func newRootCmd() *cobra.Command {
	var (
		addr   string
		apiKey string
	)

	root := &cobra.Command{
		Use:   "blacklistctl",
		Short: "IP blacklist admin CLI",
		Example: `	blacklistctl --addr http://127.0.0.1:8080 --api-key acme:s3cret add 203.0.113.7
	blacklistctl list --by-frequency
	blacklistctl sync --token <token>
	blacklistctl token decode <token>`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsClient(cmd) {
				return nil
			}
			c, err := client.New(addr, apiKey)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), clientKey, c))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&addr, "addr", getenv("IPBLACKLIST_ADDR", "http://127.0.0.1:8080"), "API base URL (or IPBLACKLIST_ADDR)")
	root.PersistentFlags().StringVar(&apiKey, "api-key", getenv("IPBLACKLIST_API_KEY", ""), "clientId:secretKey (or IPBLACKLIST_API_KEY)")

	root.AddCommand(
		newAddCmd(),
		newGetCmd(),
		newListCmd(),
		newDeleteCmd(),
		newSyncCmd(),
		newTokenCmd(),
	)
	return root
}

const offlineAnnotation = "offline"

// needsClient is false for commands that never talk to the server.
func needsClient(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[offlineAnnotation]; ok {
			return false
		}
	}
	return true
}

func getClient(cmd *cobra.Command) *client.Client {
	c, _ := cmd.Context().Value(clientKey).(*client.Client)
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
