package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://127.0.0.1:8080"

// NewRootCmd creates the platformctl command with all subcommands registered
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "platformctl",
		Short:         "Operate the AI integration platform",
		Long:          "platformctl inspects provider health, spend and routing on a running api-gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("PLATFORM_URL")
	if server == "" {
		server = defaultServer
	}

	root.PersistentFlags().String("server", server, "api-gateway base URL (env PLATFORM_URL)")
	root.PersistentFlags().String("user", os.Getenv("PLATFORM_USER"), "caller identity sent as X-User-ID (env PLATFORM_USER)")
	root.PersistentFlags().String("token", os.Getenv("PLATFORM_TOKEN"), "bearer token when the gateway requires one (env PLATFORM_TOKEN)")
	root.PersistentFlags().Bool("json", false, "print the raw JSON response")

	root.AddCommand(
		newHealthCmd(),
		newProvidersCmd(),
		newSpendCmd(),
		newRouteCmd(),
	)

	return root
}

// clientFor builds an API client from the persistent flags
func clientFor(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	user, _ := cmd.Flags().GetString("user")
	token, _ := cmd.Flags().GetString("token")
	return newAPIClient(server, user, token)
}

func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}
