package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is the release version stamped into the banner.
var Version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "TokenGate is a resilient session token service",
	Long: `A session token service that issues, validates and revokes opaque access
tokens, backed by Redis with an in-memory fallback that takes over during
outages and migrates its state back when Redis recovers.

Configuration is read from the environment (and an optional .env file).`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
