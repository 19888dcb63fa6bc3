package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tokengate/tokengate/config"
	"github.com/tokengate/tokengate/users"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the user directory with the default test users",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		dir, err := users.OpenBolt(filepath.Join(cfg.DataDir, "users.db"))
		if err != nil {
			return fmt.Errorf("failed to open user directory: %w", err)
		}
		defer dir.Close()

		if err := dir.SeedDefaults(cmd.Context()); err != nil {
			return fmt.Errorf("failed to seed user directory: %w", err)
		}

		fmt.Printf("Seeded default users into %s\n", filepath.Join(cfg.DataDir, "users.db"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
