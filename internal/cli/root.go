// Package cli implements the stockpilot CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stockpilot/internal/config"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "stockpilot",
	Short: "Voice-driven store inventory assistant",
	Long:  "A voice session engine for managing store inventory by talking: add stock, record sales, and ask what's on hand, in English or Hindi.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $STOCKPILOT_DB_PATH or ~/.local/share/stockpilot/inventory.db)")
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Inventory.DBPath = dbPath
	}
	return cfg, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
