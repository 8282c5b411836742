package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"stockpilot/internal/inventory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List the current inventory",
		Run:   runItems,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	RootCmd.AddCommand(cmd)
}

func runItems(cmd *cobra.Command, _ []string) {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	store, err := inventory.NewSQLiteStore(cfg.Inventory.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	defer store.Close()

	items, err := store.List(cmd.Context(), cfg.Inventory.UserID)
	if err != nil {
		exitErr("list items", err)
	}

	if asJSON {
		b, _ := json.MarshalIndent(items, "", "  ")
		fmt.Println(string(b))
		return
	}

	if len(items) == 0 {
		fmt.Println("inventory is empty")
		return
	}
	for _, item := range items {
		line := fmt.Sprintf("%-20s %6d @ %.2f", item.Name, item.Quantity, item.Price)
		if item.ExpiryDate != "" {
			line += fmt.Sprintf("  expires %s", item.ExpiryDate)
		}
		fmt.Println(line)
	}
}
