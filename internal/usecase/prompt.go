package usecase

import (
	"fmt"
	"strings"

	"stockpilot/internal/domain"
)

// snapshotLimit caps how much inventory is inlined into the system
// instruction so large stores don't blow the prompt up.
const snapshotLimit = 50

// buildSystemInstruction assembles the live model's standing orders:
// persona, language policy, the slot-filling tool protocol, and a
// snapshot of current stock for answering queries directly.
func buildSystemInstruction(categories []string, items []domain.InventoryItem) string {
	var b strings.Builder

	b.WriteString("You are a voice assistant for a small store owner managing their inventory. ")
	b.WriteString("The owner speaks English, Hindi, or a mix of both; always reply in the language they used. ")
	b.WriteString("Keep replies short and spoken-friendly.\n\n")

	b.WriteString("To add an item, call initiateAddItem as soon as the item is named, then collect the remaining ")
	b.WriteString("details one at a time with provideItemQuantity and provideItemPrice.")
	if domain.RequiresExpiry(categories) {
		b.WriteString(" This store tracks expiry dates: after the price, ask for the expiry date and call ")
		b.WriteString("provideItemExpiryDate with it in DD-MM-YYYY form.")
	}
	b.WriteString("\nTo record a sale or disposal, call removeItem. ")
	b.WriteString("For questions about stock, call queryInventory and answer from the snapshot below.\n")
	b.WriteString("Never invent stock numbers. After each tool result, confirm to the user what happened.\n\n")

	if len(categories) > 0 {
		fmt.Fprintf(&b, "Store categories: %s.\n", strings.Join(categories, ", "))
	}

	if len(items) == 0 {
		b.WriteString("The inventory is currently empty.\n")
		return b.String()
	}

	b.WriteString("Current inventory:\n")
	for i, item := range items {
		if i == snapshotLimit {
			fmt.Fprintf(&b, "... and %d more items.\n", len(items)-snapshotLimit)
			break
		}
		fmt.Fprintf(&b, "- %s: %d units at %.2f each", item.Name, item.Quantity, item.Price)
		if item.ExpiryDate != "" {
			fmt.Fprintf(&b, ", expires %s", item.ExpiryDate)
		}
		b.WriteString("\n")
	}
	return b.String()
}
