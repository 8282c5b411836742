// Package dialogue turns the remote model's tool invocations into
// inventory mutations via an explicit slot-filling state machine.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"stockpilot/internal/domain"
	"stockpilot/internal/inventory"
)

// State names the add-item flow's position. Remove and query tools are
// single-turn and never change it.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingQuantity State = "awaiting_quantity"
	StateAwaitingPrice    State = "awaiting_price"
	StateAwaitingExpiry   State = "awaiting_expiry"
)

// Inventory is the slice of the inventory service the machine commits
// through.
type Inventory interface {
	Upsert(ctx context.Context, userID, name string, quantity int64, price float64, expiryDate string) (domain.InventoryItem, error)
	Remove(ctx context.Context, userID, name string, quantity int64) (domain.InventoryItem, bool, error)
}

// pending is the single in-flight add-item context. At most one exists
// per session.
type pending struct {
	name     string
	quantity int64
	hasQty   bool
	price    float64
}

// Machine is the per-session dialogue state machine. It is driven from
// the session's single event loop and needs no locking of its own.
type Machine struct {
	inv        Inventory
	userID     string
	categories []string

	state   State
	pending *pending
}

func NewMachine(inv Inventory, userID string, categories []string) *Machine {
	return &Machine{
		inv:        inv,
		userID:     userID,
		categories: categories,
		state:      StateIdle,
	}
}

// State reports the current add-item flow position.
func (m *Machine) State() State { return m.state }

// Reset drops any pending slot context. Called on session teardown.
func (m *Machine) Reset() {
	m.state = StateIdle
	m.pending = nil
}

// Dispatch handles one tool invocation and always produces exactly one
// correlated result. The result message is a fact or prompt for the
// remote model to phrase, not user-facing prose.
func (m *Machine) Dispatch(ctx context.Context, call domain.ToolInvocation) domain.ToolResult {
	res := domain.ToolResult{ID: call.ID, Name: call.Name}
	switch call.Name {
	case domain.ToolInitiateAddItem:
		res.Success, res.Message = m.initiateAdd(call.Args)
	case domain.ToolProvideItemQuantity:
		res.Success, res.Message = m.provideQuantity(call.Args)
	case domain.ToolProvideItemPrice:
		res.Success, res.Message = m.providePrice(ctx, call.Args)
	case domain.ToolProvideItemExpiryDate:
		res.Success, res.Message = m.provideExpiry(ctx, call.Args)
	case domain.ToolRemoveItem:
		res.Success, res.Message = m.removeItem(ctx, call.Args)
	case domain.ToolQueryInventory:
		res.Success = true
		res.Message = "Answer the user's inventory question from the inventory snapshot you already have."
	default:
		res.Success = false
		res.Message = fmt.Sprintf("Unknown tool %q.", call.Name)
	}
	return res
}

func (m *Machine) initiateAdd(args map[string]any) (bool, string) {
	name, ok := argString(args, "itemName")
	if !ok || strings.TrimSpace(name) == "" {
		return false, "Missing item name. Ask the user which item to add."
	}
	p := &pending{name: strings.TrimSpace(name)}
	if qty, ok := argInt(args, "quantity"); ok && qty > 0 {
		p.quantity = qty
		p.hasQty = true
	}
	m.pending = p
	if p.hasQty {
		m.state = StateAwaitingPrice
		return true, fmt.Sprintf("Adding %d of %s. Ask the user for the price per unit.", p.quantity, p.name)
	}
	m.state = StateAwaitingQuantity
	return true, fmt.Sprintf("Adding %s. Ask the user how many units.", p.name)
}

func (m *Machine) provideQuantity(args map[string]any) (bool, string) {
	if m.pending == nil {
		return false, "I don't know which item this quantity is for. Ask the user to name the item first."
	}
	qty, ok := argInt(args, "quantity")
	if !ok || qty <= 0 {
		return false, "Quantity must be a positive whole number. Ask the user again."
	}
	m.pending.quantity = qty
	m.pending.hasQty = true
	m.state = StateAwaitingPrice
	return true, fmt.Sprintf("Got %d of %s. Ask the user for the price per unit.", qty, m.pending.name)
}

func (m *Machine) providePrice(ctx context.Context, args map[string]any) (bool, string) {
	if m.pending == nil || !m.pending.hasQty {
		return false, "There is no item in progress. Ask the user to start over with the item name and quantity."
	}
	price, ok := argFloat(args, "price")
	if !ok || price < 0 {
		return false, "Price must be a non-negative number. Ask the user again."
	}
	m.pending.price = price

	if domain.RequiresExpiry(m.categories) {
		m.state = StateAwaitingExpiry
		return true, fmt.Sprintf("Price recorded for %s. Ask the user for the expiry date in DD-MM-YYYY form.", m.pending.name)
	}
	return m.commit(ctx, "")
}

func (m *Machine) provideExpiry(ctx context.Context, args map[string]any) (bool, string) {
	if m.pending == nil || m.state != StateAwaitingExpiry {
		return false, "There is no item waiting for an expiry date. Ask the user to start over."
	}
	date, _ := argString(args, "expiryDate")
	date = strings.TrimSpace(date)
	if !domain.ValidExpiryDate(date) {
		// Invalid dates re-prompt without losing the pending item.
		return false, fmt.Sprintf("%q doesn't look right. Ask the user for the date as DD-MM-YYYY.", date)
	}
	return m.commit(ctx, date)
}

// commit writes the pending item and returns to Idle. The pending
// context is cleared even when the write fails so a retry starts clean.
func (m *Machine) commit(ctx context.Context, expiryDate string) (bool, string) {
	p := m.pending
	m.Reset()

	item, err := m.inv.Upsert(ctx, m.userID, p.name, p.quantity, p.price, expiryDate)
	if err != nil {
		return false, fmt.Sprintf("Could not save %s: %v. Tell the user and offer to retry.", p.name, err)
	}
	msg := fmt.Sprintf("Saved: %d %s at %s each, %d now in stock.",
		p.quantity, item.Name, formatPrice(p.price), item.Quantity)
	if expiryDate != "" {
		msg += fmt.Sprintf(" Expires %s.", expiryDate)
	}
	return true, msg
}

func (m *Machine) removeItem(ctx context.Context, args map[string]any) (bool, string) {
	name, ok := argString(args, "itemName")
	if !ok || strings.TrimSpace(name) == "" {
		return false, "Missing item name. Ask the user which item to remove."
	}
	qty, ok := argInt(args, "quantity")
	if !ok || qty <= 0 {
		return false, "Quantity must be a positive whole number. Ask the user how many to remove."
	}

	item, deleted, err := m.inv.Remove(ctx, m.userID, name, qty)
	if err != nil {
		var insufficient *inventory.InsufficientQuantityError
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			return false, fmt.Sprintf("There is no %s in the inventory.", strings.TrimSpace(name))
		case errors.As(err, &insufficient):
			return false, fmt.Sprintf("Only %d %s on hand, cannot remove %d.",
				insufficient.OnHand, insufficient.Name, insufficient.Requested)
		default:
			return false, fmt.Sprintf("Could not remove %s: %v.", strings.TrimSpace(name), err)
		}
	}
	if deleted {
		return true, fmt.Sprintf("Removed the last %d of %s. The item is now out of stock and gone from the list.", qty, item.Name)
	}
	return true, fmt.Sprintf("Removed %d of %s, %d left in stock.", qty, item.Name, item.Quantity)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Remote models deliver numeric arguments as JSON numbers, sometimes as
// strings. These helpers accept both.

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func argFloat(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func argInt(args map[string]any, key string) (int64, bool) {
	f, ok := argFloat(args, key)
	if !ok {
		return 0, false
	}
	i := int64(f)
	if float64(i) != f {
		return 0, false
	}
	return i, true
}
