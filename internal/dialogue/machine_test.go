package dialogue

import (
	"context"
	"strings"
	"testing"

	"stockpilot/internal/domain"
	"stockpilot/internal/inventory"
)

type upsertCall struct {
	name       string
	quantity   int64
	price      float64
	expiryDate string
}

type removeCall struct {
	name     string
	quantity int64
}

type fakeInventory struct {
	upserts []upsertCall
	removes []removeCall

	upsertErr error
	removeErr error
	onHand    int64
	deleted   bool
}

func (f *fakeInventory) Upsert(_ context.Context, _, name string, quantity int64, price float64, expiryDate string) (domain.InventoryItem, error) {
	f.upserts = append(f.upserts, upsertCall{name: name, quantity: quantity, price: price, expiryDate: expiryDate})
	if f.upsertErr != nil {
		return domain.InventoryItem{}, f.upsertErr
	}
	return domain.InventoryItem{Name: domain.NormalizeItemName(name), Quantity: quantity, Price: price, ExpiryDate: expiryDate}, nil
}

func (f *fakeInventory) Remove(_ context.Context, _, name string, quantity int64) (domain.InventoryItem, bool, error) {
	f.removes = append(f.removes, removeCall{name: name, quantity: quantity})
	if f.removeErr != nil {
		return domain.InventoryItem{}, false, f.removeErr
	}
	remaining := f.onHand - quantity
	return domain.InventoryItem{Name: domain.NormalizeItemName(name), Quantity: remaining}, f.deleted, nil
}

func call(name string, args map[string]any) domain.ToolInvocation {
	return domain.ToolInvocation{ID: "call-1", Name: name, Args: args}
}

func TestAddFlowWithoutExpiry(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{}
	m := NewMachine(inv, "u1", []string{"electronics"})
	ctx := context.Background()

	res := m.Dispatch(ctx, call(domain.ToolInitiateAddItem, map[string]any{"itemName": "rice"}))
	if !res.Success {
		t.Fatalf("initiate failed: %s", res.Message)
	}
	if m.State() != StateAwaitingQuantity {
		t.Fatalf("state = %s, want awaiting_quantity", m.State())
	}

	res = m.Dispatch(ctx, call(domain.ToolProvideItemQuantity, map[string]any{"quantity": float64(10)}))
	if !res.Success {
		t.Fatalf("quantity failed: %s", res.Message)
	}
	if m.State() != StateAwaitingPrice {
		t.Fatalf("state = %s, want awaiting_price", m.State())
	}

	res = m.Dispatch(ctx, call(domain.ToolProvideItemPrice, map[string]any{"price": float64(40)}))
	if !res.Success {
		t.Fatalf("price failed: %s", res.Message)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s, want idle after commit", m.State())
	}
	if len(inv.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(inv.upserts))
	}
	got := inv.upserts[0]
	want := upsertCall{name: "rice", quantity: 10, price: 40}
	if got != want {
		t.Errorf("upsert = %+v, want %+v", got, want)
	}
}

func TestAddFlowWithQuantityUpfront(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{}
	m := NewMachine(inv, "u1", []string{"electronics"})
	ctx := context.Background()

	res := m.Dispatch(ctx, call(domain.ToolInitiateAddItem, map[string]any{"itemName": "soap", "quantity": float64(6)}))
	if !res.Success {
		t.Fatalf("initiate failed: %s", res.Message)
	}
	if m.State() != StateAwaitingPrice {
		t.Fatalf("state = %s, want awaiting_price when quantity given upfront", m.State())
	}
}

func TestAddFlowWithExpiry(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{}
	m := NewMachine(inv, "u1", []string{"grocery"})
	ctx := context.Background()

	m.Dispatch(ctx, call(domain.ToolInitiateAddItem, map[string]any{"itemName": "milk", "quantity": float64(4)}))
	res := m.Dispatch(ctx, call(domain.ToolProvideItemPrice, map[string]any{"price": float64(45)}))
	if !res.Success {
		t.Fatalf("price failed: %s", res.Message)
	}
	if m.State() != StateAwaitingExpiry {
		t.Fatalf("state = %s, want awaiting_expiry for grocery store", m.State())
	}
	if len(inv.upserts) != 0 {
		t.Fatal("committed before expiry was collected")
	}

	res = m.Dispatch(ctx, call(domain.ToolProvideItemExpiryDate, map[string]any{"expiryDate": "05-01-2026"}))
	if !res.Success {
		t.Fatalf("expiry failed: %s", res.Message)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %s, want idle after commit", m.State())
	}
	if len(inv.upserts) != 1 || inv.upserts[0].expiryDate != "05-01-2026" {
		t.Errorf("upserts = %+v, want one with the expiry date", inv.upserts)
	}
	if !strings.Contains(res.Message, "05-01-2026") {
		t.Errorf("confirmation %q should mention the date", res.Message)
	}
}

func TestInvalidExpiryRepromptsWithoutStateChange(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{}
	m := NewMachine(inv, "u1", []string{"medical"})
	ctx := context.Background()

	m.Dispatch(ctx, call(domain.ToolInitiateAddItem, map[string]any{"itemName": "syrup", "quantity": float64(1)}))
	m.Dispatch(ctx, call(domain.ToolProvideItemPrice, map[string]any{"price": float64(120)}))

	res := m.Dispatch(ctx, call(domain.ToolProvideItemExpiryDate, map[string]any{"expiryDate": "bad-date"}))
	if res.Success {
		t.Fatal("invalid date accepted")
	}
	if m.State() != StateAwaitingExpiry {
		t.Fatalf("state = %s, want to stay awaiting_expiry", m.State())
	}
	if len(inv.upserts) != 0 {
		t.Fatal("committed despite invalid date")
	}

	res = m.Dispatch(ctx, call(domain.ToolProvideItemExpiryDate, map[string]any{"expiryDate": "15-03-2027"}))
	if !res.Success {
		t.Fatalf("valid retry failed: %s", res.Message)
	}
	if len(inv.upserts) != 1 {
		t.Fatalf("got %d upserts after retry, want 1", len(inv.upserts))
	}
}

func TestOutOfOrderToolsFail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"quantity without item", domain.ToolProvideItemQuantity, map[string]any{"quantity": float64(5)}},
		{"price without item", domain.ToolProvideItemPrice, map[string]any{"price": float64(30)}},
		{"expiry without item", domain.ToolProvideItemExpiryDate, map[string]any{"expiryDate": "01-01-2027"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inv := &fakeInventory{}
			m := NewMachine(inv, "u1", []string{"grocery"})
			res := m.Dispatch(context.Background(), call(tt.tool, tt.args))
			if res.Success {
				t.Errorf("%s succeeded with no pending item", tt.tool)
			}
			if m.State() != StateIdle {
				t.Errorf("state = %s, want idle", m.State())
			}
			if len(inv.upserts) != 0 {
				t.Error("unexpected commit")
			}
		})
	}
}

func TestRemoveItemStateless(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{onHand: 10}
	m := NewMachine(inv, "u1", []string{"grocery"})
	ctx := context.Background()

	// Mid-flow removal must not disturb the pending add.
	m.Dispatch(ctx, call(domain.ToolInitiateAddItem, map[string]any{"itemName": "milk"}))
	res := m.Dispatch(ctx, call(domain.ToolRemoveItem, map[string]any{"itemName": "sugar", "quantity": float64(3)}))
	if !res.Success {
		t.Fatalf("remove failed: %s", res.Message)
	}
	if m.State() != StateAwaitingQuantity {
		t.Errorf("state = %s, removal should leave the add flow alone", m.State())
	}
	if len(inv.removes) != 1 || inv.removes[0] != (removeCall{name: "sugar", quantity: 3}) {
		t.Errorf("removes = %+v", inv.removes)
	}
}

func TestRemoveItemErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInventory{removeErr: inventory.ErrNotFound}
		m := NewMachine(inv, "u1", nil)
		res := m.Dispatch(ctx, call(domain.ToolRemoveItem, map[string]any{"itemName": "ghost", "quantity": float64(1)}))
		if res.Success {
			t.Fatal("expected failure")
		}
		if !strings.Contains(res.Message, "no ghost") {
			t.Errorf("message = %q", res.Message)
		}
	})

	t.Run("insufficient", func(t *testing.T) {
		t.Parallel()
		inv := &fakeInventory{removeErr: &inventory.InsufficientQuantityError{Name: "sugar", OnHand: 2, Requested: 5}}
		m := NewMachine(inv, "u1", nil)
		res := m.Dispatch(ctx, call(domain.ToolRemoveItem, map[string]any{"itemName": "sugar", "quantity": float64(5)}))
		if res.Success {
			t.Fatal("expected failure")
		}
		if !strings.Contains(res.Message, "Only 2") {
			t.Errorf("message = %q", res.Message)
		}
	})
}

func TestQueryInventoryPassthrough(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{}
	m := NewMachine(inv, "u1", []string{"grocery"})

	res := m.Dispatch(context.Background(), call(domain.ToolQueryInventory, map[string]any{"query": "how much rice"}))
	if !res.Success {
		t.Fatalf("query failed: %s", res.Message)
	}
	if len(inv.upserts) != 0 || len(inv.removes) != 0 {
		t.Error("query must not touch inventory")
	}
}

func TestEveryCallGetsCorrelatedResult(t *testing.T) {
	t.Parallel()
	m := NewMachine(&fakeInventory{}, "u1", nil)

	res := m.Dispatch(context.Background(), domain.ToolInvocation{ID: "abc", Name: "noSuchTool"})
	if res.ID != "abc" || res.Name != "noSuchTool" {
		t.Errorf("result = %+v, want correlated id and name", res)
	}
	if res.Success {
		t.Error("unknown tool should fail")
	}
}

func TestResetClearsPending(t *testing.T) {
	t.Parallel()
	inv := &fakeInventory{}
	m := NewMachine(inv, "u1", []string{"grocery"})
	ctx := context.Background()

	m.Dispatch(ctx, call(domain.ToolInitiateAddItem, map[string]any{"itemName": "milk", "quantity": float64(2)}))
	m.Reset()
	if m.State() != StateIdle {
		t.Fatalf("state = %s after reset", m.State())
	}
	res := m.Dispatch(ctx, call(domain.ToolProvideItemPrice, map[string]any{"price": float64(10)}))
	if res.Success {
		t.Error("price accepted after reset dropped the pending item")
	}
}
