package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"stockpilot/internal/domain"
)

func newTestService(t *testing.T) (*Service, *SQLiteStore) {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, store), store
}

func TestUpsertCreatesItem(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Upsert(ctx, "u1", "  Milk ", 3, 45, "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if item.Name != "milk" {
		t.Errorf("name = %q, want normalized %q", item.Name, "milk")
	}
	if item.Quantity != 3 || item.Price != 45 {
		t.Errorf("got quantity=%d price=%v, want 3 and 45", item.Quantity, item.Price)
	}
	if item.ID == "" {
		t.Error("expected a generated id")
	}
	if item.AlertRules != domain.DefaultAlertRules() {
		t.Errorf("alert rules = %+v, want defaults", item.AlertRules)
	}
}

func TestUpsertMergesExisting(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, "u1", "rice", 5, 80, "")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	merged, err := svc.Upsert(ctx, "u1", "Rice", 7, 95, "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if merged.ID != first.ID {
		t.Errorf("merge created a new item: %q vs %q", merged.ID, first.ID)
	}
	if merged.Quantity != 12 {
		t.Errorf("quantity = %d, want 12", merged.Quantity)
	}
	if merged.Price != 95 {
		t.Errorf("price = %v, want latest 95", merged.Price)
	}
}

func TestUpsertExpiryDerivation(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	item, err := svc.Upsert(ctx, "u1", "paracetamol", 2, 30, "15-10-2026")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if item.ExpiryDate != "15-10-2026" {
		t.Errorf("expiry date = %q", item.ExpiryDate)
	}
	if item.ExpiryAt == nil {
		t.Fatal("expected derived expiry instant")
	}
	want := time.Date(2026, 10, 15, 23, 59, 59, 999_000_000, time.Local)
	if !item.ExpiryAt.Equal(want) {
		t.Errorf("expiry at = %v, want %v", item.ExpiryAt, want)
	}
	if item.ExpiryStatus != domain.ExpiryStatusNone {
		t.Errorf("expiry status = %q, want none", item.ExpiryStatus)
	}
}

func TestUpsertRejectsBadInput(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "u1", "milk", 0, 10, ""); err == nil {
		t.Error("expected error for zero quantity")
	}
	if _, err := svc.Upsert(ctx, "u1", "milk", 2, 10, "2026-10-15"); err == nil {
		t.Error("expected error for ISO-ordered date")
	}
	if _, err := svc.Upsert(ctx, "u1", "   ", 2, 10, ""); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestUpsertNewExpiryResetsAlertState(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	item, err := svc.Upsert(ctx, "u1", "syrup", 1, 120, "01-01-2026")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Simulate the alert cycle having already fired for the old batch.
	stored, err := store.GetByName(ctx, "u1", "syrup")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	alerted := time.Now().UTC()
	stored.ExpiryStatus = domain.ExpiryStatusExpired
	stored.LastAlerted = &alerted
	if err := store.UpdateVersioned(ctx, "u1", stored.Version, stored.InventoryItem); err != nil {
		t.Fatalf("mark alerted: %v", err)
	}

	item, err = svc.Upsert(ctx, "u1", "syrup", 2, 120, "01-06-2027")
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if item.ExpiryStatus != domain.ExpiryStatusNone {
		t.Errorf("expiry status = %q, want none after restock", item.ExpiryStatus)
	}
	if item.LastAlerted != nil {
		t.Error("expected alert history cleared after new expiry")
	}
	if item.ExpiryDate != "01-06-2027" {
		t.Errorf("expiry date = %q, want the restock date", item.ExpiryDate)
	}
}

func TestRemovePartial(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "u1", "sugar", 10, 50, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	item, deleted, err := svc.Remove(ctx, "u1", "sugar", 4)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if deleted {
		t.Error("partial removal should not delete the item")
	}
	if item.Quantity != 6 {
		t.Errorf("quantity = %d, want 6", item.Quantity)
	}
}

func TestRemoveInsufficientDoesNotMutate(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "u1", "sugar", 3, 50, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, _, err := svc.Remove(ctx, "u1", "sugar", 9)
	var insufficient *InsufficientQuantityError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientQuantityError", err)
	}
	if insufficient.OnHand != 3 || insufficient.Requested != 9 {
		t.Errorf("error detail = %+v", insufficient)
	}

	stored, err := store.GetByName(ctx, "u1", "sugar")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Quantity != 3 {
		t.Errorf("quantity mutated to %d on failed removal", stored.Quantity)
	}
}

func TestRemoveUnknownItem(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, _, err := svc.Remove(context.Background(), "u1", "ghost", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveExactDepletionCleansUp(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	item, err := svc.Upsert(ctx, "u1", "yogurt", 4, 25, "10-09-2026")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Add(ctx, Notification{
		UserID: "u1",
		ItemID: item.ID,
		Title:  "Expiring soon",
	}); err != nil {
		t.Fatalf("add notification: %v", err)
	}

	removed, deleted, err := svc.Remove(ctx, "u1", "yogurt", 4)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !deleted {
		t.Fatal("exact depletion should delete the item")
	}
	if removed.Quantity != 0 {
		t.Errorf("quantity = %d, want 0", removed.Quantity)
	}
	if _, err := store.GetByName(ctx, "u1", "yogurt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("item still present after depletion: %v", err)
	}
	left, err := store.ListForItem(ctx, "u1", item.ID)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("%d notifications left after depletion, want 0", len(left))
	}
}

type failingNotifications struct {
	NotificationStore
	deleteErr error
}

func (f *failingNotifications) DeleteForItem(ctx context.Context, userID, itemID string) error {
	return f.deleteErr
}

func TestRemoveDepletionSurvivesCleanupFailure(t *testing.T) {
	t.Parallel()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, &failingNotifications{
		NotificationStore: store,
		deleteErr:         errors.New("notifications table locked"),
	})
	var warnings []error
	svc.SetWarnHandler(func(err error) { warnings = append(warnings, err) })
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "u1", "yogurt", 4, 25, "10-09-2026"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// The delete commits before cleanup runs, so a cleanup failure must
	// not fail the removal.
	removed, deleted, err := svc.Remove(ctx, "u1", "yogurt", 4)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !deleted || removed.Quantity != 0 {
		t.Fatalf("deleted = %v, quantity = %d", deleted, removed.Quantity)
	}
	if _, err := store.GetByName(ctx, "u1", "yogurt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("item still present after depletion: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if !strings.Contains(warnings[0].Error(), "notifications table locked") {
		t.Errorf("warning = %v", warnings[0])
	}
}

func TestInsertDuplicateNameIsConflict(t *testing.T) {
	t.Parallel()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	item := domain.InventoryItem{
		ID:         "01ARZ3NDEKTSV4RRFFQ69G5FAA",
		Name:       "rice",
		Quantity:   10,
		Price:      80,
		AlertRules: domain.DefaultAlertRules(),
	}
	if err := store.Insert(ctx, "u1", item); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := item
	dup.ID = "01ARZ3NDEKTSV4RRFFQ69G5FAB"
	if err := store.Insert(ctx, "u1", dup); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate insert returned %v, want ErrConflict", err)
	}

	// Same name under another user is not a conflict.
	if err := store.Insert(ctx, "u2", dup); err != nil {
		t.Errorf("other-user insert: %v", err)
	}
}

func TestConcurrentUpsertsSum(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Upsert(ctx, "u1", "salt", 2, 15, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent upsert: %v", err)
	}

	items, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Quantity != 2*workers {
		t.Errorf("quantity = %d, want %d", items[0].Quantity, 2*workers)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "u1", "tea", 1, 200, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	items, err := svc.List(ctx, "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("user u2 sees %d items from u1", len(items))
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	t.Parallel()
	svc, store := newTestService(t)
	ctx := context.Background()

	feed, cancel := store.Subscribe("u1")
	defer cancel()

	if _, err := svc.Upsert(ctx, "u1", "bread", 2, 40, ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	select {
	case snapshot := <-feed:
		if len(snapshot) != 1 || snapshot[0].Name != "bread" {
			t.Errorf("snapshot = %+v, want one bread item", snapshot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered after upsert")
	}
}
