// Package inventory provides the transactional inventory service and
// its persistence layer.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockpilot/internal/domain"
)

var (
	// ErrNotFound reports that no item with the given name exists.
	ErrNotFound = errors.New("item not found")

	// ErrConflict reports a versioned write that lost a race with a
	// concurrent mutation. The service retries these internally.
	ErrConflict = errors.New("inventory version conflict")
)

// InsufficientQuantityError reports a removal larger than on-hand
// stock. No partial removal happens.
type InsufficientQuantityError struct {
	Name      string
	OnHand    int64
	Requested int64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("only %d %s on hand, cannot remove %d", e.OnHand, e.Name, e.Requested)
}

// StoredItem is an inventory item plus its persistence version used
// for compare-and-swap writes.
type StoredItem struct {
	domain.InventoryItem
	Version int64
}

// Store is the per-user inventory collection. Writes are conditional
// on the version read, giving single-row compare-and-swap semantics.
type Store interface {
	GetByName(ctx context.Context, userID string, name string) (StoredItem, error)
	Insert(ctx context.Context, userID string, item domain.InventoryItem) error
	UpdateVersioned(ctx context.Context, userID string, version int64, item domain.InventoryItem) error
	DeleteVersioned(ctx context.Context, userID string, id string, version int64) error
	List(ctx context.Context, userID string) ([]domain.InventoryItem, error)

	// Subscribe returns a live snapshot feed for the user's inventory,
	// plus a cancel function. The surrounding UI renders from this.
	Subscribe(userID string) (<-chan []domain.InventoryItem, func())

	Close() error
}

// Notification is an expiry alert owned by the external notification
// surface; this engine only deletes them when their item is depleted.
type Notification struct {
	ID        string
	UserID    string
	ItemID    string
	Title     string
	Body      string
	CreatedAt time.Time
	Read      bool
}

// NotificationStore is the external notification boundary.
type NotificationStore interface {
	Add(ctx context.Context, n Notification) error
	ListForItem(ctx context.Context, userID string, itemID string) ([]Notification, error)
	DeleteForItem(ctx context.Context, userID string, itemID string) error
}
