package inventory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sethvargo/go-retry"

	"stockpilot/internal/domain"
)

// Service applies inventory mutations on top of a versioned Store.
// Conflicting writes are retried with a fresh read, so concurrent
// mutations of the same item serialize instead of clobbering.
type Service struct {
	store         Store
	notifications NotificationStore
	warn          func(error)

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

func NewService(store Store, notifications NotificationStore) *Service {
	return &Service{
		store:         store,
		notifications: notifications,
		entropy:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetWarnHandler installs a sink for non-fatal follow-up failures,
// like notification cleanup after a committed delete. nil drops them.
func (s *Service) SetWarnHandler(warn func(error)) {
	s.warn = warn
}

func (s *Service) warnf(format string, args ...any) {
	if s.warn == nil {
		return
	}
	s.warn(fmt.Errorf(format, args...))
}

func (s *Service) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Service) retryPolicy() retry.Backoff {
	return retry.WithMaxRetries(10, retry.NewConstant(10*time.Millisecond))
}

// Upsert creates the named item or merges into the existing one:
// quantities add, price and expiry take the newest value. Passing a
// new expiry clears any stale expiry status and alert history.
func (s *Service) Upsert(ctx context.Context, userID, name string, quantity int64, price float64, expiryDate string) (domain.InventoryItem, error) {
	name = domain.NormalizeItemName(name)
	if name == "" {
		return domain.InventoryItem{}, errors.New("item name is empty")
	}
	if quantity <= 0 {
		return domain.InventoryItem{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if expiryDate != "" && !domain.ValidExpiryDate(expiryDate) {
		return domain.InventoryItem{}, fmt.Errorf("expiry date %q is not in DD-MM-YYYY form", expiryDate)
	}

	var result domain.InventoryItem
	err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) error {
		// Lookup happens inside the attempt so an insert that loses a
		// create race falls back to merging on the next pass.
		existing, err := s.store.GetByName(ctx, userID, name)
		switch {
		case errors.Is(err, ErrNotFound):
			item := domain.InventoryItem{
				ID:         s.newID(),
				Name:       name,
				Quantity:   quantity,
				Price:      price,
				AlertRules: domain.DefaultAlertRules(),
			}
			applyExpiry(&item, expiryDate)
			if err := s.store.Insert(ctx, userID, item); err != nil {
				if errors.Is(err, ErrConflict) {
					return retry.RetryableError(err)
				}
				return err
			}
			result = item
			return nil
		case err != nil:
			return err
		}

		item := existing.InventoryItem
		item.Quantity += quantity
		item.Price = price
		if expiryDate != "" {
			applyExpiry(&item, expiryDate)
		}
		if err := s.store.UpdateVersioned(ctx, userID, existing.Version, item); err != nil {
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return result, nil
}

func applyExpiry(item *domain.InventoryItem, expiryDate string) {
	item.ExpiryDate = expiryDate
	item.ExpiryAt = nil
	item.ExpiryStatus = domain.ExpiryStatusNone
	item.LastAlerted = nil
	if expiryDate == "" {
		return
	}
	if at, ok := domain.ExpiryInstant(expiryDate); ok {
		item.ExpiryAt = &at
	}
}

// Remove takes quantity units of the named item off hand. Removing the
// full on-hand quantity deletes the item and its pending expiry
// notifications. Removing more than on hand fails without mutating.
func (s *Service) Remove(ctx context.Context, userID, name string, quantity int64) (domain.InventoryItem, bool, error) {
	name = domain.NormalizeItemName(name)
	if quantity <= 0 {
		return domain.InventoryItem{}, false, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var (
		result  domain.InventoryItem
		deleted bool
	)
	err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) error {
		existing, err := s.store.GetByName(ctx, userID, name)
		if err != nil {
			return err
		}
		if quantity > existing.Quantity {
			return &InsufficientQuantityError{
				Name:      existing.Name,
				OnHand:    existing.Quantity,
				Requested: quantity,
			}
		}

		if quantity == existing.Quantity {
			if err := s.store.DeleteVersioned(ctx, userID, existing.ID, existing.Version); err != nil {
				if errors.Is(err, ErrConflict) {
					return retry.RetryableError(err)
				}
				return err
			}
			// Cleanup runs once, after the delete actually won. The
			// removal is committed at this point, so a cleanup failure
			// must not turn it into an error.
			if err := s.notifications.DeleteForItem(ctx, userID, existing.ID); err != nil {
				s.warnf("notification cleanup for %s: %w", existing.Name, err)
			}
			result = existing.InventoryItem
			result.Quantity = 0
			deleted = true
			return nil
		}

		item := existing.InventoryItem
		item.Quantity -= quantity
		if err := s.store.UpdateVersioned(ctx, userID, existing.Version, item); err != nil {
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = item
		deleted = false
		return nil
	})
	if err != nil {
		return domain.InventoryItem{}, false, err
	}
	return result, deleted, nil
}

// List returns the user's inventory sorted by name.
func (s *Service) List(ctx context.Context, userID string) ([]domain.InventoryItem, error) {
	return s.store.List(ctx, userID)
}
