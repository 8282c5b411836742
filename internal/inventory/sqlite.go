package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"stockpilot/internal/domain"
)

// SQLiteStore implements Store and NotificationStore using SQLite.
type SQLiteStore struct {
	db *sql.DB

	entropyMu sync.Mutex
	entropy   *rand.Rand

	watchMu   sync.Mutex
	nextWatch int
	watchers  map[int]watcher
}

type watcher struct {
	userID string
	ch     chan []domain.InventoryItem
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
		watchers: make(map[int]watcher),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS inventory_items (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		name                TEXT NOT NULL,
		quantity            INTEGER NOT NULL,
		price               REAL NOT NULL,
		expiry_date         TEXT,
		expiry_at           TEXT,
		expiry_status       TEXT NOT NULL DEFAULT 'none',
		notify_before_days  INTEGER NOT NULL DEFAULT 0,
		notify_when_expired INTEGER NOT NULL DEFAULT 0,
		last_alerted_at     TEXT,
		version             INTEGER NOT NULL DEFAULT 1,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_user_name ON inventory_items(user_id, name);

	CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		item_id    TEXT NOT NULL,
		title      TEXT,
		body       TEXT,
		created_at TEXT NOT NULL,
		read       INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_item ON notifications(user_id, item_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetByName(ctx context.Context, userID string, name string) (StoredItem, error) {
	name = domain.NormalizeItemName(name)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, quantity, price, expiry_date, expiry_at, expiry_status,
		       notify_before_days, notify_when_expired, last_alerted_at, version
		FROM inventory_items WHERE user_id = ? AND name = ?`, userID, name)
	return scanStoredItem(row)
}

func (s *SQLiteStore) Insert(ctx context.Context, userID string, item domain.InventoryItem) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items
			(id, user_id, name, quantity, price, expiry_date, expiry_at, expiry_status,
			 notify_before_days, notify_when_expired, last_alerted_at, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		item.ID, userID, item.Name, item.Quantity, item.Price,
		nullString(item.ExpiryDate), nullTime(item.ExpiryAt), string(item.ExpiryStatus),
		item.AlertRules.NotifyBeforeDays, boolToInt(item.AlertRules.NotifyWhenExpired),
		nullTime(item.LastAlerted), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert item: %w", err)
	}
	s.notifyWatchers(ctx, userID)
	return nil
}

func (s *SQLiteStore) UpdateVersioned(ctx context.Context, userID string, version int64, item domain.InventoryItem) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity = ?, price = ?, expiry_date = ?, expiry_at = ?, expiry_status = ?,
		    notify_before_days = ?, notify_when_expired = ?, last_alerted_at = ?,
		    version = version + 1, updated_at = ?
		WHERE user_id = ? AND id = ? AND version = ?`,
		item.Quantity, item.Price,
		nullString(item.ExpiryDate), nullTime(item.ExpiryAt), string(item.ExpiryStatus),
		item.AlertRules.NotifyBeforeDays, boolToInt(item.AlertRules.NotifyWhenExpired),
		nullTime(item.LastAlerted), now,
		userID, item.ID, version)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	s.notifyWatchers(ctx, userID)
	return nil
}

func (s *SQLiteStore) DeleteVersioned(ctx context.Context, userID string, id string, version int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM inventory_items WHERE user_id = ? AND id = ? AND version = ?`,
		userID, id, version)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	s.notifyWatchers(ctx, userID)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, quantity, price, expiry_date, expiry_at, expiry_status,
		       notify_before_days, notify_when_expired, last_alerted_at, version
		FROM inventory_items WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		item, err := scanStoredItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item.InventoryItem)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) Subscribe(userID string) (<-chan []domain.InventoryItem, func()) {
	ch := make(chan []domain.InventoryItem, 1)

	s.watchMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = watcher{userID: userID, ch: ch}
	s.watchMu.Unlock()

	cancel := func() {
		s.watchMu.Lock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w.ch)
		}
		s.watchMu.Unlock()
	}
	return ch, cancel
}

func (s *SQLiteStore) notifyWatchers(ctx context.Context, userID string) {
	s.watchMu.Lock()
	var targets []chan []domain.InventoryItem
	for _, w := range s.watchers {
		if w.userID == userID {
			targets = append(targets, w.ch)
		}
	}
	s.watchMu.Unlock()

	if len(targets) == 0 {
		return
	}
	items, err := s.List(ctx, userID)
	if err != nil {
		return
	}
	for _, ch := range targets {
		// Keep only the freshest snapshot for slow consumers.
		select {
		case ch <- items:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- items:
			default:
			}
		}
	}
}

func (s *SQLiteStore) Add(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = s.newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, item_id, title, body, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.ItemID, n.Title, n.Body, n.CreatedAt.Format(time.RFC3339Nano), boolToInt(n.Read))
	if err != nil {
		return fmt.Errorf("add notification: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListForItem(ctx context.Context, userID string, itemID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, item_id, title, body, created_at, read
		FROM notifications WHERE user_id = ? AND item_id = ? ORDER BY created_at`, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.ItemID, &n.Title, &n.Body, &createdAt, &read); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		n.Read = read != 0
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteForItem(ctx context.Context, userID string, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM notifications WHERE user_id = ? AND item_id = ?`, userID, itemID)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.watchMu.Lock()
	for id, w := range s.watchers {
		delete(s.watchers, id)
		close(w.ch)
	}
	s.watchMu.Unlock()
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite uniqueness
// constraint failure, which the versioned write path treats as a
// retryable conflict.
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoredItem(row rowScanner) (StoredItem, error) {
	var item StoredItem
	var expiryDate, expiryAt, lastAlerted sql.NullString
	var status string
	var notifyWhenExpired int
	err := row.Scan(&item.ID, &item.Name, &item.Quantity, &item.Price,
		&expiryDate, &expiryAt, &status,
		&item.AlertRules.NotifyBeforeDays, &notifyWhenExpired, &lastAlerted, &item.Version)
	if err == sql.ErrNoRows {
		return StoredItem{}, ErrNotFound
	}
	if err != nil {
		return StoredItem{}, fmt.Errorf("scan item: %w", err)
	}
	item.ExpiryStatus = domain.ExpiryStatus(status)
	item.AlertRules.NotifyWhenExpired = notifyWhenExpired != 0
	if expiryDate.Valid {
		item.ExpiryDate = expiryDate.String
	}
	if expiryAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, expiryAt.String); err == nil {
			item.ExpiryAt = &ts
		}
	}
	if lastAlerted.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, lastAlerted.String); err == nil {
			item.LastAlerted = &ts
		}
	}
	return item, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
