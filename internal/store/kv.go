package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// KV is the durable key-value substrate backing all persisted scraper
// state: the post collection, the lifetime counter and the ready/running
// session markers. Values are opaque strings (JSON for structured entries).
// Writes are serialized and watchers see every change with both the old and
// the new value, so readers never observe a half-applied mutation.
type KV struct {
	db *sql.DB

	mu       sync.Mutex
	watchers map[int]func(key, oldValue, newValue string)
	nextID   int
}

// OpenKV opens (or creates) the sqlite database at path and ensures the
// schema exists. Use ":memory:" in tests.
func OpenKV(path string) (*KV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open kv database: %w", err)
	}
	// One writer at a time keeps read-mutate-write cycles atomic without
	// sqlite busy retries.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init kv schema: %w", err)
	}
	return &KV{db: db, watchers: make(map[int]func(key, oldValue, newValue string))}, nil
}

func (s *KV) Close() error {
	return s.db.Close()
}

// Get returns the value for key and whether it exists.
func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes key to value and notifies every watcher with the previous and
// new values. Notification runs synchronously on the caller, in registration
// order, after the write is durable.
func (s *KV) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	oldValue, _, err := s.Get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	// Outside the lock so a watcher may unsubscribe itself.
	for _, fn := range watchers {
		fn(key, oldValue, value)
	}
	return nil
}

// Delete removes key. Watchers are notified with an empty new value.
func (s *KV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	oldValue, existed, err := s.Get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !existed {
		s.mu.Unlock()
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(key, oldValue, "")
	}
	return nil
}

// Watch registers fn for every subsequent change. The returned handle
// removes only this subscription; other watchers keep receiving changes.
// Calling it twice is safe.
func (s *KV) Watch(fn func(key, oldValue, newValue string)) (unwatch func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// snapshotWatchers must be called with mu held.
func (s *KV) snapshotWatchers() []func(key, oldValue, newValue string) {
	fns := make([]func(key, oldValue, newValue string), 0, len(s.watchers))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.watchers[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
