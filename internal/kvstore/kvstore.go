// Package kvstore is a best-effort JSON key-value store over the SQLite kv table.
// Reads never fail: missing or malformed values yield the caller's default.
// Writes never fail to callers: errors are logged and dropped.
package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/db"
	"github.com/qmmcmx/problemtrack/internal/logging"
)

// Namespace prefixes every key written by the form.
const Namespace = "problemTracking_"

// Logical keys.
const (
	KeyDescriptions = Namespace + "descriptions"
	KeyActions      = Namespace + "actions"
	KeyTemplates    = Namespace + "templates"
	KeyPreferences  = Namespace + "preferences"
	KeyFeedback     = Namespace + "feedback"
)

// Store reads and writes whole JSON values by key.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a Store over an initialized database.
func New(database *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: database, logger: logging.OrNop(logger)}
}

// Get decodes the value stored under key, returning def when the key is
// missing, unreadable, or holds malformed JSON.
func Get[T any](ctx context.Context, s *Store, key string, def T) T {
	raw, found, err := db.GetValue(ctx, s.db, key)
	if err != nil {
		s.logger.Debug("kv read failed", zap.String("key", key), zap.Error(err))
		return def
	}
	if !found || raw == "" {
		return def
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Debug("kv value malformed", zap.String("key", key), zap.Error(err))
		return def
	}
	return v
}

// Set encodes value as JSON and stores it under key, replacing what was there.
func (s *Store) Set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("kv encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := db.PutValue(ctx, s.db, key, string(data)); err != nil {
		s.logger.Warn("kv write failed", zap.String("key", key), zap.Error(err))
	}
}

// SetRaw stores raw text under key without encoding. Used by tests and
// tooling that need to plant corrupt data.
func (s *Store) SetRaw(ctx context.Context, key, raw string) {
	if err := db.PutValue(ctx, s.db, key, raw); err != nil {
		s.logger.Warn("kv write failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) {
	if err := db.DeleteValue(ctx, s.db, key); err != nil {
		s.logger.Warn("kv delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Keys lists the namespaced keys currently stored.
func (s *Store) Keys(ctx context.Context) []string {
	entries, err := db.ListEntries(ctx, s.db, Namespace)
	if err != nil {
		s.logger.Debug("kv list failed", zap.Error(err))
		return nil
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}
