package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/qmmcmx/problemtrack/internal/errors"
)

// Entry is one stored key-value row.
type Entry struct {
	Key       string
	Value     string
	UpdatedAt int64
}

// GetValue returns the raw value stored under key.
// found is false when the key has never been written.
func GetValue(ctx context.Context, db *sql.DB, key string) (value string, found bool, err error) {
	row := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// PutValue writes value under key, replacing any previous value wholesale.
func PutValue(ctx context.Context, db *sql.DB, key, value string) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteValue removes key. Deleting a missing key is not an error.
func DeleteValue(ctx context.Context, db *sql.DB, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListEntries returns all rows whose key starts with prefix, most recently updated first.
func ListEntries(ctx context.Context, db *sql.DB, prefix string) ([]Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM kv WHERE substr(key, 1, ?) = ? ORDER BY updated_at DESC, key ASC`,
		len(prefix), prefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}
