// Package ledger holds the persisted autocomplete data of the form: free-text
// suggestion ledgers, the usage-ranked template ledger, and remembered
// preferences.
package ledger

import (
	"context"
	"strings"

	"github.com/qmmcmx/problemtrack/internal/kvstore"
)

// DefaultMaxSavedItems caps a suggestion ledger when no limit is configured.
const DefaultMaxSavedItems = 50

// Suggestions is a set of per-field ledgers of distinct previously submitted values.
type Suggestions struct {
	store *kvstore.Store
	max   int
}

// NewSuggestions creates a suggestion ledger capped at max entries per key.
func NewSuggestions(store *kvstore.Store, max int) *Suggestions {
	if max <= 0 {
		max = DefaultMaxSavedItems
	}
	return &Suggestions{store: store, max: max}
}

// Record moves value to the front of the ledger at key.
// Blank values are ignored.
func (s *Suggestions) Record(ctx context.Context, key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	saved := kvstore.Get(ctx, s.store, key, []string{})
	s.store.Set(ctx, key, Prepend(saved, value, s.max))
}

// List returns a fresh snapshot of the ledger at key, most recent first.
func (s *Suggestions) List(ctx context.Context, key string) []string {
	return kvstore.Get(ctx, s.store, key, []string{})
}

// Prepend returns items with any case-insensitive duplicate of value removed,
// the trimmed value in front, truncated to max entries.
func Prepend(items []string, value string, max int) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return items
	}

	result := make([]string, 0, len(items)+1)
	result = append(result, value)
	for _, item := range items {
		if strings.EqualFold(strings.TrimSpace(item), value) {
			continue
		}
		result = append(result, item)
	}

	if max > 0 && len(result) > max {
		result = result[:max]
	}
	return result
}
