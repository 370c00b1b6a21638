package ledger

import (
	"context"
	"slices"

	"github.com/qmmcmx/problemtrack/internal/kvstore"
)

// Preferences are the form selections remembered across sessions.
type Preferences struct {
	Line  string `json:"line,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// PreferenceStore persists Preferences.
type PreferenceStore struct {
	store *kvstore.Store
}

// NewPreferenceStore creates a PreferenceStore.
func NewPreferenceStore(store *kvstore.Store) *PreferenceStore {
	return &PreferenceStore{store: store}
}

// Save overwrites the stored preferences. Callers only invoke it when the
// user opted in to remembering.
func (p *PreferenceStore) Save(ctx context.Context, prefs Preferences) {
	p.store.Set(ctx, kvstore.KeyPreferences, prefs)
}

// Load returns the stored preferences, or zero Preferences.
func (p *PreferenceStore) Load(ctx context.Context) Preferences {
	return kvstore.Get(ctx, p.store, kvstore.KeyPreferences, Preferences{})
}

// Resolve drops stored values that match none of the available options.
func Resolve(prefs Preferences, lines, owners []string) Preferences {
	var out Preferences
	if prefs.Line != "" && slices.Contains(lines, prefs.Line) {
		out.Line = prefs.Line
	}
	if prefs.Owner != "" && slices.Contains(owners, prefs.Owner) {
		out.Owner = prefs.Owner
	}
	return out
}
