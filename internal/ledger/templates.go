package ledger

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/qmmcmx/problemtrack/internal/kvstore"
)

// Template limits.
const (
	DefaultMaxVisibleTemplates = 8
	DefaultMaxStoredTemplates  = 50
	labelMaxChars              = 25
)

// Template is a reusable category/description/corrective-action triple.
type Template struct {
	Category         string `json:"category"`
	Description      string `json:"description"`
	CorrectiveAction string `json:"corrective_action"`
	Count            int    `json:"count"`
}

// Fields are the form values a template fills in.
type Fields struct {
	Category         string `json:"category"`
	Description      string `json:"description"`
	CorrectiveAction string `json:"corrective_action"`
}

// Templates is the usage-ranked template ledger.
type Templates struct {
	store     *kvstore.Store
	maxStored int
}

// NewTemplates creates a template ledger keeping at most maxStored entries.
func NewTemplates(store *kvstore.Store, maxStored int) *Templates {
	if maxStored <= 0 {
		maxStored = DefaultMaxStoredTemplates
	}
	return &Templates{store: store, maxStored: maxStored}
}

// Record counts one more use of description, overwriting the category and
// corrective action with the latest values. A blank description is ignored.
func (t *Templates) Record(ctx context.Context, category, description, correctiveAction string) {
	if strings.TrimSpace(description) == "" {
		return
	}
	all := t.All(ctx)
	t.store.Set(ctx, kvstore.KeyTemplates, Upsert(all, category, description, correctiveAction, t.maxStored))
}

// All returns every stored template in stored order.
func (t *Templates) All(ctx context.Context) []Template {
	return kvstore.Get(ctx, t.store, kvstore.KeyTemplates, []Template{})
}

// TopN returns up to n templates by descending count. Equal counts keep
// their stored order.
func (t *Templates) TopN(ctx context.Context, n int) []Template {
	return Rank(t.All(ctx), n)
}

// Apply returns the form values for tmpl.
func Apply(tmpl Template) Fields {
	return Fields{
		Category:         tmpl.Category,
		Description:      tmpl.Description,
		CorrectiveAction: tmpl.CorrectiveAction,
	}
}

// Upsert applies one recorded use to templates and returns the re-ranked,
// truncated ledger. The input slice is not modified.
func Upsert(templates []Template, category, description, correctiveAction string, maxStored int) []Template {
	description = strings.TrimSpace(description)
	if description == "" {
		return templates
	}
	category = strings.TrimSpace(category)
	correctiveAction = strings.TrimSpace(correctiveAction)

	result := make([]Template, len(templates), len(templates)+1)
	copy(result, templates)

	found := false
	for i := range result {
		if strings.EqualFold(result[i].Description, description) {
			result[i].Count++
			result[i].Category = category
			result[i].CorrectiveAction = correctiveAction
			found = true
			break
		}
	}
	if !found {
		result = append(result, Template{
			Category:         category,
			Description:      description,
			CorrectiveAction: correctiveAction,
			Count:            1,
		})
	}

	return Rank(result, maxStored)
}

// Rank sorts a copy of templates by descending count (stable) and keeps at
// most n. n <= 0 keeps all.
func Rank(templates []Template, n int) []Template {
	ranked := make([]Template, len(templates))
	copy(ranked, templates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Label is the button text for tmpl: the description, shortened with an
// ellipsis past 25 characters.
func Label(tmpl Template) string {
	if utf8.RuneCountInString(tmpl.Description) <= labelMaxChars {
		return tmpl.Description
	}
	runes := []rune(tmpl.Description)
	return string(runes[:labelMaxChars-3]) + "..."
}

// Hint is the hover text for tmpl.
func Hint(tmpl Template) string {
	return tmpl.Category + ": " + tmpl.Description
}
