// Package progress derives the completion indicator of the form from its
// required fields.
package progress

import (
	"strconv"
	"strings"
)

// Progress is the completion state of the required fields.
type Progress struct {
	Filled    int             `json:"filled"`
	Total     int             `json:"total"`
	Percent   float64         `json:"percent"`
	Completed map[string]bool `json:"completed"`
}

// Compute counts required fields whose trimmed value is non-empty.
// With no required fields the percentage is 0.
func Compute(required []string, values map[string]string) Progress {
	p := Progress{
		Total:     len(required),
		Completed: make(map[string]bool, len(required)),
	}
	for _, name := range required {
		filled := strings.TrimSpace(values[name]) != ""
		p.Completed[name] = filled
		if filled {
			p.Filled++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Filled) / float64(p.Total) * 100
	}
	return p
}

// Width is the fill-bar CSS width, e.g. "75%".
func (p Progress) Width() string {
	return formatPercent(p.Percent) + "%"
}

// Done reports whether every required field is filled.
func (p Progress) Done() bool {
	return p.Total > 0 && p.Filled == p.Total
}

// formatPercent prints v with at most two decimals and no trailing zeros.
func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
