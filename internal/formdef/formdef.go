// Package formdef describes the selectable options and required fields of
// the form. A built-in definition is used unless a YAML file is configured.
package formdef

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/qmmcmx/problemtrack/internal/formctx"
)

//go:embed default.yaml
var defaultYAML []byte

// Definition is the form surface.
type Definition struct {
	Title      string   `yaml:"title" json:"title"`
	Lines      []string `yaml:"lines" json:"lines"`
	Owners     []string `yaml:"owners" json:"owners"`
	Categories []string `yaml:"categories" json:"categories"`
	Required   []string `yaml:"required" json:"required"`
	Durations  []string `yaml:"durations,omitempty" json:"durations,omitempty"`
}

// knownFields are the inputs a definition may mark as required.
var knownFields = map[string]bool{
	"week": true, "shift": true, "date_detection": true, "date_finished": true,
	"category": true, "description": true, "corrective_action": true,
	"line": true, "owner": true, "issue_time": true,
}

// Default returns the built-in definition.
func Default() *Definition {
	def, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in form definition is invalid: %v", err))
	}
	return def
}

// Load reads a definition from path. An empty path yields the default.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML definition.
func Parse(data []byte) (*Definition, error) {
	def := &Definition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parse form definition: %w", err)
	}
	def.normalize()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) normalize() {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		d.Title = "Problem Tracking"
	}
	d.Lines = cleanList(d.Lines)
	d.Owners = cleanList(d.Owners)
	d.Categories = cleanList(d.Categories)
	d.Required = cleanList(d.Required)
	d.Durations = cleanList(d.Durations)
	if len(d.Durations) == 0 {
		d.Durations = formctx.DurationOptions()
	}
}

// Validate rejects required fields the form does not have.
func (d *Definition) Validate() error {
	var unknown []string
	for _, name := range d.Required {
		if !knownFields[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("form definition requires unknown fields: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// IsRequired reports whether name is a required field.
func (d *Definition) IsRequired(name string) bool {
	for _, r := range d.Required {
		if r == name {
			return true
		}
	}
	return false
}

// WeekOptions returns the selectable week labels.
func (d *Definition) WeekOptions() []string {
	return formctx.WeekOptions()
}

func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Holder shares the current definition between the server and the watcher.
type Holder struct {
	mu  sync.RWMutex
	def *Definition
}

// NewHolder creates a Holder with an initial definition.
func NewHolder(def *Definition) *Holder {
	return &Holder{def: def}
}

// Get returns the current definition.
func (h *Holder) Get() *Definition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.def
}

// Set swaps in a new definition.
func (h *Holder) Set(def *Definition) {
	h.mu.Lock()
	h.def = def
	h.mu.Unlock()
}
