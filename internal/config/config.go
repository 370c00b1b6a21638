package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DirName is the name of the global and repo-level config directories.
const DirName = ".problemtrack"

// Config holds application configuration.
type Config struct {
	// IntakeURL is the remote endpoint that receives multipart submissions.
	IntakeURL string `json:"intake_url,omitempty"`

	// FeedbackEmail is the address feedback mail drafts are addressed to.
	FeedbackEmail string `json:"feedback_email,omitempty"`

	// MaxSavedItems caps each suggestion ledger (descriptions, actions).
	MaxSavedItems int `json:"max_saved_items"`

	// MaxTemplates is the number of template buttons shown on the form.
	MaxTemplates int `json:"max_templates"`

	// MaxStoredTemplates caps the persisted template ledger.
	MaxStoredTemplates int `json:"max_stored_templates"`

	// MaxFeedbackEntries caps the local feedback log.
	MaxFeedbackEntries int `json:"max_feedback_entries"`

	// IntakeTimeoutSeconds bounds a single POST to the intake endpoint.
	IntakeTimeoutSeconds int `json:"intake_timeout_seconds"`

	// MaxUploadMB bounds the attachments accepted per upload request.
	MaxUploadMB int `json:"max_upload_mb"`

	// FormPath points at a YAML form definition. Empty uses the built-in form.
	FormPath string `json:"form_path,omitempty"`

	// AllowedPaths is an allowlist of directories for feedback exports.
	// Paths outside ~/.problemtrack/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for exports.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type prefixes to disable entirely.
	// Known types: "suggestions", "templates", "form", "feedback", "progress".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// Debug switches logging to debug level.
	Debug bool `json:"debug,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxSavedItems:        50,
		MaxTemplates:         8,
		MaxStoredTemplates:   50,
		MaxFeedbackEntries:   100,
		IntakeTimeoutSeconds: 30,
		MaxUploadMB:          25,
	}
}

// IntakeTimeout returns the intake timeout as a duration.
func (c *Config) IntakeTimeout() time.Duration {
	if c.IntakeTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntakeTimeoutSeconds) * time.Second
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 25 << 20
	}
	return int64(c.MaxUploadMB) << 20
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both the global and repo directories.
// Repo config is found by walking upward from startDir to find the nearest .problemtrack/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .problemtrack/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.IntakeURL = pickString(overlay.IntakeURL, base.IntakeURL)
	result.FeedbackEmail = pickString(overlay.FeedbackEmail, base.FeedbackEmail)
	result.FormPath = pickString(overlay.FormPath, base.FormPath)

	result.MaxSavedItems = pickInt(overlay.MaxSavedItems, base.MaxSavedItems)
	result.MaxTemplates = pickInt(overlay.MaxTemplates, base.MaxTemplates)
	result.MaxStoredTemplates = pickInt(overlay.MaxStoredTemplates, base.MaxStoredTemplates)
	result.MaxFeedbackEntries = pickInt(overlay.MaxFeedbackEntries, base.MaxFeedbackEntries)
	result.IntakeTimeoutSeconds = pickInt(overlay.IntakeTimeoutSeconds, base.IntakeTimeoutSeconds)
	result.MaxUploadMB = pickInt(overlay.MaxUploadMB, base.MaxUploadMB)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.Debug = base.Debug || overlay.Debug

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
