package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRepoConfig(t *testing.T, root, body string) string {
	t.Helper()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.MaxSavedItems != def.MaxSavedItems {
		t.Fatalf("MaxSavedItems = %d, want %d", cfg.MaxSavedItems, def.MaxSavedItems)
	}
	if cfg.MaxTemplates != 8 || cfg.MaxStoredTemplates != 50 || cfg.MaxFeedbackEntries != 100 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.IntakeURL != "" {
		t.Fatalf("IntakeURL = %q, want empty", cfg.IntakeURL)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	body := `{"intake_url": "https://intake.example/exec", "max_saved_items": 10, "feedback_email": "qa@example.com"}`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IntakeURL != "https://intake.example/exec" {
		t.Errorf("IntakeURL = %q", cfg.IntakeURL)
	}
	if cfg.MaxSavedItems != 10 {
		t.Errorf("MaxSavedItems = %d, want 10", cfg.MaxSavedItems)
	}
	if cfg.MaxTemplates != 8 {
		t.Errorf("MaxTemplates = %d, want default 8", cfg.MaxTemplates)
	}
	if cfg.FeedbackEmail != "qa@example.com" {
		t.Errorf("FeedbackEmail = %q", cfg.FeedbackEmail)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"max_saved_items": 30, "intake_url": "https://global", "disabled_tools": ["feedback_send"]}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	writeRepoConfig(t, repoRoot, `{"max_saved_items": 20, "disabled_tools": ["templates_apply"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxSavedItems != 20 {
		t.Errorf("MaxSavedItems = %d, want 20 (repo override)", cfg.MaxSavedItems)
	}
	if cfg.IntakeURL != "https://global" {
		t.Errorf("IntakeURL = %q, want global value", cfg.IntakeURL)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.MaxSavedItems != 50 {
		t.Errorf("MaxSavedItems = %d, want 50", cfg.MaxSavedItems)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `{"form_path": "/etc/line-form.yaml"}`)

	subdir := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(t.TempDir(), subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.FormPath != "/etc/line-form.yaml" {
		t.Errorf("FormPath = %q", cfg.FormPath)
	}
}

func TestFindRepoConfig(t *testing.T) {
	root := t.TempDir()
	path := writeRepoConfig(t, root, `{}`)

	if found := FindRepoConfig(root); found != path {
		t.Errorf("FindRepoConfig() = %q, want %q", found, path)
	}
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{MaxSavedItems: 50, DBMaxOpenConns: 5, IntakeURL: "https://a"}
	overlay := &Config{MaxSavedItems: 10, IntakeURL: "  "}

	result := Merge(base, overlay)

	if result.MaxSavedItems != 10 {
		t.Errorf("MaxSavedItems = %d, want 10 (overlay)", result.MaxSavedItems)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base)", result.DBMaxOpenConns)
	}
	if result.IntakeURL != "https://a" {
		t.Errorf("IntakeURL = %q, blank overlay must not win", result.IntakeURL)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{Debug: true}, &Config{AllowUnsafePaths: true})
	if !result.Debug || !result.AllowUnsafePaths {
		t.Errorf("booleans should OR: %+v", result)
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTypes: []string{"feedback", " progress "}}
	overlay := &Config{DisabledTypes: []string{"progress", "form", ""}}

	result := Merge(base, overlay)

	want := []string{"feedback", "progress", "form"}
	if len(result.DisabledTypes) != len(want) {
		t.Fatalf("DisabledTypes = %v, want %v", result.DisabledTypes, want)
	}
	for i := range want {
		if result.DisabledTypes[i] != want[i] {
			t.Errorf("DisabledTypes[%d] = %q, want %q", i, result.DisabledTypes[i], want[i])
		}
	}
}

func TestDurations(t *testing.T) {
	cfg := &Config{}
	if cfg.IntakeTimeout() != 30*time.Second {
		t.Errorf("IntakeTimeout() = %v, want 30s fallback", cfg.IntakeTimeout())
	}
	if cfg.MaxUploadBytes() != 25<<20 {
		t.Errorf("MaxUploadBytes() = %d, want 25MB fallback", cfg.MaxUploadBytes())
	}

	cfg.IntakeTimeoutSeconds = 5
	cfg.MaxUploadMB = 2
	if cfg.IntakeTimeout() != 5*time.Second {
		t.Errorf("IntakeTimeout() = %v, want 5s", cfg.IntakeTimeout())
	}
	if cfg.MaxUploadBytes() != 2<<20 {
		t.Errorf("MaxUploadBytes() = %d, want 2MB", cfg.MaxUploadBytes())
	}
}
