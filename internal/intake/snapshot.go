package intake

import "strings"

// Field names with meaning to the pipeline.
const (
	FieldWeek             = "week"
	FieldShift            = "shift"
	FieldDateDetection    = "date_detection"
	FieldDateFinished     = "date_finished"
	FieldCategory         = "category"
	FieldDescription      = "description"
	FieldCorrectiveAction = "corrective_action"
	FieldLine             = "line"
	FieldOwner            = "owner"
	FieldIssueTime        = "issue_time"
	FieldRememberPrefs    = "remember_prefs"

	// FieldEvidenceFiles is the raw file picker; it never reaches the intake.
	FieldEvidenceFiles = "evidence_files"
	// FieldEvidenceList carries the comma-joined attachment names.
	FieldEvidenceList = "evidence_files_list"
	// EvidenceFilePrefix names each attachment part: evidence_file_0, evidence_file_1, ...
	EvidenceFilePrefix = "evidence_file_"
)

// Field is one named form value.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Snapshot is the ordered set of form values at submit time.
type Snapshot []Field

// Get returns the first value for name, or "".
func (s Snapshot) Get(name string) string {
	for _, f := range s {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Set replaces the value for name, appending it when absent.
func (s Snapshot) Set(name, value string) Snapshot {
	for i := range s {
		if s[i].Name == name {
			s[i].Value = value
			return s
		}
	}
	return append(s, Field{Name: name, Value: value})
}

// Values flattens the snapshot into a map. Later duplicates are ignored.
func (s Snapshot) Values() map[string]string {
	m := make(map[string]string, len(s))
	for _, f := range s {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = f.Value
		}
	}
	return m
}

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// Checked reports whether a checkbox-style field is on.
func (s Snapshot) Checked(name string) bool {
	switch strings.ToLower(strings.TrimSpace(s.Get(name))) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
