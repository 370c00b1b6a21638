// Package session keeps per-browser form state between requests: the
// attachment staging area, the values last shown, a one-shot notice and the
// submission state.
package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/intake"
	"github.com/qmmcmx/problemtrack/internal/staging"
)

// State is the submission state of a session.
type State string

const (
	Idle       State = "idle"
	Submitting State = "submitting"
	Success    State = "success"
	Failure    State = "failure"
)

// NoticeKind classifies a notice for display.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message shown once on the next render.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// Session is one user's form. All methods are safe for concurrent use.
type Session struct {
	id string

	mu      sync.Mutex
	staged  *staging.Area
	values  intake.Snapshot
	notice  *Notice
	state   State
	outcome State
	touched time.Time

	feedback feedback.Panel
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		id:      id,
		staged:  staging.NewArea(),
		state:   Idle,
		touched: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Feedback returns the session's feedback panel.
func (s *Session) Feedback() *feedback.Panel {
	return &s.feedback
}

// State returns the current submission state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddFiles stages files, skipping duplicates. Returns how many were added.
func (s *Session) AddFiles(files ...staging.File) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged.Add(files...)
}

// RemoveFile unstages the file at index.
func (s *Session) RemoveFile(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged.Remove(index)
}

// ClearFiles empties the staging area.
func (s *Session) ClearFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.Clear()
}

// Previews renders the staged file list.
func (s *Session) Previews() []staging.PreviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged.Render()
}

// StagedSize returns the total size of staged files in bytes.
func (s *Session) StagedSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged.TotalSize()
}

// Values returns a copy of the form values to show. Nil means a fresh form.
func (s *Session) Values() intake.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return nil
	}
	return s.values.Clone()
}

// SetValues replaces the form values to show.
func (s *Session) SetValues(values intake.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values.Clone()
}

// SetNotice queues a notice for the next render.
func (s *Session) SetNotice(kind NoticeKind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = &Notice{Kind: kind, Text: text}
}

// Outcome returns Success or Failure for the last finished submission, or
// Idle if none has finished yet.
func (s *Session) Outcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == "" {
		return Idle
	}
	return s.outcome
}

// TakeNotice returns and clears the pending notice.
func (s *Session) TakeNotice() *Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.notice
	s.notice = nil
	return n
}

// BeginSubmit moves the session to Submitting and returns the staged files
// to send. A session already submitting is rejected.
func (s *Session) BeginSubmit(values intake.Snapshot) ([]staging.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Submitting {
		return nil, errors.NewSubmissionInFlight(s.id)
	}
	s.state = Submitting
	s.values = values.Clone()
	return s.staged.Files(), nil
}

// SucceedSubmit unstages the files that were sent, installs the fresh form
// values and returns the session to Idle. Files staged while the submission
// was in flight are kept.
func (s *Session) SucceedSubmit(sent []staging.File, fresh intake.Snapshot, notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.outcome = Success
	s.staged.Discard(sent)
	s.values = fresh.Clone()
	s.notice = &Notice{Kind: NoticeSuccess, Text: notice}
}

// FailSubmit keeps the submitted values and staged files for another try and
// returns the session to Idle.
func (s *Session) FailSubmit(notice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.outcome = Failure
	s.notice = &Notice{Kind: NoticeError, Text: notice}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touched = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Manager owns the live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// New creates and registers a session with a fresh ULID.
func (m *Manager) New() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := newSession(ulid.Make().String(), m.now())
	m.sessions[s.id] = s
	return s
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	s.touch(m.now())
	return s, nil
}

// GetOrCreate returns the session for id, creating a new one when id is
// unknown. created reports whether a new session was made.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s, false
		}
	}
	return m.New(), true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle longer than ttl that are not mid-submission.
// Returns how many were dropped.
func (m *Manager) Sweep(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) && s.State() != Submitting {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}
