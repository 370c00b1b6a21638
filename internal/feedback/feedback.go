// Package feedback collects user feedback about the form itself: each message
// is appended to a local log and handed to the user's mail client as a
// pre-filled mailto: draft.
package feedback

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/logging"
	"github.com/qmmcmx/problemtrack/internal/metrics"
)

// Type is the feedback category.
type Type string

const (
	TypeSuggestion Type = "suggestion"
	TypeBug        Type = "bug"
	TypeFeature    Type = "feature"
	TypeOther      Type = "other"
)

// Types lists the categories in display order.
var Types = []Type{TypeSuggestion, TypeBug, TypeFeature, TypeOther}

var labels = map[Type]string{
	TypeSuggestion: "💡 Suggestion",
	TypeBug:        "🐛 Bug Report",
	TypeFeature:    "✨ Feature Request",
	TypeOther:      "📝 Other",
}

// Label returns the display label of t.
func (t Type) Label() string {
	return labels[t]
}

// ParseType maps s to a known Type, defaulting to TypeSuggestion.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := labels[t]; ok {
		return t
	}
	return TypeSuggestion
}

// Defaults for optional fields.
const (
	DefaultName  = "Anonymous"
	DefaultEmail = "Not provided"

	// DefaultMaxEntries caps the log when no limit is configured.
	DefaultMaxEntries = 100

	// MsgSubmitted is shown once the draft has been handed off.
	MsgSubmitted = "✓ Feedback submitted! Thank you!"
)

// Input is what the user typed.
type Input struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	ClientInfo string `json:"client_info"`
}

// Entry is one logged feedback message.
type Entry struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Type       Type      `json:"type"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	ClientInfo string    `json:"client_info,omitempty"`
}

// Mailer hands a mailto: URL to the user's mail client.
type Mailer interface {
	Compose(ctx context.Context, mailto string) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, mailto string) error

// Compose calls f.
func (f MailerFunc) Compose(ctx context.Context, mailto string) error {
	return f(ctx, mailto)
}

// Options configures a Channel.
type Options struct {
	Store      *kvstore.Store
	To         string
	MaxEntries int
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// Channel validates, logs and hands off feedback.
type Channel struct {
	store   *kvstore.Store
	to      string
	max     int
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a Channel.
func New(opts Options) *Channel {
	c := &Channel{
		store:   opts.Store,
		to:      opts.To,
		max:     opts.MaxEntries,
		metrics: opts.Metrics,
		logger:  logging.OrNop(opts.Logger),
		now:     opts.Now,
	}
	if c.max <= 0 {
		c.max = DefaultMaxEntries
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Result is a handed-off feedback message.
type Result struct {
	Entry  Entry  `json:"entry"`
	Mailto string `json:"mailto"`
	State  State  `json:"state"`
}

// Submit rejects an empty message before anything is stored. Otherwise it
// appends the entry to the log, builds the mail draft, passes it to mailer
// and leaves panel in Sent. panel and mailer may be nil.
func (c *Channel) Submit(ctx context.Context, panel *Panel, mailer Mailer, in Input) (*Result, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, errors.NewEmptyFeedback()
	}
	if panel == nil {
		panel = &Panel{}
	}
	if err := panel.begin(); err != nil {
		return nil, err
	}

	entry := Entry{
		ID:         ulid.Make().String(),
		Name:       orDefault(in.Name, DefaultName),
		Email:      orDefault(in.Email, DefaultEmail),
		Type:       ParseType(in.Type),
		Message:    message,
		Timestamp:  c.now().UTC(),
		ClientInfo: strings.TrimSpace(in.ClientInfo),
	}

	c.append(ctx, entry)

	mailto := MailtoURL(c.to, entry)
	if mailer != nil {
		if err := mailer.Compose(ctx, mailto); err != nil {
			c.logger.Warn("feedback handoff failed", zap.String("id", entry.ID), zap.Error(err))
		}
	}

	c.metrics.ObserveFeedback(string(entry.Type))
	c.logger.Info("feedback handed off",
		zap.String("id", entry.ID),
		zap.String("type", string(entry.Type)))

	panel.finish()
	return &Result{Entry: entry, Mailto: mailto, State: Sent}, nil
}

func (c *Channel) append(ctx context.Context, entry Entry) {
	log := kvstore.Get(ctx, c.store, kvstore.KeyFeedback, []Entry{})
	log = append(log, entry)
	if len(log) > c.max {
		log = log[len(log)-c.max:]
	}
	c.store.Set(ctx, kvstore.KeyFeedback, log)
}

// List returns the feedback log, oldest first.
func (c *Channel) List(ctx context.Context) []Entry {
	return kvstore.Get(ctx, c.store, kvstore.KeyFeedback, []Entry{})
}

// To returns the address drafts are sent to.
func (c *Channel) To() string {
	return c.to
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// Subject is the mail subject for t.
func Subject(t Type) string {
	return "[Problem Tracking Feedback] " + t.Label()
}

// Body is the structured mail body for e.
func Body(e Entry) string {
	var b strings.Builder
	b.WriteString("FEEDBACK SUBMISSION\n")
	b.WriteString("==================\n\n")
	fmt.Fprintf(&b, "Type: %s\n", e.Type.Label())
	fmt.Fprintf(&b, "From: %s\n", e.Name)
	fmt.Fprintf(&b, "Email: %s\n", e.Email)
	fmt.Fprintf(&b, "Date: %s\n\n", e.Timestamp.Local().Format("1/2/2006, 3:04:05 PM"))
	fmt.Fprintf(&b, "MESSAGE:\n%s\n\n", e.Message)
	b.WriteString("---\nSent from Problem Tracking Form")
	return b.String()
}

// MailtoURL builds the draft URL. Subject and body are percent-encoded with
// %20 for spaces so every mail client reads them the same way.
func MailtoURL(to string, e Entry) string {
	return "mailto:" + to + "?subject=" + encode(Subject(e.Type)) + "&body=" + encode(Body(e))
}

func encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// State is the feedback panel state.
type State string

const (
	Idle    State = "idle"
	Sending State = "sending"
	Sent    State = "sent"
)

// Panel is the feedback section of one form. The zero value is Idle.
type Panel struct {
	mu    sync.Mutex
	state State
}

// State returns the panel state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == "" {
		return Idle
	}
	return p.state
}

// Acknowledge returns a Sent panel to Idle after the confirmation was shown.
func (p *Panel) Acknowledge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Sent {
		p.state = Idle
	}
}

func (p *Panel) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Sending {
		return errors.NewInvalidRequest("feedback is already being sent")
	}
	p.state = Sending
	return nil
}

func (p *Panel) finish() {
	p.mu.Lock()
	p.state = Sent
	p.mu.Unlock()
}
