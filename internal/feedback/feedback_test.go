package feedback

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmmcmx/problemtrack/internal/db"
	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
)

type recordingMailer struct {
	urls []string
}

func (m *recordingMailer) Compose(_ context.Context, mailto string) error {
	m.urls = append(m.urls, mailto)
	return nil
}

func newTestChannel(t *testing.T, max int) *Channel {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return New(Options{
		Store:      kvstore.New(database, nil),
		To:         "quality@example.com",
		MaxEntries: max,
		Now:        func() time.Time { return time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC) },
	})
}

func TestSubmit_EmptyMessageRejected(t *testing.T) {
	c := newTestChannel(t, 0)
	mailer := &recordingMailer{}
	panel := &Panel{}
	ctx := context.Background()

	for _, msg := range []string{"", "   \n\t"} {
		_, err := c.Submit(ctx, panel, mailer, Input{Name: "Ana", Message: msg})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrEmptyFeedback))
	}

	assert.Empty(t, c.List(ctx), "no entry stored")
	assert.Empty(t, mailer.urls, "no handoff")
	assert.Equal(t, Idle, panel.State())
}

func TestSubmit_AppliesDefaultsAndHandsOff(t *testing.T) {
	c := newTestChannel(t, 0)
	mailer := &recordingMailer{}
	panel := &Panel{}
	ctx := context.Background()

	res, err := c.Submit(ctx, panel, mailer, Input{Type: "nonsense", Message: "  Add a night-shift view  ", ClientInfo: "curl/8"})
	require.NoError(t, err)

	assert.Equal(t, DefaultName, res.Entry.Name)
	assert.Equal(t, DefaultEmail, res.Entry.Email)
	assert.Equal(t, TypeSuggestion, res.Entry.Type)
	assert.Equal(t, "Add a night-shift view", res.Entry.Message)
	assert.Len(t, res.Entry.ID, 26)
	assert.Equal(t, Sent, res.State)
	assert.Equal(t, Sent, panel.State())

	require.Len(t, mailer.urls, 1)
	assert.Equal(t, res.Mailto, mailer.urls[0])

	logged := c.List(ctx)
	require.Len(t, logged, 1)
	assert.Equal(t, res.Entry.ID, logged[0].ID)
	assert.Equal(t, "curl/8", logged[0].ClientInfo)

	panel.Acknowledge()
	assert.Equal(t, Idle, panel.State())
}

func TestSubmit_LogCappedOldestDropped(t *testing.T) {
	c := newTestChannel(t, 100)
	ctx := context.Background()

	for i := 0; i < 103; i++ {
		_, err := c.Submit(ctx, nil, nil, Input{Message: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	logged := c.List(ctx)
	require.Len(t, logged, 100)
	assert.Equal(t, "msg 3", logged[0].Message)
	assert.Equal(t, "msg 102", logged[99].Message)
}

func TestSubmit_RejectsWhileSending(t *testing.T) {
	c := newTestChannel(t, 0)
	panel := &Panel{state: Sending}

	_, err := c.Submit(context.Background(), panel, nil, Input{Message: "hi"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Empty(t, c.List(context.Background()))
}

func TestMailtoURL(t *testing.T) {
	e := Entry{
		Name:      "Ana & Co",
		Email:     "ana@example.com",
		Type:      TypeBug,
		Message:   "Week 17 is missing",
		Timestamp: time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
	}

	raw := MailtoURL("quality@example.com", e)
	require.True(t, strings.HasPrefix(raw, "mailto:quality@example.com?subject="))
	assert.NotContains(t, raw, "+")
	assert.Contains(t, raw, "%20")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "[Problem Tracking Feedback] 🐛 Bug Report", q.Get("subject"))

	body := q.Get("body")
	assert.True(t, strings.HasPrefix(body, "FEEDBACK SUBMISSION\n==================\n\nType: 🐛 Bug Report\nFrom: Ana & Co\nEmail: ana@example.com\nDate: "))
	assert.Contains(t, body, "MESSAGE:\nWeek 17 is missing\n\n---\nSent from Problem Tracking Form")
}

func TestParseType(t *testing.T) {
	tests := map[string]Type{
		"bug":       TypeBug,
		" Feature ": TypeFeature,
		"other":     TypeOther,
		"":          TypeSuggestion,
		"praise":    TypeSuggestion,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseType(in), "ParseType(%q)", in)
	}
}
