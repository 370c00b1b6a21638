// Package submission runs the submit action of a form: remember the entered
// text, send the record and its attachments to the intake endpoint once, then
// reset or keep the form depending on the outcome.
package submission

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/intake"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/ledger"
	"github.com/qmmcmx/problemtrack/internal/logging"
	"github.com/qmmcmx/problemtrack/internal/metrics"
	"github.com/qmmcmx/problemtrack/internal/session"
	"github.com/qmmcmx/problemtrack/internal/staging"
)

// Notices shown after an action.
const (
	MsgSent            = "✓ Data sent successfully!"
	MsgSendFailed      = "Error sending data. Please try again."
	MsgTemplateApplied = "Template applied!"
)

// DefaultMaxTemplates is the number of template buttons when none is configured.
const DefaultMaxTemplates = 8

// Sender delivers a submission. *intake.Client implements it.
type Sender interface {
	Send(ctx context.Context, snapshot intake.Snapshot, files []staging.File) (*intake.Receipt, error)
}

// Options configures a Pipeline.
type Options struct {
	Sender       Sender
	Suggestions  *ledger.Suggestions
	Templates    *ledger.Templates
	Preferences  *ledger.PreferenceStore
	Form         *formdef.Holder
	MaxTemplates int
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	Now          func() time.Time
}

// Pipeline submits forms and builds fresh ones.
type Pipeline struct {
	sender       Sender
	suggestions  *ledger.Suggestions
	templates    *ledger.Templates
	prefs        *ledger.PreferenceStore
	form         *formdef.Holder
	maxTemplates int
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		sender:       opts.Sender,
		suggestions:  opts.Suggestions,
		templates:    opts.Templates,
		prefs:        opts.Preferences,
		form:         opts.Form,
		maxTemplates: opts.MaxTemplates,
		metrics:      opts.Metrics,
		logger:       logging.OrNop(opts.Logger),
		now:          opts.Now,
	}
	if p.maxTemplates <= 0 {
		p.maxTemplates = DefaultMaxTemplates
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.form == nil {
		p.form = formdef.NewHolder(formdef.Default())
	}
	return p
}

// Result is the outcome of a successful submission.
type Result struct {
	Receipt *intake.Receipt `json:"receipt"`
	Form    Form            `json:"form"`
}

// Submit sends snapshot with the session's staged files.
//
// The description, corrective action, template and (when opted in)
// preferences are remembered before the send, whatever its outcome. On
// success the sent files are unstaged and the session gets a fresh form. On
// failure the session keeps the submitted values and staged files; nothing is
// retried.
func (p *Pipeline) Submit(ctx context.Context, sess *session.Session, snapshot intake.Snapshot) (*Result, error) {
	files, err := sess.BeginSubmit(snapshot)
	if err != nil {
		p.metrics.ObserveSubmission(metrics.OutcomeRejected, 0, 0)
		p.logger.Info("submission rejected", zap.String("session", sess.ID()), zap.Error(err))
		return nil, err
	}

	p.remember(ctx, snapshot)

	start := time.Now()
	receipt, err := p.sender.Send(ctx, snapshot, files)
	elapsed := time.Since(start)
	if err != nil {
		sess.FailSubmit(MsgSendFailed)
		p.metrics.ObserveSubmission(metrics.OutcomeFailure, len(files), elapsed)
		p.logger.Warn("submission failed",
			zap.String("session", sess.ID()),
			zap.Int("fields", len(snapshot)),
			zap.Int("attachments", len(files)),
			zap.Error(err))
		return nil, errors.As(err)
	}

	fresh := p.NewForm(ctx)
	sess.SucceedSubmit(files, fresh.Values, MsgSent)
	p.metrics.ObserveSubmission(metrics.OutcomeSuccess, len(files), elapsed)
	p.logger.Info("submission sent",
		zap.String("session", sess.ID()),
		zap.Int("fields", len(snapshot)),
		zap.Int("attachments", len(files)),
		zap.Int("status", receipt.Status),
		zap.Duration("elapsed", elapsed))

	return &Result{Receipt: receipt, Form: fresh}, nil
}

func (p *Pipeline) remember(ctx context.Context, snapshot intake.Snapshot) {
	description := snapshot.Get(intake.FieldDescription)
	action := snapshot.Get(intake.FieldCorrectiveAction)

	p.suggestions.Record(ctx, kvstore.KeyDescriptions, description)
	p.suggestions.Record(ctx, kvstore.KeyActions, action)
	p.templates.Record(ctx, snapshot.Get(intake.FieldCategory), description, action)

	if snapshot.Checked(intake.FieldRememberPrefs) {
		p.prefs.Save(ctx, ledger.Preferences{
			Line:  snapshot.Get(intake.FieldLine),
			Owner: snapshot.Get(intake.FieldOwner),
		})
	}
}

// ApplyTemplate fills category, description and corrective action from the
// index-th visible template into values and stores them on the session.
func (p *Pipeline) ApplyTemplate(ctx context.Context, sess *session.Session, index int, values intake.Snapshot) (ledger.Template, error) {
	top := p.templates.TopN(ctx, p.maxTemplates)
	if index < 0 || index >= len(top) {
		return ledger.Template{}, errors.NewNotFound("template", strconv.Itoa(index))
	}

	tpl := top[index]
	fields := ledger.Apply(tpl)
	if values == nil {
		values = p.FormFor(ctx, sess.Values()).Values
	}
	values = values.Clone()
	values = values.Set(intake.FieldCategory, fields.Category)
	values = values.Set(intake.FieldDescription, fields.Description)
	values = values.Set(intake.FieldCorrectiveAction, fields.CorrectiveAction)

	sess.SetValues(values)
	sess.SetNotice(session.NoticeSuccess, MsgTemplateApplied)
	return tpl, nil
}
