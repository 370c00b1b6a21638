package submission

import (
	"context"

	"github.com/qmmcmx/problemtrack/internal/formctx"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/intake"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/ledger"
)

// Form is everything needed to render the form: options, defaults,
// autocomplete lists and the values to prefill.
type Form struct {
	Definition   *formdef.Definition `json:"-"`
	Context      formctx.Context     `json:"context"`
	Values       intake.Snapshot     `json:"values"`
	Descriptions []string            `json:"descriptions"`
	Actions      []string            `json:"actions"`
	Templates    []ledger.Template   `json:"templates"`
	Preferences  ledger.Preferences  `json:"preferences"`
}

// NewForm builds a fresh form from the clock, the ledgers and the remembered
// preferences.
func (p *Pipeline) NewForm(ctx context.Context) Form {
	def := p.form.Get()
	fctx := formctx.Defaults(p.now())
	prefs := ledger.Resolve(p.prefs.Load(ctx), def.Lines, def.Owners)

	values := intake.Snapshot{}
	if fctx.WeekLabel != "" {
		values = values.Set(intake.FieldWeek, fctx.WeekLabel)
	}
	values = values.Set(intake.FieldShift, fctx.Shift)
	values = values.Set(intake.FieldDateDetection, fctx.DateDetection)
	values = values.Set(intake.FieldDateFinished, fctx.DateFinished)
	if prefs.Line != "" {
		values = values.Set(intake.FieldLine, prefs.Line)
	}
	if prefs.Owner != "" {
		values = values.Set(intake.FieldOwner, prefs.Owner)
	}
	if prefs != (ledger.Preferences{}) {
		values = values.Set(intake.FieldRememberPrefs, "on")
	}

	return Form{
		Definition:   def,
		Context:      fctx,
		Values:       values,
		Descriptions: p.suggestions.List(ctx, kvstore.KeyDescriptions),
		Actions:      p.suggestions.List(ctx, kvstore.KeyActions),
		Templates:    p.templates.TopN(ctx, p.maxTemplates),
		Preferences:  prefs,
	}
}

// FormFor returns the form for a session: the fresh form, with the session's
// retained values laid over it when there are any.
func (p *Pipeline) FormFor(ctx context.Context, values intake.Snapshot) Form {
	f := p.NewForm(ctx)
	if values != nil {
		f.Values = values.Clone()
	}
	return f
}
