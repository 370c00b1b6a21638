package main

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/config"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/intake"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/ledger"
	"github.com/qmmcmx/problemtrack/internal/logging"
	"github.com/qmmcmx/problemtrack/internal/mcp"
	"github.com/qmmcmx/problemtrack/internal/metrics"
	"github.com/qmmcmx/problemtrack/internal/session"
	"github.com/qmmcmx/problemtrack/internal/submission"
	"github.com/qmmcmx/problemtrack/internal/web"
)

// app wires the components shared by the CLI, the web server and the MCP server.
type app struct {
	baseDir string
	cfg     *config.Config
	logger  *zap.Logger

	store       *kvstore.Store
	suggestions *ledger.Suggestions
	templates   *ledger.Templates
	prefs       *ledger.PreferenceStore
	form        *formdef.Holder
	feedback    *feedback.Channel
	metrics     *metrics.Metrics
	sessions    *session.Manager
	pipeline    *submission.Pipeline
}

// newApp builds the component graph over an initialized database.
func newApp(database *sql.DB, cfg *config.Config, logger *zap.Logger, baseDir string) (*app, error) {
	logger = logging.OrNop(logger)

	def, err := formdef.Load(cfg.FormPath)
	if err != nil {
		return nil, fmt.Errorf("load form definition: %w", err)
	}

	a := &app{
		baseDir:  baseDir,
		cfg:      cfg,
		logger:   logger,
		store:    kvstore.New(database, logger),
		form:     formdef.NewHolder(def),
		metrics:  metrics.New(),
		sessions: session.NewManager(),
	}
	a.suggestions = ledger.NewSuggestions(a.store, cfg.MaxSavedItems)
	a.templates = ledger.NewTemplates(a.store, cfg.MaxStoredTemplates)
	a.prefs = ledger.NewPreferenceStore(a.store)
	a.feedback = feedback.New(feedback.Options{
		Store:      a.store,
		To:         cfg.FeedbackEmail,
		MaxEntries: cfg.MaxFeedbackEntries,
		Metrics:    a.metrics,
		Logger:     logger,
	})
	a.pipeline = submission.New(submission.Options{
		Sender:       intake.NewClient(cfg.IntakeURL, cfg.IntakeTimeout(), logger),
		Suggestions:  a.suggestions,
		Templates:    a.templates,
		Preferences:  a.prefs,
		Form:         a.form,
		MaxTemplates: cfg.MaxTemplates,
		Metrics:      a.metrics,
		Logger:       logger,
	})
	return a, nil
}

func (a *app) exportsDir() string {
	return filepath.Join(a.baseDir, "exports")
}

func (a *app) mcpServices() mcp.Services {
	return mcp.Services{
		Pipeline:    a.pipeline,
		Suggestions: a.suggestions,
		Templates:   a.templates,
		Feedback:    a.feedback,
		Form:        a.form,
	}
}

func (a *app) webOptions() web.Options {
	return web.Options{
		Config:   a.cfg,
		Pipeline: a.pipeline,
		Sessions: a.sessions,
		Feedback: a.feedback,
		Form:     a.form,
		Metrics:  a.metrics,
		Logger:   a.logger,
		Version:  Version,
	}
}
