// Package web serves the problem tracking form as server-rendered HTML.
package web

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/config"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/logging"
	"github.com/qmmcmx/problemtrack/internal/metrics"
	"github.com/qmmcmx/problemtrack/internal/session"
	"github.com/qmmcmx/problemtrack/internal/submission"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

//go:embed help.md
var helpMarkdown []byte

// Options wires the server to the form core.
type Options struct {
	Config   *config.Config
	Pipeline *submission.Pipeline
	Sessions *session.Manager
	Feedback *feedback.Channel
	Form     *formdef.Holder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Version  string
}

// NewHandler builds the routed handler for the web UI.
func NewHandler(opts Options) (http.Handler, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to create template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static sub-FS: %w", err)
	}

	logger := logging.OrNop(opts.Logger)
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Form == nil {
		opts.Form = formdef.NewHolder(formdef.Default())
	}

	h := &Handlers{
		cfg:      opts.Config,
		pipeline: opts.Pipeline,
		sessions: opts.Sessions,
		feedback: opts.Feedback,
		form:     opts.Form,
		logger:   logger,
		renderer: NewRenderer(templateSub, opts.Version, logger),
		help:     renderMarkdown(helpMarkdown),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.HandleForm)
	mux.HandleFunc("POST /submit", h.HandleSubmit)
	mux.HandleFunc("POST /attachments", h.HandleUpload)
	mux.HandleFunc("POST /attachments/{index}/delete", h.HandleRemoveAttachment)
	mux.HandleFunc("POST /templates/{index}/apply", h.HandleApplyTemplate)
	mux.HandleFunc("POST /progress", h.HandleProgress)
	mux.HandleFunc("POST /feedback", h.HandleFeedback)
	mux.HandleFunc("GET /help", h.HandleHelp)
	mux.Handle("GET /metrics", opts.Metrics.Handler())
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return logRequests(logger, securityHeaders(mux)), nil
}

// NewServer creates and configures the HTTP server for the form.
func NewServer(opts Options, bind string, port int) (*http.Server, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per request at debug level.
func logRequests(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("problem tracking form running", zap.String("url", "http://"+srv.Addr))
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
