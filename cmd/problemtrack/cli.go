package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/export"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/intake"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/ledger"
	"github.com/qmmcmx/problemtrack/internal/session"
	"github.com/qmmcmx/problemtrack/internal/staging"
	"github.com/qmmcmx/problemtrack/internal/submission"
	"github.com/qmmcmx/problemtrack/internal/web"
)

const (
	// maxStdinBytes bounds feedback read from stdin.
	maxStdinBytes = 1 << 20

	defaultSessionTTL = 12 * time.Hour
	sweepInterval     = 10 * time.Minute
)

// newCLIApp creates the CLI application with all commands.
// a may be nil when only help or version output is needed.
func newCLIApp(a *app) *cli.App {
	app := &cli.App{
		Name:    "problemtrack",
		Usage:   "Production line problem tracking form",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
		},
		Commands: []*cli.Command{
			serveCmd(a),
			submitCmd(a),
			contextCmd(a),
			suggestionsCmd(a),
			templatesCmd(a),
			prefsCmd(a),
			feedbackCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the problem tracking form over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
			&cli.DurationFlag{Name: "session-ttl", Value: defaultSessionTTL, Usage: "Drop idle form sessions after this long"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, a, c.String("bind"), c.Int("port"), c.Duration("session-ttl")); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// serve runs the web server, the form definition watcher and the session
// sweeper until ctx is cancelled or one of them fails.
func serve(ctx context.Context, a *app, bind string, port int, ttl time.Duration) error {
	srv, err := web.NewServer(a.webOptions(), bind, port)
	if err != nil {
		return err
	}

	var watcher *formdef.Watcher
	if a.cfg.FormPath != "" {
		watcher, err = formdef.NewWatcher(a.cfg.FormPath, a.form, a.logger)
		if err != nil {
			return err
		}
	}
	if a.cfg.IntakeURL == "" {
		a.logger.Warn("intake_url is not configured; submissions will fail")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Run(gctx, srv, a.logger)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	g.Go(func() error {
		sweepSessions(gctx, a.sessions, ttl, sweepInterval, a.logger)
		return nil
	})

	return g.Wait()
}

// sweepSessions drops idle sessions every interval until ctx is done.
func sweepSessions(ctx context.Context, sessions *session.Manager, ttl, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(ttl); n > 0 {
				logger.Debug("swept idle sessions", zap.Int("count", n), zap.Int("remaining", sessions.Len()))
			}
		}
	}
}

// submitCmd creates the submit command.
func submitCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a problem record to the intake endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "week", Usage: "Week option, e.g. \"Week 10\" (defaults to the current week)"},
			&cli.StringFlag{Name: "shift", Usage: "Shift (defaults to the shift running now)"},
			&cli.StringFlag{Name: "date-detection", Usage: "Detection date YYYY-MM-DD (defaults to today)"},
			&cli.StringFlag{Name: "date-finished", Usage: "Finish date YYYY-MM-DD (defaults to today)"},
			&cli.StringFlag{Name: "line", Aliases: []string{"l"}, Usage: "Production line"},
			&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owning department"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Problem category"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Problem description"},
			&cli.StringFlag{Name: "corrective-action", Aliases: []string{"a"}, Usage: "Corrective action taken"},
			&cli.StringFlag{Name: "issue-time", Usage: "How long the issue lasted"},
			&cli.BoolFlag{Name: "remember-prefs", Usage: "Remember line and owner for the next form"},
			&cli.StringSliceFlag{Name: "file", Aliases: []string{"f"}, Usage: "Evidence file to attach (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			snapshot := a.pipeline.NewForm(ctx).Values

			for _, f := range []struct{ flag, field string }{
				{"week", intake.FieldWeek},
				{"shift", intake.FieldShift},
				{"date-detection", intake.FieldDateDetection},
				{"date-finished", intake.FieldDateFinished},
				{"line", intake.FieldLine},
				{"owner", intake.FieldOwner},
				{"category", intake.FieldCategory},
				{"description", intake.FieldDescription},
				{"corrective-action", intake.FieldCorrectiveAction},
				{"issue-time", intake.FieldIssueTime},
			} {
				if c.IsSet(f.flag) {
					snapshot = snapshot.Set(f.field, strings.TrimSpace(c.String(f.flag)))
				}
			}
			if c.IsSet("remember-prefs") {
				remember := ""
				if c.Bool("remember-prefs") {
					remember = "on"
				}
				snapshot = snapshot.Set(intake.FieldRememberPrefs, remember)
			}

			files, err := readEvidence(c.StringSlice("file"), a.cfg.MaxUploadBytes(), a.cfg.MaxUploadMB)
			if err != nil {
				return outputError(err)
			}

			sess := a.sessions.New()
			sess.AddFiles(files...)

			result, err := a.pipeline.Submit(ctx, sess, snapshot)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// contextOutput is a fresh form with its definition.
type contextOutput struct {
	submission.Form
	Definition  *formdef.Definition `json:"definition"`
	WeekOptions []string            `json:"week_options"`
}

// contextCmd creates the context command.
func contextCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "context",
		Usage: "Show the defaults, options and suggestions of a fresh form",
		Action: func(c *cli.Context) error {
			form := a.pipeline.NewForm(c.Context)
			return outputJSON(contextOutput{
				Form:        form,
				Definition:  form.Definition,
				WeekOptions: form.Definition.WeekOptions(),
			})
		},
	}
}

// suggestionsCmd creates the suggestions command.
func suggestionsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "suggestions",
		Usage: "List remembered descriptions and corrective actions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "descriptions|actions (default: both)"},
		},
		Action: func(c *cli.Context) error {
			out := map[string][]string{}
			switch kind := c.String("kind"); kind {
			case "":
				out["descriptions"] = a.suggestions.List(c.Context, kvstore.KeyDescriptions)
				out["actions"] = a.suggestions.List(c.Context, kvstore.KeyActions)
			case "descriptions":
				out["descriptions"] = a.suggestions.List(c.Context, kvstore.KeyDescriptions)
			case "actions":
				out["actions"] = a.suggestions.List(c.Context, kvstore.KeyActions)
			default:
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown kind %q: use descriptions or actions", kind)))
			}
			return outputJSON(out)
		},
	}
}

// templatesCmd creates the templates command group.
func templatesCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "Inspect quick templates",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List templates ranked by use",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum templates (default: max_templates)"},
					&cli.BoolFlag{Name: "all", Usage: "List every stored template in stored order"},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("all") {
						return outputJSON(a.templates.All(c.Context))
					}
					limit := c.Int("limit")
					if limit <= 0 {
						limit = a.cfg.MaxTemplates
					}
					return outputJSON(a.templates.TopN(c.Context, limit))
				},
			},
			{
				Name:      "apply",
				Usage:     "Show the fields a template button fills in",
				ArgsUsage: "<index>",
				Action: func(c *cli.Context) error {
					index, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return outputError(errors.NewInvalidRequest("index must be a number"))
					}
					templates := a.templates.TopN(c.Context, a.cfg.MaxTemplates)
					if index < 0 || index >= len(templates) {
						return outputError(errors.NewNotFound("template", strconv.Itoa(index)))
					}
					return outputJSON(ledger.Apply(templates[index]))
				},
			},
		},
	}
}

// prefsCmd creates the prefs command group.
func prefsCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Show or change the remembered line and owner",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the remembered preferences",
				Action: func(c *cli.Context) error {
					return outputJSON(a.prefs.Load(c.Context))
				},
			},
			{
				Name:  "set",
				Usage: "Remember a line and owner",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "line", Aliases: []string{"l"}, Usage: "Production line"},
					&cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Usage: "Owning department"},
				},
				Action: func(c *cli.Context) error {
					def := a.form.Get()
					prefs := ledger.Preferences{Line: c.String("line"), Owner: c.String("owner")}
					if resolved := ledger.Resolve(prefs, def.Lines, def.Owners); resolved != prefs {
						return outputError(errors.NewInvalidRequest("line and owner must be options of the form"))
					}
					a.prefs.Save(c.Context, prefs)
					return outputJSON(prefs)
				},
			},
			{
				Name:  "clear",
				Usage: "Forget the remembered preferences",
				Action: func(c *cli.Context) error {
					a.store.Delete(c.Context, kvstore.KeyPreferences)
					return outputJSON(ledger.Preferences{})
				},
			},
		},
	}
}

// feedbackCmd creates the feedback command group.
func feedbackCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "feedback",
		Usage: "Send, list and export feedback",
		Subcommands: []*cli.Command{
			{
				Name:  "send",
				Usage: "Log feedback and print its mail draft (message from --message or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Feedback text"},
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: string(feedback.TypeSuggestion), Usage: "suggestion|bug|feature|other"},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Your name"},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Your email"},
				},
				Action: func(c *cli.Context) error {
					message := c.String("message")
					if message == "" && stdinHasData() {
						text, err := readStdin(maxStdinBytes)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						message = text
					}

					mailer := feedback.MailerFunc(func(_ context.Context, mailto string) error {
						_, err := fmt.Fprintf(os.Stderr, "Open this link to send the mail:\n%s\n", mailto)
						return err
					})
					result, err := a.feedback.Submit(c.Context, nil, mailer, feedback.Input{
						Name:       c.String("name"),
						Email:      c.String("email"),
						Type:       c.String("type"),
						Message:    message,
						ClientInfo: "problemtrack " + Version + " (cli)",
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(result)
				},
			},
			{
				Name:  "list",
				Usage: "List logged feedback, oldest first",
				Action: func(c *cli.Context) error {
					return outputJSON(a.feedback.List(c.Context))
				},
			},
			{
				Name:  "export",
				Usage: "Export logged feedback to JSONL or XLSX",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path, .jsonl or .xlsx (default: ~/.problemtrack/exports/feedback-<timestamp>.<format>)"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(export.FormatJSONL), Usage: "jsonl|xlsx, used when --path is not given"},
				},
				Action: func(c *cli.Context) error {
					format := export.Format(c.String("format"))
					if format != export.FormatJSONL && format != export.FormatXLSX {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown format %q: use jsonl or xlsx", format)))
					}
					output, err := export.Feedback(c.Context, a.feedback.List(c.Context), a.cfg, export.Input{
						Path:       c.String("path"),
						Format:     format,
						ExportsDir: a.exportsDir(),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	tErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// readEvidence loads the named files for staging. The combined size is
// bounded like a web upload.
func readEvidence(paths []string, limit int64, limitMB int) ([]staging.File, error) {
	files := make([]staging.File, 0, len(paths))
	var total int64
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot read evidence file: %v", err))
		}
		total += int64(len(data))
		if total > limit {
			return nil, errors.NewPayloadTooLarge(limitMB)
		}

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		files = append(files, staging.File{
			Name:        filepath.Base(path),
			Size:        int64(len(data)),
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, nil
}
