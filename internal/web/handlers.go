package web

import (
	"context"
	stderrors "errors"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/qmmcmx/problemtrack/internal/config"
	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/intake"
	"github.com/qmmcmx/problemtrack/internal/ledger"
	"github.com/qmmcmx/problemtrack/internal/progress"
	"github.com/qmmcmx/problemtrack/internal/session"
	"github.com/qmmcmx/problemtrack/internal/staging"
	"github.com/qmmcmx/problemtrack/internal/submission"
)

// SessionCookie names the cookie carrying the form session ID.
const SessionCookie = "problemtrack_session"

// Feedback form field names. They live in their own <form> so they never
// reach the intake payload.
const (
	fieldFeedbackName    = "feedback_name"
	fieldFeedbackEmail   = "feedback_email"
	fieldFeedbackType    = "feedback_type"
	fieldFeedbackMessage = "feedback_message"
)

// fieldOrder is the order of the form's inputs, used when a urlencoded body
// has lost it.
var fieldOrder = []string{
	intake.FieldWeek,
	intake.FieldShift,
	intake.FieldDateDetection,
	intake.FieldDateFinished,
	intake.FieldLine,
	intake.FieldOwner,
	intake.FieldCategory,
	intake.FieldDescription,
	intake.FieldCorrectiveAction,
	intake.FieldIssueTime,
	intake.FieldRememberPrefs,
}

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	cfg      *config.Config
	pipeline *submission.Pipeline
	sessions *session.Manager
	feedback *feedback.Channel
	form     *formdef.Holder
	logger   *zap.Logger
	renderer *Renderer
	help     template.HTML
}

// HandleForm handles GET / — the form page.
func (h *Handlers) HandleForm(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	h.renderer.renderPage(w, r, "form", h.formPage(r.Context(), sess, ""))
}

// HandleSubmit handles POST /submit — send the form to the intake endpoint.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)

	snapshot, files, err := h.readForm(w, r)
	if err != nil {
		h.actionFailed(w, r, sess, err)
		return
	}
	sess.AddFiles(files...)

	result, err := h.pipeline.Submit(r.Context(), sess, snapshot)

	if wantsJSON(r) {
		sess.TakeNotice()
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{
			"status":  "sent",
			"notice":  submission.MsgSent,
			"receipt": result.Receipt,
			"form":    result.Form,
		})
		return
	}

	if errors.Is(err, errors.ErrSubmissionInFlight) {
		sess.SetNotice(session.NoticeError, errors.As(err).Message)
	}
	h.afterAction(w, r, sess)
}

// HandleUpload handles POST /attachments — stage picked files.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)

	snapshot, files, err := h.readForm(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if hasFormValues(snapshot) {
		sess.SetValues(snapshot)
	}
	added := sess.AddFiles(files...)
	h.logger.Debug("attachments staged", zap.String("session", sess.ID()), zap.Int("added", added))

	h.attachmentsChanged(w, r, sess, map[string]any{"added": added})
}

// HandleRemoveAttachment handles POST /attachments/{index}/delete.
func (h *Handlers) HandleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("attachment index must be an integer"))
		return
	}
	if err := sess.RemoveFile(index); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.attachmentsChanged(w, r, sess, map[string]any{"removed": index})
}

// HandleApplyTemplate handles POST /templates/{index}/apply — fill category,
// description and corrective action from a template.
func (h *Handlers) HandleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		h.actionFailed(w, r, sess, errors.NewInvalidRequest("template index must be an integer"))
		return
	}

	snapshot, files, err := h.readForm(w, r)
	if err != nil {
		h.actionFailed(w, r, sess, err)
		return
	}
	sess.AddFiles(files...)
	if !hasFormValues(snapshot) {
		snapshot = nil
	}

	tpl, err := h.pipeline.ApplyTemplate(r.Context(), sess, index, snapshot)
	if err != nil {
		h.actionFailed(w, r, sess, err)
		return
	}

	if wantsJSON(r) {
		sess.TakeNotice()
		renderJSON(w, http.StatusOK, map[string]any{
			"template": tpl,
			"fields":   ledger.Apply(tpl),
			"notice":   submission.MsgTemplateApplied,
		})
		return
	}
	h.afterAction(w, r, sess)
}

// HandleProgress handles POST /progress — completion of the posted values.
func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	snapshot, _, err := h.readForm(w, r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	p := progress.Compute(h.form.Get().Required, snapshot.Values())

	if isFragment(r) {
		h.renderer.renderBlock(w, http.StatusOK, "form", "progress", FormPageData{Progress: p})
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"filled":    p.Filled,
		"total":     p.Total,
		"percent":   p.Percent,
		"width":     p.Width(),
		"completed": p.Completed,
	})
}

// HandleFeedback handles POST /feedback — log feedback and hand back a mail draft.
func (h *Handlers) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)

	snapshot, _, err := h.readForm(w, r)
	if err != nil {
		h.actionFailed(w, r, sess, err)
		return
	}

	var mailto string
	mailer := feedback.MailerFunc(func(_ context.Context, u string) error {
		mailto = u
		return nil
	})

	input := feedback.Input{
		Name:       snapshot.Get(fieldFeedbackName),
		Email:      snapshot.Get(fieldFeedbackEmail),
		Type:       snapshot.Get(fieldFeedbackType),
		Message:    snapshot.Get(fieldFeedbackMessage),
		ClientInfo: r.UserAgent(),
	}
	result, err := h.feedback.Submit(r.Context(), sess.Feedback(), mailer, input)
	if err != nil {
		// Keep what the user typed so only the message needs fixing.
		h.failedWith(w, r, sess, err, func(page *FormPageData) {
			page.FeedbackDraft = input
			page.FeedbackOpen = true
		})
		return
	}

	if wantsJSON(r) {
		sess.Feedback().Acknowledge()
		renderJSON(w, http.StatusOK, map[string]any{
			"id":     result.Entry.ID,
			"state":  result.State,
			"mailto": result.Mailto,
			"notice": feedback.MsgSubmitted,
		})
		return
	}

	// The draft link must be on the page the browser lands on, so render
	// instead of redirecting.
	sess.SetNotice(session.NoticeSuccess, feedback.MsgSubmitted)
	h.renderer.renderPage(w, r, "form", h.formPage(r.Context(), sess, mailto))
}

// HandleHelp handles GET /help.
func (h *Handlers) HandleHelp(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "help", HelpPageData{
		PageData: PageData{
			Title:   "Help",
			Version: h.renderer.version,
			Nav:     "help",
		},
		RenderedHTML: h.help,
	})
}

// session returns the caller's form session, issuing a cookie for a new one.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := h.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// formPage assembles the form page for sess and consumes its pending notice.
func (h *Handlers) formPage(ctx context.Context, sess *session.Session, mailto string) FormPageData {
	form := h.pipeline.FormFor(ctx, sess.Values())
	def := form.Definition
	values := form.Values.Values()

	required := make(map[string]bool, len(def.Required))
	for _, name := range def.Required {
		required[name] = true
	}

	buttons := make([]TemplateButton, len(form.Templates))
	for i, t := range form.Templates {
		buttons[i] = TemplateButton{Index: i, Label: ledger.Label(t), Hint: ledger.Hint(t), Count: t.Count}
	}

	types := make([]FeedbackOption, len(feedback.Types))
	for i, t := range feedback.Types {
		types[i] = FeedbackOption{Value: string(t), Label: t.Label()}
	}

	panel := sess.Feedback()
	state := panel.State()
	panel.Acknowledge()

	return FormPageData{
		PageData: PageData{
			Title:   def.Title,
			Version: h.renderer.version,
			Nav:     "form",
		},
		Form:          form,
		Values:        values,
		Required:      required,
		Attachments:   sess.Previews(),
		Progress:      progress.Compute(def.Required, values),
		Templates:     buttons,
		Notice:        sess.TakeNotice(),
		FeedbackTypes: types,
		FeedbackState: state,
		Mailto:        mailto,
		MaxUploadMB:   int(h.cfg.MaxUploadBytes() >> 20),
	}
}

// afterAction answers a form-changing POST: the page content for fragment
// requests, otherwise a redirect back to the form.
func (h *Handlers) afterAction(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if isFragment(r) {
		h.renderer.renderPage(w, r, "form", h.formPage(r.Context(), sess, ""))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// actionFailed reports err. Fragment and page requests see it as a notice on
// the re-rendered form; JSON callers get the structured error.
func (h *Handlers) actionFailed(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	h.failedWith(w, r, sess, err, nil)
}

// failedWith is actionFailed with a hook to adjust the re-rendered page.
func (h *Handlers) failedWith(w http.ResponseWriter, r *http.Request, sess *session.Session, err error, adjust func(*FormPageData)) {
	if wantsJSON(r) {
		h.renderer.renderError(w, r, err)
		return
	}
	tErr := errors.As(err)
	sess.SetNotice(session.NoticeError, tErr.Message)
	page := h.formPage(r.Context(), sess, "")
	if adjust != nil {
		adjust(&page)
	}
	status := tErr.Status
	if isFragment(r) {
		status = http.StatusOK
	}
	h.renderer.renderPageStatus(w, r, status, "form", page)
}

func (h *Handlers) attachmentsChanged(w http.ResponseWriter, r *http.Request, sess *session.Session, extra map[string]any) {
	switch {
	case wantsJSON(r):
		extra["attachments"] = sess.Previews()
		extra["total_size"] = sess.StagedSize()
		renderJSON(w, http.StatusOK, extra)
	case isFragment(r):
		h.renderer.renderBlock(w, http.StatusOK, "form", "attachments", FormPageData{Attachments: sess.Previews()})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// readForm reads a urlencoded or multipart body into an ordered snapshot and
// the uploaded files. Multipart parts are streamed so field order survives.
func (h *Handlers) readForm(w http.ResponseWriter, r *http.Request) (intake.Snapshot, []staging.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes())

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, nil, h.bodyError(err)
		}
		return orderedSnapshot(r.PostForm), nil, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, errors.NewInvalidRequest("invalid multipart body")
	}

	var snapshot intake.Snapshot
	var files []staging.File
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, h.bodyError(err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, nil, h.bodyError(err)
		}

		if filename := part.FileName(); filename != "" {
			files = append(files, staging.File{
				Name:        filename,
				Size:        int64(len(data)),
				ContentType: part.Header.Get("Content-Type"),
				Data:        data,
			})
			continue
		}
		// An empty file input still sends a part with no filename.
		if part.FormName() == intake.FieldEvidenceFiles {
			continue
		}
		snapshot = append(snapshot, intake.Field{Name: part.FormName(), Value: string(data)})
	}
	return snapshot, files, nil
}

func (h *Handlers) bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return errors.NewPayloadTooLarge(int(h.cfg.MaxUploadBytes() >> 20))
	}
	return errors.NewInvalidRequest("invalid form data")
}

// orderedSnapshot lays urlencoded values out in form order, unknown fields last.
func orderedSnapshot(values url.Values) intake.Snapshot {
	var snapshot intake.Snapshot
	for _, name := range fieldOrder {
		for _, v := range values[name] {
			snapshot = append(snapshot, intake.Field{Name: name, Value: v})
		}
	}

	var rest []string
	for name := range values {
		if !slices.Contains(fieldOrder, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	for _, name := range rest {
		for _, v := range values[name] {
			snapshot = append(snapshot, intake.Field{Name: name, Value: v})
		}
	}
	return snapshot
}

// hasFormValues reports whether snapshot carries any of the form's own fields.
func hasFormValues(snapshot intake.Snapshot) bool {
	for _, f := range snapshot {
		if slices.Contains(fieldOrder, f.Name) {
			return true
		}
	}
	return false
}
