package mcp

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qmmcmx/problemtrack/internal/config"
	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/ledger"
	"github.com/qmmcmx/problemtrack/internal/progress"
	"github.com/qmmcmx/problemtrack/internal/submission"
)

// Services are the components the tools read from and write to.
type Services struct {
	Pipeline    *submission.Pipeline
	Suggestions *ledger.Suggestions
	Templates   *ledger.Templates
	Feedback    *feedback.Channel
	Form        *formdef.Holder
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc Services
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc Services, cfg *config.Config) *Handlers {
	if svc.Form == nil {
		svc.Form = formdef.NewHolder(formdef.Default())
	}
	return &Handlers{svc: svc, cfg: cfg}
}

// Request types for each tool

// SuggestionsListRequest represents the arguments for suggestions_list.
type SuggestionsListRequest struct {
	Kind string `json:"kind,omitempty"`
}

// TemplatesListRequest represents the arguments for templates_list.
type TemplatesListRequest struct {
	Limit int  `json:"limit,omitempty"`
	All   bool `json:"all,omitempty"`
}

// TemplatesApplyRequest represents the arguments for templates_apply.
type TemplatesApplyRequest struct {
	Index *int `json:"index"`
}

// FeedbackSendRequest represents the arguments for feedback_send.
type FeedbackSendRequest struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
	ClientInfo string `json:"client_info,omitempty"`
}

// ProgressComputeRequest represents the arguments for progress_compute.
type ProgressComputeRequest struct {
	Values map[string]string `json:"values"`
}

// Output types

// SuggestionsOutput lists the remembered text ledgers.
type SuggestionsOutput struct {
	Descriptions []string `json:"descriptions,omitempty"`
	Actions      []string `json:"actions,omitempty"`
}

// TemplatesOutput lists templates with their button labels.
type TemplatesOutput struct {
	Items []TemplateItem `json:"items"`
	Total int            `json:"total"`
}

// TemplateItem is a template as shown on its button.
type TemplateItem struct {
	Index int `json:"index"`
	ledger.Template
	Label string `json:"label"`
	Hint  string `json:"hint"`
}

// ApplyOutput is the result of resolving a template button.
type ApplyOutput struct {
	Template ledger.Template `json:"template"`
	Fields   ledger.Fields   `json:"fields"`
	Message  string          `json:"message"`
}

// FormContextOutput is a fresh form together with its option lists.
type FormContextOutput struct {
	submission.Form
	Title       string   `json:"title"`
	WeekOptions []string `json:"week_options"`
	Lines       []string `json:"lines"`
	Owners      []string `json:"owners"`
	Categories  []string `json:"categories"`
	Durations   []string `json:"durations"`
	Required    []string `json:"required"`
}

// FeedbackListOutput is the feedback log.
type FeedbackListOutput struct {
	Items []feedback.Entry `json:"items"`
	Total int              `json:"total"`
}

// Handler implementations

// HandleSuggestionsList handles the suggestions_list tool call.
func (h *Handlers) HandleSuggestionsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SuggestionsListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var out SuggestionsOutput
	switch input.Kind {
	case "":
		out.Descriptions = h.svc.Suggestions.List(ctx, kvstore.KeyDescriptions)
		out.Actions = h.svc.Suggestions.List(ctx, kvstore.KeyActions)
	case "descriptions":
		out.Descriptions = h.svc.Suggestions.List(ctx, kvstore.KeyDescriptions)
	case "actions":
		out.Actions = h.svc.Suggestions.List(ctx, kvstore.KeyActions)
	default:
		return errorResult(errors.NewInvalidRequest("kind must be descriptions or actions")), nil
	}

	return successResult(out)
}

// HandleTemplatesList handles the templates_list tool call.
func (h *Handlers) HandleTemplatesList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplatesListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must be positive")), nil
	}

	var templates []ledger.Template
	if input.All {
		templates = h.svc.Templates.All(ctx)
	} else {
		templates = h.svc.Templates.TopN(ctx, h.limit(input.Limit))
	}

	out := TemplatesOutput{Items: make([]TemplateItem, 0, len(templates)), Total: len(templates)}
	for i, tmpl := range templates {
		out.Items = append(out.Items, TemplateItem{
			Index:    i,
			Template: tmpl,
			Label:    ledger.Label(tmpl),
			Hint:     ledger.Hint(tmpl),
		})
	}
	return successResult(out)
}

// HandleTemplatesApply handles the templates_apply tool call.
func (h *Handlers) HandleTemplatesApply(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TemplatesApplyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Index == nil {
		return errorResult(errors.NewInvalidRequest("index is required")), nil
	}

	index := *input.Index
	templates := h.svc.Templates.TopN(ctx, h.limit(0))
	if index < 0 || index >= len(templates) {
		return errorResult(errors.NewNotFound("template", strconv.Itoa(index))), nil
	}

	tmpl := templates[index]
	return successResult(ApplyOutput{
		Template: tmpl,
		Fields:   ledger.Apply(tmpl),
		Message:  submission.MsgTemplateApplied,
	})
}

// HandleFormContext handles the form_context tool call.
func (h *Handlers) HandleFormContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	form := h.svc.Pipeline.NewForm(ctx)
	def := form.Definition
	if def == nil {
		def = h.svc.Form.Get()
	}

	return successResult(FormContextOutput{
		Form:        form,
		Title:       def.Title,
		WeekOptions: def.WeekOptions(),
		Lines:       def.Lines,
		Owners:      def.Owners,
		Categories:  def.Categories,
		Durations:   def.Durations,
		Required:    def.Required,
	})
}

// HandleFeedbackList handles the feedback_list tool call.
func (h *Handlers) HandleFeedbackList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := h.svc.Feedback.List(ctx)
	if entries == nil {
		entries = []feedback.Entry{}
	}
	return successResult(FeedbackListOutput{Items: entries, Total: len(entries)})
}

// HandleFeedbackSend handles the feedback_send tool call. The mail draft is
// returned rather than opened; the caller decides how to hand it off.
func (h *Handlers) HandleFeedbackSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FeedbackSendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Feedback.Submit(ctx, nil, nil, feedback.Input{
		Name:       input.Name,
		Email:      input.Email,
		Type:       input.Type,
		Message:    input.Message,
		ClientInfo: input.ClientInfo,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleProgressCompute handles the progress_compute tool call.
func (h *Handlers) HandleProgressCompute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProgressComputeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return successResult(progress.Compute(h.svc.Form.Get().Required, input.Values))
}

func (h *Handlers) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	if h.cfg != nil && h.cfg.MaxTemplates > 0 {
		return h.cfg.MaxTemplates
	}
	return ledger.DefaultMaxVisibleTemplates
}

// Helper functions

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	tErr := errors.As(err)

	errorObj := map[string]any{
		"code":    tErr.Code,
		"message": tErr.Message,
		"status":  tErr.Status,
	}
	// Only include details for non-internal errors to avoid leaking
	// file paths or SQL errors
	if tErr.Code != errors.ErrInternal && tErr.Details != nil {
		errorObj["details"] = tErr.Details
	}
	if tErr.Code == errors.ErrInternal {
		errorObj["message"] = "an internal error occurred"
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
