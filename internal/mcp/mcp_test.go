package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qmmcmx/problemtrack/internal/config"
	"github.com/qmmcmx/problemtrack/internal/db"
	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/feedback"
	"github.com/qmmcmx/problemtrack/internal/formdef"
	"github.com/qmmcmx/problemtrack/internal/kvstore"
	"github.com/qmmcmx/problemtrack/internal/ledger"
	"github.com/qmmcmx/problemtrack/internal/submission"
)

// 2025-03-05 10:30 falls in week 10, during the day shift.
var fixedNow = time.Date(2025, 3, 5, 10, 30, 0, 0, time.UTC)

// testSetup creates a temporary database and the services backed by it.
func testSetup(t *testing.T) (Services, *config.Config) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.FeedbackEmail = "qa@example.com"

	store := kvstore.New(database, nil)
	holder := formdef.NewHolder(formdef.Default())
	now := func() time.Time { return fixedNow }

	svc := Services{
		Suggestions: ledger.NewSuggestions(store, cfg.MaxSavedItems),
		Templates:   ledger.NewTemplates(store, cfg.MaxStoredTemplates),
		Feedback: feedback.New(feedback.Options{
			Store:      store,
			To:         cfg.FeedbackEmail,
			MaxEntries: cfg.MaxFeedbackEntries,
			Now:        now,
		}),
		Form: holder,
	}
	svc.Pipeline = submission.New(submission.Options{
		Suggestions:  svc.Suggestions,
		Templates:    svc.Templates,
		Preferences:  ledger.NewPreferenceStore(store),
		Form:         holder,
		MaxTemplates: cfg.MaxTemplates,
		Now:          now,
	})
	return svc, cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleSuggestionsList(t *testing.T) {
	svc, cfg := testSetup(t)
	h := NewHandlers(svc, cfg)
	ctx := context.Background()

	svc.Suggestions.Record(ctx, kvstore.KeyDescriptions, "Conveyor jam")
	svc.Suggestions.Record(ctx, kvstore.KeyDescriptions, "Sensor fault")
	svc.Suggestions.Record(ctx, kvstore.KeyActions, "Cleared belt")

	t.Run("both ledgers", func(t *testing.T) {
		result, err := h.HandleSuggestionsList(ctx, makeRequest(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := parseOutput(t, result)

		descriptions := output["descriptions"].([]any)
		if len(descriptions) != 2 || descriptions[0] != "Sensor fault" {
			t.Errorf("descriptions = %v, want most recent first", descriptions)
		}
		actions := output["actions"].([]any)
		if len(actions) != 1 || actions[0] != "Cleared belt" {
			t.Errorf("actions = %v", actions)
		}
	})

	t.Run("single ledger", func(t *testing.T) {
		result, _ := h.HandleSuggestionsList(ctx, makeRequest(map[string]any{"kind": "actions"}))
		output := parseOutput(t, result)
		if _, ok := output["descriptions"]; ok {
			t.Error("descriptions should be omitted when kind=actions")
		}
		if len(output["actions"].([]any)) != 1 {
			t.Errorf("actions = %v", output["actions"])
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		result, _ := h.HandleSuggestionsList(ctx, makeRequest(map[string]any{"kind": "owners"}))
		if !result.IsError {
			t.Fatal("expected error result")
		}
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleTemplatesList(t *testing.T) {
	svc, cfg := testSetup(t)
	h := NewHandlers(svc, cfg)
	ctx := context.Background()

	svc.Templates.Record(ctx, "Mechanical", "Conveyor jam", "Cleared belt")
	svc.Templates.Record(ctx, "Electrical", "Sensor fault", "Replaced sensor")
	svc.Templates.Record(ctx, "Electrical", "Sensor fault", "Replaced sensor")

	t.Run("ranked by count", func(t *testing.T) {
		result, err := h.HandleTemplatesList(ctx, makeRequest(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := parseOutput(t, result)

		if output["total"].(float64) != 2 {
			t.Fatalf("total = %v, want 2", output["total"])
		}
		first := output["items"].([]any)[0].(map[string]any)
		if first["category"] != "Electrical" || first["count"].(float64) != 2 {
			t.Errorf("first item = %v, want Electrical with count 2", first)
		}
		if first["label"] == "" || first["hint"] == "" {
			t.Errorf("label/hint should be set: %v", first)
		}
	})

	t.Run("limit", func(t *testing.T) {
		result, _ := h.HandleTemplatesList(ctx, makeRequest(map[string]any{"limit": 1}))
		output := parseOutput(t, result)
		if output["total"].(float64) != 1 {
			t.Errorf("total = %v, want 1", output["total"])
		}
	})

	t.Run("negative limit", func(t *testing.T) {
		result, _ := h.HandleTemplatesList(ctx, makeRequest(map[string]any{"limit": -1}))
		assertErrorCode(t, result, "INVALID_REQUEST")
	})
}

func TestHandleTemplatesApply(t *testing.T) {
	svc, cfg := testSetup(t)
	h := NewHandlers(svc, cfg)
	ctx := context.Background()

	svc.Templates.Record(ctx, "Quality", "Scratched panel", "Reworked part")

	result, err := h.HandleTemplatesApply(ctx, makeRequest(map[string]any{"index": 0}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)

	fields := output["fields"].(map[string]any)
	if fields["category"] != "Quality" || fields["description"] != "Scratched panel" || fields["corrective_action"] != "Reworked part" {
		t.Errorf("fields = %v", fields)
	}
	if output["message"] != submission.MsgTemplateApplied {
		t.Errorf("message = %v, want %q", output["message"], submission.MsgTemplateApplied)
	}

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"missing index", nil, "INVALID_REQUEST"},
		{"out of range", map[string]any{"index": 5}, "NOT_FOUND"},
		{"negative", map[string]any{"index": -1}, "NOT_FOUND"},
		{"wrong type", map[string]any{"index": "first"}, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := h.HandleTemplatesApply(ctx, makeRequest(tt.args))
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, tt.code)
		})
	}
}

func TestHandleFormContext(t *testing.T) {
	svc, cfg := testSetup(t)
	h := NewHandlers(svc, cfg)
	ctx := context.Background()

	svc.Suggestions.Record(ctx, kvstore.KeyDescriptions, "Conveyor jam")

	result, err := h.HandleFormContext(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)

	fctx := output["context"].(map[string]any)
	if fctx["week_label"] != "Week 10" {
		t.Errorf("week_label = %v, want Week 10", fctx["week_label"])
	}
	if fctx["shift"] != "Day shift" {
		t.Errorf("shift = %v, want Day shift", fctx["shift"])
	}
	if fctx["date_detection"] != "2025-03-05" {
		t.Errorf("date_detection = %v", fctx["date_detection"])
	}
	if len(output["week_options"].([]any)) != 16 {
		t.Errorf("week_options = %v, want 16 entries", output["week_options"])
	}
	if len(output["required"].([]any)) != 7 {
		t.Errorf("required = %v, want 7 entries", output["required"])
	}
	if descriptions := output["descriptions"].([]any); len(descriptions) != 1 {
		t.Errorf("descriptions = %v", descriptions)
	}
	if _, ok := output["Definition"]; ok {
		t.Error("definition should not be serialized directly")
	}
}

func TestHandleFeedback(t *testing.T) {
	svc, cfg := testSetup(t)
	h := NewHandlers(svc, cfg)
	ctx := context.Background()

	t.Run("empty message", func(t *testing.T) {
		result, _ := h.HandleFeedbackSend(ctx, makeRequest(map[string]any{"message": "   "}))
		if !result.IsError {
			t.Fatal("expected error result")
		}
		assertErrorCode(t, result, "EMPTY_FEEDBACK")

		list, _ := h.HandleFeedbackList(ctx, makeRequest(nil))
		if parseOutput(t, list)["total"].(float64) != 0 {
			t.Error("empty feedback must not be logged")
		}
	})

	t.Run("send then list", func(t *testing.T) {
		result, err := h.HandleFeedbackSend(ctx, makeRequest(map[string]any{
			"message": "Add a dark mode",
			"type":    "feature",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := parseOutput(t, result)

		mailto := output["mailto"].(string)
		if !strings.HasPrefix(mailto, "mailto:qa@example.com?subject=") {
			t.Errorf("mailto = %q", mailto)
		}
		entry := output["entry"].(map[string]any)
		if entry["name"] != feedback.DefaultName || entry["email"] != feedback.DefaultEmail {
			t.Errorf("entry defaults = %v", entry)
		}
		if entry["type"] != "feature" {
			t.Errorf("type = %v, want feature", entry["type"])
		}

		list, _ := h.HandleFeedbackList(ctx, makeRequest(nil))
		items := parseOutput(t, list)["items"].([]any)
		if len(items) != 1 || items[0].(map[string]any)["message"] != "Add a dark mode" {
			t.Errorf("items = %v", items)
		}
	})
}

func TestHandleProgressCompute(t *testing.T) {
	svc, cfg := testSetup(t)
	h := NewHandlers(svc, cfg)

	result, err := h.HandleProgressCompute(context.Background(), makeRequest(map[string]any{
		"values": map[string]any{
			"week":        "Week 10",
			"description": "Conveyor jam",
			"line":        "   ",
			"issue_time":  "15 min",
		},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := parseOutput(t, result)

	if output["filled"].(float64) != 2 || output["total"].(float64) != 7 {
		t.Errorf("progress = %v/%v, want 2/7", output["filled"], output["total"])
	}
	completed := output["completed"].(map[string]any)
	if completed["line"] != false {
		t.Errorf("blank line should not count as completed: %v", completed)
	}
}

func TestServerRegistration(t *testing.T) {
	svc, cfg := testSetup(t)

	s := NewServer(svc, cfg, "test")
	tools := s.ListTools()
	if len(tools) != len(toolRegistry) {
		t.Fatalf("registered tool count = %d, want %d", len(tools), len(toolRegistry))
	}
	for _, name := range AllToolNames() {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestServerRegistration_WithDisabled(t *testing.T) {
	svc, cfg := testSetup(t)

	cfg.DisabledTools = []string{"templates_apply", "templates_apply"}
	cfg.DisabledTypes = []string{"feedback"}
	s := NewServer(svc, cfg, "test")
	tools := s.ListTools()

	if len(tools) != 4 {
		t.Errorf("registered tool count = %d, want 4", len(tools))
	}
	for _, name := range []string{"templates_apply", "feedback_list", "feedback_send"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	svc, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(svc, cfg, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabled(t *testing.T) {
	if unknown := ValidateDisabledTools([]string{"form_context", "report_delete"}); len(unknown) != 1 || unknown[0] != "report_delete" {
		t.Errorf("ValidateDisabledTools() = %v", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"progress", "reports"}); len(unknown) != 1 || unknown[0] != "reports" {
		t.Errorf("ValidateDisabledTypes() = %v", unknown)
	}
	if unknown := ValidateDisabledTypes(KnownTypes); len(unknown) != 0 {
		t.Errorf("every known type should validate: %v", unknown)
	}
}

func TestExpandTypesToTools(t *testing.T) {
	got := ExpandTypesToTools([]string{"templates"})
	if len(got) != 2 || got[0] != "templates_apply" || got[1] != "templates_list" {
		t.Errorf("ExpandTypesToTools(templates) = %v", got)
	}
	if ExpandTypesToTools(nil) != nil {
		t.Error("ExpandTypesToTools(nil) should be nil")
	}
	for _, name := range AllToolNames() {
		if unknown := ValidateDisabledTypes([]string{GetTypeForTool(name)}); len(unknown) != 0 {
			t.Errorf("tool %q has no known type", name)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(fmt.Errorf("sql error: open /tmp/secret.db: permission denied"))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatalf("internal message leaked: %v", errObj["message"])
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorKeepsCode(t *testing.T) {
	r := errorResult(fmt.Errorf("apply: %w", errors.NewNotFound("template", "4")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in payload: %v", payload)
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	if code, _ := errorObject(t, result)["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
