package mcp

import "github.com/mark3labs/mcp-go/mcp"

var suggestionsListToolDef = mcp.NewTool("suggestions_list",
	mcp.WithDescription("List remembered descriptions and corrective actions, most recent first."),
	mcp.WithString("kind",
		mcp.Description("Which ledger to read. Omit for both."),
		mcp.Enum("descriptions", "actions"),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var templatesListToolDef = mcp.NewTool("templates_list",
	mcp.WithDescription("List quick templates ranked by how often they were submitted."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum templates to return. Defaults to the configured button count."),
		mcp.Min(1),
	),
	mcp.WithBoolean("all",
		mcp.Description("Return every stored template in stored order."),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var templatesApplyToolDef = mcp.NewTool("templates_apply",
	mcp.WithDescription("Resolve a quick template button to the category, description and corrective action it fills in."),
	mcp.WithNumber("index",
		mcp.Required(),
		mcp.Description("Zero-based position among the ranked template buttons."),
		mcp.Min(0),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var formContextToolDef = mcp.NewTool("form_context",
	mcp.WithDescription("Return a fresh form: week, shift and date defaults, selectable options, remembered preferences and autocomplete lists."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var feedbackListToolDef = mcp.NewTool("feedback_list",
	mcp.WithDescription("List the locally logged feedback messages, oldest first."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var feedbackSendToolDef = mcp.NewTool("feedback_send",
	mcp.WithDescription("Log a feedback message and return the mailto draft for it."),
	mcp.WithString("message", mcp.Required(), mcp.Description("Feedback text. Must not be blank.")),
	mcp.WithString("type",
		mcp.Description("Feedback type. Unknown values become suggestion."),
		mcp.Enum("suggestion", "bug", "feature", "other"),
	),
	mcp.WithString("name", mcp.Description("Sender name. Defaults to Anonymous.")),
	mcp.WithString("email", mcp.Description("Sender email. Defaults to Not provided.")),
	mcp.WithString("client_info", mcp.Description("Free-form client description included in the mail body.")),
)

var progressComputeToolDef = mcp.NewTool("progress_compute",
	mcp.WithDescription("Compute the completion of the required form fields for the given values."),
	mcp.WithObject("values",
		mcp.Description("Field name to value."),
		mcp.AdditionalProperties(map[string]any{"type": "string"}),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)
