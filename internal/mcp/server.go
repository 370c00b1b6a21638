// Package mcp exposes the form's ledgers, context and feedback channel as
// MCP tools over stdio.
package mcp

import (
	"context"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qmmcmx/problemtrack/internal/config"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"suggestions", "templates", "form", "feedback", "progress"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"suggestions_list": {
		def:     suggestionsListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSuggestionsList },
	},
	"templates_list": {
		def:     templatesListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplatesList },
	},
	"templates_apply": {
		def:     templatesApplyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTemplatesApply },
	},
	"form_context": {
		def:     formContextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFormContext },
	},
	"feedback_list": {
		def:     feedbackListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFeedbackList },
	},
	"feedback_send": {
		def:     feedbackSendToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFeedbackSend },
	},
	"progress_compute": {
		def:     progressComputeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProgressCompute },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "templates_apply" → "templates").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// NewServer creates a new MCP server with the problemtrack tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(svc Services, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"problemtrack",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(svc, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(svc Services, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(svc, cfg, version))
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
