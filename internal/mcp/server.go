package mcp

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/lens/internal/config"
	"github.com/hpungsan/lens/internal/session"
)

// Sessions is the orchestrator surface the tools need. *session.Orchestrator
// implements it.
type Sessions interface {
	RecordAndAnalyze(ctx context.Context, req session.RecordRequest) (*session.Result, error)
	AnalyzeFile(ctx context.Context, req session.AnalyzeRequest) (*session.Result, error)
	Reset() error
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"screen_record_analyze": {
		def:     recordToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRecord },
	},
	"video_analyze": {
		def:     analyzeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnalyze },
	},
	"capture_reset": {
		def:     resetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReset },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
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

// NewServer creates a new MCP server with Lens tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(sessions Sessions, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"lens",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(sessions)

	for _, name := range ValidateDisabledTools(cfg.DisabledTools) {
		log.Printf("WARN: disabled_tools: unknown tool %q", name)
	}
	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(sessions Sessions, cfg *config.Config, version string) error {
	s := NewServer(sessions, cfg, version)
	return server.ServeStdio(s)
}
