package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/lens/internal/capture"
	"github.com/hpungsan/lens/internal/errors"
	"github.com/hpungsan/lens/internal/report"
	"github.com/hpungsan/lens/internal/sampler"
	"github.com/hpungsan/lens/internal/session"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	sessions Sessions
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions Sessions) *Handlers {
	return &Handlers{sessions: sessions}
}

// Request types for each tool

// RecordRequest represents the arguments for screen_record_analyze.
type RecordRequest struct {
	Mode            string `json:"mode,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	Target          string `json:"target,omitempty"`
	Display         int    `json:"display,omitempty"`
	Window          string `json:"window,omitempty"`
	Region          string `json:"region,omitempty"`
	Focus           string `json:"focus,omitempty"`
	HTML            bool   `json:"html,omitempty"`
}

// AnalyzeRequest represents the arguments for video_analyze.
type AnalyzeRequest struct {
	Path  string `json:"path"`
	Mode  string `json:"mode,omitempty"`
	Focus string `json:"focus,omitempty"`
	HTML  bool   `json:"html,omitempty"`
}

// Handler implementations

// HandleRecord handles the screen_record_analyze tool call.
func (h *Handlers) HandleRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	mode, err := sampler.ParseMode(input.Mode)
	if err != nil {
		return errorResult(err), nil
	}
	target, err := capture.ParseTarget(input.Target, input.Display, input.Window, input.Region)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := h.sessions.RecordAndAnalyze(ctx, session.RecordRequest{
		Mode:            mode,
		DurationSeconds: input.DurationSeconds,
		Target:          target,
		Focus:           input.Focus,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return h.textResult(res, input.HTML), nil
}

// HandleAnalyze handles the video_analyze tool call.
func (h *Handlers) HandleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyzeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidInput(err.Error())), nil
	}
	mode, err := sampler.ParseMode(input.Mode)
	if err != nil {
		return errorResult(err), nil
	}

	res, err := h.sessions.AnalyzeFile(ctx, session.AnalyzeRequest{
		Path:  input.Path,
		Mode:  mode,
		Focus: input.Focus,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return h.textResult(res, input.HTML), nil
}

// HandleReset handles the capture_reset tool call.
func (h *Handlers) HandleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.sessions.Reset(); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"reset": true})
}

// Result helpers

// textResult renders res as the markdown report, optionally writing an HTML
// copy next to the artifact.
func (h *Handlers) textResult(res *session.Result, html bool) *mcp.CallToolResult {
	md := report.Markdown(res.Analysis, res.Artifact)
	if html {
		path := HTMLPath(res.Artifact)
		if err := report.WriteHTML(path, "lens "+res.ID, md); err != nil {
			log.Printf("[mcp] write html report: %v", err)
		} else {
			md += fmt.Sprintf("\nHTML report: `%s`\n", path)
		}
	}
	return mcp.NewToolResultText(md)
}

// HTMLPath returns the report path for an artifact: same directory and base
// name with an .html extension.
func HTMLPath(artifact string) string {
	return strings.TrimSuffix(artifact, filepath.Ext(artifact)) + ".html"
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// A user cancel is an outcome, not a failure, and is returned as plain text.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	if errors.IsCancelledByUser(err) {
		return mcp.NewToolResultText("cancelled: the user cancelled the analysis from the overlay")
	}

	var payload map[string]any

	if lensErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    lensErr.Code,
			"message": lensErr.Message,
		}
		// Only include details for non-internal errors
		if lensErr.Code != errors.ErrInternal && lensErr.Details != nil {
			errorObj["details"] = lensErr.Details
		}
		if lensErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		}
		payload = map[string]any{"error": errorObj}
	} else {
		log.Printf("[mcp] unclassified error: %v", err)
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
