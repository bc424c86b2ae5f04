package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/storysync/internal/edge"
	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	edge *edge.Edge
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(e *edge.Edge) *Handlers {
	return &Handlers{edge: e}
}

// Request types for each tool

// ListRequest represents the arguments for story_list.
type ListRequest struct {
	Filter string `json:"filter,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// StoreRequest represents the arguments for story_store.
type StoreRequest struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	PhotoPath   string  `json:"photo_path,omitempty"`
}

// DeleteRequest represents the arguments for story_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// PullRequest represents the arguments for story_pull.
type PullRequest struct {
	Page     int  `json:"page,omitempty"`
	Size     int  `json:"size,omitempty"`
	Location bool `json:"location,omitempty"`
}

// Handler implementations

// HandleList handles the story_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, h.edge.DB, ops.ListInput{
		Filter: input.Filter,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStore handles the story_store tool call.
func (h *Handlers) HandleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StoreRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Store(ctx, h.edge.Offline, h.edge.Scheduler, ops.StoreInput{
		ID:          input.ID,
		Name:        input.Name,
		Description: input.Description,
		Lat:         input.Lat,
		Lon:         input.Lon,
		PhotoPath:   input.PhotoPath,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the story_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Delete(ctx, h.edge.DB, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSync handles the story_sync tool call.
func (h *Handlers) HandleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Sync(ctx, h.edge.Reconciler)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePull handles the story_pull tool call.
func (h *Handlers) HandlePull(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PullRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Pull(ctx, h.edge.DB, h.edge.API, h.edge.Credentials, ops.PullInput{
		Page:     input.Page,
		Size:     input.Size,
		Location: input.Location,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePartitions handles the cache_partitions tool call.
func (h *Handlers) HandlePartitions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Partitions(ctx, h.edge.DB, h.edge.Lifecycle.Recognized())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleInstall handles the cache_install tool call.
func (h *Handlers) HandleInstall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Install(ctx, h.edge.Lifecycle)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleActivate handles the cache_activate tool call.
func (h *Handlers) HandleActivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Activate(ctx, h.edge.Lifecycle)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var eErr *errors.EdgeError
	if stderrors.As(err, &eErr) {
		message := eErr.Message
		// Keep wrapper context such as "story 3: ..." in front of the message.
		if outer := err.Error(); outer != eErr.Error() {
			message = strings.TrimSuffix(outer, eErr.Error()) + eErr.Message
		}
		errorObj := map[string]any{
			"code":    eErr.Code,
			"message": message,
			"status":  eErr.Status,
		}
		if eErr.Code != errors.ErrInternal && eErr.Details != nil {
			errorObj["details"] = eErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
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
