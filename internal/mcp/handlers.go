package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Request types for each tool

// EvaluateRequest represents the arguments for scan_evaluate.
type EvaluateRequest struct {
	Nutrients map[string]any `json:"nutrients"`
	Condition string         `json:"condition"`
}

// RecordRequest represents the arguments for scan_record.
type RecordRequest struct {
	Nutrients map[string]any `json:"nutrients"`
	Condition string         `json:"condition"`
	DishName  string         `json:"dish_name,omitempty"`
	Source    string         `json:"source,omitempty"`
}

// ListRequest represents the arguments for queue_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// SyncRequest represents the arguments for queue_sync.
type SyncRequest struct {
	Wait bool `json:"wait,omitempty"`
}

// ReportRequest represents the arguments for queue_report.
type ReportRequest struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
}

// ExportRequest represents the arguments for queue_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for queue_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// OfflineModeRequest represents the arguments for offline_mode_set.
type OfflineModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// ConnectivityRequest represents the arguments for connectivity_set.
type ConnectivityRequest struct {
	Online *bool `json:"online"`
}

// HandleEvaluate handles the scan_evaluate tool call.
func (h *Handlers) HandleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EvaluateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Evaluate(ops.EvaluateInput{
		Nutrients: input.Nutrients,
		Condition: input.Condition,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRecord handles the scan_record tool call.
func (h *Handlers) HandleRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Source == "" {
		input.Source = "mcp"
	}

	result, err := h.svc.RecordScan(ctx, ops.RecordScanInput{
		Nutrients: input.Nutrients,
		Condition: input.Condition,
		DishName:  input.DishName,
		Source:    input.Source,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStatus handles the queue_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := h.svc.QueueStatus()
	return successResult(map[string]any{
		"status":      status,
		"online":      h.svc.Online(),
		"offlineMode": h.svc.OfflineMode(),
	})
}

// HandleList handles the queue_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ListQueue(ops.ListQueueInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSync handles the queue_sync tool call.
func (h *Handlers) HandleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SyncRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	trigger := h.svc.RequestSync()
	if input.Wait {
		if err := h.svc.WaitIdle(ctx); err != nil {
			return errorResult(errors.NewCancelled("sync wait")), nil
		}
	}

	return successResult(map[string]any{
		"trigger": trigger,
		"status":  h.svc.QueueStatus(),
	})
}

// HandleReport handles the queue_report tool call.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Report(ops.ReportInput{
		ID:     input.ID,
		Format: ops.ReportFormat(input.Format),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the queue_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ExportQueue(ctx, ops.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the queue_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ImportQueue(ops.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleOfflineMode handles the offline_mode_set tool call.
func (h *Handlers) HandleOfflineMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OfflineModeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Enabled == nil {
		return errorResult(errors.NewInvalidRequest("enabled is required")), nil
	}

	if err := h.svc.SetOfflineMode(*input.Enabled); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"enabled": h.svc.OfflineMode()})
}

// HandleConnectivity handles the connectivity_set tool call.
func (h *Handlers) HandleConnectivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConnectivityRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Online == nil {
		return errorResult(errors.NewInvalidRequest("online is required")), nil
	}

	changed := h.svc.SetConnectivity(*input.Online)
	return successResult(map[string]any{
		"online":  h.svc.Online(),
		"changed": changed,
	})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		message := sErr.Message
		if err != error(sErr) {
			// Keep the wrapping context, e.g. "queue: CONFLICT: ..."
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": message,
			"status":  sErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
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
