package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/ops"
)

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	svc     *ops.Service
	hub     *hub
	log     *zap.Logger
	version string
}

type evaluateRequest struct {
	Nutrients map[string]any `json:"nutrients"`
	Condition string         `json:"condition"`
}

type recordRequest struct {
	Nutrients map[string]any `json:"nutrients"`
	Condition string         `json:"condition"`
	DishName  string         `json:"dishName"`
	Source    string         `json:"source"`
}

type onlineRequest struct {
	Online *bool `json:"online"`
}

type offlineModeRequest struct {
	Enabled *bool `json:"enabled"`
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   h.version,
		"online":    h.svc.Online(),
		"wsClients": h.hub.clientCount(),
	})
}

// HandleEvaluate handles POST /evaluate: rule engine only, nothing stored.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, err)
		return
	}

	out, err := h.svc.Evaluate(ops.EvaluateInput{Nutrients: req.Nutrients, Condition: req.Condition})
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleRecordScan handles POST /scans: evaluate, build and queue for sync.
func (h *Handlers) HandleRecordScan(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, err)
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	out, err := h.svc.RecordScan(r.Context(), ops.RecordScanInput{
		Nutrients: req.Nutrients,
		Condition: req.Condition,
		DishName:  req.DishName,
		Source:    req.Source,
	})
	if err != nil {
		h.renderError(w, err)
		return
	}

	renderJSON(w, http.StatusAccepted, out)
}

// HandleListQueue handles GET /queue.
func (h *Handlers) HandleListQueue(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListQueue(ops.ListQueueInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, out)
}

// HandleQueueStatus handles GET /queue/status.
func (h *Handlers) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.svc.QueueStatus())
}

// HandleReport handles GET /queue/{id}/report. HTML unless format=markdown.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	format := ops.ReportFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = ops.ReportHTML
	}

	out, err := h.svc.Report(ops.ReportInput{ID: r.PathValue("id"), Format: format})
	if err != nil {
		h.renderError(w, err)
		return
	}

	if out.Format == ops.ReportMarkdown {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Content))
}

// HandleRemove handles DELETE /queue/{id}: discard without delivering.
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.svc.GetQueued(id); err != nil {
		h.renderError(w, err)
		return
	}
	if err := h.svc.RemoveQueued(id); err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"id": id, "removed": true})
}

// HandleSync handles POST /sync: start a drain cycle without waiting.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	trigger := h.svc.RequestSync()
	renderJSON(w, http.StatusAccepted, map[string]any{
		"trigger": trigger,
		"status":  h.svc.QueueStatus(),
	})
}

// HandleConnectivity handles POST /connectivity: a host online/offline event.
func (h *Handlers) HandleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, err)
		return
	}
	if req.Online == nil {
		h.renderError(w, errors.NewInvalidRequest("online is required"))
		return
	}

	changed := h.svc.SetConnectivity(*req.Online)
	renderJSON(w, http.StatusOK, map[string]any{"online": h.svc.Online(), "changed": changed})
}

// HandleGetOfflineMode handles GET /offline-mode.
func (h *Handlers) HandleGetOfflineMode(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"enabled": h.svc.OfflineMode()})
}

// HandleSetOfflineMode handles PUT /offline-mode.
func (h *Handlers) HandleSetOfflineMode(w http.ResponseWriter, r *http.Request) {
	var req offlineModeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.renderError(w, err)
		return
	}
	if req.Enabled == nil {
		h.renderError(w, errors.NewInvalidRequest("enabled is required"))
		return
	}

	if err := h.svc.SetOfflineMode(*req.Enabled); err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"enabled": h.svc.OfflineMode()})
}

// renderError writes the structured error body with the error's HTTP status.
func (h *Handlers) renderError(w http.ResponseWriter, err error) {
	sErr, ok := errors.As(err)
	if !ok {
		sErr = errors.NewInternal(err)
	}
	if sErr.Status >= 500 {
		h.log.Error("request failed", zap.Error(err))
	}

	body := map[string]any{
		"code":    string(sErr.Code),
		"message": sErr.Message,
		"status":  sErr.Status,
	}
	if len(sErr.Details) > 0 {
		body["details"] = sErr.Details
	}
	renderJSON(w, sErr.Status, map[string]any{"error": body})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeBody reads a single JSON object, keeping numbers exact.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return errors.NewInvalidRequest("failed to read request body: " + err.Error())
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return errors.NewInvalidRequest("request body must contain a single JSON object")
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
