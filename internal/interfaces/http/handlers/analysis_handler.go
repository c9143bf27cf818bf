package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/ShortCut-Intelligence/internal/application/analysis"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/ShortCut-Intelligence/internal/intelligence/selfrag"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

const defaultMaxBodySize = 64 << 10

// AnalysisHandler serves the analysis endpoints: the SSE run stream, the
// per-session history, and the report download link.
type AnalysisHandler struct {
	svc     analysis.Service
	maxBody int64
	log     logging.Logger
}

func NewAnalysisHandler(svc analysis.Service, maxBody int64, log logging.Logger) *AnalysisHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	return &AnalysisHandler{svc: svc, maxBody: maxBody, log: log.Named("analysis_handler")}
}

type analyzeRequest struct {
	Idea       string   `json:"idea"`
	IPCFilters []string `json:"ipc_filters,omitempty"`
}

// Analyze runs one prior-art analysis and streams its events as SSE.  Each
// pipeline event becomes one SSE message whose event name is the kind and
// whose data line is the JSON payload.  The stream always ends with exactly
// one terminal event.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.ContextGetSessionID(r.Context())
	if sessionID == "" {
		writeAppError(w, apperrors.NewValidationError(middleware.HeaderSessionID+" header is required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperrors.NewValidationError("request body must be a JSON object"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAppError(w, apperrors.Internal("streaming unsupported"))
		return
	}

	ch, err := h.svc.Analyze(r.Context(), analysis.AnalyzeRequest{
		SessionID:  sessionID,
		Idea:       req.Idea,
		IPCFilters: req.IPCFilters,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disables proxy buffering; tokens must reach the browser as they stream.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range ch {
		if err := writeSSE(w, ev); err != nil {
			// Client is gone; drain via the service's relay.
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev selfrag.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		data = []byte("{}")
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

// History lists the session's past analyses, newest first.
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.ContextGetSessionID(r.Context())
	if sessionID == "" {
		writeAppError(w, apperrors.NewValidationError(middleware.HeaderSessionID+" header is required"))
		return
	}

	limit, offset := parsePage(r)
	page, err := h.svc.History(r.Context(), sessionID, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type reportURLResponse struct {
	DownloadURL string `json:"download_url"`
}

// ReportURL returns a presigned download link for an exported report.
func (h *AnalysisHandler) ReportURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "analysisID")
	url, err := h.svc.ReportDownloadURL(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportURLResponse{DownloadURL: url})
}
