package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/application/analysis"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/ShortCut-Intelligence/internal/intelligence/selfrag"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

type fakeService struct {
	events     []selfrag.Event
	analyzeErr error
	gotReq     analysis.AnalyzeRequest

	page       analysis.HistoryPage
	historyErr error

	reportURL string
	reportErr error
}

func (f *fakeService) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (<-chan selfrag.Event, error) {
	f.gotReq = req
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	ch := make(chan selfrag.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeService) History(ctx context.Context, sessionID string, limit, offset int) (analysis.HistoryPage, error) {
	if f.historyErr != nil {
		return analysis.HistoryPage{}, f.historyErr
	}
	return f.page, nil
}

func (f *fakeService) ReportDownloadURL(ctx context.Context, analysisID string) (string, error) {
	if f.reportErr != nil {
		return "", f.reportErr
	}
	return f.reportURL, nil
}

func newTestRouter(svc analysis.Service) http.Handler {
	h := NewAnalysisHandler(svc, 0, logging.NewNopLogger())
	r := chi.NewRouter()
	r.Use(middleware.Session)
	r.Post("/api/v1/analyses", h.Analyze)
	r.Get("/api/v1/analyses", h.History)
	r.Get("/api/v1/analyses/{analysisID}/report", h.ReportURL)
	return r
}

func TestAnalyze_StreamsSSE(t *testing.T) {
	svc := &fakeService{events: []selfrag.Event{
		{Kind: selfrag.EventProgress, Data: selfrag.ProgressData{Percent: 0, Message: "분석 시작"}},
		{Kind: selfrag.EventStreamToken, Data: selfrag.TokenData{Text: "위험"}},
		{Kind: selfrag.EventComplete, Data: selfrag.CompleteData{Result: patent.EmptyReport()}},
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses",
		strings.NewReader(`{"idea":"접이식 AR 글래스","ipc_filters":["G02B"]}`))
	req.Header.Set(middleware.HeaderSessionID, "sess-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `"percent":0`)
	assert.Contains(t, body, "event: stream_token\n")
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"risk_level":"Low"`)

	assert.Equal(t, "sess-1", svc.gotReq.SessionID)
	assert.Equal(t, []string{"G02B"}, svc.gotReq.IPCFilters)
}

func TestAnalyze_RequiresSessionHeader(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(`{"idea":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeValidation))
}

func TestAnalyze_RejectsInvalidBody(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader("not json"))
	req.Header.Set(middleware.HeaderSessionID, "sess-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_PipelineValidationError(t *testing.T) {
	svc := &fakeService{analyzeErr: apperrors.New(apperrors.ErrCodeInputTooLong, "too long")}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(`{"idea":"x"}`))
	req.Header.Set(middleware.HeaderSessionID, "sess-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeInputTooLong))
}

func TestHistory_ReturnsPage(t *testing.T) {
	svc := &fakeService{page: analysis.HistoryPage{
		Items: []analysis.HistoryEntry{{ID: "a-1", RiskLevel: patent.RiskMedium}},
		Total: 3, Limit: 20,
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=20", nil)
	req.Header.Set(middleware.HeaderSessionID, "sess-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":3`)
	assert.Contains(t, rec.Body.String(), `"risk_level":"Medium"`)
}

func TestHistory_RequiresSessionHeader(t *testing.T) {
	router := newTestRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportURL(t *testing.T) {
	svc := &fakeService{reportURL: "https://storage.example.com/reports/a-1.md?signed=1"}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/a-1/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"download_url"`)
}

func TestReportURL_NotFound(t *testing.T) {
	svc := &fakeService{reportErr: apperrors.NotFound("report")}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/a-1/report", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
