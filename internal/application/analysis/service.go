// Package analysis is the application service behind the prior-art API.  It
// drives the retrieval pipeline, persists finished analyses, exports the
// markdown report to object storage, and announces completions on the bus.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/intelligence/selfrag"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// finalizeTimeout bounds the post-completion work (history row, report
// object, bus event) after the client's request context is gone.
const finalizeTimeout = 15 * time.Second

// PipelineRunner runs one analysis and streams its events.
type PipelineRunner interface {
	Run(ctx context.Context, req selfrag.AnalyzeRequest) (<-chan selfrag.Event, error)
}

// HistoryStore persists finished analyses.
type HistoryStore interface {
	Save(ctx context.Context, rec *repositories.AnalysisRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*repositories.AnalysisRecord, error)
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*repositories.AnalysisRecord, int64, error)
	SetReportObjectKey(ctx context.Context, id uuid.UUID, objectKey string) error
}

// ReportStorage holds exported markdown reports.
type ReportStorage interface {
	Save(ctx context.Context, analysisID string, markdown []byte) (string, error)
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// CompletedPublisher announces finished analyses to downstream consumers.
type CompletedPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, payload kafka.AnalysisCompletedPayload) error
}

// AnalyzeRequest is one analysis run as received from the interface layer.
type AnalyzeRequest struct {
	SessionID  string
	Idea       string
	IPCFilters []string
}

// Service exposes the prior-art analysis use cases.
type Service interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (<-chan selfrag.Event, error)
	History(ctx context.Context, sessionID string, limit, offset int) (HistoryPage, error)
	ReportDownloadURL(ctx context.Context, analysisID string) (string, error)
}

type service struct {
	pipeline PipelineRunner
	history  HistoryStore
	reports  ReportStorage
	events   CompletedPublisher
	log      logging.Logger
}

// Deps carries the service's collaborators.  Reports and Events may be nil;
// the service then skips the export and the bus announcement.
type Deps struct {
	Pipeline PipelineRunner
	History  HistoryStore
	Reports  ReportStorage
	Events   CompletedPublisher
	Logger   logging.Logger
}

func NewService(deps Deps) Service {
	return &service{
		pipeline: deps.Pipeline,
		history:  deps.History,
		reports:  deps.Reports,
		events:   deps.Events,
		log:      deps.Logger.Named("analysis_service"),
	}
}

// Analyze starts a pipeline run and returns its event stream.  The stream
// the caller sees is identical to the pipeline's; completion side effects
// run between the complete event arriving and it being forwarded, so a
// client that sees "complete" can immediately list its history.
func (s *service) Analyze(ctx context.Context, req AnalyzeRequest) (<-chan selfrag.Event, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, apperrors.NewValidationError("session id must not be empty")
	}

	src, err := s.pipeline.Run(ctx, selfrag.AnalyzeRequest{
		Idea:       req.Idea,
		SessionID:  req.SessionID,
		IPCFilters: req.IPCFilters,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan selfrag.Event, 32)
	go s.relay(ctx, req, src, out)
	return out, nil
}

func (s *service) relay(ctx context.Context, req AnalyzeRequest, src <-chan selfrag.Event, out chan<- selfrag.Event) {
	defer close(out)
	for ev := range src {
		if ev.Kind == selfrag.EventComplete {
			if data, ok := ev.Data.(selfrag.CompleteData); ok {
				s.finalize(ctx, req, data.Result)
			}
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			// Drain so the pipeline goroutine can finish.
			for range src {
			}
			return
		}
	}
}

// finalize records the finished analysis.  It runs on a detached context so
// a client disconnect right after the complete event cannot lose the row.
// Each step is best effort: a storage hiccup degrades history, it never
// turns a finished analysis into an error.
func (s *service) finalize(ctx context.Context, req AnalyzeRequest, report patent.AnalysisReport) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	rec := &repositories.AnalysisRecord{
		SessionID: req.SessionID,
		Idea:      req.Idea,
		Report:    report,
	}
	if err := s.history.Save(fctx, rec); err != nil {
		s.log.Warn("analysis finished but history save failed", logging.Err(err))
		return
	}

	objectKey := s.exportReport(fctx, rec)

	if s.events != nil {
		err := s.events.PublishAnalysisCompleted(fctx, kafka.AnalysisCompletedPayload{
			AnalysisID:      rec.ID.String(),
			SessionID:       rec.SessionID,
			RiskLevel:       report.RiskLevel,
			RiskScore:       report.RiskScore,
			SimilarCount:    report.SimilarCount,
			ReportObjectKey: objectKey,
			CompletedAt:     rec.CreatedAt,
		})
		if err != nil {
			s.log.Warn("analysis completed event not published", logging.Err(err))
		}
	}

	s.log.Info("analysis recorded",
		logging.String("analysis_id", rec.ID.String()),
		logging.String("risk_level", string(report.RiskLevel)),
		logging.Int("similar_count", report.SimilarCount),
	)
}

func (s *service) exportReport(ctx context.Context, rec *repositories.AnalysisRecord) string {
	if s.reports == nil {
		return ""
	}
	md := RenderMarkdown(rec.Report, rec.CreatedAt)
	key, err := s.reports.Save(ctx, rec.ID.String(), md)
	if err != nil {
		s.log.Warn("report export failed", logging.String("analysis_id", rec.ID.String()), logging.Err(err))
		return ""
	}
	if err := s.history.SetReportObjectKey(ctx, rec.ID, key); err != nil {
		s.log.Warn("report object key not recorded", logging.String("analysis_id", rec.ID.String()), logging.Err(err))
	}
	rec.ReportObjectKey = key
	return key
}

// ReportDownloadURL returns a presigned link to the exported report.
func (s *service) ReportDownloadURL(ctx context.Context, analysisID string) (string, error) {
	if s.reports == nil {
		return "", apperrors.New(apperrors.ErrCodeNotImplemented, "report storage is not configured")
	}
	id, err := uuid.Parse(analysisID)
	if err != nil {
		return "", apperrors.NewValidationError("analysis id must be a UUID")
	}
	rec, err := s.history.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.ReportObjectKey == "" {
		return "", apperrors.NotFound("report for analysis " + analysisID)
	}
	return s.reports.PresignedURL(ctx, rec.ReportObjectKey)
}
