package analysis

import (
	"context"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/postgres/repositories"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// HistoryEntry is one past analysis as returned to the interface layer.
// The stored idea is truncated to a preview; the full text stays in the
// database and the exported report.
type HistoryEntry struct {
	ID           string                `json:"id"`
	IdeaPreview  string                `json:"idea_preview"`
	RiskLevel    patent.RiskLevel      `json:"risk_level"`
	RiskScore    int                   `json:"risk_score"`
	SimilarCount int                   `json:"similar_count"`
	Report       patent.AnalysisReport `json:"report"`
	HasReport    bool                  `json:"has_report"`
	CreatedAt    time.Time             `json:"created_at"`
}

// HistoryPage is one page of a session's analyses, newest first.
type HistoryPage struct {
	Items  []HistoryEntry `json:"items"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

const ideaPreviewRunes = 80

// History lists a session's past analyses.
func (s *service) History(ctx context.Context, sessionID string, limit, offset int) (HistoryPage, error) {
	if sessionID == "" {
		return HistoryPage{}, apperrors.NewValidationError("session id must not be empty")
	}

	recs, total, err := s.history.ListBySession(ctx, sessionID, limit, offset)
	if err != nil {
		return HistoryPage{}, err
	}

	items := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		items = append(items, entryFromRecord(rec))
	}
	if offset < 0 {
		offset = 0
	}
	return HistoryPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func entryFromRecord(rec *repositories.AnalysisRecord) HistoryEntry {
	return HistoryEntry{
		ID:           rec.ID.String(),
		IdeaPreview:  truncateRunes(rec.Idea, ideaPreviewRunes),
		RiskLevel:    rec.Report.RiskLevel,
		RiskScore:    rec.Report.RiskScore,
		SimilarCount: rec.Report.SimilarCount,
		Report:       rec.Report,
		HasReport:    rec.ReportObjectKey != "",
		CreatedAt:    rec.CreatedAt,
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
