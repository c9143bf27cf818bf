package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

func sampleReport(score int) patent.AnalysisReport {
	level := patent.RiskLow
	switch {
	case score >= 70:
		level = patent.RiskHigh
	case score >= 40:
		level = patent.RiskMedium
	}
	return patent.AnalysisReport{
		RiskLevel:    level,
		RiskScore:    score,
		SimilarCount: 1,
		Uniqueness:   "청구항 1의 광학 구성이 선행 특허와 부분적으로 겹칩니다.",
		TopPatents: []patent.TopPatent{
			{ID: "KR-102345678-B1", Similarity: 0.87, Title: "접이식 표시 장치"},
		},
	}
}

func TestHistoryRepo_RoundTrip(t *testing.T) {
	requireIntegration(t)
	conn := startPostgres(t)
	repo := repositories.NewHistoryRepo(conn, logging.NewNopLogger())
	ctx := context.Background()

	rec := &repositories.AnalysisRecord{
		SessionID: "sess-integration",
		Idea:      "접이식 AR 글래스용 힌지 구조",
		Report:    sampleReport(82),
	}
	require.NoError(t, repo.Save(ctx, rec))
	require.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, patent.RiskHigh, got.Report.RiskLevel)
	assert.Equal(t, 82, got.Report.RiskScore)
	require.Len(t, got.Report.TopPatents, 1)
	assert.Equal(t, "KR-102345678-B1", got.Report.TopPatents[0].ID)

	require.NoError(t, repo.SetReportObjectKey(ctx, rec.ID, "reports/"+rec.ID.String()+".md"))
	got, err = repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "reports/"+rec.ID.String()+".md", got.ReportObjectKey)
}

func TestHistoryRepo_ListBySessionOrderAndPaging(t *testing.T) {
	requireIntegration(t)
	conn := startPostgres(t)
	repo := repositories.NewHistoryRepo(conn, logging.NewNopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := &repositories.AnalysisRecord{
			SessionID: "sess-paging",
			Idea:      "아이디어",
			Report:    sampleReport(30 + i*20),
		}
		require.NoError(t, repo.Save(ctx, rec))
		// created_at has microsecond resolution; keep insert order observable.
		time.Sleep(5 * time.Millisecond)
	}

	records, total, err := repo.ListBySession(ctx, "sess-paging", 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, records, 2)
	assert.True(t, !records[0].CreatedAt.Before(records[1].CreatedAt))

	records, total, err = repo.ListBySession(ctx, "sess-paging", 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, records, 1)

	records, total, err = repo.ListBySession(ctx, "sess-unknown", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, records)
}

func TestHistoryRepo_DeleteOlderThan(t *testing.T) {
	requireIntegration(t)
	conn := startPostgres(t)
	repo := repositories.NewHistoryRepo(conn, logging.NewNopLogger())
	ctx := context.Background()

	rec := &repositories.AnalysisRecord{
		SessionID: "sess-retention",
		Idea:      "보존 기간 테스트",
		Report:    sampleReport(10),
	}
	require.NoError(t, repo.Save(ctx, rec))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = repo.GetByID(ctx, rec.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
