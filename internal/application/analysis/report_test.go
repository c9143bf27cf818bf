package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

func TestRenderMarkdown_FullReport(t *testing.T) {
	report := patent.AnalysisReport{
		RiskLevel:    patent.RiskMedium,
		RiskScore:    55,
		SimilarCount: 2,
		Uniqueness:   "힌지 결합 방식에 차별점이 있습니다.",
		TopPatents: []patent.TopPatent{
			{ID: "KR-102345678-B1", Similarity: 0.87, Title: "표시장치 | 광학계", Summary: "광학계가 유사합니다."},
			{ID: "US-11223344-B2", Similarity: 0.74, Title: "Foldable hinge"},
		},
	}

	md := string(RenderMarkdown(report, time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)))

	assert.Contains(t, md, "# 선행기술 분석 보고서")
	assert.Contains(t, md, "**보통** (Medium)")
	assert.Contains(t, md, "55 / 100")
	assert.Contains(t, md, "https://patents.google.com/patent/KR102345678B1")
	assert.Contains(t, md, "87.0%")
	// Pipe in the title must not break the table.
	assert.Contains(t, md, "표시장치 \\| 광학계")
	assert.Contains(t, md, "### KR-102345678-B1")
	// No summary, no per-patent section.
	assert.NotContains(t, md, "### US-11223344-B2")
	assert.Contains(t, md, "법률 자문을 대신하지 않습니다")
}

func TestRenderMarkdown_EmptyReport(t *testing.T) {
	md := string(RenderMarkdown(patent.EmptyReport(), time.Now()))

	assert.Contains(t, md, "유사한 선행 특허가 발견되지 않았습니다")
	assert.NotContains(t, md, "|---|")
}
