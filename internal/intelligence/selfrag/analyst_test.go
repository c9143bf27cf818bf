package selfrag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llm "github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

func gradedCandidate(id string, grade float64) patent.Candidate {
	c := denseHit(id, grade)
	c.Grade = grade
	return c
}

func TestAnalyzeStream_TopFiveSurvivorsAndStats(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.streamFn = func(req llm.CompletionRequest, onToken func(string) error) (string, error) {
		assert.Equal(t, "analysis-model", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 0.001)
		if err := onToken("분석"); err != nil {
			return "", err
		}
		return "분석", nil
	}

	log, logs := newObservedLogger()
	a := NewAnalyst(model, 0.3, 40, 75, 80, log)

	cands := make([]patent.Candidate, 0, 7)
	for i := 0; i < 7; i++ {
		cands = append(cands, gradedCandidate(fmt.Sprintf("KR-2023%07d-A", i), 0.4+float64(i)*0.05))
	}

	var tokens []string
	_, survivors, err := a.AnalyzeStream(context.Background(), Wrap("아이디어"), cands, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, survivors, 5, "analysis is grounded on the top five by grade")
	assert.NotEmpty(t, tokens)

	records := entriesWithEvent(logs, LogEventAnalysisCutoffFilter)
	require.Len(t, records, 1)
	assert.Equal(t, StageCriticalAnalysisStream, records[0].ContextMap()["stage"])
	assert.Equal(t, int64(7), records[0].ContextMap()["before_filter"])
	assert.Equal(t, int64(5), records[0].ContextMap()["after_filter"])
}

func TestAnalyzeStream_FallsBackToSecondaryModel(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.streamFn = func(req llm.CompletionRequest, onToken func(string) error) (string, error) {
		if req.Model == "analysis-model" {
			return "", apperrors.UpstreamUnavailable("primary down")
		}
		if err := onToken("대체 분석"); err != nil {
			return "", err
		}
		return "대체 분석", nil
	}

	a := NewAnalyst(model, 0.3, 40, 75, 80, logging.NewNopLogger())
	text, _, err := a.AnalyzeStream(context.Background(), Wrap("아이디어"),
		[]patent.Candidate{gradedCandidate("KR-20230012345-A", 0.8)}, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "대체 분석", text)
	assert.Equal(t, 2, model.streamCalls())
}

func TestAnalyzeStream_BothModelsFailing(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.streamFn = func(llm.CompletionRequest, func(string) error) (string, error) {
		return "", apperrors.UpstreamUnavailable("down")
	}

	a := NewAnalyst(model, 0.3, 40, 75, 80, logging.NewNopLogger())
	_, _, err := a.AnalyzeStream(context.Background(), Wrap("아이디어"),
		[]patent.Candidate{gradedCandidate("KR-20230012345-A", 0.8)}, func(string) error { return nil })
	require.Error(t, err)
	assert.Equal(t, 2, model.streamCalls())
}

func TestParse_DropsCitationsOutsideSurvivorSet(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		assert.Equal(t, "parse-model", req.Model)
		return parseReportJSON([]string{"KR-20230012345-A", "US-99999999-B1"}), nil
	}

	a := NewAnalyst(model, 0.3, 40, 75, 80, logging.NewNopLogger())
	report := a.Parse(context.Background(), "보고서 텍스트",
		[]patent.Candidate{gradedCandidate("KR-20230012345-A", 0.8)})

	require.Len(t, report.TopPatents, 1)
	assert.Equal(t, patent.PublicationNumber("KR-20230012345-A"), report.TopPatents[0].ID)
	assert.Equal(t, 1, report.SimilarCount)
	assert.Equal(t, patent.RiskHigh, report.RiskLevel)
}

func TestParse_RepairsSloppyJSON(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(llm.CompletionRequest) (string, error) {
		// Trailing comma and code fence: common model output defects.
		return "```json\n{\"risk_level\": \"Medium\", \"risk_score\": 55, \"uniqueness\": \"u\", \"top_patents\": [],}\n```", nil
	}

	a := NewAnalyst(model, 0.3, 40, 75, 80, logging.NewNopLogger())
	report := a.Parse(context.Background(), "보고서", nil)
	assert.Equal(t, patent.RiskMedium, report.RiskLevel)
	assert.Equal(t, 55, report.RiskScore)
}

func TestParse_FailureYieldsEmptyReport(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fn   func(llm.CompletionRequest) (string, error)
	}{
		{"model_error", func(llm.CompletionRequest) (string, error) {
			return "", apperrors.UpstreamUnavailable("down")
		}},
		{"unrepairable_output", func(llm.CompletionRequest) (string, error) {
			return "죄송하지만 보고서를 만들 수 없습니다", nil
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			model := &fakeLLM{}
			model.completeFn = tc.fn

			log, logs := newObservedLogger()
			a := NewAnalyst(model, 0.3, 40, 75, 80, log)
			report := a.Parse(context.Background(), "보고서", nil)

			assert.Equal(t, patent.EmptyReport(), report)
			assert.NotEmpty(t, entriesWithEvent(logs, LogEventParseFailed))
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(llm.CompletionRequest) (string, error) {
		return parseReportJSON([]string{"KR-20230012345-A"}), nil
	}

	a := NewAnalyst(model, 0.3, 40, 75, 80, logging.NewNopLogger())
	survivors := []patent.Candidate{gradedCandidate("KR-20230012345-A", 0.8)}
	first := a.Parse(context.Background(), "보고서", survivors)
	second := a.Parse(context.Background(), "보고서", survivors)
	assert.Equal(t, first, second)
}
