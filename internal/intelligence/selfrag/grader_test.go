package selfrag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llm "github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

func TestGrade_AppliesCutoffAndStats(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		assert.Equal(t, "grading-model", req.Model)
		assert.True(t, req.JSONMode)
		assert.InDelta(t, 0.1, req.Temperature, 0.001)
		return gradingJSON(map[string]float64{
			"KR-20230012345-A": 0.9,
			"US-11223344-B2":   0.2,
			"KR-20240099887-A": 0.4,
		}), nil
	}

	log, logs := newObservedLogger()
	g := NewGrader(model, 0.3, 0.5, 80, log)

	cands := []patent.Candidate{
		denseHit("KR-20230012345-A", 0.9),
		denseHit("US-11223344-B2", 0.8),
		denseHit("KR-20240099887-A", 0.7),
	}
	out, err := g.Grade(context.Background(), Wrap("아이디어"), cands)
	require.NoError(t, err)

	require.Len(t, out.Survivors, 2)
	assert.Equal(t, patent.PublicationNumber("KR-20230012345-A"), out.Survivors[0].Document.PublicationNumber)
	assert.InDelta(t, 0.5, out.Average, 0.001)

	assert.Equal(t, 3, out.Stats.BeforeFilter)
	assert.Equal(t, 2, out.Stats.AfterFilter)
	assert.Equal(t, len(out.Survivors), out.Stats.AfterFilter)
	require.Len(t, entriesWithEvent(logs, LogEventCutoffFilter), 1)
}

func TestGrade_UngradedCandidateGetsZero(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(llm.CompletionRequest) (string, error) {
		return gradingJSON(map[string]float64{"KR-20230012345-A": 0.8}), nil
	}

	g := NewGrader(model, 0.3, 0.5, 80, logging.NewNopLogger())
	out, err := g.Grade(context.Background(), Wrap("아이디어"), []patent.Candidate{
		denseHit("KR-20230012345-A", 0.9),
		denseHit("US-11223344-B2", 0.8),
	})
	require.NoError(t, err)
	require.Len(t, out.Graded, 2)
	assert.Zero(t, out.Graded[1].Grade, "omitted grades default to zero")
	assert.InDelta(t, 0.4, out.Average, 0.001)
}

func TestGrade_UnparseableResponseIsSoft(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(llm.CompletionRequest) (string, error) {
		return "완전히 망가진 응답", nil
	}

	g := NewGrader(model, 0.3, 0.5, 80, logging.NewNopLogger())
	out, err := g.Grade(context.Background(), Wrap("아이디어"), []patent.Candidate{denseHit("KR-20230012345-A", 0.9)})
	require.NoError(t, err)
	assert.Empty(t, out.Survivors)
	assert.Zero(t, out.Average)
	assert.True(t, g.NeedsRewrite(out), "zero average drives the rewrite path")
}

func TestGrade_ModelErrorPropagates(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(llm.CompletionRequest) (string, error) {
		return "", apperrors.UpstreamUnavailable("provider down")
	}

	g := NewGrader(model, 0.3, 0.5, 80, logging.NewNopLogger())
	_, err := g.Grade(context.Background(), Wrap("아이디어"), []patent.Candidate{denseHit("KR-20230012345-A", 0.9)})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUpstreamUnavailable, apperrors.GetCode(err))
}

func TestGrade_ScoresClamped(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(llm.CompletionRequest) (string, error) {
		return gradingJSON(map[string]float64{"KR-20230012345-A": 1.7}), nil
	}

	g := NewGrader(model, 0.3, 0.5, 80, logging.NewNopLogger())
	out, err := g.Grade(context.Background(), Wrap("아이디어"), []patent.Candidate{denseHit("KR-20230012345-A", 0.9)})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Graded[0].Grade)
}

func TestGrade_EmptyCandidates(t *testing.T) {
	t.Parallel()

	g := NewGrader(&fakeLLM{}, 0.3, 0.5, 80, logging.NewNopLogger())
	out, err := g.Grade(context.Background(), Wrap("아이디어"), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Survivors)
	assert.True(t, g.NeedsRewrite(out))
}

func TestNeedsRewrite(t *testing.T) {
	t.Parallel()

	g := NewGrader(&fakeLLM{}, 0.3, 0.5, 80, logging.NewNopLogger())
	assert.True(t, g.NeedsRewrite(GradingOutcome{Average: 0.2}))
	assert.False(t, g.NeedsRewrite(GradingOutcome{Average: 0.5}))
	assert.False(t, g.NeedsRewrite(GradingOutcome{Average: 0.9}))
}

func TestRewrite_ParsesOptimizedQuery(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		return `{"optimized_query": "개선된 쿼리", "keywords": ["k"], "reasoning": "r"}`, nil
	}

	g := NewGrader(model, 0.3, 0.5, 80, logging.NewNopLogger())
	got := g.Rewrite(context.Background(), Wrap("아이디어"), nil)
	assert.Equal(t, "개선된 쿼리", got)
}

func TestRewrite_FallsBackToIdeaOnFailure(t *testing.T) {
	t.Parallel()

	wrapped := Wrap("카메라 &amp; 레이더 융합")

	failing := &fakeLLM{}
	failing.completeFn = func(llm.CompletionRequest) (string, error) {
		return "", apperrors.UpstreamUnavailable("down")
	}
	g := NewGrader(failing, 0.3, 0.5, 80, logging.NewNopLogger())
	assert.Equal(t, "카메라 & 레이더 융합", g.Rewrite(context.Background(), wrapped, nil),
		"fallback query must be plain text, not the wrapped form")

	garbled := &fakeLLM{}
	garbled.completeFn = func(llm.CompletionRequest) (string, error) {
		return `{"no_query_here": true}`, nil
	}
	g2 := NewGrader(garbled, 0.3, 0.5, 80, logging.NewNopLogger())
	assert.Equal(t, "카메라 & 레이더 융합", g2.Rewrite(context.Background(), wrapped, nil))
}
