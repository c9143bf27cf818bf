package selfrag

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kaptinlin/jsonrepair"

	llm "github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// GradingOutcome is the result of one grading round.
type GradingOutcome struct {
	// Graded holds every candidate with its grade set, sorted by grade.
	Graded []patent.Candidate
	// Survivors are the graded candidates at or above the cutoff.
	Survivors []patent.Candidate
	Average   float64
	Stats     FilterStats
}

// Grader scores candidate relevance with the LLM rubric and decides when
// the rewrite round fires.
type Grader struct {
	llm              LLM
	cutoff           float64
	rewriteThreshold float64
	warnRatioPct     float64
	log              logging.Logger
}

func NewGrader(model LLM, cutoff, rewriteThreshold, warnRatioPct float64, log logging.Logger) *Grader {
	if warnRatioPct <= 0 {
		warnRatioPct = highFilterRatioPct
	}
	return &Grader{
		llm:              model,
		cutoff:           cutoff,
		rewriteThreshold: rewriteThreshold,
		warnRatioPct:     warnRatioPct,
		log:              log.Named("grader"),
	}
}

type gradingResult struct {
	PatentID string  `json:"patent_id"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

type gradingResponse struct {
	Results      []gradingResult `json:"results"`
	AverageScore float64         `json:"average_score"`
}

// Grade runs one rubric pass over the candidates and applies the cutoff.
// An unparseable grading response is soft: every candidate keeps grade
// zero, which drives the rewrite path instead of failing the run.
func (g *Grader) Grade(ctx context.Context, wrappedIdea string, cands []patent.Candidate) (GradingOutcome, error) {
	if len(cands) == 0 {
		return GradingOutcome{Stats: computeFilterStats(0, 0, g.cutoff)}, nil
	}

	out, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model:       g.llm.Models().GradingModel,
		System:      gradingSystemPrompt,
		User:        gradingUserPrompt(wrappedIdea, cands),
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return GradingOutcome{}, err
	}

	scores := make(map[patent.PublicationNumber]gradingResult)
	var resp gradingResponse
	repaired, perr := jsonrepair.JSONRepair(out)
	if perr == nil {
		perr = json.Unmarshal([]byte(repaired), &resp)
	}
	if perr != nil {
		g.log.Warn("grading response unparseable, treating all grades as zero", logging.Err(perr))
	} else {
		for _, r := range resp.Results {
			scores[patent.PublicationNumber(r.PatentID)] = r
		}
	}

	graded := make([]patent.Candidate, len(cands))
	copy(graded, cands)
	var sum float64
	for i := range graded {
		if r, ok := scores[graded[i].Document.PublicationNumber]; ok {
			graded[i].Grade = clamp01(r.Score)
		} else {
			graded[i].Grade = 0
		}
		sum += graded[i].Grade
	}
	sort.Slice(graded, func(i, j int) bool { return graded[i].Grade > graded[j].Grade })
	avg := sum / float64(len(graded))

	survivors := make([]patent.Candidate, 0, len(graded))
	for _, c := range graded {
		if c.Grade >= g.cutoff {
			survivors = append(survivors, c)
		}
	}

	stats := computeFilterStats(len(graded), len(survivors), g.cutoff)
	emitFilterStats(g.log, LogEventCutoffFilter, "", stats, g.warnRatioPct)

	return GradingOutcome{
		Graded:    graded,
		Survivors: survivors,
		Average:   avg,
		Stats:     stats,
	}, nil
}

// NeedsRewrite reports whether the round's average grade is weak enough
// to spend the single rewrite.
func (g *Grader) NeedsRewrite(outcome GradingOutcome) bool {
	return outcome.Average < g.rewriteThreshold
}

// Rewrite asks the model for an optimized query given the weak round.
// Any failure falls back to the original wrapped idea.
func (g *Grader) Rewrite(ctx context.Context, wrappedIdea string, graded []patent.Candidate) string {
	out, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Model:       g.llm.Models().GradingModel,
		User:        rewriteUserPrompt(wrappedIdea, graded),
		Temperature: 0.3,
		JSONMode:    true,
	})
	if err != nil {
		g.log.Warn("query rewrite failed, reusing original idea", logging.Err(err))
		return unwrapQuery(wrappedIdea)
	}

	var parsed struct {
		OptimizedQuery string `json:"optimized_query"`
	}
	repaired, perr := jsonrepair.JSONRepair(out)
	if perr == nil {
		perr = json.Unmarshal([]byte(repaired), &parsed)
	}
	if perr != nil || parsed.OptimizedQuery == "" {
		g.log.Warn("rewrite response unparseable, reusing original idea", logging.Err(perr))
		return unwrapQuery(wrappedIdea)
	}
	return parsed.OptimizedQuery
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
