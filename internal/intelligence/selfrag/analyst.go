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

const (
	analysisMaxTokens    = 2500
	analysisTopSurvivors = 5
)

// Analyst streams the grounded critical analysis over the grading
// survivors and distills the stream into a structured report.
type Analyst struct {
	llm          LLM
	cutoff       float64
	mediumFloor  int
	highFloor    int
	warnRatioPct float64
	log          logging.Logger
}

func NewAnalyst(model LLM, cutoff float64, mediumFloor, highFloor int, warnRatioPct float64, log logging.Logger) *Analyst {
	if warnRatioPct <= 0 {
		warnRatioPct = highFilterRatioPct
	}
	return &Analyst{
		llm:          model,
		cutoff:       cutoff,
		mediumFloor:  mediumFloor,
		highFloor:    highFloor,
		warnRatioPct: warnRatioPct,
		log:          log.Named("analyst"),
	}
}

// selectSurvivors re-applies the cutoff and keeps the top candidates by
// grade, reporting the filtering under the given stage label.
func (a *Analyst) selectSurvivors(cands []patent.Candidate, stage string) []patent.Candidate {
	kept := make([]patent.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Grade >= a.cutoff {
			kept = append(kept, c)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Grade > kept[j].Grade })
	if len(kept) > analysisTopSurvivors {
		kept = kept[:analysisTopSurvivors]
	}

	stats := computeFilterStats(len(cands), len(kept), a.cutoff)
	emitFilterStats(a.log, LogEventAnalysisCutoffFilter, stage, stats, a.warnRatioPct)
	return kept
}

// AnalyzeStream streams the grounded analysis, invoking onToken per
// delta, and returns the full text plus the survivor set it was grounded
// on.  The primary model falls back to the configured fallback model on
// failure before the error is surfaced.
func (a *Analyst) AnalyzeStream(ctx context.Context, wrappedIdea string, cands []patent.Candidate, onToken func(string) error) (string, []patent.Candidate, error) {
	survivors := a.selectSurvivors(cands, StageCriticalAnalysisStream)

	req := llm.CompletionRequest{
		Model:       a.llm.Models().AnalysisModel,
		System:      analysisSystemPrompt,
		User:        analysisUserPrompt(wrappedIdea, patentsContext(survivors)),
		Temperature: 0.2,
		MaxTokens:   analysisMaxTokens,
	}

	text, err := a.llm.CompleteStream(ctx, req, onToken)
	if err != nil && ctx.Err() == nil {
		a.log.Warn("analysis stream failed, retrying with fallback model",
			logging.String("fallback_model", a.llm.Models().FallbackModel),
			logging.Err(err),
		)
		req.Model = a.llm.Models().FallbackModel
		text, err = a.llm.CompleteStream(ctx, req, onToken)
	}
	if err != nil {
		return "", survivors, err
	}
	return text, survivors, nil
}

// Parse extracts the typed report from the streamed analysis with the
// cheap parse model.  Citations outside the survivor set are dropped and
// the score is re-bucketed.  Parse never fails: any error yields the
// well-formed empty report.
func (a *Analyst) Parse(ctx context.Context, streamedText string, survivors []patent.Candidate) patent.AnalysisReport {
	out, err := a.llm.Complete(ctx, llm.CompletionRequest{
		Model:    a.llm.Models().ParseModel,
		System:   parseSystemPrompt,
		User:     parseUserPrompt(streamedText),
		JSONMode: true,
	})
	if err != nil {
		a.log.Warn("report parse call failed, returning empty report",
			logging.String("event", LogEventParseFailed),
			logging.Err(err),
		)
		return patent.EmptyReport()
	}

	var report patent.AnalysisReport
	repaired, perr := jsonrepair.JSONRepair(out)
	if perr == nil {
		perr = json.Unmarshal([]byte(repaired), &report)
	}
	if perr != nil {
		a.log.Warn("report JSON unparseable, returning empty report",
			logging.String("event", LogEventParseFailed),
			logging.Err(perr),
		)
		return patent.EmptyReport()
	}

	allowed := make(map[patent.PublicationNumber]bool, len(survivors))
	for _, c := range survivors {
		allowed[c.Document.PublicationNumber] = true
	}
	kept := report.TopPatents[:0]
	for _, tp := range report.TopPatents {
		if allowed[tp.ID] {
			kept = append(kept, tp)
		} else {
			a.log.Warn("dropping citation outside survivor set",
				logging.String("patent_id", string(tp.ID)),
			)
		}
	}
	report.TopPatents = kept
	report.Normalize(a.mediumFloor, a.highFloor)
	return report
}
