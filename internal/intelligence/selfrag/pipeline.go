package selfrag

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// Metrics receives pipeline observations.  The prometheus collector
// implements it; tests use NopMetrics.
type Metrics interface {
	AnalysisStarted()
	AnalysisFinished(outcome string, elapsed time.Duration)
	StageObserved(stage string, elapsed time.Duration)
	FilterRatioObserved(stage string, ratioPct float64)
}

type nopMetrics struct{}

func (nopMetrics) AnalysisStarted()                        {}
func (nopMetrics) AnalysisFinished(string, time.Duration)  {}
func (nopMetrics) StageObserved(string, time.Duration)     {}
func (nopMetrics) FilterRatioObserved(string, float64)     {}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return nopMetrics{} }

// AnalyzeRequest is one prior-art analysis run.
type AnalyzeRequest struct {
	Idea       string
	SessionID  string
	IPCFilters []string
}

// Pipeline composes the six stages.  It is stateless per request; the
// only process-wide state lives inside the reranker client's lazy init.
type Pipeline struct {
	sandbox   *Sandbox
	expander  *Expander
	retriever *Retriever
	reranker  *Reranker
	grader    *Grader
	analyst   *Analyst
	cfg       config.PipelineConfig
	metrics   Metrics
	log       logging.Logger
}

// Deps carries the stage implementations into New.
type Deps struct {
	Sandbox   *Sandbox
	Expander  *Expander
	Retriever *Retriever
	Reranker  *Reranker
	Grader    *Grader
	Analyst   *Analyst
	Metrics   Metrics
	Logger    logging.Logger
}

func New(cfg config.PipelineConfig, deps Deps) *Pipeline {
	m := deps.Metrics
	if m == nil {
		m = NopMetrics()
	}
	return &Pipeline{
		sandbox:   deps.Sandbox,
		expander:  deps.Expander,
		retriever: deps.Retriever,
		reranker:  deps.Reranker,
		grader:    deps.Grader,
		analyst:   deps.Analyst,
		cfg:       cfg,
		metrics:   m,
		log:       deps.Logger.Named("pipeline"),
	}
}

// Run executes the pipeline and returns its ordered event stream.  The
// channel always ends with exactly one terminal event (complete, empty,
// or error) and is then closed.  Input violations surface as error
// events, not as a returned error.
func (p *Pipeline) Run(ctx context.Context, req AnalyzeRequest) (<-chan Event, error) {
	if strings.TrimSpace(req.Idea) == "" {
		return nil, apperrors.NewValidationError("idea must not be empty")
	}

	ch := make(chan Event, 32)
	go p.run(ctx, req, ch)
	return ch, nil
}

func (p *Pipeline) run(ctx context.Context, req AnalyzeRequest, ch chan<- Event) {
	defer close(ch)
	start := time.Now()
	p.metrics.AnalysisStarted()

	outcome := "error"
	defer func() { p.metrics.AnalysisFinished(outcome, time.Since(start)) }()

	send := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	send(progressEvent(0, "분석 시작"))

	// Sandbox first: rejections here mean zero model calls were made.
	stageStart := time.Now()
	sanitized, err := p.sandbox.Sanitize(req.Idea)
	if err != nil {
		send(errorEvent(err))
		return
	}
	wrapped := Wrap(sanitized)
	p.metrics.StageObserved("sandbox", time.Since(stageStart))
	if !send(progressEvent(10, "입력 검증 완료")) {
		return
	}

	// Query expansion degrades, never fails.
	stageStart = time.Now()
	expansion := p.expander.Expand(ctx, wrapped)
	queries := expansion.Queries()
	p.metrics.StageObserved("expansion", time.Since(stageStart))
	if !send(progressEvent(25, "검색 쿼리 생성 완료")) {
		return
	}

	// Retrieve, rerank, grade, with at most one rewrite round.
	var best GradingOutcome
	haveBest := false
	for round := 0; round < p.cfg.MaxRetrievalRounds; round++ {
		stageStart = time.Now()
		cands, rerr := p.retriever.Retrieve(ctx, queries, req.IPCFilters)
		p.metrics.StageObserved("retrieval", time.Since(stageStart))
		if rerr != nil {
			if ctx.Err() != nil {
				send(errorEvent(apperrors.Wrap(ctx.Err(), apperrors.ErrCodeInternal, "analysis cancelled")))
				return
			}
			if !apperrors.IsCode(rerr, apperrors.ErrCodeUpstreamUnavailable) {
				send(errorEvent(rerr))
				return
			}
			// Retrieval exhaustion is equivalent to an all-filtered round.
			p.log.Warn("retrieval round exhausted", logging.Int("round", round+1), logging.Err(rerr))
			cands = nil
		}
		if round == 0 && !send(progressEvent(35, "후보 특허 검색 완료")) {
			return
		}

		// Rerank passes candidates through on any failure.
		stageStart = time.Now()
		cands = p.reranker.Rerank(ctx, sanitized, cands, p.cfg.TopK)
		p.metrics.StageObserved("rerank", time.Since(stageStart))
		if round == 0 && !send(progressEvent(45, "정밀 재정렬 완료")) {
			return
		}

		// Grade what survived the rerank.
		stageStart = time.Now()
		result, gerr := p.grader.Grade(ctx, wrapped, cands)
		p.metrics.StageObserved("grading", time.Since(stageStart))
		if gerr != nil {
			send(errorEvent(gerr))
			return
		}
		p.metrics.FilterRatioObserved("grading", result.Stats.FilterRatioPct)

		if !haveBest || result.Average > best.Average {
			best = result
			haveBest = true
		}

		if round+1 >= p.cfg.MaxRetrievalRounds || !p.grader.NeedsRewrite(result) {
			break
		}

		p.log.Info("grading below rewrite threshold, rewriting query",
			logging.String("event", LogEventRewriteTriggered),
			logging.Float64("average_score", result.Average),
			logging.Float64("rewrite_threshold", p.cfg.RewriteThreshold),
		)
		rewritten := p.grader.Rewrite(ctx, wrapped, result.Graded)
		queries = []Query{{Text: rewritten, Source: QuerySourceRewritten}}
	}
	if !send(progressEvent(60, "관련성 평가 완료")) {
		return
	}

	if len(best.Survivors) == 0 {
		p.log.Info("no candidates above cutoff, emitting empty result",
			logging.Float64("cutoff", p.cfg.GradingCutoff),
		)
		outcome = "empty"
		send(emptyEvent())
		return
	}

	// Streaming grounded analysis over the surviving candidates.
	if !send(progressEvent(70, "AI 분석 스트리밍 중")) {
		return
	}
	stageStart = time.Now()
	streamed, survivors, aerr := p.analyst.AnalyzeStream(ctx, wrapped, best.Survivors, func(token string) error {
		if !send(tokenEvent(token)) {
			return ctx.Err()
		}
		return nil
	})
	p.metrics.StageObserved("analysis_stream", time.Since(stageStart))
	if aerr != nil {
		if ctx.Err() != nil {
			return
		}
		send(errorEvent(aerr))
		return
	}

	stageStart = time.Now()
	report := p.analyst.Parse(ctx, streamed, survivors)
	p.metrics.StageObserved("analysis_parse", time.Since(stageStart))

	send(progressEvent(100, "분석 완료"))
	outcome = "complete"
	send(completeEvent(report))
}
