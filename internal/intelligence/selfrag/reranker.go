package selfrag

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/intelligence/serving"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// Reranker reorders retrieval candidates with the remote cross-encoder.
// When the serving endpoint is disabled or unreachable, the stage is a
// passthrough that truncates to topK; rerank failure never fails a run.
type Reranker struct {
	client      serving.Reranker
	maxDocChars int
	log         logging.Logger

	passthroughOnce sync.Once
}

func NewReranker(client serving.Reranker, maxDocChars int, log logging.Logger) *Reranker {
	return &Reranker{client: client, maxDocChars: maxDocChars, log: log.Named("reranker")}
}

// Rerank scores (query, title+abstract+claims) pairs and returns the topK
// candidates ordered by cross-encoder score.
func (r *Reranker) Rerank(ctx context.Context, query string, cands []patent.Candidate, topK int) []patent.Candidate {
	if len(cands) == 0 {
		return cands
	}
	if r.client == nil {
		return r.passthrough(cands, topK)
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = truncateRunes(strings.TrimSpace(
			c.Document.Title+" "+c.Document.Abstract+" "+c.Document.Claims), r.maxDocChars)
	}

	scores, err := r.client.Rank(ctx, query, texts)
	if err != nil {
		r.log.Warn("rerank failed, keeping fused ordering", logging.Err(err))
		return r.passthrough(cands, topK)
	}

	out := make([]patent.Candidate, len(cands))
	copy(out, cands)
	for i := range out {
		out[i].RerankScore = scores[i]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RerankScore > out[j].RerankScore })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func (r *Reranker) passthrough(cands []patent.Candidate, topK int) []patent.Candidate {
	r.passthroughOnce.Do(func() {
		r.log.Info("reranker unavailable, passing candidates through by fused score")
	})
	if len(cands) > topK {
		return cands[:topK]
	}
	return cands
}
