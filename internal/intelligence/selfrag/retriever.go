package selfrag

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// DenseSearcher runs an embedding-similarity search.  Returned candidates
// carry DenseScore; other score fields are zero.
type DenseSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, ipcPrefixes []string) ([]patent.Candidate, error)
}

// SparseSearcher runs a lexical BM25 search.  Returned candidates carry
// SparseScore.
type SparseSearcher interface {
	Search(ctx context.Context, query string, topK int, ipcPrefixes []string) ([]patent.Candidate, error)
}

// Retriever fans the expanded queries out over both search backends and
// fuses the scores.
type Retriever struct {
	embedder    LLM
	dense       DenseSearcher
	sparse      SparseSearcher
	alpha       float64
	topK        int
	maxParallel int
	log         logging.Logger
}

func NewRetriever(embedder LLM, dense DenseSearcher, sparse SparseSearcher, alpha float64, topK int, log logging.Logger) *Retriever {
	return &Retriever{
		embedder:    embedder,
		dense:       dense,
		sparse:      sparse,
		alpha:       alpha,
		topK:        topK,
		maxParallel: 4,
		log:         log.Named("retriever"),
	}
}

// Retrieve runs every query against both backends in parallel, fuses
// dense and sparse scores, deduplicates by publication number keeping the
// highest fused score, and returns up to 2*topK candidates for grading.
// A failed query is skipped; only when every query fails does Retrieve
// return UpstreamUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, queries []Query, ipcPrefixes []string) ([]patent.Candidate, error) {
	if len(queries) == 0 {
		return nil, apperrors.NewValidationError("no retrieval queries")
	}

	var (
		mu        sync.Mutex
		merged    = make(map[patent.PublicationNumber]patent.Candidate)
		succeeded int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for _, q := range queries {
		q := q
		g.Go(func() error {
			cands, err := r.searchOne(gctx, q, ipcPrefixes)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Warn("retrieval query failed, skipping",
					logging.String("event", LogEventRetrievalQueryFailed),
					logging.String("source", q.Source),
					logging.Err(err),
				)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			succeeded++
			for _, c := range cands {
				prev, seen := merged[c.Document.PublicationNumber]
				if !seen || c.FusedScore > prev.FusedScore {
					merged[c.Document.PublicationNumber] = c
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if succeeded == 0 {
		return nil, apperrors.UpstreamUnavailable("all retrieval queries failed")
	}

	out := make([]patent.Candidate, 0, len(merged))
	for _, c := range merged {
		if c.Document.MatchesIPCPrefix(ipcPrefixes) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FusedScore > out[j].FusedScore })

	limit := 2 * r.topK
	if len(out) > limit {
		out = out[:limit]
	}
	r.log.Info("retrieval merged",
		logging.Int("queries", len(queries)),
		logging.Int("succeeded", succeeded),
		logging.Int("candidates", len(out)),
	)
	return out, nil
}

// searchOne runs the dense and sparse legs of one query concurrently and
// fuses their scores per document.
func (r *Retriever) searchOne(ctx context.Context, q Query, ipcPrefixes []string) ([]patent.Candidate, error) {
	limit := 2 * r.topK

	var denseHits, sparseHits []patent.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecs, err := r.embedder.Embed(gctx, []string{q.Text})
		if err != nil {
			return err
		}
		if len(vecs) != 1 {
			return apperrors.New(apperrors.ErrCodeEmbeddingFailed, "embedding missing for query")
		}
		denseHits, err = r.dense.Search(gctx, vecs[0], limit, ipcPrefixes)
		return err
	})
	g.Go(func() error {
		var err error
		sparseHits, err = r.sparse.Search(gctx, q.Text, limit, ipcPrefixes)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[patent.PublicationNumber]patent.Candidate, len(denseHits)+len(sparseHits))
	for _, c := range denseHits {
		byID[c.Document.PublicationNumber] = c
	}
	for _, s := range sparseHits {
		c, ok := byID[s.Document.PublicationNumber]
		if !ok {
			c = s
		}
		c.SparseScore = s.SparseScore
		if c.Document.Title == "" {
			c.Document = s.Document
		}
		byID[s.Document.PublicationNumber] = c
	}

	out := make([]patent.Candidate, 0, len(byID))
	for _, c := range byID {
		c.FusedScore = r.alpha*c.DenseScore + (1-r.alpha)*c.SparseScore
		out = append(out, c)
	}
	return out, nil
}
