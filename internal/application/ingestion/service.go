// Package ingestion feeds patent documents into the two search indexes.
// Documents arrive either one at a time from the Kafka topic or in bulk
// from the CLI loader; both paths embed with the same model that powers
// retrieval, so query and corpus vectors stay in one space.
package ingestion

import (
	"context"
	"strings"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/search/milvus"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

const defaultBatchSize = 64

// Embedder turns document text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DenseIndex receives embedded documents.
type DenseIndex interface {
	Upsert(ctx context.Context, docs []milvus.EmbeddedDocument) error
}

// SparseIndex receives plain documents for BM25 retrieval.
type SparseIndex interface {
	BulkIndex(ctx context.Context, docs []patent.Document) error
}

// BulkLock serializes corpus-wide bulk loads across worker replicas.
type BulkLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Metrics is the slice of the metrics collector this service reports to.
type Metrics interface {
	DocumentIngested(status string)
}

type nopMetrics struct{}

func (nopMetrics) DocumentIngested(string) {}

// Ingestion outcome labels.
const (
	StatusIndexed      = "indexed"
	StatusFailed       = "failed"
	StatusDeadLettered = "dead_lettered"
)

// Stats summarizes one bulk ingestion run.
type Stats struct {
	Indexed int
	Skipped int
}

// Service implements both ingestion paths.
type Service struct {
	embedder  Embedder
	dense     DenseIndex
	sparse    SparseIndex
	lock      BulkLock
	metrics   Metrics
	batchSize int
	log       logging.Logger
}

// Deps carries the service's collaborators.  Lock and Metrics may be nil.
type Deps struct {
	Embedder Embedder
	Dense    DenseIndex
	Sparse   SparseIndex
	Lock     BulkLock
	Metrics  Metrics
	Logger   logging.Logger
}

func NewService(cfg config.WorkerConfig, deps Deps) *Service {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	m := deps.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	return &Service{
		embedder:  deps.Embedder,
		dense:     deps.Dense,
		sparse:    deps.Sparse,
		lock:      deps.Lock,
		metrics:   m,
		batchSize: batch,
		log:       deps.Logger.Named("ingestion"),
	}
}

// HandleDocument is the Kafka consumer handler.  Errors bubble up so the
// consumer's retry and dead-letter machinery decides the message's fate.
func (s *Service) HandleDocument(ctx context.Context, env *kafka.EventEnvelope) error {
	var payload kafka.PatentDocumentPayload
	if err := env.DecodePayload(&payload); err != nil {
		s.metrics.DocumentIngested(StatusFailed)
		return err
	}
	if err := s.indexBatch(ctx, []patent.Document{payload.Document}); err != nil {
		s.metrics.DocumentIngested(StatusFailed)
		return err
	}
	s.metrics.DocumentIngested(StatusIndexed)
	s.log.Debug("document ingested",
		logging.String("publication_number", string(payload.Document.PublicationNumber)),
		logging.String("source", payload.Source),
	)
	return nil
}

// IngestDocuments loads a corpus slice in embedding-sized batches.  The bulk
// lock keeps two replicas from rebuilding the indexes concurrently; a held
// lock is a conflict surfaced to the operator, not a silent skip.
func (s *Service) IngestDocuments(ctx context.Context, docs []patent.Document) (Stats, error) {
	if s.lock != nil {
		ok, err := s.lock.TryLock(ctx)
		if err != nil {
			return Stats{}, err
		}
		if !ok {
			return Stats{}, apperrors.Conflict("another bulk ingestion is running")
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("bulk ingestion lock release failed", logging.Err(err))
			}
		}()
	}

	var stats Stats
	batch := make([]patent.Document, 0, s.batchSize)
	for _, doc := range docs {
		if doc.PublicationNumber == "" {
			stats.Skipped++
			continue
		}
		batch = append(batch, doc)
		if len(batch) == s.batchSize {
			if err := s.indexBatch(ctx, batch); err != nil {
				return stats, err
			}
			stats.Indexed += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := s.indexBatch(ctx, batch); err != nil {
			return stats, err
		}
		stats.Indexed += len(batch)
	}

	s.log.Info("bulk ingestion finished",
		logging.Int("indexed", stats.Indexed),
		logging.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// indexBatch embeds one batch and writes it to both indexes.  The sparse
// write goes first: if the dense write then fails, retrying the message
// re-does both idempotently.
func (s *Service) indexBatch(ctx context.Context, docs []patent.Document) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = embeddingText(d)
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(docs) {
		return apperrors.Newf(apperrors.ErrCodeEmbeddingFailed,
			"embedding count mismatch: got %d want %d", len(vectors), len(docs))
	}

	if err := s.sparse.BulkIndex(ctx, docs); err != nil {
		return err
	}

	embedded := make([]milvus.EmbeddedDocument, len(docs))
	for i, d := range docs {
		embedded[i] = milvus.EmbeddedDocument{Document: d, Embedding: vectors[i]}
	}
	return s.dense.Upsert(ctx, embedded)
}

// embeddingText flattens the fields retrieval matches on.  Claims carry the
// legal scope, so they are included in full alongside title and abstract.
func embeddingText(d patent.Document) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Title, d.Abstract, d.Claims} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}
