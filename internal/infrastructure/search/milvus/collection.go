package milvus

import (
	"context"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// Field names of the patent collection.  The sparse index and the Postgres
// history table use the same publication_number key, which is what the
// pipeline dedupes on.
const (
	fieldPublicationNumber = "publication_number"
	fieldEmbedding         = "embedding"
	fieldTitle             = "title"
	fieldAbstract          = "abstract"
	fieldClaims            = "claims"
	fieldIPCCodes          = "ipc_codes"
	fieldAssignee          = "assignee"
	fieldPublicationDate   = "publication_date"
)

// patentSchema builds the collection schema for embedded patent documents.
// Abstract and claims are stored alongside the vector so a search round trip
// returns everything grading and analysis need.
func patentSchema(name string, dim int) *entity.Schema {
	maxLen := func(n int) map[string]string {
		return map[string]string{"max_length": strconv.Itoa(n)}
	}
	return &entity.Schema{
		CollectionName: name,
		Description:    "embedded patent documents for dense prior-art retrieval",
		Fields: []*entity.Field{
			{Name: fieldPublicationNumber, DataType: entity.FieldTypeVarChar, PrimaryKey: true, TypeParams: maxLen(64)},
			{Name: fieldEmbedding, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": strconv.Itoa(dim)}},
			{Name: fieldTitle, DataType: entity.FieldTypeVarChar, TypeParams: maxLen(1024)},
			{Name: fieldAbstract, DataType: entity.FieldTypeVarChar, TypeParams: maxLen(8192)},
			{Name: fieldClaims, DataType: entity.FieldTypeVarChar, TypeParams: maxLen(32768)},
			{Name: fieldIPCCodes, DataType: entity.FieldTypeVarChar, TypeParams: maxLen(512)},
			{Name: fieldAssignee, DataType: entity.FieldTypeVarChar, TypeParams: maxLen(512)},
			{Name: fieldPublicationDate, DataType: entity.FieldTypeVarChar, TypeParams: maxLen(16)},
		},
	}
}

// CollectionManager creates and loads the patent collection.
type CollectionManager struct {
	client *Client
	cfg    config.MilvusConfig
	log    logging.Logger
}

func NewCollectionManager(client *Client, cfg config.MilvusConfig, log logging.Logger) *CollectionManager {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 1536
	}
	if cfg.HNSWM == 0 {
		cfg.HNSWM = 16
	}
	if cfg.HNSWEfConstruction == 0 {
		cfg.HNSWEfConstruction = 200
	}
	return &CollectionManager{client: client, cfg: cfg, log: log.Named("milvus.collection")}
}

// CollectionName returns the prefixed patent collection name.
func (m *CollectionManager) CollectionName() string {
	return m.cfg.CollectionPrefix + "patents"
}

// EnsurePatentCollection creates the collection, its HNSW index, and loads
// it into memory.  Safe to call on every startup.
func (m *CollectionManager) EnsurePatentCollection(ctx context.Context) error {
	mc := m.client.Raw()
	name := m.CollectionName()

	has, err := mc.HasCollection(ctx, name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "milvus HasCollection failed")
	}
	if !has {
		if err := mc.CreateCollection(ctx, patentSchema(name, m.cfg.EmbeddingDim), 2); err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchError, "milvus CreateCollection failed")
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, m.cfg.HNSWM, m.cfg.HNSWEfConstruction)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchError, "milvus HNSW index params invalid")
		}
		if err := mc.CreateIndex(ctx, name, fieldEmbedding, idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchError, "milvus CreateIndex failed")
		}
		m.log.Info("patent collection created",
			logging.String("collection", name),
			logging.Int("dim", m.cfg.EmbeddingDim),
		)
	}

	if err := mc.LoadCollection(ctx, name, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "milvus LoadCollection failed")
	}
	return nil
}

// Drop removes the patent collection.  Used by ingestion rebuilds only.
func (m *CollectionManager) Drop(ctx context.Context) error {
	if err := m.client.Raw().DropCollection(ctx, m.CollectionName()); err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "milvus DropCollection failed")
	}
	m.log.Warn("patent collection dropped", logging.String("collection", m.CollectionName()))
	return nil
}
