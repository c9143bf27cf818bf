package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// patentMapping is the index mapping for patent documents.  Text fields use
// the nori analyzer since the corpus is predominantly Korean; ipc_codes is a
// keyword field so prefix filters stay cheap.
const patentMapping = `{
  "settings": {
    "number_of_shards": 2,
    "number_of_replicas": 1,
    "analysis": {
      "analyzer": {
        "korean": {"type": "custom", "tokenizer": "nori_tokenizer"}
      }
    }
  },
  "mappings": {
    "properties": {
      "publication_number": {"type": "keyword"},
      "title":              {"type": "text", "analyzer": "korean"},
      "abstract":           {"type": "text", "analyzer": "korean"},
      "claims":             {"type": "text", "analyzer": "korean"},
      "ipc_codes":          {"type": "keyword"},
      "assignee":           {"type": "keyword"},
      "publication_date":   {"type": "date", "format": "yyyy-MM-dd"}
    }
  }
}`

const defaultBulkBatchSize = 500

// Indexer maintains the sparse patent index.
type Indexer struct {
	client    *Client
	index     string
	batchSize int
	log       logging.Logger
}

func NewIndexer(client *Client, log logging.Logger) *Indexer {
	batch := client.cfg.BulkBatchSize
	if batch <= 0 {
		batch = defaultBulkBatchSize
	}
	return &Indexer{
		client:    client,
		index:     client.cfg.IndexPrefix + "patents",
		batchSize: batch,
		log:       log.Named("opensearch.indexer"),
	}
}

// IndexName returns the prefixed patent index name.
func (ix *Indexer) IndexName() string { return ix.index }

// EnsureIndex creates the patent index with its mapping when missing.
// Safe to call on every startup.
func (ix *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := ix.client.Raw().Indices.Exists(
		[]string{ix.index},
		ix.client.Raw().Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "opensearch index existence check failed")
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	resp, err := ix.client.Raw().Indices.Create(
		ix.index,
		ix.client.Raw().Indices.Create.WithContext(ctx),
		ix.client.Raw().Indices.Create.WithBody(strings.NewReader(patentMapping)),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchError, "opensearch index creation failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		raw, _ := io.ReadAll(resp.Body)
		return errors.Newf(errors.ErrCodeSearchError, "opensearch index creation status %d: %s", resp.StatusCode, string(raw))
	}

	ix.log.Info("patent index created", logging.String("index", ix.index))
	return nil
}

// BulkIndex writes documents into the index in batches, keyed by publication
// number so re-ingestion overwrites instead of duplicating.
func (ix *Indexer) BulkIndex(ctx context.Context, docs []patent.Document) error {
	for start := 0; start < len(docs); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := ix.bulkBatch(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	if len(docs) > 0 {
		ix.log.Info("patents indexed into sparse index", logging.Int("count", len(docs)))
	}
	return nil
}

func (ix *Indexer) bulkBatch(ctx context.Context, docs []patent.Document) error {
	var buf bytes.Buffer
	for _, d := range docs {
		if d.PublicationNumber == "" {
			return errors.New(errors.ErrCodeValidation, "document without publication number")
		}
		meta := map[string]any{"index": map[string]any{"_index": ix.index, "_id": string(d.PublicationNumber)}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode bulk meta")
		}
		src := patentSource{
			PublicationNumber: string(d.PublicationNumber),
			Title:             d.Title,
			Abstract:          d.Abstract,
			Claims:            d.Claims,
			IPCCodes:          d.IPCCodes,
			Assignee:          d.Assignee,
			PublicationDate:   d.PublicationDate,
		}
		if err := json.NewEncoder(&buf).Encode(src); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "encode bulk document")
		}
	}

	req := opensearchapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}
	resp, err := req.Do(ctx, ix.client.Raw())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexingFailed, "opensearch bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		raw, _ := io.ReadAll(resp.Body)
		return errors.Newf(errors.ErrCodeIndexingFailed, "opensearch bulk status %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int    `json:"status"`
			Error  any    `json:"error"`
			ID     string `json:"_id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode bulk response")
	}
	if result.Errors {
		failed := 0
		for _, item := range result.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		return errors.Newf(errors.ErrCodeIndexingFailed, "opensearch bulk rejected %d of %d documents", failed, len(docs))
	}
	return nil
}

// Delete removes documents by publication number.
func (ix *Indexer) Delete(ctx context.Context, ids []patent.PublicationNumber) error {
	for _, id := range ids {
		resp, err := ix.client.Raw().Delete(
			ix.index,
			string(id),
			ix.client.Raw().Delete.WithContext(ctx),
		)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeIndexingFailed, fmt.Sprintf("opensearch delete %s failed", id))
		}
		resp.Body.Close()
		if resp.IsError() && resp.StatusCode != 404 {
			return errors.Newf(errors.ErrCodeIndexingFailed, "opensearch delete %s status %d", id, resp.StatusCode)
		}
	}
	return nil
}
