package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

const searchEf = 64

var outputFields = []string{
	fieldTitle, fieldAbstract, fieldClaims,
	fieldIPCCodes, fieldAssignee, fieldPublicationDate,
}

// EmbeddedDocument pairs a patent document with its embedding vector for
// ingestion into the collection.
type EmbeddedDocument struct {
	Document  patent.Document
	Embedding []float32
}

// PatentSearcher runs dense similarity search over the patent collection.
type PatentSearcher struct {
	client     *Client
	collection string
	log        logging.Logger
}

func NewPatentSearcher(client *Client, mgr *CollectionManager, log logging.Logger) *PatentSearcher {
	return &PatentSearcher{
		client:     client,
		collection: mgr.CollectionName(),
		log:        log.Named("milvus.searcher"),
	}
}

// Search returns the topK nearest patents to the query vector.  IPC prefixes
// narrow the search with a server-side expression; the pipeline re-applies
// the filter on the merged result set, so a partial match here only costs
// recall, never correctness.
func (s *PatentSearcher) Search(ctx context.Context, vector []float32, topK int, ipcPrefixes []string) ([]patent.Candidate, error) {
	if len(vector) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "query vector is empty")
	}
	if topK <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "topK must be positive")
	}

	sp, err := entity.NewIndexHNSWSearchParam(searchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchError, "milvus search params invalid")
	}

	results, err := s.client.Raw().Search(ctx,
		s.collection,
		nil,
		ipcExpr(ipcPrefixes),
		outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClBounded),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "milvus search failed")
	}
	if len(results) == 0 {
		return nil, nil
	}

	res := results[0]
	cands := make([]patent.Candidate, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		id := columnString(res.IDs, i)
		if id == "" {
			continue
		}
		doc := patent.Document{
			PublicationNumber: patent.PublicationNumber(id),
			Title:             columnString(res.Fields.GetColumn(fieldTitle), i),
			Abstract:          columnString(res.Fields.GetColumn(fieldAbstract), i),
			Claims:            columnString(res.Fields.GetColumn(fieldClaims), i),
			IPCCodes:          splitIPCCodes(columnString(res.Fields.GetColumn(fieldIPCCodes), i)),
			Assignee:          columnString(res.Fields.GetColumn(fieldAssignee), i),
			PublicationDate:   columnString(res.Fields.GetColumn(fieldPublicationDate), i),
		}
		cands = append(cands, patent.Candidate{
			Document:   doc,
			DenseScore: float64(res.Scores[i]),
		})
	}

	s.log.Debug("dense search executed",
		logging.Int("hits", len(cands)),
		logging.Int("top_k", topK),
	)
	return cands, nil
}

// Upsert writes embedded documents into the collection, replacing existing
// rows with the same publication number.
func (s *PatentSearcher) Upsert(ctx context.Context, docs []EmbeddedDocument) error {
	if len(docs) == 0 {
		return nil
	}

	n := len(docs)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	titles := make([]string, n)
	abstracts := make([]string, n)
	claims := make([]string, n)
	ipcs := make([]string, n)
	assignees := make([]string, n)
	dates := make([]string, n)
	dim := len(docs[0].Embedding)

	for i, d := range docs {
		if len(d.Embedding) != dim {
			return errors.Newf(errors.ErrCodeValidation,
				"embedding dim mismatch at %s: %d != %d", d.Document.PublicationNumber, len(d.Embedding), dim)
		}
		ids[i] = string(d.Document.PublicationNumber)
		vectors[i] = d.Embedding
		titles[i] = d.Document.Title
		abstracts[i] = d.Document.Abstract
		claims[i] = d.Document.Claims
		ipcs[i] = strings.Join(d.Document.IPCCodes, ";")
		assignees[i] = d.Document.Assignee
		dates[i] = d.Document.PublicationDate
	}

	_, err := s.client.Raw().Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(fieldPublicationNumber, ids),
		entity.NewColumnFloatVector(fieldEmbedding, dim, vectors),
		entity.NewColumnVarChar(fieldTitle, titles),
		entity.NewColumnVarChar(fieldAbstract, abstracts),
		entity.NewColumnVarChar(fieldClaims, claims),
		entity.NewColumnVarChar(fieldIPCCodes, ipcs),
		entity.NewColumnVarChar(fieldAssignee, assignees),
		entity.NewColumnVarChar(fieldPublicationDate, dates),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexingFailed, "milvus upsert failed")
	}

	s.log.Info("patents upserted into dense index", logging.Int("count", n))
	return nil
}

// Delete removes documents by publication number.
func (s *PatentSearcher) Delete(ctx context.Context, ids []patent.PublicationNumber) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", string(id))
	}
	expr := fmt.Sprintf("%s in [%s]", fieldPublicationNumber, strings.Join(quoted, ","))
	if err := s.client.Raw().Delete(ctx, s.collection, "", expr); err != nil {
		return errors.Wrap(err, errors.ErrCodeIndexingFailed, "milvus delete failed")
	}
	return nil
}

// ipcExpr builds the server-side prefix filter.  Prefixes are restricted to
// the IPC alphabet before interpolation into the expression.
func ipcExpr(prefixes []string) string {
	var terms []string
	for _, p := range prefixes {
		p = sanitizeIPC(p)
		if p == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf(`%s like "%s%%"`, fieldIPCCodes, p))
	}
	return strings.Join(terms, " or ")
}

func sanitizeIPC(p string) string {
	var b strings.Builder
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '/', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// IPC codes contain spaces ("G02B 27/01"), so entries are joined with a
// semicolon in the varchar field.
func splitIPCCodes(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func columnString(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
