package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

// patentSource is the indexed document shape.  Field names line up with the
// mapping in indexer.go.
type patentSource struct {
	PublicationNumber string   `json:"publication_number"`
	Title             string   `json:"title"`
	Abstract          string   `json:"abstract"`
	Claims            string   `json:"claims"`
	IPCCodes          []string `json:"ipc_codes,omitempty"`
	Assignee          string   `json:"assignee,omitempty"`
	PublicationDate   string   `json:"publication_date,omitempty"`
}

func (s patentSource) document() patent.Document {
	return patent.Document{
		PublicationNumber: patent.PublicationNumber(s.PublicationNumber),
		Title:             s.Title,
		Abstract:          s.Abstract,
		Claims:            s.Claims,
		IPCCodes:          s.IPCCodes,
		Assignee:          s.Assignee,
		PublicationDate:   s.PublicationDate,
	}
}

type searchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// PatentSearcher runs BM25 keyword search over the patent index.
type PatentSearcher struct {
	client *Client
	index  string
	log    logging.Logger
}

func NewPatentSearcher(client *Client, log logging.Logger) *PatentSearcher {
	return &PatentSearcher{
		client: client,
		index:  client.cfg.IndexPrefix + "patents",
		log:    log.Named("opensearch.searcher"),
	}
}

// Search returns the topK best keyword matches for the query text.  Raw BM25
// scores are unbounded, so they are normalized by the best score of the
// result set before fusion with the dense side.
func (s *PatentSearcher) Search(ctx context.Context, query string, topK int, ipcPrefixes []string) ([]patent.Candidate, error) {
	if query == "" {
		return nil, errors.New(errors.ErrCodeValidation, "query is empty")
	}
	if topK <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "topK must be positive")
	}

	body, err := json.Marshal(buildQuery(query, topK, ipcPrefixes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal search query")
	}

	resp, err := s.client.Raw().Search(
		s.client.Raw().Search.WithContext(ctx),
		s.client.Raw().Search.WithIndex(s.index),
		s.client.Raw().Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchUnavailable, "opensearch search failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		raw, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf(errors.ErrCodeSearchError, "opensearch search status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "decode search response")
	}

	cands := make([]patent.Candidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var src patentSource
		if err := json.Unmarshal(hit.Source, &src); err != nil {
			s.log.Warn("skipping malformed hit", logging.String("id", hit.ID), logging.Err(err))
			continue
		}
		score := hit.Score
		if parsed.Hits.MaxScore > 0 {
			score = hit.Score / parsed.Hits.MaxScore
		}
		cands = append(cands, patent.Candidate{
			Document:    src.document(),
			SparseScore: score,
		})
	}

	s.log.Debug("sparse search executed",
		logging.Int("hits", len(cands)),
		logging.Int("top_k", topK),
	)
	return cands, nil
}

// buildQuery assembles the BM25 request.  Title matches are boosted over
// abstract and claims, and IPC prefixes become a server-side filter.
func buildQuery(query string, topK int, ipcPrefixes []string) map[string]any {
	match := map[string]any{
		"multi_match": map[string]any{
			"query":  query,
			"fields": []string{"title^2", "abstract", "claims"},
			"type":   "best_fields",
		},
	}

	var filter []any
	if len(ipcPrefixes) > 0 {
		var should []any
		for _, p := range ipcPrefixes {
			if p == "" {
				continue
			}
			should = append(should, map[string]any{
				"prefix": map[string]any{"ipc_codes": p},
			})
		}
		if len(should) > 0 {
			filter = append(filter, map[string]any{
				"bool": map[string]any{"should": should, "minimum_should_match": 1},
			})
		}
	}

	boolQuery := map[string]any{"must": []any{match}}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}

	return map[string]any{
		"size":  topK,
		"query": map[string]any{"bool": boolQuery},
	}
}
