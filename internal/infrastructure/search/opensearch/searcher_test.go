package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

// newTestClient points the client at a stub cluster.  The handler must
// answer the startup ping (HEAD /) in addition to the calls under test.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(config.OpenSearchConfig{
		Addresses:   []string{srv.URL},
		IndexPrefix: "shortcut_",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func searchBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestNewClient_RequiresAddresses(t *testing.T) {
	_, err := NewClient(config.OpenSearchConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfiguration, apperrors.GetCode(err))
}

func TestNewClient_UnreachableCluster(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(config.OpenSearchConfig{Addresses: []string{srv.URL}}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUpstreamConnect, apperrors.GetCode(err))
}

func TestSearch_NormalizesScoresByMax(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shortcut_patents/_search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": {
				"max_score": 12.5,
				"hits": [
					{"_id": "KR-20230012345-A", "_score": 12.5, "_source": {
						"publication_number": "KR-20230012345-A",
						"title": "증강현실 디스플레이",
						"ipc_codes": ["G02B 27/01"]
					}},
					{"_id": "US-11223344-B2", "_score": 6.25, "_source": {
						"publication_number": "US-11223344-B2",
						"title": "AR waveguide"
					}}
				]
			}
		}`))
	})

	s := NewPatentSearcher(c, logging.NewNopLogger())
	cands, err := s.Search(context.Background(), "증강현실 글래스", 10, nil)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.InDelta(t, 1.0, cands[0].SparseScore, 1e-9)
	assert.InDelta(t, 0.5, cands[1].SparseScore, 1e-9)
	assert.Equal(t, []string{"G02B 27/01"}, cands[0].Document.IPCCodes)
	assert.Zero(t, cands[0].DenseScore)
}

func TestSearch_QueryShape(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = searchBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits": {"max_score": 0, "hits": []}}`))
	})

	s := NewPatentSearcher(c, logging.NewNopLogger())
	_, err := s.Search(context.Background(), "도파관 디스플레이", 7, []string{"G02B"})
	require.NoError(t, err)

	assert.Equal(t, float64(7), got["size"])
	boolQuery := got["query"].(map[string]any)["bool"].(map[string]any)
	must := boolQuery["must"].([]any)
	mm := must[0].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "도파관 디스플레이", mm["query"])
	assert.Contains(t, mm["fields"], "title^2")

	filter := boolQuery["filter"].([]any)
	require.Len(t, filter, 1)
}

func TestSearch_NoIPCFilterOmitted(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = searchBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits": {"max_score": 0, "hits": []}}`))
	})

	s := NewPatentSearcher(c, logging.NewNopLogger())
	_, err := s.Search(context.Background(), "쿼리", 5, nil)
	require.NoError(t, err)

	boolQuery := got["query"].(map[string]any)["bool"].(map[string]any)
	_, hasFilter := boolQuery["filter"]
	assert.False(t, hasFilter)
}

func TestSearch_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "shard failure"}`))
	})

	s := NewPatentSearcher(c, logging.NewNopLogger())
	_, err := s.Search(context.Background(), "쿼리", 5, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSearchError, apperrors.GetCode(err))
}

func TestSearch_InvalidInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	s := NewPatentSearcher(c, logging.NewNopLogger())
	_, err := s.Search(context.Background(), "", 5, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = s.Search(context.Background(), "쿼리", 0, nil)
	assert.True(t, apperrors.IsValidation(err))
}
