package opensearch

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ShortCut-Intelligence/pkg/errors"
	"github.com/turtacn/ShortCut-Intelligence/pkg/types/patent"
)

func sampleDocs(n int) []patent.Document {
	docs := make([]patent.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, patent.Document{
			PublicationNumber: patent.PublicationNumber("KR-2023" + string(rune('A'+i))),
			Title:             "증강현실 장치",
			Abstract:          "도파관 디스플레이",
			IPCCodes:          []string{"G02B 27/01"},
		})
	}
	return docs
}

func TestEnsureIndex_CreatesWithMapping(t *testing.T) {
	var mu sync.Mutex
	var created map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/shortcut_patents":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/shortcut_patents":
			mu.Lock()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"acknowledged": true}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	require.NoError(t, ix.EnsureIndex(context.Background()))

	mappings := created["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Equal(t, "keyword", mappings["publication_number"].(map[string]any)["type"])
	assert.Equal(t, "korean", mappings["claims"].(map[string]any)["analyzer"])
}

func TestEnsureIndex_SkipsExisting(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/shortcut_patents" {
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	require.NoError(t, ix.EnsureIndex(context.Background()))
}

func TestBulkIndex_WritesNDJSONKeyedByPublicationNumber(t *testing.T) {
	var mu sync.Mutex
	var lines []string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		scanner := bufio.NewScanner(r.Body)
		mu.Lock()
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors": false, "items": []}`))
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	require.NoError(t, ix.BulkIndex(context.Background(), sampleDocs(2)))

	require.Len(t, lines, 4, "meta and source line per document")
	var meta map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &meta))
	assert.Equal(t, "shortcut_patents", meta["index"]["_index"])
	assert.Equal(t, "KR-2023A", meta["index"]["_id"])
}

func TestBulkIndex_Batches(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors": false, "items": []}`))
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	ix.batchSize = 2
	require.NoError(t, ix.BulkIndex(context.Background(), sampleDocs(5)))
	assert.Equal(t, 3, requests)
}

func TestBulkIndex_PartialFailureReported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"errors": true,
			"items": [
				{"index": {"_id": "KR-2023A", "status": 200}},
				{"index": {"_id": "KR-2023B", "status": 400, "error": {"type": "mapper_parsing_exception"}}}
			]
		}`))
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	err := ix.BulkIndex(context.Background(), sampleDocs(2))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeIndexingFailed, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestBulkIndex_RejectsMissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	err := ix.BulkIndex(context.Background(), []patent.Document{{Title: "이름 없는 문서"}})
	assert.True(t, apperrors.IsValidation(err))
}

func TestDelete_IgnoresNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"result": "not_found"}`))
	})

	ix := NewIndexer(c, logging.NewNopLogger())
	assert.NoError(t, ix.Delete(context.Background(), []patent.PublicationNumber{"KR-2023A"}))
}
