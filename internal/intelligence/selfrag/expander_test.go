package selfrag

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llm "github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

type memCache struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemCache() *memCache { return &memCache{data: make(map[string]string)} }

func (m *memCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func TestExpand_HappyPath(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		if req.JSONMode {
			return `{"queries": ["기술 용어 쿼리", "청구항 스타일 쿼리", "과제 해결 쿼리"]}`, nil
		}
		assert.InDelta(t, 0.3, req.Temperature, 0.001)
		assert.Equal(t, 500, req.MaxTokens)
		return "가상 독립 청구항", nil
	}

	e := NewExpander(model, nil, time.Hour, logging.NewNopLogger())
	exp := e.Expand(context.Background(), Wrap("아이디어"))

	assert.Equal(t, "가상 독립 청구항", exp.HypotheticalClaim)
	require.Len(t, exp.Paraphrases, 3)

	queries := exp.Queries()
	require.Len(t, queries, 4)
	assert.Equal(t, QuerySourceHypotheticalClaim, queries[0].Source)
	assert.Equal(t, QuerySourceParaphrase, queries[1].Source)
}

func TestExpand_HyDEFailureFallsBackToIdea(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		if req.JSONMode {
			return `{"queries": ["q1"]}`, nil
		}
		return "", errors.New("model down")
	}

	e := NewExpander(model, nil, time.Hour, logging.NewNopLogger())
	exp := e.Expand(context.Background(), Wrap("드론 &amp; 라이다 센서"))
	assert.Equal(t, "드론 & 라이다 센서", exp.HypotheticalClaim,
		"fallback queries carry neither delimiters nor escaped entities")
}

func TestExpand_MultiQueryParseFailureFallsBack(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		if req.JSONMode {
			return "이것은 JSON이 아닙니다 {{{", nil
		}
		return "청구항", nil
	}

	e := NewExpander(model, nil, time.Hour, logging.NewNopLogger())
	exp := e.Expand(context.Background(), Wrap("아이디어"))
	assert.Equal(t, []string{"아이디어"}, exp.Paraphrases)
}

func TestExpand_ParaphrasesCappedAtThree(t *testing.T) {
	t.Parallel()

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		if req.JSONMode {
			return `{"queries": ["a", "b", "c", "d", "e"]}`, nil
		}
		return "청구항", nil
	}

	e := NewExpander(model, nil, time.Hour, logging.NewNopLogger())
	exp := e.Expand(context.Background(), Wrap("아이디어"))
	assert.Len(t, exp.Paraphrases, 3)
}

func TestExpand_CacheHitSkipsModelCalls(t *testing.T) {
	t.Parallel()

	cached := Expansion{HypotheticalClaim: "캐시된 청구항", Paraphrases: []string{"q1", "q2"}}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)

	cache := newMemCache()
	wrapped := Wrap("같은 아이디어")
	require.NoError(t, cache.Set(context.Background(), expansionCacheKey(wrapped), string(raw), time.Hour))

	model := &fakeLLM{}
	e := NewExpander(model, cache, time.Hour, logging.NewNopLogger())
	exp := e.Expand(context.Background(), wrapped)

	assert.Equal(t, cached, exp)
	assert.Zero(t, model.totalCalls())
}

func TestExpand_CacheMissStoresResult(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		if req.JSONMode {
			return `{"queries": ["q1"]}`, nil
		}
		return "청구항", nil
	}

	wrapped := Wrap("새 아이디어")
	e := NewExpander(model, cache, time.Hour, logging.NewNopLogger())
	e.Expand(context.Background(), wrapped)

	_, ok, err := cache.Get(context.Background(), expansionCacheKey(wrapped))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpand_CacheErrorIsSoft(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	cache.err = errors.New("redis unreachable")

	model := &fakeLLM{}
	model.completeFn = func(req llm.CompletionRequest) (string, error) {
		if req.JSONMode {
			return `{"queries": ["q1"]}`, nil
		}
		return "청구항", nil
	}

	e := NewExpander(model, cache, time.Hour, logging.NewNopLogger())
	exp := e.Expand(context.Background(), Wrap("아이디어"))
	assert.Equal(t, "청구항", exp.HypotheticalClaim)
}
