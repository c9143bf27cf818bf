package selfrag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	llm "github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

// LLM is the model-provider surface the pipeline stages depend on.
type LLM interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
	CompleteStream(ctx context.Context, req llm.CompletionRequest, onToken func(string) error) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Models() config.OpenAIConfig
}

// ExpansionCache stores expansion results keyed by idea digest.  A nil
// cache disables caching; cache failures are soft and only logged.
type ExpansionCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Query is one derived search string with its provenance tag, used in
// logs and to keep fusion from double-counting a source.
type Query struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

const (
	QuerySourceHypotheticalClaim = "hypothetical_claim"
	QuerySourceParaphrase        = "paraphrase"
	QuerySourceRewritten         = "rewritten"
)

// Expansion is the query set handed to retrieval: the HyDE claim plus the
// lexical-diversity paraphrases.
type Expansion struct {
	HypotheticalClaim string   `json:"hypothetical_claim"`
	Paraphrases       []string `json:"paraphrases"`
}

// Queries flattens the expansion into tagged retrieval queries.
func (e Expansion) Queries() []Query {
	out := make([]Query, 0, 1+len(e.Paraphrases))
	if e.HypotheticalClaim != "" {
		out = append(out, Query{Text: e.HypotheticalClaim, Source: QuerySourceHypotheticalClaim})
	}
	for _, p := range e.Paraphrases {
		out = append(out, Query{Text: p, Source: QuerySourceParaphrase})
	}
	return out
}

// Expander generates the HyDE claim and paraphrase queries.
type Expander struct {
	llm   LLM
	cache ExpansionCache
	ttl   time.Duration
	log   logging.Logger
}

func NewExpander(model LLM, cache ExpansionCache, ttl time.Duration, log logging.Logger) *Expander {
	return &Expander{llm: model, cache: cache, ttl: ttl, log: log.Named("expander")}
}

// Expand derives the query set from the wrapped idea.  Both model calls
// degrade to the idea itself on failure; expansion never fails a run.
func (e *Expander) Expand(ctx context.Context, wrappedIdea string) Expansion {
	key := expansionCacheKey(wrappedIdea)
	if e.cache != nil {
		if raw, ok, err := e.cache.Get(ctx, key); err != nil {
			e.log.Warn("expansion cache read failed", logging.Err(err))
		} else if ok {
			var exp Expansion
			if err := json.Unmarshal([]byte(raw), &exp); err == nil {
				e.log.Debug("expansion cache hit")
				return exp
			}
		}
	}

	exp := Expansion{
		HypotheticalClaim: e.hypotheticalClaim(ctx, wrappedIdea),
		Paraphrases:       e.multiQueries(ctx, wrappedIdea),
	}

	if e.cache != nil {
		if raw, err := json.Marshal(exp); err == nil {
			if err := e.cache.Set(ctx, key, string(raw), e.ttl); err != nil {
				e.log.Warn("expansion cache write failed", logging.Err(err))
			}
		}
	}
	return exp
}

func (e *Expander) hypotheticalClaim(ctx context.Context, wrappedIdea string) string {
	out, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Model:       e.llm.Models().HyDEModel,
		System:      hydeSystemPrompt,
		User:        hydeUserPrompt(wrappedIdea),
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil || out == "" {
		e.log.Warn("hypothetical claim generation failed, using idea as query", logging.Err(err))
		return unwrapQuery(wrappedIdea)
	}
	return out
}

func (e *Expander) multiQueries(ctx context.Context, wrappedIdea string) []string {
	out, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Model:       e.llm.Models().HyDEModel,
		System:      multiQuerySystemPrompt,
		User:        wrappedIdea,
		Temperature: 0.7,
		JSONMode:    true,
	})
	if err != nil {
		e.log.Warn("multi-query generation failed, falling back to idea", logging.Err(err))
		return []string{unwrapQuery(wrappedIdea)}
	}

	var parsed struct {
		Queries []string `json:"queries"`
	}
	repaired, err := jsonrepair.JSONRepair(out)
	if err == nil {
		err = json.Unmarshal([]byte(repaired), &parsed)
	}
	if err != nil || len(parsed.Queries) == 0 {
		e.log.Warn("multi-query response unparseable, falling back to idea", logging.Err(err))
		return []string{unwrapQuery(wrappedIdea)}
	}
	if len(parsed.Queries) > 3 {
		parsed.Queries = parsed.Queries[:3]
	}
	return parsed.Queries
}

func expansionCacheKey(wrappedIdea string) string {
	sum := sha256.Sum256([]byte(wrappedIdea))
	return "selfrag:expansion:" + hex.EncodeToString(sum[:])
}
