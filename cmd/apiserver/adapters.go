package main

import (
	"context"
	"net/http"

	"github.com/turtacn/ShortCut-Intelligence/internal/application/analysis"
	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/postgres"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/search/milvus"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/search/opensearch"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/storage/minio"
	"github.com/turtacn/ShortCut-Intelligence/internal/intelligence/selfrag"
	"github.com/turtacn/ShortCut-Intelligence/internal/intelligence/serving"
	httpserver "github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http"
	"github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http/middleware"
)

// app holds the wired dependency graph and owns the connections that
// need closing on shutdown.
type app struct {
	Router  http.Handler
	closers []func() error
	log     logging.Logger
}

// Close releases connections in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed during shutdown", logging.Err(err))
		}
	}
}

// healthFunc adapts a plain probe function to the handler's interface.
type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// buildApp constructs every infrastructure client, the pipeline, and the
// HTTP router.  Schema migration, index and collection creation, and
// topic creation all run here so the serving path never performs DDL.
func buildApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*app, error) {
	a := &app{log: log}
	metrics := prometheus.New(log)

	pg, err := postgres.NewConnection(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pg.Close)
	if err := pg.Migrate(); err != nil {
		return nil, err
	}
	historyRepo := repositories.NewHistoryRepo(pg, log)

	rdb, err := redis.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	limiter, err := redis.NewRateLimiter(rdb, cfg.RateLimit, log)
	if err != nil {
		return nil, err
	}
	expansionCache := redis.NewCache(rdb, cfg.Pipeline.ExpansionCacheTTL, log)

	mc, err := milvus.NewClient(cfg.Milvus, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, mc.Close)
	collections := milvus.NewCollectionManager(mc, cfg.Milvus, log)
	if err := collections.EnsurePatentCollection(ctx); err != nil {
		return nil, err
	}
	dense := milvus.NewPatentSearcher(mc, collections, log)

	osc, err := opensearch.NewClient(cfg.OpenSearch, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, osc.Close)
	indexer := opensearch.NewIndexer(osc, log)
	if err := indexer.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	sparse := opensearch.NewPatentSearcher(osc, log)

	model, err := openai.NewClient(cfg.OpenAI, log)
	if err != nil {
		return nil, err
	}
	model.SetMetrics(metrics)
	reranker, err := serving.NewClient(cfg.Rerank, log)
	if err != nil {
		return nil, err
	}

	store, err := minio.NewClient(cfg.MinIO, log)
	if err != nil {
		return nil, err
	}
	reports := minio.NewReportStore(store, log)

	topics, err := kafka.NewTopicManager(cfg.Kafka.Brokers, log)
	if err != nil {
		return nil, err
	}
	if err := topics.EnsureDefaultTopics(ctx); err != nil {
		_ = topics.Close()
		return nil, err
	}
	if err := topics.Close(); err != nil {
		log.Warn("topic manager close failed", logging.Err(err))
	}
	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, producer.Close)

	p := cfg.Pipeline
	pipeline := selfrag.New(p, selfrag.Deps{
		Sandbox:   selfrag.NewSandbox(p.MaxInputChars, log),
		Expander:  selfrag.NewExpander(model, expansionCache, p.ExpansionCacheTTL, log),
		Retriever: selfrag.NewRetriever(model, dense, sparse, p.FusionAlpha, p.TopK, log),
		Reranker:  selfrag.NewReranker(reranker, cfg.Rerank.MaxDocChars, log),
		Grader:    selfrag.NewGrader(model, p.GradingCutoff, p.RewriteThreshold, p.HighFilterRatioPct, log),
		Analyst:   selfrag.NewAnalyst(model, p.GradingCutoff, p.RiskMediumFloor, p.RiskHighFloor, p.HighFilterRatioPct, log),
		Metrics:   metrics,
		Logger:    log,
	})

	svc := analysis.NewService(analysis.Deps{
		Pipeline: pipeline,
		History:  historyRepo,
		Reports:  reports,
		Events:   producer,
		Logger:   log,
	})

	health := handlers.NewHealthHandler(map[string]handlers.HealthChecker{
		"postgres":   pg,
		"redis":      healthFunc(rdb.Ping),
		"milvus":     healthFunc(mc.CheckHealth),
		"opensearch": healthFunc(osc.Ping),
		"minio":      store,
	}, metrics, log)

	routerCfg := httpserver.RouterConfig{
		AnalysisHandler: handlers.NewAnalysisHandler(svc, cfg.Server.MaxBodySize, log),
		HealthHandler:   health,
		HTTPMetrics:     metrics,
		MetricsHandler:  metrics.Handler(),
		Logger:          log,
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		routerCfg.CORS = middleware.NewCORS(cfg.Server.AllowedOrigins)
	}
	if cfg.RateLimit.Enabled {
		routerCfg.RateLimit = middleware.NewRateLimit(limiter, metrics, log)
	}

	a.Router = httpserver.NewRouter(routerCfg)
	return a, nil
}
