// Command worker consumes the patent document topic, embeds each
// document, and writes it to both search indexes.  It exposes /healthz
// and /metrics on a separate listener for probes and scraping.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/internal/application/ingestion"
	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/llm/openai"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/search/milvus"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/search/opensearch"
)

const (
	bootstrapTimeout = 60 * time.Second
	bulkLockName     = "ingestion:bulk"
	bulkLockTTL      = 10 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: env vars only)")
	probeAddr := flag.String("probe-addr", ":9091", "listen address for /healthz and /metrics")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting ingestion worker", logging.String("probe_addr", *probeAddr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	metrics := prometheus.New(log)

	model, err := openai.NewClient(cfg.OpenAI, log)
	if err != nil {
		log.Fatal("openai client init failed", logging.Err(err))
	}
	model.SetMetrics(metrics)

	mc, err := milvus.NewClient(cfg.Milvus, log)
	if err != nil {
		log.Fatal("milvus connect failed", logging.Err(err))
	}
	defer mc.Close()
	collections := milvus.NewCollectionManager(mc, cfg.Milvus, log)
	if err := collections.EnsurePatentCollection(bootCtx); err != nil {
		log.Fatal("milvus collection setup failed", logging.Err(err))
	}
	dense := milvus.NewPatentSearcher(mc, collections, log)

	osc, err := opensearch.NewClient(cfg.OpenSearch, log)
	if err != nil {
		log.Fatal("opensearch connect failed", logging.Err(err))
	}
	defer osc.Close()
	indexer := opensearch.NewIndexer(osc, log)
	if err := indexer.EnsureIndex(bootCtx); err != nil {
		log.Fatal("opensearch index setup failed", logging.Err(err))
	}

	rdb, err := redis.NewClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("redis connect failed", logging.Err(err))
	}
	defer rdb.Close()
	bulkLock := redis.NewMutex(rdb, bulkLockName, bulkLockTTL, log)

	svc := ingestion.NewService(cfg.Worker, ingestion.Deps{
		Embedder: model,
		Dense:    dense,
		Sparse:   indexer,
		Lock:     bulkLock,
		Metrics:  metrics,
		Logger:   log,
	})

	deadLetter, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Fatal("kafka producer init failed", logging.Err(err))
	}
	defer deadLetter.Close()

	consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.TopicPatentDocuments, svc.HandleDocument, deadLetter, log)
	if err != nil {
		log.Fatal("kafka consumer init failed", logging.Err(err))
	}
	defer consumer.Close()

	probeSrv := startProbeServer(*probeAddr, metrics, log)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = probeSrv.Shutdown(sctx)
	}()

	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", logging.Err(err))
		os.Exit(1)
	}
	log.Info("ingestion worker stopped")
}

func startProbeServer(addr string, metrics *prometheus.Collector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("probe server failed", logging.Err(err))
		}
	}()
	return srv
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
