// Command apiserver runs the ShortCut-Intelligence analysis API: the
// Self-RAG pipeline behind an SSE streaming endpoint, analysis history,
// and report downloads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http"
)

const bootstrapTimeout = 60 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: env vars only)")
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
	log.Info("starting apiserver",
		logging.Int("port", cfg.Server.Port),
		logging.String("mode", cfg.Server.Mode),
	)

	bootCtx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	app, err := buildApp(bootCtx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("bootstrap failed", logging.Err(err))
	}
	defer app.Close()

	server := httpserver.NewServer(cfg.Server, app.Router, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", logging.Err(err))
		}
	}

	if err := server.Stop(context.Background()); err != nil {
		log.Error("shutdown incomplete", logging.Err(err))
	}
	log.Info("apiserver stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}
