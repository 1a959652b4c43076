package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/meridianhq/deepsearch/internal/agents"
	"github.com/meridianhq/deepsearch/internal/config"
	"github.com/meridianhq/deepsearch/internal/orchestrator"
	"github.com/meridianhq/deepsearch/internal/personas"
	"github.com/meridianhq/deepsearch/internal/search"
	"github.com/meridianhq/deepsearch/internal/statemachine"
	"github.com/meridianhq/deepsearch/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	engine, db, cleanup, err := buildSearchEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry, err := personas.NewManager(cfg.Personas.ConfigPath, cfg.Personas.HotReload, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	orch := orchestrator.New(orchestrator.Config{
		Machine: statemachine.Config{
			MinConfidence: cfg.Engine.MinConfidence,
			MinSources:    cfg.Engine.MinSources,
			MaxIterations: cfg.Engine.MaxIterations,
		},
		ValidationLevel: cfg.Engine.ValidationLevel,
	}, registry.Registry, logger)

	query := strings.Join(os.Args[1:], " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("usage: engine <research query>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	rc := map[string]interface{}{
		agents.CtxSearchEngine: engine,
		agents.CtxDB:           db,
	}
	if persona := os.Getenv("DEEPSEARCH_PERSONA"); persona != "" {
		rc[agents.CtxPersona] = persona
	}
	if depth := os.Getenv("DEEPSEARCH_DEPTH"); depth != "" {
		rc[agents.CtxDepth] = depth
	}

	resp := orch.ExecuteResearch(ctx, query, rc)

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

// buildSearchEngine wires the vector, fulltext and cache backends. The
// returned db handle is the storage dependency passed through the research
// context; the engine does not define its schema.
func buildSearchEngine(cfg *config.Config, logger *zap.Logger) (search.Engine, interface{}, func(), error) {
	embedder := search.NewEmbeddingClient(
		cfg.Search.Embeddings.BaseURL,
		cfg.Search.Embeddings.Model,
		cfg.Search.Embeddings.Timeout,
	)
	vector := search.NewVectorClient(search.VectorConfig{
		Enabled:    cfg.Search.Vector.Enabled,
		Host:       cfg.Search.Vector.Host,
		Port:       cfg.Search.Vector.Port,
		Collection: cfg.Search.Vector.Collection,
		TopK:       cfg.Search.Vector.TopK,
		Threshold:  cfg.Search.Vector.Threshold,
		Timeout:    cfg.Search.Vector.Timeout,
		RPS:        cfg.Search.RateLimit.RPS,
		Burst:      cfg.Search.RateLimit.Burst,
	}, logger)

	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	var store *search.FulltextStore
	if cfg.Search.Postgres.DSN != "" {
		s, err := search.NewFulltextStore(cfg.Search.Postgres.DSN, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		store = s
		cleanups = append(cleanups, func() { _ = s.Close() })
	}

	var cache *search.Cache
	if cfg.Search.Redis.Enabled {
		c, err := search.NewCache(cfg.Search.Redis.Addr, cfg.Search.Redis.TTL, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cache = c
		cleanups = append(cleanups, func() { _ = c.Close() })
	}

	engine := search.NewCompositeEngine(embedder, vector, store, cache, logger)
	var db interface{}
	if store != nil {
		db = store
	} else {
		db = vector
	}
	return engine, db, cleanup, nil
}
