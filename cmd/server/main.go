package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trial-match-server/internal/api"
	"github.com/trial-match-server/internal/config"
	"github.com/trial-match-server/internal/domain"
	"github.com/trial-match-server/internal/logging"
	"github.com/trial-match-server/internal/reasoning"
	"github.com/trial-match-server/internal/search"
	"github.com/trial-match-server/internal/service"
	"github.com/trial-match-server/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting trial match server")

	registry := external.NewRegistryClient(external.RegistryConfig{
		BaseURL:    cfg.Registry.BaseURL,
		Timeout:    cfg.Registry.Timeout,
		RateLimit:  cfg.Registry.RateLimit,
		RateWindow: cfg.Registry.RateWindow,
		MaxRetries: cfg.Registry.MaxRetries,
		PageSize:   cfg.Registry.PageSize,
		CacheTTL:   cfg.Registry.CacheTTL,
	}, logger)

	llm := external.NewLLMClient(external.LLMConfig{
		APIKey:        cfg.LLM.APIKey,
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       cfg.LLM.Timeout,
		RateLimit:     cfg.LLM.RateLimit,
		MaxRetries:    cfg.LLM.MaxRetries,
		MaxConcurrent: cfg.LLM.MaxConcurrent,
	}, logger)

	engine := search.NewEngine(cfg.Search.VectorDimension, cfg.Search.SimilarityThreshold, logger)

	assessor := reasoning.NewService(llm, reasoning.Config{
		CacheEnabled: cfg.Matching.CacheResults,
		CacheSize:    cfg.Matching.CacheSize,
	}, logger)

	matcher := service.NewMatcher(engine, registry, assessor, cfg.Matching, llm.Model(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Search.SeedOnStart {
		go seedIndex(ctx, engine, registry, cfg.Search.SeedConditions, logger)
	}

	server := api.NewServer(cfg, matcher, registry, engine, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}

// newLogger configures logrus from the logging section
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.HIPAASafe {
		logger.AddHook(logging.NewRedactionHook())
	}
	return logger
}

// seedIndex preloads the search index from the registry at startup. Seeding
// is best-effort; the registry fallback covers an empty index.
func seedIndex(ctx context.Context, engine *search.Engine, registry *external.RegistryClient, conditions []string, logger *logrus.Logger) {
	if len(conditions) == 0 {
		conditions = []string{"cancer", "diabetes", "heart disease"}
	}

	total := 0
	for _, condition := range conditions {
		if ctx.Err() != nil {
			return
		}
		result, err := registry.Search(ctx, external.SearchParams{
			Conditions: []string{condition},
		})
		if err != nil {
			logger.WithFields(logrus.Fields{
				"condition": condition,
				"error":     err.Error(),
			}).Warn("Index seeding query failed")
			continue
		}
		total += engine.BulkIndex(result.Trials)
	}

	logger.WithFields(logrus.Fields{
		"conditions": len(conditions),
		"indexed":    total,
	}).Info("Search index seeded")
}
