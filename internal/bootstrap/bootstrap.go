package bootstrap

import (
	"log/slog"
	"time"

	"github.com/blueonelabs/dealer-rag/internal/config"
	"github.com/blueonelabs/dealer-rag/internal/core/ports"
	"github.com/blueonelabs/dealer-rag/internal/core/usecase"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/embed/ollama"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/keyword"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/rerank/cohere"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/resilience"
	"github.com/blueonelabs/dealer-rag/internal/infrastructure/vector/qdrant"
	"github.com/blueonelabs/dealer-rag/internal/observability/metrics"
)

// Dependency names for the process-lifetime circuit breakers.
const (
	BreakerVectorSearch = "vector_search"
	BreakerRerank       = "rerank"
)

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.RetrievalMetrics
	Breakers  *resilience.Registry
	Retriever *usecase.HybridRetriever
	Embedder  ports.QueryEmbedder
}

func New(cfg config.Config, log *slog.Logger) *App {
	m := metrics.NewRetrievalMetrics("dealer-rag")
	breakers := resilience.NewRegistry(
		resilience.WithLogger(log),
		resilience.WithObserver(m),
	)

	vectorBreaker := breakers.Get(BreakerVectorSearch, breakerConfig(cfg.VectorBreaker))
	rerankBreaker := breakers.Get(BreakerRerank, breakerConfig(cfg.RerankBreaker))

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	keywordIndex := keyword.NewIndex(keyword.Config{K1: cfg.BM25K1, B: cfg.BM25B})

	var reranker ports.Reranker
	if cfg.RerankEnabled && cfg.CohereAPIKey != "" {
		reranker = cohere.New(cfg.CohereURL, cfg.CohereAPIKey,
			cohere.WithModel(cfg.CohereModel),
			cohere.WithRateLimit(cfg.RerankRatePerSecond, cfg.RerankRateBurst),
		)
	}

	retriever := usecase.NewHybridRetriever(
		vectorDB,
		keywordIndex,
		reranker,
		vectorBreaker,
		rerankBreaker,
		usecase.Config{
			RRFK:          cfg.FusionRRFK,
			VectorWeight:  cfg.VectorWeight,
			KeywordWeight: cfg.KeywordWeight,
			SearchTimeout: time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
			RerankTimeout: time.Duration(cfg.RerankTimeoutSeconds) * time.Second,
		},
		log,
	)

	return &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   m,
		Breakers:  breakers,
		Retriever: retriever,
		Embedder:  ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel),
	}
}

func breakerConfig(cfg config.BreakerConfig) resilience.Config {
	return resilience.Config{
		FailureRatio:     cfg.FailureRatio,
		MinObservations:  cfg.MinObservations,
		Window:           time.Duration(cfg.WindowSeconds) * time.Second,
		OpenTimeout:      time.Duration(cfg.OpenTimeoutSeconds) * time.Second,
		SuccessThreshold: cfg.SuccessThreshold,
		HalfOpenMaxCalls: cfg.HalfOpenMaxCalls,
		Adaptive:         cfg.Adaptive,
	}
}
