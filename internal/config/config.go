package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type BreakerConfig struct {
	FailureRatio       float64 `yaml:"failure_ratio"`
	MinObservations    int     `yaml:"min_observations"`
	WindowSeconds      int     `yaml:"window_seconds"`
	OpenTimeoutSeconds int     `yaml:"open_timeout_seconds"`
	SuccessThreshold   int     `yaml:"success_threshold"`
	HalfOpenMaxCalls   int     `yaml:"half_open_max_calls"`
	Adaptive           bool    `yaml:"adaptive"`
}

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	QdrantURL        string `yaml:"qdrant_url"`
	QdrantCollection string `yaml:"qdrant_collection"`

	OllamaURL        string `yaml:"ollama_url"`
	OllamaEmbedModel string `yaml:"ollama_embed_model"`

	CohereURL           string  `yaml:"cohere_url"`
	CohereAPIKey        string  `yaml:"cohere_api_key"`
	CohereModel         string  `yaml:"cohere_model"`
	RerankEnabled       bool    `yaml:"rerank_enabled"`
	RerankRatePerSecond float64 `yaml:"rerank_rate_per_second"`
	RerankRateBurst     int     `yaml:"rerank_rate_burst"`

	TopKPerSource   int     `yaml:"top_k_per_source"`
	TopKFinal       int     `yaml:"top_k_final"`
	FusionRRFK      int     `yaml:"fusion_rrf_k"`
	VectorWeight    float64 `yaml:"vector_weight"`
	KeywordWeight   float64 `yaml:"keyword_weight"`
	DiversityLambda float64 `yaml:"diversity_lambda"`

	BM25K1 float64 `yaml:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b"`

	SearchTimeoutSeconds int `yaml:"search_timeout_seconds"`
	RerankTimeoutSeconds int `yaml:"rerank_timeout_seconds"`

	VectorBreaker BreakerConfig `yaml:"vector_breaker"`
	RerankBreaker BreakerConfig `yaml:"rerank_breaker"`
}

// Load reads configuration from the environment. When CONFIG_FILE points at
// a YAML file, keys present in that file override the environment.
func Load() (Config, error) {
	cfg := Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "dealer_documents"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),

		CohereURL:           mustEnv("COHERE_URL", "https://api.cohere.com"),
		CohereAPIKey:        mustEnv("COHERE_API_KEY", ""),
		CohereModel:         mustEnv("COHERE_MODEL", "rerank-v3.5"),
		RerankEnabled:       mustEnvBool("RERANK_ENABLED", true),
		RerankRatePerSecond: mustEnvFloat("RERANK_RATE_PER_SECOND", 10),
		RerankRateBurst:     mustEnvInt("RERANK_RATE_BURST", 10),

		TopKPerSource:   mustEnvInt("TOP_K_PER_SOURCE", 30),
		TopKFinal:       mustEnvInt("TOP_K_FINAL", 5),
		FusionRRFK:      mustEnvInt("FUSION_RRF_K", 60),
		VectorWeight:    mustEnvFloat("VECTOR_WEIGHT", 0.6),
		KeywordWeight:   mustEnvFloat("KEYWORD_WEIGHT", 0.4),
		DiversityLambda: mustEnvFloat("DIVERSITY_LAMBDA", 0.5),

		BM25K1: mustEnvFloat("BM25_K1", 1.2),
		BM25B:  mustEnvFloat("BM25_B", 0.75),

		SearchTimeoutSeconds: mustEnvInt("SEARCH_TIMEOUT_SECONDS", 5),
		RerankTimeoutSeconds: mustEnvInt("RERANK_TIMEOUT_SECONDS", 10),

		VectorBreaker: BreakerConfig{
			FailureRatio:       mustEnvFloat("VECTOR_BREAKER_FAILURE_RATIO", 0.5),
			MinObservations:    mustEnvInt("VECTOR_BREAKER_MIN_OBSERVATIONS", 5),
			WindowSeconds:      mustEnvInt("VECTOR_BREAKER_WINDOW_SECONDS", 60),
			OpenTimeoutSeconds: mustEnvInt("VECTOR_BREAKER_OPEN_TIMEOUT_SECONDS", 30),
			SuccessThreshold:   mustEnvInt("VECTOR_BREAKER_SUCCESS_THRESHOLD", 3),
			HalfOpenMaxCalls:   mustEnvInt("VECTOR_BREAKER_HALF_OPEN_MAX_CALLS", 1),
			Adaptive:           mustEnvBool("VECTOR_BREAKER_ADAPTIVE", true),
		},
		RerankBreaker: BreakerConfig{
			FailureRatio:       mustEnvFloat("RERANK_BREAKER_FAILURE_RATIO", 0.5),
			MinObservations:    mustEnvInt("RERANK_BREAKER_MIN_OBSERVATIONS", 3),
			WindowSeconds:      mustEnvInt("RERANK_BREAKER_WINDOW_SECONDS", 60),
			OpenTimeoutSeconds: mustEnvInt("RERANK_BREAKER_OPEN_TIMEOUT_SECONDS", 20),
			SuccessThreshold:   mustEnvInt("RERANK_BREAKER_SUCCESS_THRESHOLD", 2),
			HalfOpenMaxCalls:   mustEnvInt("RERANK_BREAKER_HALF_OPEN_MAX_CALLS", 1),
			Adaptive:           mustEnvBool("RERANK_BREAKER_ADAPTIVE", true),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// applyFile overlays YAML onto cfg; keys absent from the document keep their
// environment values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
