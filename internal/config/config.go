package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string `yaml:"api_port"`
	LogLevel string `yaml:"log_level"`

	BackendHistoryURL    string `yaml:"backend_history_url"`
	BackendReadCountURL  string `yaml:"backend_read_count_url"`
	BackendTokenUsageURL string `yaml:"backend_token_usage_url"`
	BackendTimeoutSecs   int    `yaml:"backend_timeout_seconds"`

	OpenAIAPIKey      string  `yaml:"openai_api_key"`
	OpenAIBaseURL     string  `yaml:"openai_base_url"`
	OpenAIChatModel   string  `yaml:"openai_chat_model"`
	OpenAIEmbedModel  string  `yaml:"openai_embed_model"`
	OpenAITemperature float64 `yaml:"openai_temperature"`
	OpenAITimeoutSecs int     `yaml:"openai_timeout_seconds"`

	QdrantURL         string   `yaml:"qdrant_url"`
	QdrantTimeoutSecs int      `yaml:"qdrant_timeout_seconds"`
	LawCollections    []string `yaml:"law_collections"`

	CandidateLimit int `yaml:"candidate_limit"`
	RerankCeiling  int `yaml:"rerank_ceiling"`
	RerankTopK     int `yaml:"rerank_top_k"`
	RerankWorkers  int `yaml:"rerank_workers"`

	HistoryWindow    int `yaml:"history_window"`
	TokenFloor       int `yaml:"token_floor"`
	PersistTimeoutMS int `yaml:"persist_timeout_ms"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	MaxInFlight    int     `yaml:"max_in_flight"`
}

// Load reads an optional YAML file named by CONFIG_FILE, then applies
// environment variables on top. Environment always wins, so deploys can
// override a committed config without editing it.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.APIPort = mustEnv("API_PORT", cfg.APIPort)
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.BackendHistoryURL = mustEnv("BACKEND_HISTORY_URL", cfg.BackendHistoryURL)
	cfg.BackendReadCountURL = mustEnv("BACKEND_READ_COUNT_URL", cfg.BackendReadCountURL)
	cfg.BackendTokenUsageURL = mustEnv("BACKEND_TOKEN_USAGE_URL", cfg.BackendTokenUsageURL)
	cfg.BackendTimeoutSecs = mustEnvInt("BACKEND_TIMEOUT_SECONDS", cfg.BackendTimeoutSecs)

	cfg.OpenAIAPIKey = mustEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = mustEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIChatModel = mustEnv("OPENAI_CHAT_MODEL", cfg.OpenAIChatModel)
	cfg.OpenAIEmbedModel = mustEnv("OPENAI_EMBED_MODEL", cfg.OpenAIEmbedModel)
	cfg.OpenAITemperature = mustEnvFloat("OPENAI_TEMPERATURE", cfg.OpenAITemperature)
	cfg.OpenAITimeoutSecs = mustEnvInt("OPENAI_TIMEOUT_SECONDS", cfg.OpenAITimeoutSecs)

	cfg.QdrantURL = mustEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantTimeoutSecs = mustEnvInt("QDRANT_TIMEOUT_SECONDS", cfg.QdrantTimeoutSecs)
	if v := os.Getenv("LAW_COLLECTIONS"); v != "" {
		cfg.LawCollections = splitList(v)
	}

	cfg.CandidateLimit = mustEnvInt("CANDIDATE_LIMIT", cfg.CandidateLimit)
	cfg.RerankCeiling = mustEnvInt("RERANK_CEILING", cfg.RerankCeiling)
	cfg.RerankTopK = mustEnvInt("RERANK_TOP_K", cfg.RerankTopK)
	cfg.RerankWorkers = mustEnvInt("RERANK_WORKERS", cfg.RerankWorkers)

	cfg.HistoryWindow = mustEnvInt("HISTORY_WINDOW", cfg.HistoryWindow)
	cfg.TokenFloor = mustEnvInt("TOKEN_FLOOR", cfg.TokenFloor)
	cfg.PersistTimeoutMS = mustEnvInt("PERSIST_TIMEOUT_MS", cfg.PersistTimeoutMS)

	cfg.RateLimitRPS = mustEnvFloat("API_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = mustEnvInt("API_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.MaxInFlight = mustEnvInt("API_MAX_IN_FLIGHT", cfg.MaxInFlight)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		APIPort:  "8080",
		LogLevel: "info",

		BackendHistoryURL:    "http://localhost:8000/api/chatbot/histories",
		BackendReadCountURL:  "http://localhost:8000/api/chatbot/read-counts",
		BackendTokenUsageURL: "http://localhost:8000/api/chatbot/token-usage",
		BackendTimeoutSecs:   10,

		OpenAIChatModel:   "gpt-4o",
		OpenAIEmbedModel:  "text-embedding-3-small",
		OpenAITemperature: 0.3,
		OpenAITimeoutSecs: 60,

		QdrantURL:         "http://localhost:6333",
		QdrantTimeoutSecs: 30,
		LawCollections:    []string{"AgedCareLaw", "QualityStandards"},

		CandidateLimit: 8,
		RerankCeiling:  20,
		RerankTopK:     5,

		HistoryWindow:    10,
		TokenFloor:       1000,
		PersistTimeoutMS: 10000,

		RateLimitRPS:   10,
		RateLimitBurst: 20,
		MaxInFlight:    64,
	}
}

func (c Config) validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required")
	}
	if len(c.LawCollections) == 0 {
		return fmt.Errorf("config: at least one law collection is required")
	}
	return nil
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSecs) * time.Second
}

func (c Config) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAITimeoutSecs) * time.Second
}

func (c Config) QdrantTimeout() time.Duration {
	return time.Duration(c.QdrantTimeoutSecs) * time.Second
}

func (c Config) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutMS) * time.Millisecond
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
