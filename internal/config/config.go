// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Index     IndexConfig     `mapstructure:"index"`
	LLM       LLMConfig       `mapstructure:"llm"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs fetch behavior and per-job crawl defaults.
type CrawlerConfig struct {
	Concurrency       int    `mapstructure:"concurrency"`
	QueueDepth        int    `mapstructure:"queue_depth"`
	UserAgent         string `mapstructure:"user_agent"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	PolitenessDelayMs int    `mapstructure:"politeness_delay_ms"`
	MaxPagesDefault   int    `mapstructure:"max_pages_default"`
	MaxDepthDefault   int    `mapstructure:"max_depth_default"`
	MaxPagesLimit     int    `mapstructure:"max_pages_limit"`
	MaxDepthLimit     int    `mapstructure:"max_depth_limit"`
}

// RetrievalConfig governs question answering.
type RetrievalConfig struct {
	TopK              int `mapstructure:"top_k"`
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Provider   string `mapstructure:"provider"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig holds credentials and model names for the external APIs.
type LLMConfig struct {
	AnthropicAPIKey    string `mapstructure:"anthropic_api_key"`
	AnthropicModel     string `mapstructure:"anthropic_model"`
	AnthropicMaxTokens int    `mapstructure:"anthropic_max_tokens"`
	OpenAIAPIKey       string `mapstructure:"openai_api_key"`
	EmbeddingModel     string `mapstructure:"embedding_model"`
	EmbeddingBaseURL   string `mapstructure:"embedding_base_url"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// StorageConfig selects and configures the raw-page archive.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASKMYSITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "askmysite-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.politeness_delay_ms", 500)
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.max_depth_default", 1)
	v.SetDefault("crawler.max_pages_limit", 100)
	v.SetDefault("crawler.max_depth_limit", 3)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.job_timeout_seconds", 300)
	v.SetDefault("index.provider", "memory")
	v.SetDefault("index.table", "chunks")
	v.SetDefault("index.dimensions", 1536)
	v.SetDefault("llm.anthropic_max_tokens", 500)
	v.SetDefault("storage.provider", "none")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	switch c.Index.Provider {
	case "memory":
	case "postgres":
		if c.Index.DSN == "" {
			return fmt.Errorf("index.dsn must be set when index.provider is postgres")
		}
	default:
		return fmt.Errorf("index.provider must be memory or postgres")
	}
	switch c.Storage.Provider {
	case "none", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider must be none, memory, or gcs")
	}
	return nil
}

// FetchTimeout returns the per-request fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// PolitenessDelay returns the post-fetch delay between requests.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.Crawler.PolitenessDelayMs) * time.Millisecond
}

// JobTimeout returns the end-to-end bound for one ingest job.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Retrieval.JobTimeoutSeconds) * time.Second
}
