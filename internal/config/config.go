package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Workers    WorkersConfig    `yaml:"workers" mapstructure:"workers"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	WebSearch  WebSearchConfig  `yaml:"websearch" mapstructure:"websearch"`
	WebReader  WebReaderConfig  `yaml:"webreader" mapstructure:"webreader"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	FinRecords FinRecordsConfig `yaml:"finrecords" mapstructure:"finrecords"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Deliver    DeliverConfig    `yaml:"deliver" mapstructure:"deliver"`
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the two-tier report cache.
type CacheConfig struct {
	TTLSecs             int     `yaml:"ttl_secs" mapstructure:"ttl_secs"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxEntries          int     `yaml:"max_entries" mapstructure:"max_entries"`
	JanitorIntervalSecs int     `yaml:"janitor_interval_secs" mapstructure:"janitor_interval_secs"`
	Persistent          bool    `yaml:"persistent" mapstructure:"persistent"`
}

// EngineConfig configures orchestration behavior.
type EngineConfig struct {
	OverallTimeoutSecs int  `yaml:"overall_timeout_secs" mapstructure:"overall_timeout_secs"`
	DeadLetter         bool `yaml:"dead_letter" mapstructure:"dead_letter"`
}

// WorkersConfig points at the worker roster declaration.
type WorkersConfig struct {
	SpecFile string `yaml:"spec_file" mapstructure:"spec_file"`
}

// EmbeddingConfig holds the embeddings API settings used for similarity
// cache lookups.
type EmbeddingConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
}

// WebSearchConfig holds the search API settings.
type WebSearchConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// WebReaderConfig holds the page reader API settings.
type WebReaderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// FinRecordsConfig configures the financial records lookup.
type FinRecordsConfig struct {
	URL                 string  `yaml:"url" mapstructure:"url"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxCandidates       int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// DeliverConfig configures post-analysis report delivery.
type DeliverConfig struct {
	Enabled         bool    `yaml:"enabled" mapstructure:"enabled"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// DatasetConfig configures the financial records feed sync.
type DatasetConfig struct {
	DatabaseURL   string  `yaml:"database_url" mapstructure:"database_url"`
	TempDir       string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	FeedURL       string  `yaml:"feed_url" mapstructure:"feed_url"`
	FTPHost       string  `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser       string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword   string  `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPPath       string  `yaml:"ftp_path" mapstructure:"ftp_path"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background health checks.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MaxFailureRate      float64 `yaml:"max_failure_rate" mapstructure:"max_failure_rate"`
	MinCacheHitRate     float64 `yaml:"min_cache_hit_rate" mapstructure:"min_cache_hit_rate"`
	MaxDeadLetterDepth  int     `yaml:"max_dead_letter_depth" mapstructure:"max_dead_letter_depth"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file. An empty path falls back
// to the default search; a named file that cannot be read is an error.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "insight.db")
	v.SetDefault("cache.ttl_secs", 3600)
	v.SetDefault("cache.similarity_threshold", 0.95)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.janitor_interval_secs", 300)
	v.SetDefault("cache.persistent", true)
	v.SetDefault("engine.overall_timeout_secs", 300)
	v.SetDefault("engine.dead_letter", true)
	v.SetDefault("embedding.base_url", "https://api.jina.ai")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("websearch.base_url", "https://api.perplexity.ai")
	v.SetDefault("websearch.model", "sonar-pro")
	v.SetDefault("webreader.base_url", "https://r.jina.ai")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("finrecords.similarity_threshold", 0.4)
	v.SetDefault("finrecords.max_candidates", 10)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("deliver.review_threshold", 0.7)
	v.SetDefault("dataset.temp_dir", "/tmp/insight-dataset")
	v.SetDefault("dataset.rate_per_second", 2.0)
	v.SetDefault("batch.max_concurrent_requests", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.max_failure_rate", 0.5)
	v.SetDefault("monitoring.min_cache_hit_rate", 0.0)
	v.SetDefault("monitoring.max_dead_letter_depth", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// The searched file is optional; an explicitly named one is not.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); path != "" || !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
