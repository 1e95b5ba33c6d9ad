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
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Scraper     ScraperConfig     `yaml:"scraper" mapstructure:"scraper"`
	OCR         OCRConfig         `yaml:"ocr" mapstructure:"ocr"`
	Integration IntegrationConfig `yaml:"integration" mapstructure:"integration"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Completion  CompletionConfig  `yaml:"completion" mapstructure:"completion"`
	Migration   MigrationConfig   `yaml:"migration" mapstructure:"migration"`
	Merge       MergeConfig       `yaml:"merge" mapstructure:"merge"`
	Enrich      EnrichConfig      `yaml:"enrich" mapstructure:"enrich"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScraperConfig configures the chamber scrapers. Each chamber's base URL
// points at the structured snapshot feed published by the scraping tier.
type ScraperConfig struct {
	RepresentativesBaseURL string  `yaml:"representatives_base_url" mapstructure:"representatives_base_url"`
	CouncillorsBaseURL     string  `yaml:"councillors_base_url" mapstructure:"councillors_base_url"`
	UserAgent              string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond      float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst                  int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs            int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries             int     `yaml:"max_retries" mapstructure:"max_retries"`
	MinTextLength          int     `yaml:"min_text_length" mapstructure:"min_text_length"`
}

// OCRConfig configures PDF text extraction fallback.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// IntegrationConfig configures the per-session integration run.
type IntegrationConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	PersistRetries   int `yaml:"persist_retries" mapstructure:"persist_retries"`
	FetchTimeoutSecs int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// AuditConfig configures quality auditing thresholds.
type AuditConfig struct {
	StaleDays             int     `yaml:"stale_days" mapstructure:"stale_days"`
	QualityScoreThreshold float64 `yaml:"quality_score_threshold" mapstructure:"quality_score_threshold"`
	TimeoutSecs           int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CompletionConfig configures the completion processor.
type CompletionConfig struct {
	RefetchTimeoutSecs int `yaml:"refetch_timeout_secs" mapstructure:"refetch_timeout_secs"`
}

// MigrationConfig configures the migration service.
type MigrationConfig struct {
	PhaseTimeoutSecs int    `yaml:"phase_timeout_secs" mapstructure:"phase_timeout_secs"`
	ExportDir        string `yaml:"export_dir" mapstructure:"export_dir"`
}

// MergeConfig configures conflict resolution.
type MergeConfig struct {
	// PriorityFile optionally points at a YAML file overriding the default
	// per-field source priority table.
	PriorityFile string `yaml:"priority_file" mapstructure:"priority_file"`
}

// EnrichConfig configures LLM issue-tag enrichment.
type EnrichConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ServerConfig configures the read-only HTTP surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BILLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "billsync.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("scraper.user_agent", "billsync/1.0 (+https://github.com/diet-tracker/billsync)")
	v.SetDefault("scraper.requests_per_second", 0.5)
	v.SetDefault("scraper.burst", 1)
	v.SetDefault("scraper.timeout_secs", 30)
	v.SetDefault("scraper.max_retries", 3)
	v.SetDefault("scraper.min_text_length", 100)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("integration.concurrency", 3)
	v.SetDefault("integration.persist_retries", 3)
	v.SetDefault("integration.fetch_timeout_secs", 120)
	v.SetDefault("audit.stale_days", 14)
	v.SetDefault("audit.quality_score_threshold", 0.6)
	v.SetDefault("audit.timeout_secs", 300)
	v.SetDefault("completion.refetch_timeout_secs", 60)
	v.SetDefault("migration.phase_timeout_secs", 600)
	v.SetDefault("migration.export_dir", "reports")
	v.SetDefault("enrich.model", "claude-haiku-4-5-20251001")
	v.SetDefault("enrich.max_tokens", 1024)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
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
