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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Signals   SignalsConfig   `yaml:"signals" mapstructure:"signals"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OrgLookup OrgLookupConfig `yaml:"orglookup" mapstructure:"orglookup"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the primary Postgres database.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LedgerConfig configures the pipeline job ledger backend. Driver is
// "postgres" (shared with the store) or "sqlite" for local runs.
type LedgerConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// SyncConfig configures the contract sync pipeline.
type SyncConfig struct {
	FindATenderBaseURL     string `yaml:"find_a_tender_base_url" mapstructure:"find_a_tender_base_url"`
	ContractsFinderBaseURL string `yaml:"contracts_finder_base_url" mapstructure:"contracts_finder_base_url"`
	PageDelaySecs          int    `yaml:"page_delay_secs" mapstructure:"page_delay_secs"`
	MaxRetries             int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackfillFrom           string `yaml:"backfill_from" mapstructure:"backfill_from"`
	PageBudget             int    `yaml:"page_budget" mapstructure:"page_budget"`
}

// EnrichConfig configures the buyer enrichment pipeline.
type EnrichConfig struct {
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxConcurrent  int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	RegistryYAML   string  `yaml:"registry_yaml" mapstructure:"registry_yaml"`
	RegistryXLSX   string  `yaml:"registry_xlsx" mapstructure:"registry_xlsx"`
	ScoreBatchSize int     `yaml:"score_batch_size" mapstructure:"score_batch_size"`
	ProfileLookups bool    `yaml:"profile_lookups" mapstructure:"profile_lookups"`
}

// SignalsConfig configures board-document signal extraction.
type SignalsConfig struct {
	MaxDocsPerBuyer int `yaml:"max_docs_per_buyer" mapstructure:"max_docs_per_buyer"`
	ChunkSize       int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	CallBudget      int `yaml:"call_budget" mapstructure:"call_budget"`
	ChunkDelaySecs  int `yaml:"chunk_delay_secs" mapstructure:"chunk_delay_secs"`
	DedupWindowDays int `yaml:"dedup_window_days" mapstructure:"dedup_window_days"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OrgLookupConfig holds the organisation profile lookup API settings.
type OrgLookupConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ServerConfig configures the trigger HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ledger.driver", "postgres")
	v.SetDefault("ledger.path", "intel-jobs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("sync.find_a_tender_base_url", "https://www.find-tender.service.gov.uk/api/1.0/ocdsReleasePackages")
	v.SetDefault("sync.contracts_finder_base_url", "https://www.contractsfinder.service.gov.uk/Published/Notices/OCDS/Search")
	v.SetDefault("sync.page_delay_secs", 10)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.backfill_from", "2023-01-01")
	v.SetDefault("sync.page_budget", 0)
	v.SetDefault("enrich.batch_size", 200)
	v.SetDefault("enrich.max_concurrent", 2)
	v.SetDefault("enrich.fuzzy_threshold", 0.3)
	v.SetDefault("enrich.score_batch_size", 500)
	v.SetDefault("enrich.profile_lookups", true)
	v.SetDefault("signals.max_docs_per_buyer", 5)
	v.SetDefault("signals.chunk_size", 4000)
	v.SetDefault("signals.chunk_overlap", 200)
	v.SetDefault("signals.call_budget", 200)
	v.SetDefault("signals.chunk_delay_secs", 1)
	v.SetDefault("signals.dedup_window_days", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("orglookup.base_url", "https://api.thecompaniesapi.com/v2")

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

// Validate checks that the configuration required for the given command mode
// is present. Modes: "sync", "enrich", "signals", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "sync":
		check(c.Store.DatabaseURL != "", "store.database_url is required")
		check(c.Sync.MaxRetries >= 1, "sync.max_retries must be >= 1")
		check(c.Sync.PageDelaySecs >= 0, "sync.page_delay_secs must be >= 0")
	case "enrich":
		check(c.Store.DatabaseURL != "", "store.database_url is required")
		check(c.Enrich.FuzzyThreshold >= 0 && c.Enrich.FuzzyThreshold <= 1, "enrich.fuzzy_threshold must be between 0 and 1")
		check(c.Enrich.MaxConcurrent >= 1 && c.Enrich.MaxConcurrent <= 20, "enrich.max_concurrent must be between 1 and 20")
		if c.Enrich.ProfileLookups {
			check(c.OrgLookup.Key != "", "orglookup.key is required")
		}
	case "signals":
		check(c.Store.DatabaseURL != "", "store.database_url is required")
		check(c.Anthropic.Key != "", "anthropic.key is required")
		check(c.Signals.ChunkSize > 0, "signals.chunk_size must be > 0")
		check(c.Signals.ChunkOverlap >= 0 && c.Signals.ChunkOverlap < c.Signals.ChunkSize, "signals.chunk_overlap must be >= 0 and < chunk_size")
	case "serve":
		check(c.Store.DatabaseURL != "", "store.database_url is required")
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Ledger.Driver != "postgres" && c.Ledger.Driver != "sqlite" {
		problems = append(problems, "ledger.driver must be postgres or sqlite")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
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
