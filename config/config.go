// Package config loads auditrag configuration from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/auditrag/ai"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ingestion"
	"github.com/poiesic/auditrag/ledger"
	"github.com/poiesic/auditrag/search"
)

// Store backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete auditrag configuration.
type Config struct {
	// Folder is the directory watched for audit-data files.
	Folder    string          `koanf:"folder"`
	Routes    []RouteConfig   `koanf:"routes"`
	Store     StoreConfig     `koanf:"store"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Watch     WatchConfig     `koanf:"watch"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// RouteConfig maps one file name to a table.
type RouteConfig struct {
	File       string   `koanf:"file"`
	Table      string   `koanf:"table"`
	TextFields []string `koanf:"text_fields"`
}

// StoreConfig selects and locates the row store.
type StoreConfig struct {
	Backend string `koanf:"backend"` // badger or sqlite
	Path    string `koanf:"path"`    // directory for badger, database file for sqlite
}

// LedgerConfig locates the processed-files ledger.
type LedgerConfig struct {
	Path       string `koanf:"path"`
	MarkPolicy string `koanf:"mark_policy"` // always or full-success
}

// EmbeddingConfig configures the embedding provider and row retries.
type EmbeddingConfig struct {
	Host        string        `koanf:"host"`
	Model       string        `koanf:"model"`
	APIToken    string        `koanf:"api_token"`
	RateLimit   float64       `koanf:"rate_limit"`
	Burst       int           `koanf:"burst"`
	MaxAttempts int           `koanf:"max_attempts"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

// RetrievalConfig configures similarity retrieval.
type RetrievalConfig struct {
	Limit int `koanf:"limit"`
}

// WatchConfig configures the folder watcher.
type WatchConfig struct {
	SettleInterval time.Duration `koanf:"settle_interval"`
	SettleTimeout  time.Duration `koanf:"settle_timeout"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns a configuration with every default applied and no routes.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Folder == "" {
		cfg.Folder = "./audit_data"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendBadger
	}
	if cfg.Store.Path == "" {
		if cfg.Store.Backend == BackendSQLite {
			cfg.Store.Path = "auditrag.db"
		} else {
			cfg.Store.Path = "auditrag_data"
		}
	}

	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = ledger.DefaultPath
	}

	defaults := ai.DefaultConfig()
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = defaults.EmbeddingHost
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.EmbeddingModel
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = defaults.Burst
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 3
	}
	if cfg.Embedding.RetryDelay == 0 {
		cfg.Embedding.RetryDelay = time.Second
	}

	if cfg.Retrieval.Limit == 0 {
		cfg.Retrieval.Limit = search.DefaultLimit
	}

	if cfg.Watch.SettleInterval == 0 {
		cfg.Watch.SettleInterval = 200 * time.Millisecond
	}
	if cfg.Watch.SettleTimeout == 0 {
		cfg.Watch.SettleTimeout = 30 * time.Second
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Folder) == "" {
		errs = append(errs, errors.New("folder is required"))
	}
	switch c.Store.Backend {
	case BackendBadger, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.backend must be %q or %q, got %q", BackendBadger, BackendSQLite, c.Store.Backend))
	}
	if _, err := ingestion.ParseMarkPolicy(c.Ledger.MarkPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Embedding.MaxAttempts < 0 {
		errs = append(errs, errors.New("embedding.max_attempts cannot be negative"))
	}
	if c.Embedding.RateLimit < 0 {
		errs = append(errs, errors.New("embedding.rate_limit cannot be negative"))
	}
	if c.Retrieval.Limit < 0 {
		errs = append(errs, errors.New("retrieval.limit cannot be negative"))
	}
	if c.Watch.SettleInterval < 0 || c.Watch.SettleTimeout < 0 {
		errs = append(errs, errors.New("watch settle durations cannot be negative"))
	}
	if len(c.Routes) == 0 {
		errs = append(errs, errors.New("at least one route is required"))
	} else if _, err := c.RoutingTable(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// RoutingTable builds the routing table from Routes.
func (c *Config) RoutingTable() (*core.RoutingTable, error) {
	routes := make([]core.Route, len(c.Routes))
	for i, r := range c.Routes {
		routes[i] = core.Route{
			FileName:   strings.TrimSpace(r.File),
			Table:      strings.TrimSpace(r.Table),
			TextFields: r.TextFields,
		}
	}
	return core.NewRoutingTable(routes...)
}

// AIConfig returns the embedding provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIToken(c.Embedding.APIToken),
		ai.WithRateLimit(c.Embedding.RateLimit, c.Embedding.Burst),
	)
}

// MarkPolicy returns the parsed ledger mark policy.
func (c *Config) MarkPolicy() ingestion.MarkPolicy {
	policy, err := ingestion.ParseMarkPolicy(c.Ledger.MarkPolicy)
	if err != nil {
		return ingestion.MarkAlways
	}
	return policy
}
