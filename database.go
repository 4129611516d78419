// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auditrag

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/auditrag/ai"
	"github.com/poiesic/auditrag/ai/openai"
	"github.com/poiesic/auditrag/config"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ingestion"
	"github.com/poiesic/auditrag/ledger"
	"github.com/poiesic/auditrag/metrics"
	"github.com/poiesic/auditrag/reembed"
	"github.com/poiesic/auditrag/search"
	"github.com/poiesic/auditrag/storage"
	"github.com/poiesic/auditrag/storage/badger"
	"github.com/poiesic/auditrag/storage/sqlite"
	"github.com/poiesic/auditrag/watcher"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrUnknownTable is returned when a table has no route.
var ErrUnknownTable = errors.New("table is not routed")

// Database wires the configured store, ledger and embedding provider together
// and builds the components that use them.
type Database struct {
	cfg      *config.Config
	routes   *core.RoutingTable
	store    storage.Store
	ledger   *ledger.FileLedger
	provider ai.AIProvider
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider   ai.AIProvider
	registerer prometheus.Registerer
	logger     *slog.Logger
}

// WithAIProvider uses provider instead of an OpenAI-compatible provider built
// from the configuration. The Database closes it.
func WithAIProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithMetricsRegisterer registers ingestion and retrieval metrics with reg.
func WithMetricsRegisterer(reg prometheus.Registerer) DatabaseOption {
	return func(o *databaseOptions) {
		o.registerer = reg
	}
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewDatabase opens the store and ledger named by cfg and creates the
// embedding provider. cfg must already be validated.
func NewDatabase(cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	routes, err := cfg.RoutingTable()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(cfg.Ledger.Path, ledger.WithLogger(options.logger))
	if err != nil {
		store.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	var m *metrics.Metrics
	if options.registerer != nil {
		m = metrics.NewMetrics(options.registerer)
	}

	return &Database{
		cfg:      cfg,
		routes:   routes,
		store:    store,
		ledger:   l,
		provider: provider,
		metrics:  m,
		logger:   options.logger,
	}, nil
}

func openStore(cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendBadger, "":
		store, err := badger.OpenStore(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store %s: %w", cfg.Path, err)
		}
		return store, nil
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store %s: %w", cfg.Path, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// Close releases the embedding provider and the store.
func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

func (db *Database) Config() *config.Config {
	return db.cfg
}

func (db *Database) Routes() *core.RoutingTable {
	return db.routes
}

func (db *Database) Store() storage.Store {
	return db.store
}

func (db *Database) Ledger() *ledger.FileLedger {
	return db.ledger
}

// NewIngestor creates an ingestor using the configured mark policy and
// retries. opts are applied after the defaults.
func (db *Database) NewIngestor(opts ...ingestion.Option) (*ingestion.Ingestor, error) {
	base := []ingestion.Option{
		ingestion.WithLogger(db.logger),
		ingestion.WithOutcomeRepository(db.store.Outcomes()),
		ingestion.WithMarkPolicy(db.cfg.MarkPolicy()),
		ingestion.WithMetrics(db.metrics),
	}
	if db.cfg.Embedding.MaxAttempts > 0 {
		base = append(base, ingestion.WithRetry(db.cfg.Embedding.MaxAttempts, db.cfg.Embedding.RetryDelay))
	}
	return ingestion.NewIngestor(db.routes, db.store.Rows(), db.provider.Embedder(), db.ledger, append(base, opts...)...)
}

// NewWatcher creates a watcher over the configured folder feeding processor.
func (db *Database) NewWatcher(processor watcher.Processor, opts ...watcher.Option) (*watcher.Watcher, error) {
	base := []watcher.Option{
		watcher.WithLogger(db.logger),
		watcher.WithSettle(db.cfg.Watch.SettleInterval, db.cfg.Watch.SettleTimeout),
	}
	return watcher.NewWatcher(db.cfg.Folder, processor, append(base, opts...)...)
}

// NewRetriever creates a retriever over every routed table.
// Call Release on the result when done.
func (db *Database) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	base := []search.Option{
		search.WithLogger(db.logger),
		search.WithMetrics(db.metrics),
	}
	if db.cfg.Retrieval.Limit > 0 {
		base = append(base, search.WithLimit(db.cfg.Retrieval.Limit))
	}
	return search.NewRetriever(db.store.Rows(), db.provider.Embedder(), db.routes.Tables(), append(base, opts...)...)
}

// NewReembedder creates a reembedder for a routed table. When several files
// feed the table, the route with the lowest file name supplies the text fields.
func (db *Database) NewReembedder(table string, cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	route, ok := db.routes.RouteForTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return reembed.NewReembedder(db.store.Rows(), db.provider.Embedder(), route, cfg, progress)
}
