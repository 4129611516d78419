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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/auditrag"
	"github.com/poiesic/auditrag/config"
	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/ingestion"
	"github.com/poiesic/auditrag/reembed"
	"github.com/poiesic/auditrag/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// logFile is the optional log destination opened by setupLogger.
var logFile *os.File

func main() {
	app := &cli.App{
		Name:  "auditrag",
		Usage: "Semantic retrieval over audit data folders",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also append logs to this file",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file (default " + config.DefaultPath + " if present)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file (default .env if present)",
			},
		},
		Before: setupLogger,
		After:  closeLogFile,
		Commands: []*cli.Command{
			{
				Name:   "watch",
				Usage:  "Ingest the audit folder backlog, then watch it for new files",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N rows",
						Value: 100,
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest the given files once",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Ingest even if the file is already in the ledger",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N rows",
						Value: 100,
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Retrieve the most similar rows of every table",
				ArgsUsage: "TEXT",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Hits per table (default from configuration)",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print retrieval stages to stderr",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show ledger entries and the last outcome per file",
				Action: statusCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all rows of a table with the configured model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "table",
						Aliases:  []string{"t"},
						Usage:    "Table to reembed",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of rows to embed in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N rows",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openDatabase(c *cli.Context, opts ...auditrag.DatabaseOption) (*auditrag.Database, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	db, err := auditrag.NewDatabase(cfg, append([]auditrag.DatabaseOption{auditrag.WithLogger(slog.Default())}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func printDatabase(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Backend)
	fmt.Fprintf(w, "Ledger: %s\n", cfg.Ledger.Path)
	fmt.Fprintf(w, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(w, "Embedding model: %s\n", cfg.Embedding.Model)
}

func watchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []auditrag.DatabaseOption
	var registry *prometheus.Registry
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if cfg.Metrics.Addr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, auditrag.WithMetricsRegisterer(registry))
	}

	db, err := auditrag.NewDatabase(cfg, append(opts, auditrag.WithLogger(slog.Default()))...)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if registry != nil {
		server := serveMetrics(cfg.Metrics.Addr, registry)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	ingestor, err := db.NewIngestor(ingestion.WithProgress(os.Stderr, c.Int("report-interval")))
	if err != nil {
		return fmt.Errorf("failed to create ingestor: %w", err)
	}
	w, err := db.NewWatcher(ingestor)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	printDatabase(os.Stderr, cfg)
	fmt.Fprintf(os.Stderr, "Watching: %s\n", w.Dir())
	fmt.Fprintln(os.Stderr)

	err = w.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watcher stopped: %w", err)
	}
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return server
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	if c.Int("report-interval") <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ingestor, err := db.NewIngestor(ingestion.WithProgress(os.Stderr, c.Int("report-interval")))
	if err != nil {
		return fmt.Errorf("failed to create ingestor: %w", err)
	}

	var failed int
	for _, path := range c.Args().Slice() {
		outcome, err := ingestFile(c.Context, ingestor, path, c.Bool("force"))
		switch {
		case errors.Is(err, ingestion.ErrAlreadyProcessed):
			fmt.Fprintf(os.Stderr, "%s: already processed (use --force to ingest again)\n", path)
		case err != nil:
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		default:
			fmt.Fprintf(os.Stderr, "%s: %d/%d rows into %s\n", path, outcome.RowsSucceeded(), outcome.RowsTotal, outcome.Table)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, c.NArg())
	}
	return nil
}

func ingestFile(ctx context.Context, ingestor *ingestion.Ingestor, path string, force bool) (*core.IngestOutcome, error) {
	if !force {
		return ingestor.ProcessFile(ctx, path)
	}
	route, ok := ingestor.Routes().Lookup(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrNotRouted, filepath.Base(path))
	}
	return ingestor.Ingest(ctx, path, route)
}

func queryCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query text is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var opts []search.Option
	if n := c.Int("limit"); n != 0 {
		opts = append(opts, search.WithLimit(n))
	}
	retriever, err := db.NewRetriever(opts...)
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}
	defer retriever.Release()

	var monitor search.RetrievalMonitor
	if c.Bool("verbose") {
		monitor = &stageMonitor{w: os.Stderr}
	}
	report, err := retriever.RetrieveWithMonitor(c.Context, query, monitor)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}
	if _, err := report.WriteTo(os.Stdout); err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		slog.Warn("some tables could not be searched", "tables", strings.Join(report.Failed, ", "))
	}
	return nil
}

// stageMonitor prints retrieval stages as they complete.
type stageMonitor struct {
	w     io.Writer
	start time.Time
}

func (m *stageMonitor) Start(query string) {
	m.start = time.Now()
	fmt.Fprintf(m.w, "Query: %q\n", query)
}

func (m *stageMonitor) AfterQueryEmbedding(vector []float32) {
	fmt.Fprintf(m.w, "Embedded query (%d dimensions) in %s\n", len(vector), time.Since(m.start).Round(time.Millisecond))
}

func (m *stageMonitor) TableSearched(table string, hits []*core.SimilarityResult) {
	fmt.Fprintf(m.w, "  %s: %d hits\n", table, len(hits))
}

func (m *stageMonitor) TableFailed(table string, err error) {
	fmt.Fprintf(m.w, "  %s: failed: %v\n", table, err)
}

func (m *stageMonitor) Finish(report *search.Report) {
	fmt.Fprintf(m.w, "Retrieved %d hits in %s\n\n", report.HitCount(), time.Since(m.start).Round(time.Millisecond))
}

func statusCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := db.Config()
	fmt.Printf("Folder: %s\n", cfg.Folder)
	fmt.Printf("Mark policy: %s\n", cfg.MarkPolicy())
	fmt.Println()

	fmt.Println("Routes:")
	for _, route := range db.Routes().Routes() {
		fmt.Printf("  %s -> %s [%s]\n", route.FileName, route.Table, strings.Join(route.TextFields, ", "))
	}
	fmt.Println()

	entries := db.Ledger().Entries()
	fmt.Printf("Ledger (%s): %d files\n", db.Ledger().Path(), len(entries))
	for _, id := range entries {
		fmt.Printf("  %s\n", id)
	}
	fmt.Println()

	outcomes, err := db.Store().Outcomes().ListOutcomes(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list outcomes: %w", err)
	}
	fmt.Println("Last ingestions:")
	for _, o := range outcomes {
		fmt.Printf("  %s -> %s: %d/%d rows, marked=%t, %s (%s)\n",
			o.File, o.Table, o.RowsSucceeded(), o.RowsTotal, o.Marked,
			o.FinishedAt.Format(time.RFC3339), o.FinishedAt.Sub(o.StartedAt).Round(time.Millisecond))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	table := c.String("table")
	reembedder, err := db.NewReembedder(table, reembedConfig, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create reembedder: %w", err)
	}

	printDatabase(os.Stderr, db.Config())
	fmt.Fprintf(os.Stderr, "Table: %s\n", table)
	fmt.Fprintln(os.Stderr)

	processed, err := reembedder.Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed after %d rows: %w", processed, err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	if err := config.LoadEnvFile(c.String("env-file")); err != nil {
		return err
	}

	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	var out io.Writer = os.Stderr
	if path := c.String("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func closeLogFile(_ *cli.Context) error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
