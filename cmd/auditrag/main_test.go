package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/auditrag/core"
	"github.com/poiesic/auditrag/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testApp(commands ...*cli.Command) *cli.App {
	return &cli.App{
		Name: "auditrag",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
			},
			&cli.StringFlag{Name: "log-file"},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
			},
			&cli.StringFlag{Name: "env-file"},
		},
		Before:   setupLogger,
		After:    closeLogFile,
		Commands: commands,
	}
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
folder: %s
routes:
  - file: vendors.csv
    table: vendor_payments
    text_fields: [vendor_name, memo]
store:
  backend: sqlite
  path: %s
ledger:
  path: %s
embedding:
  host: http://127.0.0.1:1/v1
  model: test-model
`, filepath.Join(dir, "audit"), filepath.Join(dir, "auditrag.db"), filepath.Join(dir, "loaded_files"))
	path := filepath.Join(dir, "auditrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dir
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				app := testApp()
				app.Action = func(c *cli.Context) error { return nil }
				require.NoError(t, app.Run([]string{"auditrag", "--log-level", level}))
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		app := testApp()
		app.Action = func(c *cli.Context) error { return nil }
		err := app.Run([]string{"auditrag", "-l", "verbose"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log file receives records", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit_data_monitor.log")
		app := testApp()
		app.Action = func(c *cli.Context) error {
			slog.Info("file loaded", "file", "vendors.csv")
			return nil
		}
		require.NoError(t, app.Run([]string{"auditrag", "--log-file", path}))
		assert.Nil(t, logFile)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "file loaded")
		assert.Contains(t, string(data), "file=vendors.csv")
	})

	t.Run("env file is loaded", func(t *testing.T) {
		const key = "AUDITRAG_MAIN_TEST_VALUE"
		t.Cleanup(func() { os.Unsetenv(key) })
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o644))

		app := testApp()
		app.Action = func(c *cli.Context) error {
			assert.Equal(t, "from-file", os.Getenv(key))
			return nil
		}
		require.NoError(t, app.Run([]string{"auditrag", "--env-file", path}))
	})

	t.Run("missing explicit env file returns error", func(t *testing.T) {
		app := testApp()
		app.Action = func(c *cli.Context) error { return nil }
		err := app.Run([]string{"auditrag", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
		assert.Error(t, err)
	})
}

func TestIngestCommand_RequiresFiles(t *testing.T) {
	app := testApp(&cli.Command{
		Name:   "ingest",
		Action: ingestCommand,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force"},
			&cli.IntFlag{Name: "report-interval", Value: 100},
		},
	})

	err := app.Run([]string{"auditrag", "ingest"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one file")
}

func TestQueryCommand_RequiresText(t *testing.T) {
	app := testApp(&cli.Command{
		Name:   "query",
		Action: queryCommand,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit"},
			&cli.BoolFlag{Name: "verbose"},
		},
	})

	err := app.Run([]string{"auditrag", "query", "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query text is required")
}

func TestReembedCommandFlags(t *testing.T) {
	app := testApp(&cli.Command{
		Name:   "reembed",
		Action: reembedCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "table", Required: true},
			&cli.IntFlag{Name: "batch-size", Value: 100},
			&cli.IntFlag{Name: "report-interval", Value: 100},
			&cli.IntFlag{Name: "max-retries", Value: 3},
			&cli.DurationFlag{Name: "retry-delay", Value: time.Second},
		},
	})

	t.Run("table is required", func(t *testing.T) {
		err := app.Run([]string{"auditrag", "reembed"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table")
	})

	tests := []struct {
		flag string
		want string
	}{
		{"--batch-size", "batch-size must be greater than 0"},
		{"--report-interval", "report-interval must be greater than 0"},
		{"--max-retries", "max-retries must be greater than 0"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			err := app.Run([]string{"auditrag", "reembed", "--table", "vendor_payments", tt.flag, "0"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("unknown table", func(t *testing.T) {
		cfgPath, _ := writeTestConfig(t)
		err := app.Run([]string{"auditrag", "-c", cfgPath, "reembed", "--table", "missing"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table is not routed")
	})
}

func TestStatusCommand(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	app := testApp(&cli.Command{
		Name:   "status",
		Action: statusCommand,
	})

	require.NoError(t, app.Run([]string{"auditrag", "-c", cfgPath, "status"}))
	assert.FileExists(t, filepath.Join(dir, "auditrag.db"))
}

func TestStageMonitor(t *testing.T) {
	var buf bytes.Buffer
	m := &stageMonitor{w: &buf}

	m.Start("late payment")
	m.AfterQueryEmbedding([]float32{0.1, 0.2, 0.3})
	m.TableSearched("vendor_payments", []*core.SimilarityResult{{Table: "vendor_payments"}})
	m.TableFailed("journal_entries", errors.New("boom"))
	m.Finish(&search.Report{
		Query:  "late payment",
		Tables: []search.TableResult{{Table: "vendor_payments", Hits: []*core.SimilarityResult{{}}}},
		Failed: []string{"journal_entries"},
	})

	out := buf.String()
	assert.Contains(t, out, `Query: "late payment"`)
	assert.Contains(t, out, "3 dimensions")
	assert.Contains(t, out, "vendor_payments: 1 hits")
	assert.Contains(t, out, "journal_entries: failed: boom")
	assert.Contains(t, out, "Retrieved 1 hits")
}
