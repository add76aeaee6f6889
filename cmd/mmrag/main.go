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
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/poiesic/mmrag"
	"github.com/poiesic/mmrag/api"
	"github.com/poiesic/mmrag/chat"
	"github.com/poiesic/mmrag/config"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/reembed"
	"github.com/poiesic/mmrag/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "mmrag",
		Usage: "Multimodal retrieval-augmented chat over uploaded documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"MMRAG_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "mmrag.yaml",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load (default .env)",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Override the BadgerDB data directory",
			},
			&cli.BoolFlag{
				Name:  "in-memory",
				Usage: "Keep everything in memory; nothing is persisted",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (overrides server.addr)",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest files and wait until they are indexed",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
			},
			{
				Name:      "status",
				Usage:     "Show a document's processing status",
				ArgsUsage: "DOC_ID",
				Action:    statusCommand,
			},
			{
				Name:   "documents",
				Usage:  "List documents",
				Action: documentsCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a document and everything indexed from it",
				ArgsUsage: "DOC_ID",
				Action:    deleteCommand,
			},
			{
				Name:      "search",
				Usage:     "Retrieve the sources closest to a query",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results",
						Value: 5,
					},
					&cli.StringFlag{
						Name:  "doc",
						Usage: "Restrict results to one document",
					},
					&cli.BoolFlag{
						Name:  "images",
						Usage: "Include image sources",
						Value: true,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Ask a question and stream the answer",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "Session to continue (a new one is started if empty)",
					},
					&cli.StringFlag{
						Name:  "doc",
						Usage: "Restrict sources to one document",
					},
					&cli.BoolFlag{
						Name:  "images",
						Usage: "Include image sources",
						Value: true,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every stored vector with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of vectors to process in each batch",
						Value: reembed.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N vectors",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: 2,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if c.Bool("in-memory") {
		cfg.Storage.InMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openDatabase(c *cli.Context) (*mmrag.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := mmrag.NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if arg == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return arg, nil
}

func serveCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := db.Config()
	addr := cfg.Server.Addr
	if a := c.String("addr"); a != "" {
		addr = a
	}

	server := api.NewServer(db,
		api.WithUploadLimit(cfg.Server.UploadsPerMinute, cfg.Server.UploadBurst),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	)
	return server.ListenAndServe(ctx, addr)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var ids []string
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc, err := db.Upload(ctx, filepath.Base(path), data)
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", path, err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Accepted %s as %s\n", path, doc.ID)
		ids = append(ids, doc.ID)
	}

	db.Wait()

	failed := 0
	for _, id := range ids {
		doc, err := db.Status(ctx, id)
		if err != nil {
			return err
		}
		printDocument(c.App.Writer, doc)
		if doc.Status == core.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(ids))
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	id, err := requireArg(c, "document id")
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := db.Status(c.Context, id)
	if err != nil {
		return err
	}
	printDocument(c.App.Writer, doc)
	return nil
}

func documentsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.ListDocuments(c.Context)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "No documents")
		return nil
	}
	for _, doc := range docs {
		printDocument(c.App.Writer, doc)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	id, err := requireArg(c, "document id")
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteDocument(c.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Deleted %s\n", id)
	return nil
}

func searchCommand(c *cli.Context) error {
	query, err := requireArg(c, "query")
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.Search(ctx, search.Query{
		Text:          query,
		K:             c.Int("k"),
		DocID:         c.String("doc"),
		IncludeImages: c.Bool("images"),
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func askCommand(c *cli.Context) error {
	question, err := requireArg(c, "question")
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	out := c.App.Writer
	failed := false
	err = db.Stream(ctx, chat.Request{
		SessionID:     c.String("session"),
		Question:      question,
		DocID:         c.String("doc"),
		IncludeImages: c.Bool("images"),
	}, func(ev chat.Event) error {
		switch ev.Type {
		case chat.EventChunk:
			_, err := io.WriteString(out, ev.Text)
			return err
		case chat.EventRateLimit:
			fmt.Fprintf(c.App.ErrWriter, "\nRate limited, retrying in %ds (attempt %d of %d)\n",
				ev.RateLimit.WaitSeconds, ev.RateLimit.RetryAttempt, ev.RateLimit.MaxRetries)
		case chat.EventError:
			failed = true
			fmt.Fprintf(c.App.ErrWriter, "\n%s\n", ev.Text)
		case chat.EventEnd:
			fmt.Fprintln(out)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("answer generation failed")
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		Workers:        c.Int("workers"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0")
	}

	ctx, cancel := commandContext(c)
	defer cancel()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	appCfg := db.Config()
	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", appCfg.Storage.DataDir)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", appCfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", appCfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := db.Reembed(ctx, cfg, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func printDocument(w io.Writer, doc *core.Document) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%", doc.ID, doc.Name, doc.Status, doc.Stage, doc.Progress)
	if doc.Reason != "" {
		fmt.Fprintf(w, "\t%s", doc.Reason)
	}
	fmt.Fprintln(w)
}
