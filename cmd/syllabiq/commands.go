package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"syllabiq/internal/chat"
	"syllabiq/internal/loader"
	"syllabiq/internal/metrics"
	"syllabiq/internal/tui"
	"syllabiq/internal/web"
)

// ChatCmd runs the line-oriented loop.
type ChatCmd struct{}

func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withModel(); err != nil {
		return err
	}

	store, err := a.stores.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.VectorStore.Type, err)
	}
	shell := chat.New(a.responder(store), chat.Info{
		Name:  cfg.Agent.Name,
		Model: cfg.AI.ModelName,
		Store: store.Name(),
		Table: cfg.VectorStore.Table,
	}, os.Stdin, os.Stdout, cfg.Agent.Stream)

	runErr := shell.Run(ctx)
	if err := store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
	if runErr != nil {
		return runErr
	}
	fmt.Println("\nStore connection closed. Goodbye!")
	return nil
}

// TUICmd runs the terminal UI, optionally ingesting files first.
type TUICmd struct {
	Files []string `arg:"" optional:"" help:"Files to ingest before starting."`
}

func (c *TUICmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	// The terminal belongs to the UI; only log when a log file was given.
	if cli.LogFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withModel(); err != nil {
		return err
	}

	store, err := a.stores.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.VectorStore.Type, err)
	}
	defer store.Close()

	summary := fmt.Sprintf("%s · %s · %s/%s", cfg.Agent.Curriculum, cfg.AI.ModelName, store.Name(), cfg.VectorStore.Table)
	if len(c.Files) > 0 {
		ing, err := a.ingestor(store)
		if err != nil {
			return err
		}
		report, err := ing.Ingest(ctx, c.Files, false)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		summary = report.Summary
	}

	m := tui.New(ctx, a.responder(store), cfg.Agent.Name, summary)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// ServeCmd serves the chat page.
type ServeCmd struct {
	Addr string `help:"Listen address. Overrides server.addr."`
}

func (c *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.withModel(); err != nil {
		return err
	}
	if a.metrics, err = metrics.New(); err != nil {
		return err
	}
	defer a.metrics.Shutdown(context.Background())

	pages := web.NewServer(func(ctx context.Context) (web.Responder, io.Closer, error) {
		store, err := a.stores.Open(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.VectorStore.Type, err)
		}
		return a.responder(store), store, nil
	}, web.Options{
		Title:      cfg.Server.Title,
		Curriculum: cfg.Agent.Curriculum,
		Metrics:    a.metrics.Handler(),
		SessionTTL: cfg.Server.SessionTTL,
	})
	defer pages.Close()

	addr := c.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := &http.Server{Addr: addr, Handler: pages.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving chat page", "addr", addr, "store", cfg.VectorStore.Type, "model", cfg.AI.ModelName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// IngestCmd loads documents into the configured store.
type IngestCmd struct {
	Reset bool     `help:"Empty the store before indexing."`
	Files []string `arg:"" name:"file" help:"PDF, markdown or text files (globs allowed)."`
}

func (c *IngestCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.stores.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.VectorStore.Type, err)
	}
	defer store.Close()

	ing, err := a.ingestor(store)
	if err != nil {
		return err
	}
	report, err := ing.Ingest(ctx, c.Files, c.Reset)
	if err != nil {
		return err
	}
	for _, f := range report.Files {
		if f.Pages > 0 {
			fmt.Printf("%s: %d pages, %d chunks\n", f.Filename, f.Pages, f.Chunks)
		} else {
			fmt.Printf("%s: %d chunks\n", f.Filename, f.Chunks)
		}
	}
	fmt.Printf("Indexed %d chunks into %s/%s in %s\n", report.Chunks, store.Name(), cfg.VectorStore.Table, report.Duration.Round(time.Millisecond))
	if report.Summary != "" {
		fmt.Printf("\nSummary:\n%s\n", report.Summary)
	}
	return nil
}

// ConvertCmd writes a PDF's text as markdown.
type ConvertCmd struct {
	File   string `arg:"" type:"existingfile" help:"PDF file to convert."`
	Output string `short:"o" type:"path" help:"Output path (default: FILE with .md extension)."`
}

func (c *ConvertCmd) Run(ctx context.Context) error {
	doc, err := loader.Load(ctx, c.File)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = strings.TrimSuffix(c.File, filepath.Ext(c.File)) + ".md"
	}
	if filepath.Clean(out) == filepath.Clean(c.File) {
		return fmt.Errorf("output would overwrite %s", c.File)
	}
	if err := os.WriteFile(out, []byte(loader.Markdown(doc)), 0o644); err != nil {
		return err
	}
	fmt.Printf("Saved markdown to %s\n", out)
	return nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("syllabiq version %s\n", version)
	return nil
}
