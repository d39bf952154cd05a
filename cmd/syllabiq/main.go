// Command syllabiq answers questions about course notes, grounded in a
// vector store of ingested documents.
//
// Usage:
//
//	syllabiq                      # line-oriented chat (default)
//	syllabiq tui [FILE...]
//	syllabiq serve
//	syllabiq ingest [--reset] FILE...
//	syllabiq convert notes.pdf -o notes.md
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"syllabiq/internal/config"
	"syllabiq/internal/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Chat    ChatCmd    `cmd:"" default:"1" help:"Ask questions in a line-oriented loop."`
	TUI     TUICmd     `cmd:"" name:"tui" help:"Ask questions in a terminal UI."`
	Serve   ServeCmd   `cmd:"" help:"Serve the chat page."`
	Ingest  IngestCmd  `cmd:"" help:"Load, chunk, embed and store documents."`
	Convert ConvertCmd `cmd:"" help:"Convert a PDF to markdown."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error). Overrides the config file."`
	LogFile  string `help:"Log file path (empty = stderr)."`

	logOut io.Writer
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("syllabiq"),
		kong.Description("Grounded question answering over course notes."),
		kong.UsageOnError(),
	)

	cli.logOut = os.Stderr
	if cli.LogFile != "" {
		f, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		cli.logOut = f
	}
	logger.Init(logger.ParseLevel(cli.LogLevel), cli.logOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&cli); err != nil {
		slog.Error("command failed", "command", kctx.Command(), "error", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads --config, or the default locations, and applies the
// configured log level unless --log-level was given.
func (c *CLI) loadConfig() (*config.AppConfig, error) {
	var (
		cfg  *config.AppConfig
		path = c.Config
		err  error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.LogLevel == "" {
		logger.Init(logger.ParseLevel(cfg.Log.Level), c.logOut)
	}
	slog.Debug("config loaded", "path", path, "store", cfg.VectorStore.Type, "model", cfg.AI.ModelName)
	return cfg, nil
}
