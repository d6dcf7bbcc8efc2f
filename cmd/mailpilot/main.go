package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"

	"github.com/dhowell/mailpilot/internal/app"
	"github.com/dhowell/mailpilot/internal/backend"
	"github.com/dhowell/mailpilot/internal/consent"
	"github.com/dhowell/mailpilot/internal/history"
	"github.com/dhowell/mailpilot/internal/model"
	"github.com/dhowell/mailpilot/internal/session"
)

func main() {
	cfg, err := model.LoadConfig(model.DefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	logger.Info("starting mailpilot", "backend", cfg.Backend.BaseURL)

	store, err := session.OpenKeyring()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open credential store: %v\n", err)
		os.Exit(1)
	}
	sess := session.New(store)

	// An absent token is not an error at the transport level: login and
	// the first chat turn run without one.
	tokenFn := func() (string, error) {
		tok, err := store.Token()
		if errors.Is(err, session.ErrNoSession) {
			return "", nil
		}
		return tok, err
	}

	client := backend.NewClient(cfg.Backend.BaseURL, tokenFn, logger)
	if cfg.Backend.TimeoutSec > 0 {
		client.SetTimeout(time.Duration(cfg.Backend.TimeoutSec) * time.Second)
	}

	hist, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		// History is a convenience; the assistant works without it.
		logger.Warn("sent-mail history unavailable", "path", cfg.History.DBPath, "error", err)
		hist = nil
	} else {
		defer hist.Close()
	}

	logAvailableTools(client, logger)

	root := app.New(app.Deps{
		Client:  client,
		Session: sess,
		History: hist,
		Consent: consent.NewBrowser(logger),
		Logger:  logger,
	})

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("mailpilot stopped")
}

// logAvailableTools records which backend tools are reachable at
// startup. Failures are informational; the UI surfaces its own errors.
func logAvailableTools(client *backend.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.AvailableTools(ctx)
	if err != nil {
		logger.Warn("backend tools unavailable", "error", err)
		return
	}
	logger.Info("backend reachable", "tools", len(resp.Tools))
}

// setupLogger writes structured logs to the configured file. The TUI
// owns the terminal, so nothing is logged to stdout.
func setupLogger(cfg model.LogConfig) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	handler := tint.NewHandler(f, &tint.Options{
		Level:      parseLevel(cfg.Level),
		TimeFormat: time.DateTime,
		NoColor:    true,
	})

	return slog.New(handler), func() { f.Close() }, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
