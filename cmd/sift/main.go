// Command sift captures a chat product's streaming traffic: it drives a
// stealth Chrome session under an account pool with quota rotation, records
// the raw stream, and republishes reconstructed results over HTTP (SSE) or
// MCP stdio.
//
// Usage:
//
//	sift -config sift.yaml
//	MCP_TRANSPORT=stdio sift -config sift.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sift/accounts"
	"github.com/hazyhaar/sift/browser"
	"github.com/hazyhaar/sift/capture"
	"github.com/hazyhaar/sift/dbopen"
)

func main() {
	configPath := flag.String("config", "", "path to sift.yaml config file")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("sift: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Quota store.
	db, err := dbopen.Open(cfg.Quota.DB, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("quota db: %w", err)
	}
	defer db.Close()

	store := accounts.NewStore(db)
	if err := store.Init(); err != nil {
		return err
	}

	// Account pool. A broken pool is a configuration error: fail fast.
	pool, err := accounts.LoadPool(accounts.PoolSource{
		File:     cfg.Accounts.File,
		Inline:   cfg.Accounts.JSON,
		Email:    cfg.Accounts.Email,
		Password: cfg.Accounts.Password,
	})
	if err != nil {
		return err
	}
	logger.Info("sift: account pool loaded", "accounts", len(pool))

	selector, err := accounts.NewSelector(store, pool,
		cfg.Quota.Limit, time.Duration(cfg.Quota.WindowHours)*time.Hour,
		accounts.WithLogger(logger))
	if err != nil {
		return err
	}

	records, err := capture.NewRecordStore(filepath.Join(cfg.DataDir, "captures"))
	if err != nil {
		return err
	}

	driver := browser.New(browser.Config{
		ChatURL:       cfg.Browser.ChatURL,
		LoginURL:      cfg.Browser.LoginURL,
		RemoteURL:     cfg.Browser.Remote,
		StreamTimeout: cfg.Browser.StreamTimeout,
		Logger:        logger,
	})

	mgr, err := capture.NewManager(capture.ManagerConfig{
		Selector: selector,
		Driver:   driver,
		Records:  records,
		Model:    cfg.Model,
		Provider: cfg.Provider,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if os.Getenv("MCP_TRANSPORT") == "stdio" {
		return serveMCP(ctx, logger, mgr)
	}
	return serveHTTP(ctx, logger, cfg, mgr)
}

func serveMCP(ctx context.Context, logger *slog.Logger, mgr *capture.Manager) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "sift",
		Version: "1.0.0",
	}, nil)
	mgr.RegisterMCP(srv)

	logger.Info("sift: MCP stdio serving")
	return srv.Run(ctx, &mcp.StdioTransport{})
}
