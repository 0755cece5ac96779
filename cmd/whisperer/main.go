package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"bird_whisperer/internal/app"
	"bird_whisperer/internal/config"
	"bird_whisperer/internal/storage"
)

var version = "dev"

func main() {
	// A missing .env is fine; the environment may be set by the host.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "whisperer",
		Short:         "Bird Whisperer - daily email digests of followed accounts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(cookiesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps holds the collaborators shared by serve and run.
type deps struct {
	cfg   *config.Config
	log   *slog.Logger
	store storage.Store
	app   *app.App
}

// setup loads configuration, checks every secret the declaration needs and
// only then opens the store.
func setup(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel, cfg.LogFormat)

	decl, err := config.LoadDigest(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load declaration %s: %w", cfg.ConfigPath, err)
	}
	if _, err := cfg.LLMKey(decl.LLM.Provider); err != nil {
		return nil, err
	}

	source, err := app.NewSource(cfg, log)
	if err != nil {
		return nil, err
	}
	sender, err := app.NewSender(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StateBackend, err)
	}

	log.Info("configuration loaded",
		"declaration", cfg.ConfigPath,
		"users", len(decl.Users),
		"llm", decl.LLM.Provider,
		"state", cfg.StateBackend,
		"source", cfg.SocialSource,
		"mail", cfg.MailProvider,
	)

	return &deps{
		cfg:   cfg,
		log:   log,
		store: store,
		app:   app.New(cfg.ConfigPath, store, source, sender, app.NewSummarizerFactory(cfg, log), log),
	}, nil
}

func newLogger(level, format string) *slog.Logger {
	lvl := parseLevel(level)
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	case "pretty":
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
