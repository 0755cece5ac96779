package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"bird_whisperer/internal/config"
	"bird_whisperer/internal/digest"
	"bird_whisperer/internal/mailer"
	"bird_whisperer/internal/social"
	"bird_whisperer/internal/storage"
	"bird_whisperer/internal/summarizer"
)

const redisPrefix = "bird_whisperer:"

// OpenStore opens the state store selected by cfg.StateBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StateBackend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
		return storage.NewSQLite(cfg.DatabasePath)
	case config.BackendPostgres:
		return storage.NewPostgres(ctx, cfg.DatabaseURL)
	case config.BackendRedis:
		return storage.NewRedis(ctx, cfg.RedisURL, redisPrefix)
	default:
		return nil, fmt.Errorf("unknown STATE_BACKEND %q", cfg.StateBackend)
	}
}

// NewSource builds the social client selected by cfg.SocialSource.
func NewSource(cfg *config.Config, log *slog.Logger) (digest.Source, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	switch cfg.SocialSource {
	case config.SourceX:
		return social.NewX(client, social.XOptions{
			AuthToken:             cfg.AuthToken,
			CT0:                   cfg.CT0,
			UserByScreenNameQuery: cfg.UserByScreenNameQID,
			UserTweetsQuery:       cfg.UserTweetsQID,
		}, log), nil
	case config.SourceNitter:
		return social.NewNitter(client, cfg.NitterURL, log), nil
	default:
		return nil, fmt.Errorf("unknown SOCIAL_SOURCE %q", cfg.SocialSource)
	}
}

// NewSender builds the mailer over the transport selected by cfg.MailProvider.
func NewSender(cfg *config.Config, log *slog.Logger) (*mailer.Mailer, error) {
	var transport mailer.Transport
	switch cfg.MailProvider {
	case config.MailResend:
		transport = mailer.NewResend(&http.Client{Timeout: 30 * time.Second}, cfg.ResendAPIKey)
	case config.MailSMTP:
		transport = mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.MailProvider)
	}
	return mailer.New(transport, cfg.MailFrom, log), nil
}

// NewSummarizerFactory returns a factory that picks the provider named in the
// declaration and its API key from cfg.
func NewSummarizerFactory(cfg *config.Config, log *slog.Logger) SummarizerFactory {
	return func(ctx context.Context, d *config.Digest) (digest.Summarizer, error) {
		key, err := cfg.LLMKey(d.LLM.Provider)
		if err != nil {
			return nil, err
		}
		completer, err := summarizer.NewCompleter(ctx, d.LLM.Provider, d.LLM.Model, key)
		if err != nil {
			return nil, err
		}
		return summarizer.New(completer, d.Prompt, log), nil
	}
}
