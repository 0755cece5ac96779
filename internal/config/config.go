// Package config handles application configuration from environment variables
// and the digest declaration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// State backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Social sources.
const (
	SourceX      = "x"
	SourceNitter = "nitter"
)

// Mail providers.
const (
	MailResend = "resend"
	MailSMTP   = "smtp"
)

// Config holds the application configuration read from the environment.
type Config struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	StateBackend string
	DatabasePath string
	DatabaseURL  string
	RedisURL     string

	HTTPAddr            string
	EnableManualTrigger bool
	Schedule            string
	Timezone            string

	SocialSource        string
	AuthToken           string
	CT0                 string
	NitterURL           string
	UserByScreenNameQID string
	UserTweetsQID       string

	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	MailProvider string
	MailFrom     string
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string

	TelegramBotToken string
	AllowedUsers     []int64
	ReportChatID     int64
}

// Load reads configuration from environment variables.
// Secrets required by the selected backends must be present.
func Load() (*Config, error) {
	cfg := &Config{
		ConfigPath:          envOr("CONFIG_PATH", "./config.yaml"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "text"),
		StateBackend:        strings.ToLower(envOr("STATE_BACKEND", BackendSQLite)),
		DatabasePath:        envOr("DATABASE_PATH", "./data/state.db"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		HTTPAddr:            envOr("HTTP_ADDR", ":8080"),
		Schedule:            envOr("SCHEDULE", "0 7 * * *"),
		Timezone:            envOr("TIMEZONE", "UTC"),
		SocialSource:        strings.ToLower(envOr("SOCIAL_SOURCE", SourceX)),
		AuthToken:           os.Getenv("AUTH_TOKEN"),
		CT0:                 os.Getenv("CT0"),
		NitterURL:           os.Getenv("NITTER_URL"),
		UserByScreenNameQID: os.Getenv("X_USER_BY_SCREEN_NAME_QUERY"),
		UserTweetsQID:       os.Getenv("X_USER_TWEETS_QUERY"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		MailProvider:        strings.ToLower(envOr("MAIL_PROVIDER", MailResend)),
		MailFrom:            envOr("MAIL_FROM", "Bird Whisperer <noreply@localhost>"),
		ResendAPIKey:        os.Getenv("RESEND_API_KEY"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPass:            os.Getenv("SMTP_PASS"),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if raw := os.Getenv("ENABLE_MANUAL_TRIGGER"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_MANUAL_TRIGGER %q: %w", raw, err)
		}
		cfg.EnableManualTrigger = v
	}

	port, err := strconv.Atoi(envOr("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPPort = port

	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
		}
	}

	if raw := os.Getenv("REPORT_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REPORT_CHAT_ID %q: %w", raw, err)
		}
		cfg.ReportChatID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StateBackend {
	case BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STATE_BACKEND=postgres")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for STATE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}

	switch c.SocialSource {
	case SourceX:
		if c.AuthToken == "" || c.CT0 == "" {
			return fmt.Errorf("AUTH_TOKEN and CT0 are required for SOCIAL_SOURCE=x")
		}
	case SourceNitter:
		if c.NitterURL == "" {
			return fmt.Errorf("NITTER_URL is required for SOCIAL_SOURCE=nitter")
		}
	default:
		return fmt.Errorf("unknown SOCIAL_SOURCE %q", c.SocialSource)
	}

	switch c.MailProvider {
	case MailResend:
		if c.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required for MAIL_PROVIDER=resend")
		}
	case MailSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for MAIL_PROVIDER=smtp")
		}
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.MailProvider)
	}
	return nil
}

// LLMKey returns the API key for the given LLM provider.
func (c *Config) LLMKey(provider string) (string, error) {
	var key, name string
	switch provider {
	case ProviderGoogle:
		key, name = c.GeminiAPIKey, "GEMINI_API_KEY"
	case ProviderOpenAI:
		key, name = c.OpenAIAPIKey, "OPENAI_API_KEY"
	case ProviderAnthropic:
		key, name = c.AnthropicAPIKey, "ANTHROPIC_API_KEY"
	default:
		return "", fmt.Errorf("unknown LLM provider %q", provider)
	}
	if key == "" {
		return "", fmt.Errorf("%s is required for llm.provider=%s", name, provider)
	}
	return key, nil
}

// IsUserAllowed checks whether a Telegram user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
