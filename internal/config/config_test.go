package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var envKeys = []string{
	"CONFIG_PATH", "LOG_LEVEL", "LOG_FORMAT", "STATE_BACKEND", "DATABASE_PATH",
	"DATABASE_URL", "REDIS_URL", "HTTP_ADDR", "ENABLE_MANUAL_TRIGGER", "SCHEDULE",
	"TIMEZONE", "SOCIAL_SOURCE", "AUTH_TOKEN", "CT0", "NITTER_URL",
	"X_USER_BY_SCREEN_NAME_QUERY", "X_USER_TWEETS_QUERY", "GEMINI_API_KEY",
	"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "MAIL_PROVIDER", "MAIL_FROM",
	"RESEND_API_KEY", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS",
	"TELEGRAM_BOT_TOKEN", "ALLOWED_USERS", "REPORT_CHAT_ID",
}

func minimalEnv() map[string]string {
	return map[string]string{
		"AUTH_TOKEN":     "auth",
		"CT0":            "csrf",
		"RESEND_API_KEY": "re_key",
	}
}

func withEnv(base map[string]string, kv ...string) map[string]string {
	out := make(map[string]string, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func TestLoad(t *testing.T) {
	defaults := &Config{
		ConfigPath:   "./config.yaml",
		LogLevel:     "info",
		LogFormat:    "text",
		StateBackend: BackendSQLite,
		DatabasePath: "./data/state.db",
		HTTPAddr:     ":8080",
		Schedule:     "0 7 * * *",
		Timezone:     "UTC",
		SocialSource: SourceX,
		AuthToken:    "auth",
		CT0:          "csrf",
		MailProvider: MailResend,
		MailFrom:     "Bird Whisperer <noreply@localhost>",
		ResendAPIKey: "re_key",
		SMTPPort:     587,
	}

	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name: "minimal secrets, defaults applied",
			env:  minimalEnv(),
			want: defaults,
		},
		{
			name:    "missing social cookies",
			env:     map[string]string{"RESEND_API_KEY": "re_key"},
			wantErr: true,
		},
		{
			name:    "missing mail key",
			env:     map[string]string{"AUTH_TOKEN": "a", "CT0": "c"},
			wantErr: true,
		},
		{
			name: "nitter source needs no cookies",
			env: map[string]string{
				"SOCIAL_SOURCE":  "nitter",
				"NITTER_URL":     "https://nitter.example",
				"RESEND_API_KEY": "re_key",
			},
			want: func() *Config {
				c := *defaults
				c.SocialSource = SourceNitter
				c.NitterURL = "https://nitter.example"
				c.AuthToken, c.CT0 = "", ""
				return &c
			}(),
		},
		{
			name:    "nitter source without url",
			env:     map[string]string{"SOCIAL_SOURCE": "nitter", "RESEND_API_KEY": "k"},
			wantErr: true,
		},
		{
			name:    "postgres without url",
			env:     withEnv(minimalEnv(), "STATE_BACKEND", "postgres"),
			wantErr: true,
		},
		{
			name:    "redis without url",
			env:     withEnv(minimalEnv(), "STATE_BACKEND", "redis"),
			wantErr: true,
		},
		{
			name:    "unknown backend",
			env:     withEnv(minimalEnv(), "STATE_BACKEND", "dynamo"),
			wantErr: true,
		},
		{
			name:    "smtp without host",
			env:     map[string]string{"AUTH_TOKEN": "a", "CT0": "c", "MAIL_PROVIDER": "smtp"},
			wantErr: true,
		},
		{
			name:    "bad trigger flag",
			env:     withEnv(minimalEnv(), "ENABLE_MANUAL_TRIGGER", "maybe"),
			wantErr: true,
		},
		{
			name:    "bad smtp port",
			env:     withEnv(minimalEnv(), "SMTP_PORT", "abc"),
			wantErr: true,
		},
		{
			name: "trigger, telegram and allowed users",
			env: withEnv(minimalEnv(),
				"ENABLE_MANUAL_TRIGGER", "true",
				"TELEGRAM_BOT_TOKEN", "tg",
				"ALLOWED_USERS", " 10 , 20 , ",
				"REPORT_CHAT_ID", "-100",
			),
			want: func() *Config {
				c := *defaults
				c.EnableManualTrigger = true
				c.TelegramBotToken = "tg"
				c.AllowedUsers = []int64{10, 20}
				c.ReportChatID = -100
				return &c
			}(),
		},
		{
			name:    "invalid user id",
			env:     withEnv(minimalEnv(), "ALLOWED_USERS", "123,abc"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLLMKey(t *testing.T) {
	cfg := &Config{GeminiAPIKey: "g", AnthropicAPIKey: "a"}

	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: ProviderGoogle, want: "g"},
		{provider: ProviderAnthropic, want: "a"},
		{provider: ProviderOpenAI, wantErr: true},
		{provider: "mistral", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			got, err := cfg.LLMKey(tt.provider)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("LLMKey mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{name: "empty list allows everyone", allowedUsers: nil, userID: 42, want: true},
		{name: "user in list", allowedUsers: []int64{10, 20, 30}, userID: 20, want: true},
		{name: "user not in list", allowedUsers: []int64{10, 20, 30}, userID: 99, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			if diff := cmp.Diff(tt.want, cfg.IsUserAllowed(tt.userID)); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
