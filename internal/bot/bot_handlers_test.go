package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"bird_whisperer/internal/app"
	"bird_whisperer/internal/config"
	"bird_whisperer/internal/digest"
	"bird_whisperer/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
}

type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	acks    int
	updates chan tgbotapi.Update
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text})
	case tgbotapi.CallbackConfig:
		m.acks++
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if m.updates != nil {
		return m.updates
	}
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

type mockRunner struct {
	mu       sync.Mutex
	res      *app.RunResult
	err      error
	last     *app.RunResult
	running  bool
	triggers []string
}

func (m *mockRunner) RunDigest(_ context.Context, trigger string) (*app.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	return m.res, m.err
}

func (m *mockRunner) Last() *app.RunResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *mockRunner) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// --- helpers ---

const declaration = `
users:
  - email: [reader@example.com, backup@example.com]
    context: Platform engineer.
    follows:
      - username: alice
      - username: bob
llm:
  provider: google
  model: gemini-2.0-flash
`

func newTestBot(t *testing.T, runner *mockRunner) (*Bot, *mockAPI, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(declaration), 0o600); err != nil {
		t.Fatalf("write declaration: %v", err)
	}

	if runner == nil {
		runner = &mockRunner{}
	}
	api := &mockAPI{}
	b := &Bot{
		api:    api,
		runner: runner,
		store:  store,
		cfg:    &config.Config{ConfigPath: path},
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, store
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func sentReport() *app.RunResult {
	start := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	return &app.RunResult{
		ID:         "run-42",
		Trigger:    app.TriggerBot,
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
		Report: &digest.Report{Users: []digest.UserReport{
			{Email: "reader@example.com", Status: digest.StatusSent, Handles: 2, Posts: 5, Trending: true},
			{Email: "other@example.com", Status: digest.StatusNoContent},
		}},
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleStart(100)
	requireContains(t, api.lastText(), "Welcome to Bird Whisperer")
}

func TestHandleHelp(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/run")
	requireContains(t, api.lastText(), "/lastseen")
}

func TestHandleRun(t *testing.T) {
	ctx := context.Background()

	t.Run("success reports result", func(t *testing.T) {
		runner := &mockRunner{res: sentReport()}
		b, api, _ := newTestBot(t, runner)
		b.handleRun(ctx, 100)
		b.runs.Wait()

		texts := api.allTexts()
		if diff := cmp.Diff(2, len(texts)); diff != "" {
			t.Fatalf("message count (-want +got):\n%s", diff)
		}
		requireContains(t, texts[0], "Digest run started")
		requireContains(t, texts[1], "run-42")
		requireContains(t, texts[1], "sent 1")
		if diff := cmp.Diff([]string{app.TriggerBot}, runner.triggers); diff != "" {
			t.Errorf("triggers (-want +got):\n%s", diff)
		}
	})

	t.Run("failure reports error", func(t *testing.T) {
		runner := &mockRunner{res: &app.RunResult{ID: "run-7"}, err: errors.New("load declaration: boom")}
		b, api, _ := newTestBot(t, runner)
		b.handleRun(ctx, 100)
		b.runs.Wait()
		requireContains(t, api.lastText(), "Digest run failed: load declaration: boom")
		requireContains(t, api.lastText(), "run-7")
	})

	t.Run("lost the race", func(t *testing.T) {
		runner := &mockRunner{err: app.ErrRunInProgress}
		b, api, _ := newTestBot(t, runner)
		b.handleRun(ctx, 100)
		b.runs.Wait()
		requireContains(t, api.lastText(), "already in progress")
	})

	t.Run("already running", func(t *testing.T) {
		runner := &mockRunner{running: true}
		b, api, _ := newTestBot(t, runner)
		b.handleRun(ctx, 100)
		b.runs.Wait()
		requireContains(t, api.lastText(), "already in progress")
		if len(runner.triggers) != 0 {
			t.Errorf("runner should not be called, got %v", runner.triggers)
		}
	})
}

func TestHandleStatus(t *testing.T) {
	t.Run("no runs", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleStatus(100)
		requireContains(t, api.lastText(), "No digest run has finished yet")
	})

	t.Run("last run", func(t *testing.T) {
		b, api, _ := newTestBot(t, &mockRunner{last: sentReport()})
		b.handleStatus(100)
		reply := api.lastText()
		requireContains(t, reply, "Run run-42 (bot)")
		requireContains(t, reply, "reader@example.com: sent (2 handles, 5 posts) +trending")
		requireContains(t, reply, "other@example.com: no_content")
	})

	t.Run("in progress", func(t *testing.T) {
		b, api, _ := newTestBot(t, &mockRunner{running: true, last: sentReport()})
		b.handleStatus(100)
		requireContains(t, api.lastText(), "A digest run is in progress")
	})
}

func TestHandleFollows(t *testing.T) {
	t.Run("lists declaration", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleFollows(100)
		reply := api.lastText()
		requireContains(t, reply, "reader@example.com, backup@example.com")
		requireContains(t, reply, "@alice @bob")
		requireContains(t, reply, "google gemini-2.0-flash")
	})

	t.Run("missing declaration", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.cfg.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
		b.handleFollows(100)
		requireContains(t, api.lastText(), "Failed to load declaration")
	})
}

func TestHandleLastSeen(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleLastSeen(ctx, 100, "reader@example.com")
		requireContains(t, api.lastText(), "Usage: /lastseen")
	})

	t.Run("absent", func(t *testing.T) {
		b, api, _ := newTestBot(t, nil)
		b.handleLastSeen(ctx, 100, "reader@example.com alice")
		requireContains(t, api.lastText(), "Nothing digested yet for @alice")
	})

	t.Run("present", func(t *testing.T) {
		b, api, store := newTestBot(t, nil)
		if err := store.Put(ctx, storage.LastSeenKey("reader@example.com", "alice"), "1800000000000000300"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		b.handleLastSeen(ctx, 100, "reader@example.com @alice")
		requireContains(t, api.lastText(), "1800000000000000300")
	})
}

func TestHandleCommandUnknown(t *testing.T) {
	b, api, _ := newTestBot(t, nil)
	msg := &tgbotapi.Message{
		Text:     "/add https://example.com",
		Chat:     &tgbotapi.Chat{ID: 100},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 4}},
	}
	b.handleCommand(context.Background(), msg)
	requireContains(t, api.lastText(), "Unknown command")
}

func TestHandleCallback(t *testing.T) {
	runner := &mockRunner{res: sentReport(), last: sentReport()}
	b, api, _ := newTestBot(t, runner)
	cb := &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		Data:    cmdStatus,
	}
	b.handleCallback(context.Background(), cb)
	requireContains(t, api.lastText(), "run-42")

	cb.Data = cmdRun
	b.handleCallback(context.Background(), cb)
	b.runs.Wait()
	if diff := cmp.Diff([]string{app.TriggerBot}, runner.triggers); diff != "" {
		t.Errorf("triggers (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, api.acks); diff != "" {
		t.Errorf("callback acks (-want +got):\n%s", diff)
	}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: userID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestRunAccessControl(t *testing.T) {
	tests := []struct {
		name    string
		allowed []int64
		userID  int64
		want    string
	}{
		{name: "empty allow list", userID: 7, want: "/lastseen"},
		{name: "listed user", allowed: []int64{7, 8}, userID: 8, want: "/lastseen"},
		{name: "unlisted user", allowed: []int64{7}, userID: 9, want: "Access denied."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _ := newTestBot(t, nil)
			b.cfg.AllowedUsers = tt.allowed
			api.updates = make(chan tgbotapi.Update)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				b.Run(ctx)
				close(done)
			}()

			api.updates <- commandUpdate(tt.userID, "/help")
			// The loop takes the next update only after handling the previous one.
			api.updates <- tgbotapi.Update{}
			cancel()
			<-done

			texts := api.allTexts()
			if diff := cmp.Diff(1, len(texts)); diff != "" {
				t.Fatalf("message count (-want +got):\n%s", diff)
			}
			requireContains(t, texts[0], tt.want)
		})
	}
}
