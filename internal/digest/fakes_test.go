package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"bird_whisperer/internal/model"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu         sync.Mutex
	posts      map[string][]model.Post
	resolveErr map[string]error
	fetchErr   map[string]error
	resolved   []string
}

func (f *fakeSource) ResolveHandle(_ context.Context, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, username)
	if err := f.resolveErr[username]; err != nil {
		return "", err
	}
	return "id-" + username, nil
}

func (f *fakeSource) RecentPosts(_ context.Context, accountID string, limit int) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	username := accountID[len("id-"):]
	if err := f.fetchErr[username]; err != nil {
		return nil, err
	}
	posts := f.posts[username]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

type summarizeCall struct {
	posts   []model.Post
	context string
}

type fakeSummarizer struct {
	mu            sync.Mutex
	replies       map[string]string
	errs          map[string]error
	aggregate     string
	aggregateErr  error
	calls         []summarizeCall
	aggregateArgs [][]model.HandlePosts
}

// Summarize replies by the text of the first post, which tests set to the
// handle name.
func (f *fakeSummarizer) Summarize(_ context.Context, posts []model.Post, readerContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, summarizeCall{posts: posts, context: readerContext})
	key := posts[0].Text
	if err := f.errs[key]; err != nil {
		return "", err
	}
	if r, ok := f.replies[key]; ok {
		return r, nil
	}
	return "Summary of " + key + " [1]", nil
}

func (f *fakeSummarizer) Aggregate(_ context.Context, groups []model.HandlePosts, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggregateArgs = append(f.aggregateArgs, groups)
	if f.aggregateErr != nil {
		return "", f.aggregateErr
	}
	return f.aggregate, nil
}

type memStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr map[string]error
	putErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[key]; err != nil {
		return "", false, err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putErr[key]; err != nil {
		return err
	}
	m.data[key] = value
	return nil
}

func (m *memStore) Close() error { return nil }

type sentMail struct {
	to      string
	subject string
	html    string
}

type fakeSender struct {
	mu   sync.Mutex
	errs map[string]error
	sent []sentMail
	// attempts includes failed sends.
	attempts []string
}

func (f *fakeSender) Send(_ context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, to)
	if err := f.errs[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

// postsFor returns posts whose text is the handle, so fakeSummarizer can tell
// handles apart.
func postsFor(handle string, ids ...string) []model.Post {
	posts := make([]model.Post, len(ids))
	for i, id := range ids {
		posts[i] = model.Post{ID: id, Text: handle}
	}
	return posts
}
