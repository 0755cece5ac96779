package social

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"bird_whisperer/internal/model"
)

var statusIDRe = regexp.MustCompile(`/status/(\d+)`)

// Nitter reads timelines from the RSS feeds of a Nitter mirror.
type Nitter struct {
	client  HTTPClient
	baseURL string
	log     *slog.Logger
}

// NewNitter creates a Nitter client for the mirror at baseURL.
func NewNitter(client HTTPClient, baseURL string, log *slog.Logger) *Nitter {
	return &Nitter{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// ResolveHandle returns username unchanged; Nitter feeds are keyed by handle.
func (n *Nitter) ResolveHandle(_ context.Context, username string) (string, error) {
	return username, nil
}

// RecentPosts downloads the account's RSS feed and returns up to limit posts.
func (n *Nitter) RecentPosts(ctx context.Context, accountID string, limit int) ([]model.Post, error) {
	feed, err := n.fetch(ctx, fmt.Sprintf("%s/%s/rss", n.baseURL, url.PathEscape(accountID)))
	if err != nil {
		return nil, fmt.Errorf("fetch @%s: %w", accountID, err)
	}

	posts := make([]model.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		posts = append(posts, itemPost(item))
	}
	return keepValid(posts, limit, n.log), nil
}

func (n *Nitter) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "BirdWhisperer/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// itemPost converts a feed item. The id is taken from the status link, then
// from the GUID; items without one get an empty id and are dropped later.
func itemPost(item *gofeed.Item) model.Post {
	p := model.Post{Text: strings.TrimSpace(item.Title)}
	for _, s := range []string{item.Link, item.GUID} {
		if m := statusIDRe.FindStringSubmatch(s); m != nil {
			p.ID = m[1]
			break
		}
	}
	if p.ID == "" && model.ValidID(item.GUID) {
		p.ID = item.GUID
	}
	if item.PublishedParsed != nil {
		p.CreatedAt = item.PublishedParsed.In(time.UTC)
	}
	return p
}
