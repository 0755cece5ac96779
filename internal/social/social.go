// Package social retrieves recent posts of followed accounts.
package social

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"bird_whisperer/internal/model"
)

// ErrNotFound is returned when a handle does not resolve to an account.
var ErrNotFound = errors.New("account not found")

// Client resolves handles and fetches their recent posts.
type Client interface {
	ResolveHandle(ctx context.Context, username string) (string, error)
	// RecentPosts returns up to limit recent posts in no guaranteed order.
	RecentPosts(ctx context.Context, accountID string, limit int) ([]model.Post, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// keepValid drops posts whose id is not an unsigned decimal integer and
// truncates the result to limit.
func keepValid(posts []model.Post, limit int, log *slog.Logger) []model.Post {
	out := make([]model.Post, 0, len(posts))
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		if limit > 0 && len(out) == limit {
			break
		}
		if !model.ValidID(p.ID) {
			log.Warn("drop post with invalid id", "id", p.ID)
			continue
		}
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
