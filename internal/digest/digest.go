// Package digest assembles and sends the daily digest for each recipient.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"bird_whisperer/internal/config"
	"bird_whisperer/internal/model"
	"bird_whisperer/internal/storage"
	"bird_whisperer/internal/summarizer"
)

const (
	defaultPostLimit = 20
	defaultWindow    = 24 * time.Hour
	dateLayout       = "2006-01-02"
	timeLayout       = "2006-01-02T15:04:05Z"
)

// Source resolves followed handles and fetches their recent posts.
type Source interface {
	ResolveHandle(ctx context.Context, username string) (string, error)
	RecentPosts(ctx context.Context, accountID string, limit int) ([]model.Post, error)
}

// Summarizer turns posts into markdown prose.
type Summarizer interface {
	Summarize(ctx context.Context, posts []model.Post, readerContext string) (string, error)
	Aggregate(ctx context.Context, groups []model.HandlePosts, readerContext string) (string, error)
}

// Sender delivers one HTML email to one address.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Assembler runs the digest flow over a declaration. Users, handles and
// addresses are processed sequentially in declaration order.
type Assembler struct {
	source Source
	summ   Summarizer
	store  storage.Store
	sender Sender
	log    *slog.Logger

	now    func() time.Time
	limit  int
	window time.Duration
}

// New creates an Assembler.
func New(source Source, summ Summarizer, store storage.Store, sender Sender, log *slog.Logger) *Assembler {
	return &Assembler{
		source: source,
		summ:   summ,
		store:  store,
		sender: sender,
		log:    log,
		now:    time.Now,
		limit:  defaultPostLimit,
		window: defaultWindow,
	}
}

// SetClock overrides the time source (useful for testing).
func (a *Assembler) SetClock(now func() time.Time) {
	a.now = now
}

// SetPostLimit overrides how many recent posts are fetched per handle.
func (a *Assembler) SetPostLimit(n int) {
	a.limit = n
}

// SetWindow overrides the recency window applied to fetched posts.
func (a *Assembler) SetWindow(d time.Duration) {
	a.window = d
}

// Run processes every user of cfg. Failures of one user do not stop the
// others; they are joined into the returned error. The report is always
// non-nil.
func (a *Assembler) Run(ctx context.Context, cfg *config.Digest) (*Report, error) {
	report := &Report{StartedAt: a.now().UTC()}
	var errs []error

	for _, u := range cfg.Users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ur, err := a.runUser(ctx, u)
		report.Users = append(report.Users, ur)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.PrimaryEmail(), err))
		}
	}

	report.FinishedAt = a.now().UTC()
	return report, errors.Join(errs...)
}

func (a *Assembler) runUser(ctx context.Context, u config.User) (UserReport, error) {
	primary := u.PrimaryEmail()
	log := a.log.With("user", primary)
	res := UserReport{Email: primary}

	now := a.now().UTC()
	sentKey := storage.SentKey(now.Format(dateLayout), primary)
	_, sent, err := a.store.Get(ctx, sentKey)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res, fmt.Errorf("read sent marker: %w", err)
	}
	if sent {
		log.Info("digest already sent today")
		res.Status = StatusAlreadySent
		return res, nil
	}

	var (
		sections []model.HandleSummary
		groups   []model.HandlePosts
	)
	for _, f := range u.Follows {
		posts := a.newPosts(ctx, log, primary, f.Username)
		if len(posts) == 0 {
			continue
		}

		section, err := a.summarizeHandle(ctx, f.Username, posts, u.Context)
		if err != nil {
			log.Error("summarize handle", "handle", f.Username, "error", err)
			continue
		}
		sections = append(sections, section)
		groups = append(groups, model.HandlePosts{Username: f.Username, Posts: posts})
		res.Posts += len(posts)
	}
	res.Handles = len(sections)

	if len(sections) == 0 {
		log.Info("no new posts, skipping digest")
		res.Status = StatusNoContent
		return res, nil
	}

	var trending string
	if len(groups) >= 2 {
		trending = a.trending(ctx, log, groups, u.Context)
	}
	res.Trending = trending != ""

	html, err := RenderDocument(now, trending, sections)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res, err
	}
	subject := Subject(now)

	var sendErrs []error
	delivered := 0
	for _, addr := range u.Emails {
		if err := a.sender.Send(ctx, addr, subject, html); err != nil {
			log.Error("send digest", "to", addr, "error", err)
			sendErrs = append(sendErrs, err)
			continue
		}
		delivered++
	}

	if delivered > 0 {
		if err := a.store.Put(ctx, sentKey, now.Format(timeLayout)); err != nil {
			sendErrs = append(sendErrs, fmt.Errorf("write sent marker: %w", err))
		}
		res.Status = StatusSent
	} else {
		res.Status = StatusFailed
	}

	err = errors.Join(sendErrs...)
	if err != nil {
		res.Error = err.Error()
	}
	log.Info("digest done", "status", res.Status, "handles", res.Handles, "posts", res.Posts,
		"delivered", delivered, "addresses", len(u.Emails))
	return res, err
}

// newPosts returns the posts of username that are inside the recency window
// and newer than the stored bound, after persisting their maximum id as the
// new bound. Any failure yields no posts.
func (a *Assembler) newPosts(ctx context.Context, log *slog.Logger, primary, username string) []model.Post {
	log = log.With("handle", username)
	key := storage.LastSeenKey(primary, username)

	stored, ok, err := a.store.Get(ctx, key)
	if err != nil {
		log.Error("read last seen", "error", err)
		return nil
	}
	var lastSeen *big.Int
	if ok {
		lastSeen, err = model.ParseID(stored)
		if err != nil {
			log.Warn("ignore invalid last seen", "value", stored)
		}
	}

	accountID, err := a.source.ResolveHandle(ctx, username)
	if err != nil {
		log.Warn("resolve handle", "error", err)
		return nil
	}
	fetched, err := a.source.RecentPosts(ctx, accountID, a.limit)
	if err != nil {
		log.Warn("fetch posts", "error", err)
		return nil
	}

	posts := FilterNew(fetched, lastSeen, a.now().Add(-a.window))
	if len(posts) == 0 {
		log.Debug("no new posts", "fetched", len(fetched))
		return nil
	}

	maxID, err := model.MaxID(posts)
	if err != nil {
		log.Error("compute max id", "error", err)
		return nil
	}
	if err := a.store.Put(ctx, key, maxID); err != nil {
		log.Error("write last seen", "error", err)
		return nil
	}
	log.Debug("new posts", "fetched", len(fetched), "new", len(posts), "last_seen", maxID)
	return posts
}

// FilterNew keeps posts created strictly after cutoff whose id is greater than
// lastSeen. Posts without a timestamp are kept; a nil lastSeen keeps every id.
// Fetch order is preserved.
func FilterNew(posts []model.Post, lastSeen *big.Int, cutoff time.Time) []model.Post {
	var out []model.Post
	for _, p := range posts {
		if !p.CreatedAt.IsZero() && !p.CreatedAt.After(cutoff) {
			continue
		}
		id, err := model.ParseID(p.ID)
		if err != nil {
			continue
		}
		if lastSeen != nil && id.Cmp(lastSeen) <= 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (a *Assembler) summarizeHandle(ctx context.Context, username string, posts []model.Post, readerContext string) (model.HandleSummary, error) {
	prose, err := a.summ.Summarize(ctx, posts, readerContext)
	if err != nil {
		return model.HandleSummary{}, err
	}

	links := make([]string, len(posts))
	for i, p := range posts {
		links[i] = model.Permalink(username, p.ID)
	}

	html, err := RenderMarkdown(prose)
	if err != nil {
		return model.HandleSummary{}, err
	}

	return model.HandleSummary{
		Username:    username,
		SummaryHTML: LinkReferences(html, links),
		Links:       links,
		PostCount:   len(posts),
	}, nil
}

// trending returns the rendered shared-topic block, or "" when nothing is
// shared or the call fails.
func (a *Assembler) trending(ctx context.Context, log *slog.Logger, groups []model.HandlePosts, readerContext string) string {
	resp, err := a.summ.Aggregate(ctx, groups, readerContext)
	if err != nil {
		log.Error("aggregate shared topics", "error", err)
		return ""
	}
	resp = strings.TrimSpace(resp)
	if resp == "" || resp == summarizer.NoSharedTopics {
		return ""
	}

	html, err := RenderMarkdown(resp)
	if err != nil {
		log.Error("render shared topics", "error", err)
		return ""
	}

	handles := make([]string, len(groups))
	for i, g := range groups {
		handles[i] = g.Username
	}
	return LinkMentions(html, handles)
}
