// Package summarizer turns posts into short prose using a language model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bird_whisperer/internal/model"
)

// NoSharedTopics is the exact reply the aggregate prompt asks for when no
// topic is shared by two or more accounts.
const NoSharedTopics = "NO_SHARED_TOPICS"

const systemPrompt = "You condense social media posts into an accurate, brief daily email digest. Never invent facts that are not in the posts."

const defaultSummaryTemplate = `Summarize the recent posts of one account for a reader.

About the reader: {CONTEXT}

Posts, numbered:
{TWEETS}

Write two to four sentences of markdown on what the account talked about and why it may matter to this reader. Cite posts by number in square brackets, for example [2]. Do not add a heading.`

const aggregateTemplate = `Below are today's new posts from several accounts the reader follows, grouped by account.

About the reader: {CONTEXT}

{GROUPED_TWEETS}

Find topics that at least two of these accounts posted about. For each one write a single markdown bullet that names the accounts as @handle. If no topic is shared by at least two accounts, reply with exactly ` + NoSharedTopics + ` and nothing else.`

// Completer sends one prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Summarizer builds prompts from posts and runs them through a Completer.
type Summarizer struct {
	completer Completer
	template  string
	log       *slog.Logger
}

// New creates a Summarizer. An empty template selects the built-in one; a
// custom template may use the {CONTEXT} and {TWEETS} placeholders.
func New(completer Completer, template string, log *slog.Logger) *Summarizer {
	if strings.TrimSpace(template) == "" {
		template = defaultSummaryTemplate
	}
	return &Summarizer{completer: completer, template: template, log: log}
}

// Summarize returns markdown prose about posts, citing them as [1]..[n] in
// the order given.
func (s *Summarizer) Summarize(ctx context.Context, posts []model.Post, readerContext string) (string, error) {
	if len(posts) == 0 {
		return "", errors.New("summarize: no posts")
	}
	prompt := strings.NewReplacer(
		"{CONTEXT}", readerContext,
		"{TWEETS}", FormatPosts(posts),
	).Replace(s.template)

	out, err := s.complete(ctx, "summarize", prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return out, nil
}

// Aggregate asks for topics shared across accounts. The reply is returned
// as is; it equals NoSharedTopics when nothing is shared.
func (s *Summarizer) Aggregate(ctx context.Context, groups []model.HandlePosts, readerContext string) (string, error) {
	prompt := strings.NewReplacer(
		"{CONTEXT}", readerContext,
		"{GROUPED_TWEETS}", FormatGroups(groups),
	).Replace(aggregateTemplate)

	out, err := s.complete(ctx, "aggregate", prompt)
	if err != nil {
		return "", fmt.Errorf("aggregate: %w", err)
	}
	return out, nil
}

func (s *Summarizer) complete(ctx context.Context, kind, prompt string) (string, error) {
	start := time.Now()
	out, err := s.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}
	s.log.Debug("llm call done", "kind", kind, "prompt_bytes", len(prompt), "duration", time.Since(start))
	return out, nil
}

// FormatPosts renders posts as numbered lines starting at [1]. A quoted post
// follows on an indented continuation line.
func FormatPosts(posts []model.Post) string {
	var b strings.Builder
	for i, p := range posts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, p.Text)
		if q := p.Quoted; q != nil {
			if q.Author != "" {
				fmt.Fprintf(&b, "\n    ↳ Quoted @%s: \"%s\"", q.Author, q.Text)
			} else {
				fmt.Fprintf(&b, "\n    ↳ Quoted: \"%s\"", q.Text)
			}
		}
	}
	return b.String()
}

// FormatGroups renders each account's posts under an @handle header.
func FormatGroups(groups []model.HandlePosts) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, "@"+g.Username+":\n"+FormatPosts(g.Posts))
	}
	return strings.Join(parts, "\n\n")
}
