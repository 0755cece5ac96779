// Package app runs digests: it loads the declaration, builds the per-run
// collaborators and guards against overlapping runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bird_whisperer/internal/config"
	"bird_whisperer/internal/digest"
	"bird_whisperer/internal/storage"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still going in this process.
var ErrRunInProgress = errors.New("digest run already in progress")

// Triggers recorded on each run.
const (
	TriggerSchedule = "schedule"
	TriggerHTTP     = "http"
	TriggerBot      = "bot"
	TriggerCLI      = "cli"
)

// SummarizerFactory builds the summarizer for a loaded declaration.
type SummarizerFactory func(ctx context.Context, d *config.Digest) (digest.Summarizer, error)

// RunResult describes one finished run.
type RunResult struct {
	ID         string
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Report     *digest.Report
	Err        error
}

// App owns the long-lived collaborators shared by every run.
type App struct {
	configPath    string
	store         storage.Store
	source        digest.Source
	sender        digest.Sender
	newSummarizer SummarizerFactory
	log           *slog.Logger

	running atomic.Bool

	mu   sync.RWMutex
	last *RunResult
}

// New creates an App. The declaration at configPath is re-read on every run.
func New(configPath string, store storage.Store, source digest.Source, sender digest.Sender, newSummarizer SummarizerFactory, log *slog.Logger) *App {
	return &App{
		configPath:    configPath,
		store:         store,
		source:        source,
		sender:        sender,
		newSummarizer: newSummarizer,
		log:           log,
	}
}

// RunDigest performs one digest run. It returns ErrRunInProgress without
// doing anything if another run holds the guard.
func (a *App) RunDigest(ctx context.Context, trigger string) (*RunResult, error) {
	if !a.running.CompareAndSwap(false, true) {
		a.log.Warn("digest run rejected, another run in progress", "trigger", trigger)
		return nil, ErrRunInProgress
	}
	defer a.running.Store(false)

	res := &RunResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	log := a.log.With("run_id", res.ID, "trigger", trigger)
	log.Info("digest run started")

	res.Report, res.Err = a.runOnce(ctx, log)
	res.FinishedAt = time.Now().UTC()

	attrs := []any{"duration", res.FinishedAt.Sub(res.StartedAt)}
	if res.Report != nil {
		attrs = append(attrs,
			"users", len(res.Report.Users),
			"sent", res.Report.Count(digest.StatusSent),
			"already_sent", res.Report.Count(digest.StatusAlreadySent),
			"no_content", res.Report.Count(digest.StatusNoContent),
			"failed", res.Report.Count(digest.StatusFailed),
		)
	}
	if res.Err != nil {
		log.Error("digest run failed", append(attrs, "error", res.Err)...)
	} else {
		log.Info("digest run finished", attrs...)
	}

	a.mu.Lock()
	a.last = res
	a.mu.Unlock()

	return res, res.Err
}

func (a *App) runOnce(ctx context.Context, log *slog.Logger) (*digest.Report, error) {
	decl, err := config.LoadDigest(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load declaration: %w", err)
	}

	summ, err := a.newSummarizer(ctx, decl)
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}

	asm := digest.New(a.source, summ, a.store, a.sender, log)
	return asm.Run(ctx, decl)
}

// Last returns the most recent finished run, or nil before the first one.
func (a *App) Last() *RunResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Running reports whether a run is in progress.
func (a *App) Running() bool {
	return a.running.Load()
}
