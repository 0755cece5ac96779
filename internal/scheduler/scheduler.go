// Package scheduler runs the digest on a cron schedule and reports failed
// runs to the operator chat.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"bird_whisperer/internal/app"
	"bird_whisperer/internal/bot"
)

const defaultTimeout = 30 * time.Minute

// Runner performs one digest run.
type Runner interface {
	RunDigest(ctx context.Context, trigger string) (*app.RunResult, error)
}

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler runs the digest on a cron schedule.
type Scheduler struct {
	runner   Runner
	expr     string
	schedule cron.Schedule
	loc      *time.Location
	timeout  time.Duration
	log      *slog.Logger

	sender       Sender
	reportChatID int64
}

// New creates a Scheduler for a standard five-field cron expression evaluated
// in loc.
func New(runner Runner, expr string, loc *time.Location, log *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return &Scheduler{
		runner:   runner,
		expr:     expr,
		schedule: sched,
		loc:      loc,
		timeout:  defaultTimeout,
		log:      log,
	}, nil
}

// SetTimeout overrides the default 30-minute limit of a scheduled run.
func (s *Scheduler) SetTimeout(d time.Duration) {
	s.timeout = d
}

// SetReporter makes failed runs get reported to chatID through sender.
func (s *Scheduler) SetReporter(sender Sender, chatID int64) {
	s.sender = sender
	s.reportChatID = chatID
}

// Next returns the first scheduled time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run starts the cron loop, blocking until ctx is cancelled. It waits for a
// run in flight to finish before returning.
func (s *Scheduler) Run(ctx context.Context) {
	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))
	c.Start()

	s.log.Info("scheduler started", "schedule", s.expr, "timezone", s.loc.String(), "next", s.Next(time.Now()))

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.runner.RunDigest(ctx, app.TriggerSchedule)
	switch {
	case err == nil:
		return
	case errors.Is(err, app.ErrRunInProgress):
		s.log.Warn("scheduled run skipped", "reason", err)
		return
	}

	if s.sender != nil && s.reportChatID != 0 {
		s.sender.SendMessage(s.reportChatID, bot.FormatFailure(res, err))
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
