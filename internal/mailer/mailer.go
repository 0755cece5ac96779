// Package mailer delivers digest emails with pacing and rate-limit retries.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrRateLimited is returned by a Transport when the provider throttles us.
var ErrRateLimited = errors.New("rate limited")

const (
	defaultMinInterval = 600 * time.Millisecond
	defaultBaseBackoff = time.Second
	defaultMaxRetries  = 2
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport hands a message to an email provider.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Mailer sends messages through a Transport. Consecutive deliveries are spaced
// at least minInterval apart and rate-limited attempts are retried with
// exponential backoff.
type Mailer struct {
	transport  Transport
	from       string
	log        *slog.Logger
	newBackoff func() retry.Backoff

	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a Mailer sending from the given address.
func New(transport Transport, from string, log *slog.Logger) *Mailer {
	return &Mailer{
		transport:   transport,
		from:        from,
		log:         log,
		newBackoff:  defaultBackoff,
		minInterval: defaultMinInterval,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// SetMinInterval overrides the default spacing between deliveries.
func (m *Mailer) SetMinInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minInterval = d
}

// SetBackoff overrides the retry policy for rate-limited deliveries.
func (m *Mailer) SetBackoff(newBackoff func() retry.Backoff) {
	m.newBackoff = newBackoff
}

// Send delivers one HTML email to a single address.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	msg := Message{From: m.from, To: to, Subject: subject, HTML: html}
	attempt := 0

	err := retry.Do(ctx, m.newBackoff(), func(ctx context.Context) error {
		attempt++
		if err := m.pace(ctx); err != nil {
			return err
		}
		err := m.transport.Deliver(ctx, msg)
		if errors.Is(err, ErrRateLimited) {
			m.log.Warn("mail rate limited", "to", to, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	m.log.Info("mail sent", "to", to, "attempts", attempt)
	return nil
}

// pace blocks until minInterval has passed since the previous delivery and
// records the current delivery time.
func (m *Mailer) pace(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.last.IsZero() {
		if wait := m.minInterval - m.now().Sub(m.last); wait > 0 {
			if err := m.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	m.last = m.now()
	return nil
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(defaultMaxRetries, retry.NewExponential(defaultBaseBackoff))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
