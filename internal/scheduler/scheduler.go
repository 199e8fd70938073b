// Package scheduler repeats the batch on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

var ErrNoNextRun = errors.New("cron expression has no future run")

// Job runs one batch. Its error is logged and never stops the schedule.
type Job func(ctx context.Context) error

// Locker guards a tick so that only one host runs it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Scheduler struct {
	expr       *cronexpr.Expression
	job        Job
	runOnStart bool
	locker     Locker
	lockKey    string
	lockTTL    time.Duration
	logger     *log.Logger
	now        func() time.Time
	after      func(time.Duration) <-chan time.Time
}

type Option func(*Scheduler)

func WithRunOnStart(v bool) Option {
	return func(s *Scheduler) { s.runOnStart = v }
}

func WithLocker(l Locker, key string, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		s.lockKey = key
		s.lockTTL = ttl
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func New(spec string, job Job, opts ...Option) (*Scheduler, error) {
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", spec, err)
	}
	s := &Scheduler{expr: expr, job: job, now: time.Now, after: time.After}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Writer(), "[SCHEDULER] ", log.LstdFlags)
	}
	return s, nil
}

// Next returns the first activation strictly after from, or the zero time.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.expr.Next(from)
}

// Run blocks until ctx is done. Ticks never overlap: a batch that outlasts
// its interval delays the following activation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.fire(ctx)
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		now := s.now()
		next := s.Next(now)
		if next.IsZero() {
			return ErrNoNextRun
		}
		s.logger.Printf("next batch at %s", next.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(now)):
		}
		s.fire(ctx)
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, s.lockKey, s.lockTTL)
		if err != nil {
			s.logger.Printf("acquire lock %s: %v", s.lockKey, err)
			return
		}
		if !ok {
			s.logger.Printf("lock %s held elsewhere, skipping tick", s.lockKey)
			return
		}
		defer release()
	}
	start := s.now()
	if err := s.job(ctx); err != nil {
		s.logger.Printf("batch failed after %s: %v", s.now().Sub(start).Round(time.Second), err)
		return
	}
	s.logger.Printf("batch finished in %s", s.now().Sub(start).Round(time.Second))
}
