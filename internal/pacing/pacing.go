// Package pacing inserts the bounded settle delays the storefront needs
// between network-bound steps and rate-limits page navigations.
package pacing

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/bulkcart/config"
	"golang.org/x/time/rate"
)

// Step names a point in the pipeline that is followed by a settle delay.
type Step string

const (
	StepHome        Step = "home"
	StepLogin       Step = "login"
	StepSearch      Step = "search"
	StepProductLoad Step = "product_load"
	StepSelect      Step = "select"
	StepSubmit      Step = "submit"
	StepItem        Step = "item"
)

// Pacer is safe to share; a nil *Pacer never waits.
type Pacer struct {
	delays  map[Step]time.Duration
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(cfg config.PacingConfig) *Pacer {
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.NavigationsPerSecond > 0 {
		limit = rate.Limit(cfg.NavigationsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{
		delays: map[Step]time.Duration{
			StepHome:        cfg.AfterHome,
			StepLogin:       cfg.AfterLogin,
			StepSearch:      cfg.AfterSearch,
			StepProductLoad: cfg.AfterProductLoad,
			StepSelect:      cfg.AfterSelect,
			StepSubmit:      cfg.AfterSubmit,
			StepItem:        cfg.BetweenItems,
		},
		limiter: rate.NewLimiter(limit, burst),
		sleep:   Sleep,
	}
}

// None returns a pacer that never waits.
func None() *Pacer { return New(config.PacingConfig{}) }

// Delay returns the configured settle delay for step.
func (p *Pacer) Delay(step Step) time.Duration {
	if p == nil {
		return 0
	}
	return p.delays[step]
}

// Settle waits the delay configured for step or until ctx is done.
func (p *Pacer) Settle(ctx context.Context, step Step) error {
	d := p.Delay(step)
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, d)
}

// BeforeNavigate blocks until the navigation limiter admits one more page load.
func (p *Pacer) BeforeNavigate(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// Sleep waits d or returns ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
