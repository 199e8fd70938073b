package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammad-safakhou/bulkcart/config"
)

func TestSettleUsesConfiguredDelay(t *testing.T) {
	p := New(config.PacingConfig{AfterSearch: 3 * time.Second, AfterSubmit: 5 * time.Second})
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx := context.Background()
	if err := p.Settle(ctx, StepSearch); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := p.Settle(ctx, StepSubmit); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := p.Settle(ctx, StepSelect); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(slept) != 2 || slept[0] != 3*time.Second || slept[1] != 5*time.Second {
		t.Fatalf("unexpected sleeps: %v", slept)
	}
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not return promptly")
	}
}

func TestNilPacerNeverWaits(t *testing.T) {
	var p *Pacer
	if d := p.Delay(StepItem); d != 0 {
		t.Fatalf("nil pacer delay = %v", d)
	}
	if err := p.Settle(context.Background(), StepItem); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := p.BeforeNavigate(context.Background()); err != nil {
		t.Fatalf("BeforeNavigate: %v", err)
	}
}

func TestBeforeNavigateHonoursLimiter(t *testing.T) {
	p := New(config.PacingConfig{NavigationsPerSecond: 0.001, Burst: 1})
	ctx := context.Background()
	if err := p.BeforeNavigate(ctx); err != nil {
		t.Fatalf("first navigation should pass: %v", err)
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := p.BeforeNavigate(short); err == nil {
		t.Fatalf("second navigation should be throttled")
	}
}

func TestNoneIsUnlimited(t *testing.T) {
	p := None()
	for i := 0; i < 50; i++ {
		if err := p.BeforeNavigate(context.Background()); err != nil {
			t.Fatalf("navigation %d throttled: %v", i, err)
		}
	}
}
