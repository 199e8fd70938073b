// Package orchestrator runs the per-item fulfillment pipeline over a batch:
// search, scan candidates until one matches, then add it to the cart.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/bulkcart/internal/pacing"
	"github.com/mohammad-safakhou/bulkcart/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mohammad-safakhou/bulkcart/internal/orchestrator"

// ErrRejected is recorded when the storefront did not confirm an add-to-cart.
var ErrRejected = errors.New("storefront did not accept the item")

type Searcher interface {
	Search(ctx context.Context, code string) ([]string, error)
}

type Matcher interface {
	ConfirmMatch(ctx context.Context, ref, code string) (bool, error)
}

type Committer interface {
	AddToCart(ctx context.Context, quantity string) (models.CartOutcome, error)
}

// Resetter returns the browsing context to a known page between items.
type Resetter interface {
	Reset(ctx context.Context) error
}

type Orchestrator struct {
	searcher  Searcher
	matcher   Matcher
	committer Committer
	resetter  Resetter
	pacer     *pacing.Pacer
	reporter  Reporter
	logger    *log.Logger
	now       func() time.Time
	newRunID  func() string
}

// Option configures orchestrator behaviour.
type Option func(*Orchestrator)

// WithResetter enables a reset before every item after the first.
func WithResetter(r Resetter) Option {
	return func(o *Orchestrator) { o.resetter = r }
}

func WithPacer(p *pacing.Pacer) Option {
	return func(o *Orchestrator) { o.pacer = p }
}

// WithReporters replaces the default console reporter.
func WithReporters(rs ...Reporter) Option {
	return func(o *Orchestrator) { o.reporter = MultiReporter(rs) }
}

func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

func New(s Searcher, m Matcher, c Committer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searcher:  s,
		matcher:   m,
		committer: c,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.New(log.Writer(), "[BATCH] ", log.LstdFlags)
	}
	if o.reporter == nil {
		o.reporter = NewLogReporter(o.logger)
	}
	return o
}

// Run processes items strictly in order and returns exactly one result per
// item, in input order. A failing or panicking item never stops the next one;
// once ctx is done every remaining item is recorded as failed.
func (o *Orchestrator) Run(ctx context.Context, items []models.LineItem) ([]models.ItemResult, models.Summary) {
	runID := o.newRunID()
	started := o.now()
	o.reporter.BatchStarted(ctx, runID, items)

	results := make([]models.ItemResult, 0, len(items))
	for i, item := range items {
		var res models.ItemResult
		if err := ctx.Err(); err != nil {
			res = skipped(i, item, err)
		} else {
			if i > 0 && o.resetter != nil {
				if err := o.resetter.Reset(ctx); err != nil {
					o.logger.Printf("reset before row %d: %v", item.Row, err)
				}
			}
			res = o.process(ctx, i, item)
		}
		results = append(results, res)
		o.reporter.ItemDone(ctx, runID, res)

		if i < len(items)-1 && ctx.Err() == nil {
			_ = o.pacer.Settle(ctx, pacing.StepItem)
		}
	}

	summary := models.Summarize(runID, started, o.now(), results)
	o.reporter.BatchDone(ctx, summary)
	return results, summary
}

func skipped(idx int, item models.LineItem, err error) models.ItemResult {
	return models.ItemResult{
		Index:    idx,
		Row:      item.Row,
		Code:     item.Code,
		Quantity: item.Quantity,
		Status:   models.ItemStatusFailed,
		Error:    err.Error(),
	}
}

func (o *Orchestrator) process(ctx context.Context, idx int, item models.LineItem) (res models.ItemResult) {
	start := o.now()
	res = models.ItemResult{Index: idx, Row: item.Row, Code: item.Code, Quantity: item.Quantity}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "item", trace.WithAttributes(
		attribute.Int("item.row", item.Row),
		attribute.String("item.code", item.Code),
		attribute.String("item.quantity", item.Quantity),
	))
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("row %d %s: panic: %v\n%s", item.Row, item.Code, r, debug.Stack())
			res.Status = models.ItemStatusFailed
			if res.ProductURL != "" {
				res.Status = models.ItemStatusAddFailed
			}
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = o.now().Sub(start)
		span.SetAttributes(
			attribute.String("item.status", string(res.Status)),
			attribute.Int("item.candidates_visited", res.CandidatesVisited),
		)
		if res.Error != "" {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
	}()

	links, err := o.searcher.Search(ctx, item.Code)
	if err != nil {
		res.Status = models.ItemStatusFailed
		res.Error = err.Error()
		return res
	}
	if len(links) == 0 {
		res.Status = models.ItemStatusNoResults
		return res
	}

	var (
		unreadable int
		lastErr    error
	)
	for _, ref := range links {
		res.CandidatesVisited++
		ok, err := o.matcher.ConfirmMatch(ctx, ref, item.Code)
		if err != nil {
			if ctx.Err() != nil {
				res.Status = models.ItemStatusFailed
				res.Error = ctx.Err().Error()
				return res
			}
			o.logger.Printf("row %d %s x%s: candidate %s unreadable: %v", item.Row, item.Code, item.Quantity, ref, err)
			unreadable++
			lastErr = err
			continue
		}
		if !ok {
			continue
		}

		res.ProductURL = ref
		out, err := o.committer.AddToCart(ctx, item.Quantity)
		switch {
		case err != nil:
			res.Status = models.ItemStatusAddFailed
			res.Error = err.Error()
		case !out.Success:
			res.Status = models.ItemStatusAddFailed
			res.Error = ErrRejected.Error()
		default:
			res.Status = models.ItemStatusAdded
			res.AvailableQuantity = out.AvailableQuantity
		}
		return res
	}

	// Every candidate failed to load: the storefront, not the catalog, is the problem.
	if unreadable == len(links) {
		res.Status = models.ItemStatusFailed
		res.Error = fmt.Sprintf("all %d candidates unreadable: %v", unreadable, lastErr)
		return res
	}
	res.Status = models.ItemStatusNoMatch
	if unreadable > 0 {
		res.Error = fmt.Sprintf("%d of %d candidates unreadable: %v", unreadable, len(links), lastErr)
	}
	return res
}
