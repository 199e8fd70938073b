package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/bulkcart/models"
)

// Reporter observes a batch. Calls are made from the orchestrator goroutine in
// item order; implementations must not block for long.
type Reporter interface {
	BatchStarted(ctx context.Context, runID string, items []models.LineItem)
	ItemDone(ctx context.Context, runID string, res models.ItemResult)
	BatchDone(ctx context.Context, summary models.Summary)
}

// MultiReporter fans every event out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) BatchStarted(ctx context.Context, runID string, items []models.LineItem) {
	for _, r := range m {
		r.BatchStarted(ctx, runID, items)
	}
}

func (m MultiReporter) ItemDone(ctx context.Context, runID string, res models.ItemResult) {
	for _, r := range m {
		r.ItemDone(ctx, runID, res)
	}
}

func (m MultiReporter) BatchDone(ctx context.Context, summary models.Summary) {
	for _, r := range m {
		r.BatchDone(ctx, summary)
	}
}

// LogReporter writes one console line per item and one for the batch.
type LogReporter struct {
	Logger *log.Logger
}

func NewLogReporter(logger *log.Logger) *LogReporter {
	if logger == nil {
		logger = log.New(log.Writer(), "[BATCH] ", log.LstdFlags)
	}
	return &LogReporter{Logger: logger}
}

func (l *LogReporter) BatchStarted(_ context.Context, runID string, items []models.LineItem) {
	l.Logger.Printf("run %s: %d items", runID, len(items))
}

func (l *LogReporter) ItemDone(_ context.Context, _ string, res models.ItemResult) {
	switch res.Status {
	case models.ItemStatusAdded:
		l.Logger.Printf("row %d %s x%s: added, available %s", res.Row, res.Code, res.Quantity, models.Deref(res.AvailableQuantity, "unknown"))
	case models.ItemStatusAddFailed:
		l.Logger.Printf("row %d %s x%s: add to cart failed on %s: %s", res.Row, res.Code, res.Quantity, res.ProductURL, res.Error)
	case models.ItemStatusNoResults:
		l.Logger.Printf("row %d %s x%s: no results", res.Row, res.Code, res.Quantity)
	case models.ItemStatusNoMatch:
		if res.Error != "" {
			l.Logger.Printf("row %d %s x%s: no match among %d candidates (%s)", res.Row, res.Code, res.Quantity, res.CandidatesVisited, res.Error)
			return
		}
		l.Logger.Printf("row %d %s x%s: no match among %d candidates", res.Row, res.Code, res.Quantity, res.CandidatesVisited)
	default:
		l.Logger.Printf("row %d %s x%s: failed: %s", res.Row, res.Code, res.Quantity, res.Error)
	}
}

func (l *LogReporter) BatchDone(_ context.Context, s models.Summary) {
	l.Logger.Printf("batch complete: run %s, %d items in %s (added=%d add_failed=%d no_match=%d no_results=%d failed=%d)",
		s.RunID, s.Total, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond),
		s.Counts[models.ItemStatusAdded], s.Counts[models.ItemStatusAddFailed], s.Counts[models.ItemStatusNoMatch],
		s.Counts[models.ItemStatusNoResults], s.Counts[models.ItemStatusFailed])
}
