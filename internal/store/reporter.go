package store

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/bulkcart/models"
)

// HistoryReporter persists batch events. Storage errors are logged and never
// interrupt the batch.
type HistoryReporter struct {
	store  *Store
	logger *log.Logger
	now    func() time.Time
}

func NewHistoryReporter(s *Store, logger *log.Logger) *HistoryReporter {
	if logger == nil {
		logger = log.New(log.Writer(), "[HISTORY] ", log.LstdFlags)
	}
	return &HistoryReporter{store: s, logger: logger, now: time.Now}
}

func (h *HistoryReporter) BatchStarted(ctx context.Context, runID string, items []models.LineItem) {
	if err := h.store.StartRun(ctx, runID, h.now().UTC(), len(items)); err != nil {
		h.logger.Printf("%v", err)
	}
}

func (h *HistoryReporter) ItemDone(ctx context.Context, runID string, res models.ItemResult) {
	if err := h.store.SaveItemResult(context.WithoutCancel(ctx), runID, res); err != nil {
		h.logger.Printf("%v", err)
	}
}

func (h *HistoryReporter) BatchDone(ctx context.Context, summary models.Summary) {
	if err := h.store.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
		h.logger.Printf("%v", err)
	}
}
