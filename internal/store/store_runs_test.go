package store

import (
	"bytes"
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/mohammad-safakhou/bulkcart/models"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestStartRun(t *testing.T) {
	st, mock := newMock(t)
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO runs (id, started_at, total, status)`)).
		WithArgs("run-1", started, 3, RunStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.StartRun(context.Background(), "run-1", started, 3); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveItemResult(t *testing.T) {
	st, mock := newMock(t)
	res := models.ItemResult{
		Index:             1,
		Row:               3,
		Code:              "B2",
		Quantity:          "4",
		Status:            models.ItemStatusAdded,
		AvailableQuantity: models.StringPtr("17"),
		ProductURL:        "https://shop.test/p/b2",
		CandidatesVisited: 2,
		Duration:          1500 * time.Millisecond,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO item_results (run_id, idx, row_number, code, quantity, status, available_quantity, product_url, candidates_visited, error, duration_ms)`)).
		WithArgs("run-1", 1, 3, "B2", "4", "added", sqlmock.AnyArg(), "https://shop.test/p/b2", 2, "", int64(1500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveItemResult(context.Background(), "run-1", res); err != nil {
		t.Fatalf("SaveItemResult: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFinishRunUnknownRun(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs SET finished_at=$2, total=$3, status=$4, counts=$5`)).
		WithArgs("run-x", sqlmock.AnyArg(), 0, RunStatusFinished, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.FinishRun(context.Background(), models.Summary{RunID: "run-x", Counts: map[models.ItemStatus]int{}})
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	st, mock := newMock(t)
	started := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, started_at, finished_at, total, status, counts
FROM runs
ORDER BY started_at DESC
LIMIT $1
`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "started_at", "finished_at", "total", "status", "counts"}).
			AddRow("run-2", started, nil, 4, RunStatusRunning, []byte(`{}`)).
			AddRow("run-1", started.Add(-time.Hour), finished, 2, RunStatusFinished, []byte(`{"added":1,"no_results":1}`)))

	runs, err := st.ListRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].FinishedAt != nil || runs[0].Status != RunStatusRunning {
		t.Fatalf("running run: %+v", runs[0])
	}
	if runs[1].FinishedAt == nil || !runs[1].FinishedAt.Equal(finished) || runs[1].Counts[models.ItemStatusAdded] != 1 {
		t.Fatalf("finished run: %+v", runs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestItemResults(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM item_results`)).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"idx", "row_number", "code", "quantity", "status", "available_quantity", "product_url", "candidates_visited", "error", "duration_ms"}).
			AddRow(0, 2, "A1", "2", "added", "17", "https://shop.test/p/a1", 1, "", int64(2000)).
			AddRow(1, 3, "Z9", "1", "no_results", nil, "", 0, "", int64(300)))

	results, err := st.ItemResults(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("ItemResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if models.Deref(results[0].AvailableQuantity, "") != "17" || results[0].Duration != 2*time.Second {
		t.Fatalf("first result: %+v", results[0])
	}
	if results[1].AvailableQuantity != nil || results[1].Status != models.ItemStatusNoResults {
		t.Fatalf("second result: %+v", results[1])
	}
}

func TestHistoryReporterLogsStorageErrors(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO item_results`)).
		WillReturnError(errors.New("connection reset"))

	var buf bytes.Buffer
	h := NewHistoryReporter(st, log.New(&buf, "", 0))
	h.ItemDone(context.Background(), "run-1", models.ItemResult{Status: models.ItemStatusFailed})

	if !strings.Contains(buf.String(), "connection reset") {
		t.Fatalf("expected logged error, got %q", buf.String())
	}
}
