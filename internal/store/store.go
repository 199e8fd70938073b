// Package store keeps the history of batch runs in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mohammad-safakhou/bulkcart/models"
)

// Run statuses persisted in runs.status.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
)

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	DB *sql.DB
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Total      int
	Status     string
	Counts     map[models.ItemStatus]int
}

// NewWithDSN opens the database and checks it is reachable.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) StartRun(ctx context.Context, runID string, startedAt time.Time, total int) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO runs (id, started_at, total, status)
VALUES ($1,$2,$3,$4)
`, runID, startedAt, total, RunStatusRunning)
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) SaveItemResult(ctx context.Context, runID string, res models.ItemResult) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO item_results (run_id, idx, row_number, code, quantity, status, available_quantity, product_url, candidates_visited, error, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id, idx) DO UPDATE SET
  status = EXCLUDED.status,
  available_quantity = EXCLUDED.available_quantity,
  product_url = EXCLUDED.product_url,
  candidates_visited = EXCLUDED.candidates_visited,
  error = EXCLUDED.error,
  duration_ms = EXCLUDED.duration_ms;
`, runID, res.Index, res.Row, res.Code, res.Quantity, string(res.Status), res.AvailableQuantity,
		res.ProductURL, res.CandidatesVisited, res.Error, res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("save result %s/%d: %w", runID, res.Index, err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, summary models.Summary) error {
	counts, err := json.Marshal(summary.Counts)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE runs SET finished_at=$2, total=$3, status=$4, counts=$5
WHERE id=$1
`, summary.RunID, summary.FinishedAt, summary.Total, RunStatusFinished, counts)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", summary.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", summary.RunID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, started_at, finished_at, total, status, counts
FROM runs
ORDER BY started_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec      RunRecord
			finished sql.NullTime
			counts   []byte
		)
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &finished, &rec.Total, &rec.Status, &counts); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			rec.FinishedAt = &t
		}
		rec.Counts = map[models.ItemStatus]int{}
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &rec.Counts); err != nil {
				return nil, fmt.Errorf("decode counts of run %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ItemResults returns the stored results of a run in item order.
func (s *Store) ItemResults(ctx context.Context, runID string) ([]models.ItemResult, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT idx, row_number, code, quantity, status, available_quantity, product_url, candidates_visited, error, duration_ms
FROM item_results
WHERE run_id=$1
ORDER BY idx
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ItemResult
	for rows.Next() {
		var (
			res        models.ItemResult
			status     string
			avail      sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&res.Index, &res.Row, &res.Code, &res.Quantity, &status, &avail,
			&res.ProductURL, &res.CandidatesVisited, &res.Error, &durationMS); err != nil {
			return nil, err
		}
		res.Status = models.ItemStatus(status)
		if avail.Valid {
			res.AvailableQuantity = models.StringPtr(avail.String)
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}
