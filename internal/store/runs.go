package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zipfetch/internal/domain"
)

func (s *PersistentStore) SaveRun(run *domain.Run) error {
	query := s.rebind(`INSERT INTO runs (id, url, destination, pointer_url, stage, bytes_written, total_bytes, extract, started_at, error)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT (id) DO UPDATE SET
                  pointer_url = excluded.pointer_url,
                  stage = excluded.stage,
                  bytes_written = excluded.bytes_written,
                  total_bytes = excluded.total_bytes,
                  error = excluded.error`)

	_, err := s.db.Exec(query,
		run.ID,
		run.URL,
		run.Destination,
		run.PointerURL,
		string(run.Stage),
		run.BytesWritten.Load(),
		run.TotalBytes,
		run.Extract,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Error,
	)
	return err
}

func (s *PersistentStore) scanRun(row interface{ Scan(...any) error }) (*domain.Run, error) {
	run := &domain.Run{}
	var stage, startedAt string
	var bytesWritten int64

	err := row.Scan(&run.ID, &run.URL, &run.Destination, &run.PointerURL, &stage, &bytesWritten, &run.TotalBytes, &run.Extract, &startedAt, &run.Error)
	if err != nil {
		return nil, err
	}

	run.Stage = domain.Stage(stage)
	run.BytesWritten.Store(bytesWritten)
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		run.StartedAt = t
	}

	return run, nil
}

const runColumns = "id, url, destination, pointer_url, stage, bytes_written, total_bytes, extract, started_at, error"

// GetRuns returns the full history, newest last. KSUIDs sort
// chronologically, so ordering by id is ordering by creation time.
func (s *PersistentStore) GetRuns() ([]*domain.Run, error) {
	rows, err := s.db.Query("SELECT " + runColumns + " FROM runs ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (s *PersistentStore) GetRun(id string) (*domain.Run, error) {
	query := s.rebind("SELECT " + runColumns + " FROM runs WHERE id = ?")

	run, err := s.scanRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}

	return run, nil
}

// GetActiveRuns returns runs that have not reached a terminal stage.
func (s *PersistentStore) GetActiveRuns() ([]*domain.Run, error) {
	rows, err := s.db.Query("SELECT " + runColumns + " FROM runs WHERE stage NOT IN ('done', 'failed') ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
