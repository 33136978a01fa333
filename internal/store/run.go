package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/crmdesk/internal/model"
)

// RunStore keeps a history of subscription check runs.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func scanRun(scanner interface{ Scan(...any) error }) (*model.JobRun, error) {
	var r model.JobRun
	err := scanner.Scan(
		&r.ID, &r.StartedAt, &r.FinishedAt, &r.TotalUsers, &r.ToSuspend, &r.ToNotify,
		&r.Expired, &r.Suspended, &r.Notified, &r.Errors, &r.Report,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const runCols = `id, started_at, finished_at, total_users, to_suspend, to_notify, expired, suspended, notified, errors, report`

func (s *RunStore) Record(r model.JobRun) error {
	if r.Report == "" {
		r.Report = "{}"
	}
	_, err := s.db.Exec(
		`INSERT INTO job_runs (`+runCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.TotalUsers, r.ToSuspend, r.ToNotify,
		r.Expired, r.Suspended, r.Notified, r.Errors, r.Report,
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

func (s *RunStore) GetByID(id string) (*model.JobRun, error) {
	row := s.db.QueryRow(`SELECT `+runCols+` FROM job_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job run: %w", err)
	}
	return r, nil
}

// ListRecent returns up to limit runs, newest first.
func (s *RunStore) ListRecent(limit int) ([]model.JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runCols+` FROM job_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var runs []model.JobRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
