package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run statuses
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ClusterRun is the persisted summary of one orchestrator run.
type ClusterRun struct {
	ID             int64
	ProcessType    string
	Params         string
	Status         string
	LastRecordID   int64
	Attempted      int
	Clustered      int
	WorksIndexed   int
	WorksRetracted int
	Failures       map[string]int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// StartRun records the beginning of a run and returns its id.
func (s *Store) StartRun(ctx context.Context, processType, params string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO cluster_runs (process_type, params, status, started_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, processType, params, RunRunning, formatTime(time.Now())).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// UpdateRunProgress stores the running counters of a run.
func (s *Store) UpdateRunProgress(ctx context.Context, run *ClusterRun) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE cluster_runs
		SET last_record_id = ?, attempted = ?, clustered = ?, works_indexed = ?,
		    works_retracted = ?, failures = ?
		WHERE id = ?
	`, run.LastRecordID, run.Attempted, run.Clustered, run.WorksIndexed,
		run.WorksRetracted, encodeJSON(run.Failures), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, run *ClusterRun) error {
	if err := s.UpdateRunProgress(ctx, run); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE cluster_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`, run.Status, nullString(run.Error), formatTime(time.Now()), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", run.ID, err)
	}
	return nil
}

// GetLatestRun returns the most recent run, or nil if none exist.
func (s *Store) GetLatestRun(ctx context.Context) (*ClusterRun, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*ClusterRun, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, process_type, params, status, last_record_id, attempted, clustered,
		       works_indexed, works_retracted, failures, error, started_at, finished_at
		FROM cluster_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*ClusterRun
	for rows.Next() {
		var r ClusterRun
		var params, failures, errMsg sql.NullString
		var started, finished dbTime
		if err := rows.Scan(&r.ID, &r.ProcessType, &params, &r.Status, &r.LastRecordID,
			&r.Attempted, &r.Clustered, &r.WorksIndexed, &r.WorksRetracted, &failures,
			&errMsg, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Params = params.String
		r.Error = errMsg.String
		r.StartedAt = started.Time
		r.FinishedAt = finished.Time
		if err := decodeJSON(failures, &r.Failures); err != nil {
			return nil, fmt.Errorf("run %d failures: %w", r.ID, err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
