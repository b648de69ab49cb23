package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run records one batch command invocation.
type Run struct {
	ID         string
	Command    string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running or after an interrupted run
	Total      int
	Succeeded  int
	Failed     int
}

// StartRun records the start of a batch command and returns its run.
func (s *Store) StartRun(ctx context.Context, command string) (Run, error) {
	run := Run{ID: uuid.NewString(), Command: command, StartedAt: time.Now().UTC()}
	err := s.exec(ctx, "start run "+command,
		"INSERT INTO runs (id, command, started_at) VALUES (?, ?, ?)",
		run.ID, run.Command, formatTime(run.StartedAt))
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// FinishRun stores the final counts of run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, total = ?, succeeded = ?, failed = ? WHERE id = ?",
		formatTime(run.FinishedAt), run.Total, run.Succeeded, run.Failed, run.ID)
	if err != nil {
		return fmt.Errorf("store: finish run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finish run %s: no such run", run.ID)
	}
	return nil
}

// Runs returns the most recent runs first, at most limit (0 = all).
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := "SELECT id, command, started_at, finished_at, total, succeeded, failed FROM runs ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Command, &started, &finished, &r.Total, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.StartedAt, r.FinishedAt = parseTime(started), parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
