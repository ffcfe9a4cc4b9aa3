package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/agent"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is a run without its steps.
type RunSummary struct {
	ID         string        `json:"run_id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	StopReason string        `json:"stop_reason"`
	Iterations int           `json:"iterations"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// SaveRun stores a finished run and its steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, r *agent.Result) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO agent_runs (id, question, answer, state, stop_reason, iterations, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		r.RunID, r.Question, r.Answer, string(r.State), string(r.StopReason),
		r.Iterations, r.StartedAt, r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}

	batch := &pgx.Batch{}
	for i, st := range r.Steps {
		batch.Queue(`
			INSERT INTO agent_steps (run_id, seq, type, tool, input, log, observation, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, seq) DO NOTHING`,
			r.RunID, i, string(st.Type), st.Tool, st.Input, st.Log, st.Observation,
			st.Duration.Milliseconds(), st.Timestamp,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save steps %s: %w", r.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run %s: %w", r.RunID, err)
	}
	return nil
}

// GetRun loads a run with its steps.
func (s *Store) GetRun(ctx context.Context, id string) (*agent.Result, error) {
	// run IDs are UUIDs; anything else cannot have a record
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get run %q: %w", id, ErrRunNotFound)
	}
	var r agent.Result
	var state, reason string
	var durationMS int64
	err := s.db.QueryRow(ctx, `
		SELECT id::text, question, answer, state, stop_reason, iterations, started_at, duration_ms
		FROM agent_runs WHERE id = $1`, id,
	).Scan(&r.RunID, &r.Question, &r.Answer, &state, &reason, &r.Iterations, &r.StartedAt, &durationMS)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	r.State = agent.State(state)
	r.StopReason = agent.StopReason(reason)
	r.Duration = time.Duration(durationMS) * time.Millisecond

	rows, err := s.db.Query(ctx, `
		SELECT type, tool, input, log, observation, duration_ms, created_at
		FROM agent_steps WHERE run_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("get steps %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var st agent.Step
		var typ string
		var ms int64
		if err := rows.Scan(&typ, &st.Tool, &st.Input, &st.Log, &st.Observation, &ms, &st.Timestamp); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Type = agent.StepType(typ)
		st.Duration = time.Duration(ms) * time.Millisecond
		r.Steps = append(r.Steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get steps %s: %w", id, err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id::text, question, answer, stop_reason, iterations, started_at, duration_ms
		FROM agent_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var ms int64
		if err := rows.Scan(&r.ID, &r.Question, &r.Answer, &r.StopReason, &r.Iterations, &r.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
