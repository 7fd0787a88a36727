package journal

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the cycle table used by Repository.
const Schema = `
CREATE TABLE IF NOT EXISTS pilot_cycles (
	id           UUID PRIMARY KEY,
	session_id   TEXT        NOT NULL,
	color        TEXT        NOT NULL,
	fen_before   TEXT        NOT NULL DEFAULT '',
	fen_after    TEXT        NOT NULL DEFAULT '',
	move_uci     TEXT        NOT NULL DEFAULT '',
	move_san     TEXT        NOT NULL DEFAULT '',
	attempts     INTEGER     NOT NULL DEFAULT 0,
	outcome      TEXT        NOT NULL,
	error        TEXT        NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS pilot_cycles_session_idx ON pilot_cycles (session_id, finished_at);
`

// Repository stores cycles in postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate applies Schema.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate pilot_cycles: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, rec CycleRecord) error {
	const query = `
		INSERT INTO pilot_cycles (
			id,
			session_id,
			color,
			fen_before,
			fen_after,
			move_uci,
			move_san,
			attempts,
			outcome,
			error,
			started_at,
			finished_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.Color,
		rec.FENBefore,
		rec.FENAfter,
		rec.MoveUCI,
		rec.MoveSAN,
		rec.Attempts,
		string(rec.Outcome),
		rec.Error,
		rec.StartedAt,
		rec.FinishedAt,
		rec.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert pilot cycle: %w", err)
	}
	return nil
}

// Recent returns the latest cycles of a session, newest first.
func (r *Repository) Recent(ctx context.Context, session string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			id,
			session_id,
			color,
			fen_before,
			fen_after,
			move_uci,
			move_san,
			attempts,
			outcome,
			error,
			started_at,
			finished_at
		FROM pilot_cycles
		WHERE session_id = $1
		ORDER BY finished_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, session, limit)
	if err != nil {
		return nil, fmt.Errorf("select pilot cycles: %w", err)
	}
	defer rows.Close()

	out := make([]CycleRecord, 0, limit)
	for rows.Next() {
		var (
			rec     CycleRecord
			outcome string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Color,
			&rec.FENBefore,
			&rec.FENAfter,
			&rec.MoveUCI,
			&rec.MoveSAN,
			&rec.Attempts,
			&outcome,
			&rec.Error,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pilot cycle: %w", err)
		}
		rec.Outcome = Outcome(outcome)
		out = append(out, rec)
	}
	return out, rows.Err()
}
