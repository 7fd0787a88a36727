// Package journal keeps a record of every move cycle the pilot resolves.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Outcome is how a cycle ended.
type Outcome string

const (
	OutcomePlayed    Outcome = "played"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// CycleRecord describes one Analyzing → Idle cycle.
type CycleRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Color      string    `json:"color"`
	FENBefore  string    `json:"fen_before,omitempty"`
	FENAfter   string    `json:"fen_after,omitempty"`
	MoveUCI    string    `json:"move_uci,omitempty"`
	MoveSAN    string    `json:"move_san,omitempty"`
	Attempts   int       `json:"attempts"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r CycleRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Recorder persists cycle records.
type Recorder interface {
	Record(ctx context.Context, rec CycleRecord) error
}

// Memory keeps the most recent records in process.
type Memory struct {
	mu    sync.Mutex
	limit int
	recs  []CycleRecord
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 100
	}
	return &Memory{limit: limit}
}

func (m *Memory) Record(_ context.Context, rec CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	if over := len(m.recs) - m.limit; over > 0 {
		m.recs = append([]CycleRecord(nil), m.recs[over:]...)
	}
	return nil
}

// Records returns a copy, oldest first.
func (m *Memory) Records() []CycleRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CycleRecord(nil), m.recs...)
}

// Multi fans a record out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, rec CycleRecord) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
