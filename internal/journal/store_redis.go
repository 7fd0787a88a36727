package journal

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 24 * time.Hour
	historyLimit = 200
)

// RedisStore keeps a bounded per-session history list and the last verified FEN.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) keyCycles(session string) string { return "pilot:" + strings.TrimSpace(session) + ":cycles" }
func (s *RedisStore) keyLastFEN(session string) string { return "pilot:" + strings.TrimSpace(session) + ":fen" }

func (s *RedisStore) Record(ctx context.Context, rec CycleRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, s.keyCycles(rec.SessionID), raw)
	pipe.LTrim(ctx, s.keyCycles(rec.SessionID), -historyLimit, -1)
	pipe.Expire(ctx, s.keyCycles(rec.SessionID), s.ttl)
	if rec.Outcome == OutcomePlayed && rec.FENAfter != "" {
		pipe.Set(ctx, s.keyLastFEN(rec.SessionID), rec.FENAfter, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// History returns up to limit most recent records, oldest first.
func (s *RedisStore) History(ctx context.Context, session string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	raws, err := s.rdb.LRange(ctx, s.keyCycles(session), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]CycleRecord, 0, len(raws))
	for _, raw := range raws {
		var rec CycleRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// LastFEN returns the last verified position of a session, or "" when none.
func (s *RedisStore) LastFEN(ctx context.Context, session string) (string, error) {
	fen, err := s.rdb.Get(ctx, s.keyLastFEN(session)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return fen, err
}
