// Package executor plays a move on screen as click-to-move legs.
package executor

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/input"
	"github.com/park285/Cheese-boardpilot/internal/obslog"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

// Config holds the timing and layout the target surface needs.
type Config struct {
	PickDelay      time.Duration // between pick and place
	LegDelay       time.Duration // between castle legs
	SettleDelay    time.Duration // after the last click
	PromotionDelay time.Duration // before clicking the picker
	Jitter         int           // max click offset in px
	PromotionOrder []position.PieceType
}

func DefaultConfig() Config {
	return Config{
		PickDelay:      60 * time.Millisecond,
		LegDelay:       200 * time.Millisecond,
		SettleDelay:    400 * time.Millisecond,
		PromotionDelay: 300 * time.Millisecond,
		Jitter:         4,
		PromotionOrder: []position.PieceType{position.Queen, position.Knight, position.Rook, position.Bishop},
	}
}

// ParsePromotionOrder reads a picker layout such as "qnrb".
func ParsePromotionOrder(s string) ([]position.PieceType, error) {
	out := make([]position.PieceType, 0, len(s))
	seen := map[position.PieceType]bool{}
	for i := 0; i < len(s); i++ {
		pc, ok := position.PieceFromFEN(s[i])
		t := pc.Type()
		if !ok || t == position.King || t == position.Pawn || seen[t] {
			return nil, fmt.Errorf("invalid promotion order %q", s)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty promotion order")
	}
	return out, nil
}

type Executor struct {
	backend input.Backend
	cfg     Config
	logger  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Executor)

func WithRand(r *rand.Rand) Option {
	return func(e *Executor) { e.rng = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(backend input.Backend, cfg Config, opts ...Option) *Executor {
	if len(cfg.PromotionOrder) == 0 {
		cfg.PromotionOrder = DefaultConfig().PromotionOrder
	}
	e := &Executor{
		backend: backend,
		cfg:     cfg,
		logger:  obslog.Named("executor"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute clicks m on the board at bounds. It returns the promotion piece that
// was committed, or NoPieceType. Success is not verified here.
func (e *Executor) Execute(ctx context.Context, m position.Move, p position.Position, bounds image.Rectangle, o boardmap.Orientation) (position.PieceType, error) {
	m = m.Resolve(p)
	legs, err := boardmap.ClickSequenceFor(m, bounds, o)
	if err != nil {
		return position.NoPieceType, err
	}

	for i, leg := range legs {
		if i > 0 {
			if err := sleep(ctx, e.cfg.LegDelay); err != nil {
				return position.NoPieceType, err
			}
		}
		if err := e.click(ctx, leg.Pick, bounds); err != nil {
			return position.NoPieceType, err
		}
		if err := sleep(ctx, e.cfg.PickDelay); err != nil {
			return position.NoPieceType, err
		}
		if err := e.click(ctx, leg.Place, bounds); err != nil {
			return position.NoPieceType, err
		}
	}

	if m.Promotion != position.NoPieceType {
		if err := e.choosePromotion(ctx, m, bounds, o); err != nil {
			return position.NoPieceType, err
		}
	}

	e.logger.Debug("move clicked",
		zap.String("move", m.String()),
		zap.Int("legs", len(legs)),
		zap.Bool("castle", m.IsCastle()),
	)
	if err := sleep(ctx, e.cfg.SettleDelay); err != nil {
		return position.NoPieceType, err
	}
	return m.Promotion, nil
}

func (e *Executor) choosePromotion(ctx context.Context, m position.Move, bounds image.Rectangle, o boardmap.Orientation) error {
	idx := -1
	for i, t := range e.cfg.PromotionOrder {
		if t == m.Promotion {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("promotion to %s not offered by the picker", m.Promotion.Letter())
	}
	pts, err := boardmap.PromotionChoices(m.To, bounds, o, len(e.cfg.PromotionOrder))
	if err != nil {
		return err
	}
	if idx >= len(pts) {
		return fmt.Errorf("promotion picker has %d cells, need %d", len(pts), idx+1)
	}
	if err := sleep(ctx, e.cfg.PromotionDelay); err != nil {
		return err
	}
	return e.click(ctx, pts[idx], bounds)
}

func (e *Executor) click(ctx context.Context, pt image.Point, bounds image.Rectangle) error {
	pt = e.jitter(pt, bounds)
	if err := e.backend.Click(ctx, pt); err != nil {
		return fmt.Errorf("click %v: %w", pt, err)
	}
	return nil
}

// jitter offsets pt by up to cfg.Jitter px, never more than a quarter cell.
func (e *Executor) jitter(pt image.Point, bounds image.Rectangle) image.Point {
	n := e.cfg.Jitter
	if limit := min(bounds.Dx(), bounds.Dy()) / 32; n > limit {
		n = limit
	}
	if n <= 0 {
		return pt
	}
	e.mu.Lock()
	dx := e.rng.Intn(2*n+1) - n
	dy := e.rng.Intn(2*n+1) - n
	e.mu.Unlock()
	return image.Pt(pt.X+dx, pt.Y+dy)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
