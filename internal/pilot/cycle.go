package pilot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/journal"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

const journalTimeout = 2 * time.Second

// cycle carries what one Analyzing → Idle pass works on. Everything is copied
// from the controller when the cycle starts.
type cycle struct {
	epoch       uint64
	color       position.Color
	orientation boardmap.Orientation
	rights      position.CastlingRights
	limits      uci.Limits
	last        *position.Position
	session     EngineSession
	rec         journal.CycleRecord
}

// runCycle performs one cycle; the caller has already moved the state to
// Analyzing. It reports whether a move was verified on the board, and the
// resulting position.
func (c *Controller) runCycle(ctx context.Context, epoch uint64) (position.Position, bool) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch || c.session == nil {
		c.mu.Unlock()
		return position.Position{}, false
	}
	cy := &cycle{
		epoch:       epoch,
		color:       c.color,
		orientation: c.orientation,
		rights:      c.rights,
		limits:      c.limits,
		last:        c.last,
		session:     c.session,
		rec: journal.CycleRecord{
			ID:        uuid.NewString(),
			SessionID: c.sessionID,
			Color:     c.color.Name(),
			StartedAt: time.Now(),
		},
	}
	c.lastMate = 0
	c.mu.Unlock()

	// Analyzing
	obs, err := c.read(ctx, cy.orientation, cy.color, cy.rights)
	if err != nil {
		c.fail(ctx, cy, "failure.detection", err)
		return position.Position{}, false
	}
	pos := obs.Position
	pos = pos.WithCastling(cy.rights.Restrict(pos))
	if cy.last != nil {
		if ep, ok := position.InferEnPassant(*cy.last, pos, cy.color.Other()); ok {
			pos = pos.WithEnPassant(ep)
		}
	}
	fen, err := position.ToProtocolString(pos)
	if err != nil {
		c.fail(ctx, cy, "failure.encoding", err)
		return position.Position{}, false
	}
	cy.rec.FENBefore = fen
	if obs.Bounds.Dx() < 8 || obs.Bounds.Dy() < 8 {
		c.fail(ctx, cy, "failure.bounds", &boardmap.OutOfBoundsError{Bounds: obs.Bounds})
		return position.Position{}, false
	}

	// AwaitingEngine
	if !c.enter(epoch, AwaitingEngine) {
		c.cancelled(cy)
		return position.Position{}, false
	}
	m, err := c.askEngine(ctx, cy, pos)
	if err != nil {
		if errors.Is(err, uci.ErrProcessExited) && ctx.Err() == nil {
			c.engineExited(cy, err)
			return position.Position{}, false
		}
		c.fail(ctx, cy, "failure.engine", err)
		return position.Position{}, false
	}
	m = m.Resolve(pos)
	if err := position.CheckLegal(pos, m); err != nil {
		c.logger.Warn("engine move not legal in detected position", zap.String("move", m.String()), zap.String("fen", fen), zap.Error(err))
	}
	expected, err := position.Apply(pos, m)
	if err != nil {
		c.fail(ctx, cy, "failure.engine", &uci.ProtocolError{Line: "bestmove " + m.String(), Err: err})
		return position.Position{}, false
	}
	san := position.SAN(pos, m)
	cy.rec.MoveUCI, cy.rec.MoveSAN = m.String(), san
	c.emit(Event{Kind: EventBestMove, State: AwaitingEngine, Move: m.String(), SAN: san, FEN: fen,
		Message: c.text("move.best", map[string]any{"SAN": san, "UCI": m.String()})})

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		cy.rec.Attempts = attempt
		if attempt > 1 && !c.enter(epoch, Retrying) {
			c.cancelled(cy)
			return position.Position{}, false
		}

		// Executing
		if !c.enter(epoch, Executing) {
			c.cancelled(cy)
			return position.Position{}, false
		}
		c.emit(Event{Kind: EventExecuting, State: Executing, Move: m.String(), SAN: san, Attempt: attempt,
			Message: c.text("move.executing", map[string]any{"SAN": san, "Attempt": attempt, "Max": MaxAttempts})})
		if _, err := c.deps.Executor.Execute(ctx, m, pos, obs.Bounds, cy.orientation); err != nil {
			c.fail(ctx, cy, "failure.execute", err)
			return position.Position{}, false
		}

		// Verifying
		if !c.enter(epoch, Verifying) {
			c.cancelled(cy)
			return position.Position{}, false
		}
		landed, err := c.verify(ctx, cy, pos, expected)
		if err != nil {
			c.fail(ctx, cy, "failure.detection", err)
			return position.Position{}, false
		}
		if landed {
			c.played(cy, expected, m, san)
			return expected, true
		}
		c.logger.Info("move not seen on board", zap.String("move", m.String()), zap.Int("attempt", attempt))
	}

	err = fmt.Errorf("move %s not seen after %d attempts", m, MaxAttempts)
	c.failWith(ctx, cy, err, c.text("failure.verify", map[string]any{"SAN": san, "Attempts": MaxAttempts}))
	return position.Position{}, false
}

func (c *Controller) askEngine(ctx context.Context, cy *cycle, pos position.Position) (position.Move, error) {
	if err := cy.session.SetPosition(ctx, pos); err != nil {
		return position.Move{}, err
	}
	if err := cy.session.Search(ctx, cy.limits); err != nil {
		return position.Move{}, err
	}
	return cy.session.AwaitBestMove(ctx, c.cfg.SearchTimeout)
}

// read captures the screen once and detects the board on it.
func (c *Controller) read(ctx context.Context, o boardmap.Orientation, turn position.Color, rights position.CastlingRights) (detect.Observation, error) {
	img, err := c.deps.Input.Capture(ctx, c.cfg.CaptureRegion)
	if err != nil {
		if ctx.Err() != nil {
			return detect.Observation{}, ctx.Err()
		}
		return detect.Observation{}, &detect.DetectionError{Reason: "capture failed", Err: err}
	}
	return c.deps.Reader.Detect(ctx, img, o, turn, rights)
}

// verify re-reads the board up to VerifyReads times and reports whether every
// square the move touches now shows what it should. A read error counts only on
// the final read.
func (c *Controller) verify(ctx context.Context, cy *cycle, before, expected position.Position) (bool, error) {
	touched := position.Diff(before, expected)
	reads := c.cfg.VerifyReads
	for i := 1; i <= reads; i++ {
		if i > 1 {
			if err := sleep(ctx, c.cfg.VerifyReadDelay); err != nil {
				return false, err
			}
		}
		obs, err := c.read(ctx, cy.orientation, expected.Turn(), expected.Castling())
		if err != nil {
			if ctx.Err() != nil || i == reads {
				return false, err
			}
			c.logger.Debug("verify read failed", zap.Int("read", i), zap.Error(err))
			continue
		}
		if showsMove(obs.Position, expected, touched) {
			return true, nil
		}
	}
	return false, nil
}

func showsMove(seen, expected position.Position, touched []position.Square) bool {
	for _, sq := range touched {
		if seen.At(sq) != expected.At(sq) {
			return false
		}
	}
	return len(touched) > 0
}

func (c *Controller) played(cy *cycle, after position.Position, m position.Move, san string) {
	fen, _ := position.ToProtocolString(after)
	mate := position.IsCheckmate(after)

	c.mu.Lock()
	current := !c.closed && c.epoch == cy.epoch
	if current {
		saved := after
		c.last = &saved
		c.rights = after.Castling()
		if mate {
			c.auto = false
		}
	}
	c.mu.Unlock()
	if !current {
		c.cancelled(cy)
		return
	}

	c.logger.Info("move played",
		zap.String("move", m.String()),
		zap.String("san", san),
		zap.Int("attempts", cy.rec.Attempts),
		zap.String("fen", fen),
	)
	c.emit(Event{Kind: EventMovePlayed, State: Verifying, Move: m.String(), SAN: san, Attempt: cy.rec.Attempts, FEN: fen,
		Message: c.text("move.played", map[string]any{"SAN": san})})
	if mate {
		c.emit(Event{Kind: EventCheckmate, State: Verifying, Move: m.String(), SAN: san, FEN: fen,
			Message: c.text("game.checkmate", nil)})
	}
	cy.rec.FENAfter = fen
	c.record(cy, journal.OutcomePlayed, nil)
	c.enter(cy.epoch, Idle)
}

func (c *Controller) fail(ctx context.Context, cy *cycle, key string, err error) {
	c.failWith(ctx, cy, err, c.text(key, map[string]any{"Error": errText(err)}))
}

// failWith surfaces err and returns to Idle, unless the cycle was cancelled by
// a reset, in which case nothing is surfaced.
func (c *Controller) failWith(ctx context.Context, cy *cycle, err error, msg string) {
	if ctx.Err() != nil || !c.current(cy.epoch) {
		c.cancelled(cy)
		return
	}
	c.logger.Warn("cycle failed", zap.Error(err), zap.Int("attempts", cy.rec.Attempts))
	c.emit(Event{Kind: EventFailure, State: c.State(), Move: cy.rec.MoveUCI, SAN: cy.rec.MoveSAN,
		Attempt: cy.rec.Attempts, Err: err, Message: msg})
	c.record(cy, journal.OutcomeFailed, err)
	c.enter(cy.epoch, Idle)
}

func (c *Controller) cancelled(cy *cycle) {
	c.logger.Debug("cycle cancelled", zap.String("cycle", cy.rec.ID))
	c.record(cy, journal.OutcomeCancelled, nil)
}

// engineExited tears the session down as a reset would.
func (c *Controller) engineExited(cy *cycle, err error) {
	c.mu.Lock()
	if c.closed || c.epoch != cy.epoch {
		c.mu.Unlock()
		c.cancelled(cy)
		return
	}
	sessions := c.teardownLocked()
	c.mu.Unlock()

	c.closeSessions(sessions)
	c.logger.Error("engine exited", zap.Error(err))
	c.emit(Event{Kind: EventFailure, State: AwaitingColorSelection, Err: err, Message: c.text("failure.engine_exit", nil)})
	c.record(cy, journal.OutcomeFailed, err)
	c.emitState(AwaitingColorSelection)
}

func (c *Controller) record(cy *cycle, outcome journal.Outcome, err error) {
	if c.deps.Journal == nil {
		return
	}
	rec := cy.rec
	rec.Outcome = outcome
	rec.Error = errText(err)
	rec.FinishedAt = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := c.deps.Journal.Record(ctx, rec); err != nil {
		c.logger.Warn("journal record failed", zap.String("cycle", rec.ID), zap.Error(err))
	}
}
