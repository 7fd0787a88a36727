// Package pilot keeps an on-screen chess board in sync with a UCI engine: it
// reads the board, asks the engine for a move, clicks it and checks that the
// move landed, retrying a bounded number of times.
//
// Exactly one cycle runs at a time. Reset is accepted in any state and does not
// wait for the running cycle; a cycle that outlives its epoch notices and exits
// without touching controller state.
package pilot

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/input"
	"github.com/park285/Cheese-boardpilot/internal/journal"
	"github.com/park285/Cheese-boardpilot/internal/msgcat"
	"github.com/park285/Cheese-boardpilot/internal/obslog"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

type Config struct {
	CaptureRegion    image.Rectangle
	Limits           uci.Limits
	SearchTimeout    time.Duration // 0 derives it from Limits
	StartTimeout     time.Duration
	VerifyReads      int
	VerifyReadDelay  time.Duration
	AutoPollInterval time.Duration
	AutoSettleDelay  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Limits:           uci.Limits{Depth: 15},
		StartTimeout:     10 * time.Second,
		VerifyReads:      2,
		VerifyReadDelay:  300 * time.Millisecond,
		AutoPollInterval: 250 * time.Millisecond,
		AutoSettleDelay:  500 * time.Millisecond,
	}
}

type Deps struct {
	Input    input.Backend
	Reader   BoardReader
	Executor MoveExecutor
	Engines  EngineFactory
	Catalog  *msgcat.Catalog
	Journal  journal.Recorder
	OnEvent  func(Event)
	Logger   *zap.Logger
}

type Controller struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	closed      bool
	epoch       uint64
	hasColor    bool
	color       position.Color
	orientation boardmap.Orientation
	rights      position.CastlingRights
	limits      uci.Limits
	auto        bool
	autoRunning bool
	session     EngineSession
	pending     EngineSession
	sessionID   string
	ctx         context.Context
	cancel      context.CancelFunc
	last        *position.Position
	lastMate    int

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Input == nil || deps.Reader == nil || deps.Executor == nil || deps.Engines == nil {
		return nil, errors.New("pilot: input, reader, executor and engine factory are required")
	}
	def := DefaultConfig()
	if cfg.Limits.IsZero() {
		cfg.Limits = def.Limits
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = def.StartTimeout
	}
	if cfg.VerifyReads <= 0 {
		cfg.VerifyReads = def.VerifyReads
	}
	if cfg.AutoPollInterval <= 0 {
		cfg.AutoPollInterval = def.AutoPollInterval
	}
	logger := deps.Logger
	if logger == nil {
		logger = obslog.Named("pilot")
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		state:  AwaitingColorSelection,
		rights: position.AllCastling,
		limits: cfg.Limits,
	}, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		State:     c.state,
		Color:     c.color,
		HasColor:  c.hasColor,
		Auto:      c.auto,
		Castling:  c.rights,
		Limits:    c.limits,
		SessionID: c.sessionID,
	}
	if c.last != nil {
		st.LastFEN, _ = position.ToProtocolString(*c.last)
	}
	return st
}

// SelectColor fixes the orientation and starts a fresh engine session. It
// blocks until the engine handshake completes or StartTimeout passes. Called
// outside AwaitingColorSelection it resets first.
func (c *Controller) SelectColor(ctx context.Context, color position.Color) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	busy := c.state != AwaitingColorSelection || c.session != nil || c.pending != nil
	c.mu.Unlock()
	if busy {
		if err := c.Reset(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.epoch++
	epoch := c.epoch
	c.color = color
	c.orientation = boardmap.For(color)
	c.rights = position.AllCastling
	c.last = nil
	c.mu.Unlock()

	// The handshake runs unlocked; pending lets Reset and Shutdown close it.
	sess := c.deps.Engines(c.infoHandler(epoch))
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		_ = sess.Close()
		return ErrClosed
	}
	c.pending = sess
	c.mu.Unlock()

	startCtx, cancel := context.WithTimeout(ctx, c.cfg.StartTimeout)
	err := sess.Start(startCtx)
	cancel()

	c.mu.Lock()
	stale := c.closed || c.epoch != epoch
	if !stale {
		c.pending = nil
	}
	if stale || err != nil {
		c.mu.Unlock()
		_ = sess.Close()
		if stale {
			return ErrClosed
		}
		c.logger.Error("engine start failed", zap.Error(err))
		c.emit(Event{Kind: EventFailure, State: AwaitingColorSelection, Err: err,
			Message: c.text("failure.engine", map[string]any{"Error": err.Error()})})
		return err
	}
	c.session = sess
	c.sessionID = uuid.NewString()
	c.hasColor = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state = Idle
	startAuto := c.startAutoLocked(epoch)
	o := c.orientation
	c.mu.Unlock()

	c.logger.Info("color selected", zap.String("color", color.Name()), zap.Stringer("orientation", o))
	c.emit(Event{Kind: EventInfo, State: Idle,
		Message: c.text("color.selected", map[string]any{"Color": color.Name(), "Orientation": o.String()})})
	c.emitState(Idle)
	if startAuto != nil {
		go startAuto()
	}
	return nil
}

// SetCastlingRights replaces the rights carried into the next cycle.
func (c *Controller) SetCastlingRights(r position.CastlingRights) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.rights = r
	c.logger.Info("castling rights set", zap.String("rights", r.String()))
	return nil
}

// SetSearchBudget changes the limits used from the next search on.
func (c *Controller) SetSearchBudget(l uci.Limits) error {
	if l.IsZero() {
		return uci.ErrNoSearchLimits
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.limits = l
	c.logger.Info("search budget set", zap.Stringer("limits", l))
	return nil
}

// RequestMove starts one cycle in the background. It fails fast when no color
// is selected or a cycle is already running.
func (c *Controller) RequestMove() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.hasColor {
		c.mu.Unlock()
		return ErrNoColor
	}
	if c.state != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	epoch, ctx := c.epoch, c.ctx
	c.state = Analyzing
	c.wg.Add(1)
	c.mu.Unlock()

	c.emitState(Analyzing)
	go func() {
		defer c.wg.Done()
		c.runCycle(ctx, epoch)
	}()
	return nil
}

// SetAutoPlay toggles auto mode. The flag is read when a cycle would start, so a
// running cycle is not affected.
func (c *Controller) SetAutoPlay(on bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.auto = on
	var start func()
	if on && c.hasColor {
		start = c.startAutoLocked(c.epoch)
	}
	state := c.state
	c.mu.Unlock()

	key := "auto.off"
	if on {
		key = "auto.on"
	}
	c.logger.Info("auto play", zap.Bool("on", on))
	c.emit(Event{Kind: EventInfo, State: state, Message: c.text(key, nil)})
	if start != nil {
		go start()
	}
	return nil
}

// Reset drops the session and the position snapshot and returns to
// AwaitingColorSelection without waiting for a running cycle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	sessions := c.teardownLocked()
	c.mu.Unlock()

	c.closeSessions(sessions)
	c.logger.Info("reset")
	c.emitState(AwaitingColorSelection)
	c.emit(Event{Kind: EventInfo, State: AwaitingColorSelection, Message: c.text("reset.done", nil)})
	return nil
}

// Shutdown releases the engine, waits for background work and refuses further commands.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessions := c.teardownLocked()
	c.mu.Unlock()

	c.closeSessions(sessions)
	c.wg.Wait()
	return nil
}

// teardownLocked invalidates the current epoch and hands back the engine
// sessions to close once the lock is released, including one still in its
// handshake.
func (c *Controller) teardownLocked() []EngineSession {
	c.epoch++
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = nil, nil
	var sessions []EngineSession
	for _, s := range []EngineSession{c.session, c.pending} {
		if s != nil {
			sessions = append(sessions, s)
		}
	}
	c.session, c.pending = nil, nil
	c.sessionID = ""
	c.state = AwaitingColorSelection
	c.hasColor = false
	c.rights = position.AllCastling
	c.last = nil
	c.autoRunning = false
	return sessions
}

func (c *Controller) closeSessions(sessions []EngineSession) {
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			c.logger.Warn("engine close", zap.Error(err))
		}
	}
}

// startAutoLocked reserves the auto loop for epoch and returns its runner, or nil
// if a loop is already running or the controller is not ready.
func (c *Controller) startAutoLocked(epoch uint64) func() {
	if !c.auto || c.autoRunning || c.ctx == nil || c.closed {
		return nil
	}
	c.autoRunning = true
	ctx := c.ctx
	c.wg.Add(1)
	return func() {
		defer c.wg.Done()
		c.autoLoop(ctx, epoch)
	}
}

// claim moves Idle → Analyzing for epoch.
func (c *Controller) claim(epoch uint64) bool {
	c.mu.Lock()
	ok := !c.closed && c.epoch == epoch && c.state == Idle
	if ok {
		c.state = Analyzing
	}
	c.mu.Unlock()
	if ok {
		c.emitState(Analyzing)
	}
	return ok
}

// enter sets the state if epoch is still current.
func (c *Controller) enter(epoch uint64, s State) bool {
	c.mu.Lock()
	ok := !c.closed && c.epoch == epoch
	if ok {
		c.state = s
	}
	c.mu.Unlock()
	if ok {
		c.emitState(s)
	}
	return ok
}

func (c *Controller) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.epoch == epoch
}

func (c *Controller) infoHandler(epoch uint64) func(uci.Info) {
	return func(info uci.Info) {
		if !info.HasMate || info.Mate <= 0 {
			return
		}
		c.mu.Lock()
		fresh := c.epoch == epoch && info.Mate != c.lastMate
		if fresh {
			c.lastMate = info.Mate
		}
		state := c.state
		c.mu.Unlock()
		if !fresh {
			return
		}
		c.emit(Event{Kind: EventInfo, State: state,
			Message: c.text("engine.mate_in", map[string]any{"Mate": info.Mate, "Depth": info.Depth})})
	}
}

func (c *Controller) emitState(s State) {
	c.emit(Event{Kind: EventState, State: s, Message: c.text("state."+s.String(), nil)})
}

func (c *Controller) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c.logger.Debug("event",
		zap.String("kind", string(ev.Kind)),
		zap.Stringer("state", ev.State),
		zap.String("message", ev.Message),
	)
	if c.deps.OnEvent != nil {
		c.deps.OnEvent(ev)
	}
}

func (c *Controller) text(key string, data any) string {
	return c.deps.Catalog.Text(key, data)
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

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
