package pilot

import (
	"context"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/detect/palette"
	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/executor"
	"github.com/park285/Cheese-boardpilot/internal/input/sim"
	"github.com/park285/Cheese-boardpilot/internal/journal"
	"github.com/park285/Cheese-boardpilot/internal/msgcat"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

var testBounds = image.Rect(0, 0, 400, 400)

// fakeEngine answers scripted moves. A reply of "block" waits until the
// context is cancelled or the session closed; startBlock does the same for the
// handshake.
type fakeEngine struct {
	mu         sync.Mutex
	replies    []string
	errs       map[int]error
	info       []uci.Info
	onInfo     func(uci.Info)
	positions  []string
	limits     []uci.Limits
	startErr   error
	startBlock bool
	starting   chan struct{}
	awaiting   chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	calls      int
}
	awaiting   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	calls     int
}

func newFakeEngine(replies ...string) *fakeEngine {
	return &fakeEngine{
		replies:  replies,
		errs:     map[int]error{},
		starting: make(chan struct{}, 1),
		awaiting: make(chan struct{}, 8),
		closed:   make(chan struct{}),
	}
}

func (f *fakeEngine) factory(onInfo func(uci.Info)) EngineSession {
	f.mu.Lock()
	f.onInfo = onInfo
	f.mu.Unlock()
	return f
}

func (f *fakeEngine) Start(ctx context.Context) error {
	select {
	case f.starting <- struct{}{}:
	default:
	}
	if !f.startBlock {
		return f.startErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closed:
		return uci.ErrClosed
	}
}

func (f *fakeEngine) SetPosition(_ context.Context, p position.Position) error {
	fen, err := position.ToProtocolString(p)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.positions = append(f.positions, fen)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Search(_ context.Context, l uci.Limits) error {
	f.mu.Lock()
	f.limits = append(f.limits, l)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) AwaitBestMove(ctx context.Context, _ time.Duration) (position.Move, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	var reply string
	if n < len(f.replies) {
		reply = f.replies[n]
	}
	err := f.errs[n]
	info, onInfo := f.info, f.onInfo
	f.mu.Unlock()

	select {
	case f.awaiting <- struct{}{}:
	default:
	}
	for _, in := range info {
		onInfo(in)
	}
	if err != nil {
		return position.Move{}, err
	}
	if reply == "" || reply == "block" {
		select {
		case <-ctx.Done():
			return position.Move{}, ctx.Err()
		case <-f.closed:
			return position.Move{}, uci.ErrClosed
		}
	}
	return position.ParseMove(reply)
}

func (f *fakeEngine) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeEngine) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeEngine) Positions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.positions...)
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	surface *sim.Surface
	engine  *fakeEngine
	journal *journal.Memory
	events  chan Event
}

type harnessOption func(*Config, *Deps)

func withReader(r BoardReader) harnessOption {
	return func(_ *Config, d *Deps) { d.Reader = r }
}

func newHarness(t *testing.T, fen string, color position.Color, engine *fakeEngine, opts ...harnessOption) *harness {
	t.Helper()
	h := newUnstarted(t, fen, color, engine, opts...)
	if err := h.ctrl.SelectColor(context.Background(), color); err != nil {
		t.Fatalf("select color: %v", err)
	}
	h.drain()
	return h
}

// newUnstarted builds the controller without selecting a color.
func newUnstarted(t *testing.T, fen string, color position.Color, engine *fakeEngine, opts ...harnessOption) *harness {
	t.Helper()
	p, err := position.ParseFEN(fen)
	if err != nil {
		t.Fatalf("fen: %v", err)
	}
	surface := sim.New(testBounds, boardmap.For(color), sim.WithBoard(p.Board()))
	cat, err := msgcat.New("en", "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	execCfg := executor.DefaultConfig()
	execCfg.PickDelay, execCfg.LegDelay, execCfg.SettleDelay, execCfg.PromotionDelay = 0, 0, 0, 0

	h := &harness{
		t:       t,
		surface: surface,
		engine:  engine,
		journal: journal.NewMemory(0),
		events:  make(chan Event, 4096),
	}
	cfg := Config{
		Limits:           uci.Limits{Depth: 12},
		VerifyReads:      2,
		AutoPollInterval: 5 * time.Millisecond,
		AutoSettleDelay:  5 * time.Millisecond,
	}
	deps := Deps{
		Input:    surface,
		Reader:   detect.NewAdapter(palette.New(testBounds, nil, 0), testBounds),
		Executor: executor.New(surface, execCfg),
		Engines:  engine.factory,
		Catalog:  cat,
		Journal:  h.journal,
		OnEvent: func(ev Event) {
			select {
			case h.events <- ev:
			default:
			}
		},
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	ctrl, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h.ctrl = ctrl
	t.Cleanup(func() { _ = ctrl.Shutdown() })
	return h
}

// waitFor drains events until one of kind arrives and returns everything seen.
func (h *harness) waitFor(kind EventKind) (Event, []Event) {
	h.t.Helper()
	var seen []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.events:
			seen = append(seen, ev)
			if ev.Kind == kind {
				return ev, seen
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; saw %s", kind, describe(seen))
		}
	}
}

// waitIdle waits for the Idle state event that ends a cycle.
func (h *harness) waitIdle() []Event {
	h.t.Helper()
	var seen []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.events:
			seen = append(seen, ev)
			if ev.Kind == EventState && ev.State == Idle {
				return seen
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for idle; saw %s", describe(seen))
		}
	}
}

func (h *harness) drain() {
	for {
		select {
		case <-h.events:
		default:
			return
		}
	}
}

func count(events []Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func describe(events []Event) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		parts = append(parts, string(ev.Kind)+"/"+ev.State.String())
	}
	return strings.Join(parts, ", ")
}
