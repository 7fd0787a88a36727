package statusfeed

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/msgcat"
	"github.com/park285/Cheese-boardpilot/internal/pilot"
	"github.com/park285/Cheese-boardpilot/internal/position"
	"github.com/park285/Cheese-boardpilot/pkg/pilotdto"
)

type fakeCommander struct {
	mu      sync.Mutex
	calls   []string
	color   position.Color
	rights  position.CastlingRights
	limits  uci.Limits
	auto    bool
	moveErr error
}

func (f *fakeCommander) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeCommander) SelectColor(_ context.Context, c position.Color) error {
	f.record("select")
	f.mu.Lock()
	f.color = c
	f.mu.Unlock()
	return nil
}

func (f *fakeCommander) SetCastlingRights(r position.CastlingRights) error {
	f.record("castling")
	f.mu.Lock()
	f.rights = r
	f.mu.Unlock()
	return nil
}

func (f *fakeCommander) SetSearchBudget(l uci.Limits) error {
	if l.IsZero() {
		return uci.ErrNoSearchLimits
	}
	f.record("budget")
	f.mu.Lock()
	f.limits = l
	f.mu.Unlock()
	return nil
}

func (f *fakeCommander) RequestMove() error {
	f.record("move")
	return f.moveErr
}

func (f *fakeCommander) SetAutoPlay(on bool) error {
	f.record("auto")
	f.mu.Lock()
	f.auto = on
	f.mu.Unlock()
	return nil
}

func (f *fakeCommander) Reset() error {
	f.record("reset")
	return nil
}

func (f *fakeCommander) Status() pilot.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return pilot.Status{State: pilot.Idle, Color: f.color, HasColor: true, Auto: f.auto, Castling: f.rights, Limits: f.limits}
}

func newDispatcher(t *testing.T, f *fakeCommander) *Dispatcher {
	t.Helper()
	cat, err := msgcat.New("en", "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return NewDispatcher(f, cat)
}

func TestDispatchCommands(t *testing.T) {
	f := &fakeCommander{}
	d := newDispatcher(t, f)
	ctx := context.Background()

	ack := d.Dispatch(ctx, pilotdto.Command{ID: "1", Type: pilotdto.CmdSelectColor, Color: "Black"})
	if !ack.OK || ack.ID != "1" || ack.Type != pilotdto.TypeAck {
		t.Fatalf("select ack = %+v", ack)
	}
	if ack.Status == nil || ack.Status.Color != "black" {
		t.Fatalf("status after select = %+v", ack.Status)
	}

	if ack := d.Dispatch(ctx, pilotdto.Command{Type: pilotdto.CmdSetCastling, Castling: "Kq"}); !ack.OK {
		t.Fatalf("castling ack = %+v", ack)
	}
	if f.rights != (position.CastlingRights{WhiteKingSide: true, BlackQueenSide: true}) {
		t.Fatalf("rights = %v", f.rights)
	}

	if ack := d.Dispatch(ctx, pilotdto.Command{Type: pilotdto.CmdSetBudget, MoveTimeMS: 250}); !ack.OK {
		t.Fatalf("budget ack = %+v", ack)
	}
	if f.limits.MoveTimeMillis != 250 {
		t.Fatalf("limits = %+v", f.limits)
	}

	if ack := d.Dispatch(ctx, pilotdto.Command{Type: pilotdto.CmdSetAuto, On: true}); !ack.OK || !ack.Status.Auto {
		t.Fatalf("auto ack = %+v", ack)
	}
	if ack := d.Dispatch(ctx, pilotdto.Command{Type: pilotdto.CmdReset}); !ack.OK {
		t.Fatalf("reset ack = %+v", ack)
	}
	if got := strings.Join(f.calls, ","); got != "select,castling,budget,auto,reset" {
		t.Fatalf("calls = %s", got)
	}
}

func TestDispatchErrors(t *testing.T) {
	cases := []struct {
		name    string
		moveErr error
		cmd     pilotdto.Command
		code    string
	}{
		{"busy", pilot.ErrBusy, pilotdto.Command{Type: pilotdto.CmdRequestMove}, CodeBusy},
		{"no color", pilot.ErrNoColor, pilotdto.Command{Type: pilotdto.CmdRequestMove}, CodeNoColor},
		{"closed", pilot.ErrClosed, pilotdto.Command{Type: pilotdto.CmdRequestMove}, CodeClosed},
		{"wrapped", errors.New("boom"), pilotdto.Command{Type: pilotdto.CmdRequestMove}, CodeFailed},
		{"bad color", nil, pilotdto.Command{Type: pilotdto.CmdSelectColor, Color: "red"}, CodeBadRequest},
		{"bad castling", nil, pilotdto.Command{Type: pilotdto.CmdSetCastling, Castling: "X"}, CodeBadRequest},
		{"empty budget", nil, pilotdto.Command{Type: pilotdto.CmdSetBudget}, CodeBadRequest},
		{"unknown", nil, pilotdto.Command{Type: "dance"}, CodeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDispatcher(t, &fakeCommander{moveErr: tc.moveErr})
			ack := d.Dispatch(context.Background(), tc.cmd)
			if ack.OK || ack.Code != tc.code {
				t.Fatalf("ack = %+v, want code %s", ack, tc.code)
			}
			if ack.Message == "" {
				t.Fatalf("ack without message: %+v", ack)
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		want pilotdto.Command
	}{
		{"white", pilotdto.Command{Type: pilotdto.CmdSelectColor, Color: "white"}},
		{"  BLACK ", pilotdto.Command{Type: pilotdto.CmdSelectColor, Color: "black"}},
		{"move", pilotdto.Command{Type: pilotdto.CmdRequestMove}},
		{"auto on", pilotdto.Command{Type: pilotdto.CmdSetAuto, On: true}},
		{"auto off", pilotdto.Command{Type: pilotdto.CmdSetAuto}},
		{"castle KQk", pilotdto.Command{Type: pilotdto.CmdSetCastling, Castling: "KQk"}},
		{"depth 18", pilotdto.Command{Type: pilotdto.CmdSetBudget, Depth: 18}},
		{"movetime 800", pilotdto.Command{Type: pilotdto.CmdSetBudget, MoveTimeMS: 800}},
		{"reset", pilotdto.Command{Type: pilotdto.CmdReset}},
	}
	for _, tc := range cases {
		got, err := ParseLine(tc.line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", tc.line, err)
		}
		if got != tc.want {
			t.Fatalf("ParseLine(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
	for _, bad := range []string{"", "auto maybe", "depth x", "depth -1", "castle"} {
		if _, err := ParseLine(bad); err == nil {
			t.Fatalf("ParseLine(%q) should fail", bad)
		}
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) pilotdto.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ev pilotdto.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestHubPushesEventsAndAcksCommands(t *testing.T) {
	f := &fakeCommander{moveErr: pilot.ErrBusy}
	hub := NewHub(newDispatcher(t, f))
	srv := NewServer("127.0.0.1:0", hub, nil)
	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()
	defer func() { _ = hub.Close(context.Background()) }()

	conn := dial(t, ts.URL)
	hello := readEvent(t, conn)
	if hello.Type != pilotdto.TypeState || hello.Status == nil || hello.Status.State != "idle" {
		t.Fatalf("hello = %+v", hello)
	}

	hub.Publish(pilot.Event{Kind: pilot.EventBestMove, State: pilot.AwaitingEngine, Move: "e2e4", SAN: "e4", Message: "Best move e4"})
	ev := readEvent(t, conn)
	if ev.Type != pilotdto.TypeBestMove || ev.Move != "e2e4" || ev.State != "awaiting_engine" {
		t.Fatalf("pushed = %+v", ev)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, pilotdto.Command{ID: "m1", Type: pilotdto.CmdRequestMove}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readEvent(t, conn)
	if ack.Type != pilotdto.TypeAck || ack.ID != "m1" || ack.OK || ack.Code != CodeBusy {
		t.Fatalf("ack = %+v", ack)
	}
	if err := conn.Close(websocket.StatusNormalClosure, ""); err != nil {
		t.Fatalf("client close: %v", err)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(newDispatcher(t, &fakeCommander{}))
	ts := httptest.NewServer(hub)
	defer ts.Close()

	conn, _, err := websocket.Dial(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = readEvent(t, conn)
	if hub.Clients() != 1 {
		t.Fatalf("clients = %d", hub.Clients())
	}

	readErr := make(chan error, 1)
	go func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rcancel()
		var ev pilotdto.Event
		readErr <- wsjson.Read(rctx, conn, &ev)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if hub.Clients() != 0 {
		t.Fatalf("clients after close = %d", hub.Clients())
	}
	if err := <-readErr; websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Fatalf("read after close: %v", err)
	}
}

func TestFromEventCarriesError(t *testing.T) {
	ev := FromEvent(pilot.Event{Kind: pilot.EventFailure, State: pilot.Idle, Err: errors.New("no board")})
	if ev.Error != "no board" || ev.Type != pilotdto.TypeFailure || ev.At.IsZero() {
		t.Fatalf("converted = %+v", ev)
	}
}
