package statusfeed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-boardpilot/internal/pilot"
	"github.com/park285/Cheese-boardpilot/pkg/pilotdto"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	pingTimeout  = 3 * time.Second
)

// Hub pushes controller events to every connected websocket client and runs
// the commands they send.
type Hub struct {
	dispatch       *Dispatcher
	logger         *zap.Logger
	pingInterval   time.Duration
	originPatterns []string

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn     *websocket.Conn
	send     chan pilotdto.Event
	stopCh   chan struct{}
	stopOnce sync.Once
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithOriginPatterns allows cross-origin GUI pages matching the given hosts.
func WithOriginPatterns(p ...string) Option {
	return func(h *Hub) { h.originPatterns = append(h.originPatterns, p...) }
}

func NewHub(d *Dispatcher, opts ...Option) *Hub {
	h := &Hub{
		dispatch:     d,
		logger:       zap.NewNop(),
		pingInterval: 30 * time.Second,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish fans ev out to all clients. A client whose buffer is full is dropped.
func (h *Hub) Publish(ev pilot.Event) {
	h.broadcast(FromEvent(ev))
}

func (h *Hub) broadcast(ev pilotdto.Event) {
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.logger.Warn("feed client too slow, dropping")
		h.drop(c, websocket.StatusPolicyViolation, "slow consumer")
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("feed accept failed", zap.Error(err))
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan pilotdto.Event, sendBuffer),
		stopCh: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	h.logger.Info("feed client connected", zap.String("remote", r.RemoteAddr))
	st := FromStatus(h.dispatch.cmd.Status())
	c.send <- pilotdto.Event{Type: pilotdto.TypeState, State: st.State, Status: st, At: time.Now()}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.writeLoop(ctx, c)
	h.readLoop(ctx, c)
	h.drop(c, websocket.StatusNormalClosure, "bye")
	h.logger.Info("feed client disconnected", zap.String("remote", r.RemoteAddr))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var cmd pilotdto.Command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			if !c.stopped() && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("feed read failed", zap.Error(err))
			}
			return
		}
		ack := h.dispatch.Dispatch(ctx, cmd)
		select {
		case c.send <- ack:
		case <-c.stopCh:
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	t := time.NewTicker(h.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				h.drop(c, websocket.StatusGoingAway, "write failed")
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					h.drop(c, websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func (h *Hub) drop(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stopOnce.Do(func() {
		close(c.stopCh)
		_ = c.conn.Close(code, reason)
	})
}

func (c *client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c, websocket.StatusGoingAway, "shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
