package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/obslog"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

const (
	defaultReadyTimeout = 4 * time.Second
	defaultQuitGrace    = 500 * time.Millisecond
	lineBuffer          = 256
)

// State is the protocol state of a Session.
type State uint8

const (
	Uninitialized State = iota
	Ready
	PositionSet
	Searching
	ResultAvailable
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case PositionSet:
		return "position_set"
	case Searching:
		return "searching"
	case ResultAvailable:
		return "result_available"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Option is one "setoption" line sent during the handshake.
type Option struct {
	Name  string
	Value string
}

// Config describes how to launch the engine.
type Config struct {
	Path         string
	Args         []string
	Env          []string
	Options      []Option
	ReadyTimeout time.Duration
	QuitGrace    time.Duration
	Stderr       io.Writer
}

// Info is the subset of a search "info" line the pilot reports.
type Info struct {
	Depth   int
	MultiPV int
	ScoreCP int
	Mate    int
	HasMate bool
	PV      []string
}

// Session owns one engine process and its protocol conversation.
// Reads happen on a single goroutine at a time; Close may be called from anywhere.
type Session struct {
	id     string
	cfg    Config
	logger *zap.Logger
	onInfo func(Info)

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}

	mu     sync.Mutex
	state  State
	limits Limits
	stale  bool
	name   string

	closeOnce sync.Once
	closeErr  error
}

type SessionOption func(*Session)

func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInfoHandler registers a callback for parsed "info" lines.
func WithInfoHandler(fn func(Info)) SessionOption {
	return func(s *Session) { s.onInfo = fn }
}

// New prepares a session. Nothing is launched until Start.
func New(cfg Config, opts ...SessionOption) *Session {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.QuitGrace <= 0 {
		cfg.QuitGrace = defaultQuitGrace
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	s := &Session{
		id:    uuid.NewString(),
		cfg:   cfg,
		lines: make(chan string, lineBuffer),
		done:  make(chan struct{}),
	}
	s.logger = obslog.Named("uci")
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("engine_session", s.id))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Name is the engine's "id name", known after Start.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Start launches the process and blocks until the handshake completes.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		return ErrInvalidState
	}
	cmd := exec.Command(s.cfg.Path, s.cfg.Args...)
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Stderr = s.cfg.Stderr
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return &StartError{Path: s.cfg.Path, Err: fmt.Errorf("create stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		s.mu.Unlock()
		return &StartError{Path: s.cfg.Path, Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		s.mu.Unlock()
		return &StartError{Path: s.cfg.Path, Err: err}
	}
	s.cmd = cmd
	s.stdin = stdin
	s.mu.Unlock()

	go s.readLoop(stdout)

	if err := s.handshake(ctx); err != nil {
		_ = s.Close()
		return &StartError{Path: s.cfg.Path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return &StartError{Path: s.cfg.Path, Err: ErrClosed}
	}
	s.state = Ready
	s.logger.Info("engine_ready", zap.String("name", s.name), zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	for {
		line, err := s.readLine(initCtx)
		if err != nil {
			return fmt.Errorf("wait uciok: %w", s.timeoutOr(err, "uciok"))
		}
		if name, ok := strings.CutPrefix(line, "id name "); ok {
			s.mu.Lock()
			s.name = strings.TrimSpace(name)
			s.mu.Unlock()
		}
		if firstField(line) == "uciok" {
			break
		}
	}

	for _, opt := range s.cfg.Options {
		cmd := "setoption name " + opt.Name
		if opt.Value != "" {
			cmd += " value " + opt.Value
		}
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}

	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	return s.syncReady(initCtx)
}

// syncReady sends isready and discards everything up to readyok,
// including the bestmove of an abandoned search.
func (s *Session) syncReady(ctx context.Context) error {
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return fmt.Errorf("wait readyok: %w", s.timeoutOr(err, "readyok"))
		}
		if firstField(line) == "readyok" {
			return nil
		}
	}
}

// settle drains a search abandoned by a timeout before the next command.
func (s *Session) settle(ctx context.Context) error {
	s.mu.Lock()
	stale := s.stale
	s.mu.Unlock()
	if !stale {
		return nil
	}
	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	if err := s.syncReady(readyCtx); err != nil {
		return err
	}
	s.mu.Lock()
	s.stale = false
	s.mu.Unlock()
	s.logger.Debug("stale_search_drained")
	return nil
}

// SetPosition sends the position. No acknowledgement is expected.
func (s *Session) SetPosition(ctx context.Context, p position.Position) error {
	if err := s.expect(Ready, PositionSet, ResultAvailable); err != nil {
		return err
	}
	fen, err := position.ToProtocolString(p)
	if err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	if err := s.send("position fen " + fen); err != nil {
		return fmt.Errorf("send position: %w", err)
	}
	s.transition(PositionSet)
	return nil
}

// Search starts a bounded search with the given budget.
func (s *Session) Search(ctx context.Context, l Limits) error {
	if err := s.expect(PositionSet); err != nil {
		return err
	}
	tokens, err := buildGoTokens(l)
	if err != nil {
		return err
	}
	if err := s.settle(ctx); err != nil {
		return err
	}
	if err := s.send(strings.Join(tokens, " ")); err != nil {
		return fmt.Errorf("send go: %w", err)
	}
	s.mu.Lock()
	s.limits = l
	if s.state != Closed {
		s.state = Searching
	}
	s.mu.Unlock()
	return nil
}

// AwaitBestMove blocks until the engine reports its move, timeout expires or ctx ends.
// A timeout of zero derives the deadline from the search budget.
func (s *Session) AwaitBestMove(ctx context.Context, timeout time.Duration) (position.Move, error) {
	if err := s.expect(Searching); err != nil {
		return position.Move{}, err
	}
	if timeout <= 0 {
		s.mu.Lock()
		timeout = computeSearchTimeout(s.limits)
		s.mu.Unlock()
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		line, err := s.readLine(waitCtx)
		if err != nil {
			if ctx.Err() != nil {
				s.abandonSearch()
				return position.Move{}, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				s.abandonSearch()
				return position.Move{}, &TimeoutError{Op: "bestmove", After: timeout}
			}
			return position.Move{}, err
		}

		switch firstField(line) {
		case "info":
			if info, ok := parseInfo(line); ok && s.onInfo != nil {
				s.onInfo(info)
			}
		case "bestmove":
			parts := strings.Fields(line)
			if len(parts) < 2 || parts[1] == "(none)" || parts[1] == "0000" {
				s.transition(PositionSet)
				return position.Move{}, &ProtocolError{Line: line, Err: ErrNoMove}
			}
			mv, err := position.ParseMove(parts[1])
			if err != nil {
				s.transition(PositionSet)
				return position.Move{}, &ProtocolError{Line: line, Err: err}
			}
			s.transition(ResultAvailable)
			s.logger.Debug("bestmove", zap.String("move", mv.String()))
			s.transition(PositionSet)
			return mv, nil
		}
	}
}

// abandonSearch tells the engine to stop; its late bestmove is drained by settle.
func (s *Session) abandonSearch() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.stale = true
	s.state = PositionSet
	s.mu.Unlock()
	if err := s.send("stop"); err != nil {
		s.logger.Debug("send_stop_failed", zap.Error(err))
	}
}

// Close sends quit, then kills the process if it does not exit within the grace period.
// It is idempotent and safe in any state.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		cmd, stdin := s.cmd, s.stdin
		s.mu.Unlock()
		close(s.done)

		if cmd == nil {
			return
		}
		_, _ = io.WriteString(stdin, "quit\n")
		_ = stdin.Close()

		waitCh := make(chan error, 1)
		go func() { waitCh <- cmd.Wait() }()
		select {
		case err := <-waitCh:
			s.closeErr = ignoreExit(err)
		case <-time.After(s.cfg.QuitGrace):
			_ = cmd.Process.Kill()
			s.closeErr = ignoreExit(<-waitCh)
		}
		s.logger.Info("engine_closed")
	})
	return s.closeErr
}

func ignoreExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (s *Session) readLoop(r io.Reader) {
	defer close(s.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.logger.Debug("recv", zap.String("line", line))
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", s.exitErr()
		}
		return line, nil
	}
}

func (s *Session) exitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	return ErrProcessExited
}

func (s *Session) timeoutOr(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, After: s.cfg.ReadyTimeout}
	}
	return err
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	if s.stdin == nil {
		return ErrInvalidState
	}
	s.logger.Debug("send", zap.String("line", msg))
	if _, err := io.WriteString(s.stdin, msg+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrProcessExited, err)
	}
	return nil
}

func (s *Session) expect(allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrClosed
	}
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	if s.state != Closed {
		s.state = to
	}
	s.mu.Unlock()
}

func firstField(line string) string {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}

func parseInfo(line string) (Info, bool) {
	parts := strings.Fields(line)
	info := Info{MultiPV: 1}
	seen := false
	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					info.Depth = v
					seen = true
				}
				i++
			}
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					info.MultiPV = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				v, err := strconv.Atoi(parts[i+2])
				if err == nil {
					switch parts[i+1] {
					case "cp":
						info.ScoreCP = v
						seen = true
					case "mate":
						info.Mate = v
						info.HasMate = true
						seen = true
					}
				}
				i += 2
			}
		case "pv":
			info.PV = append([]string(nil), parts[i+1:]...)
			i = len(parts)
		case "string":
			return Info{}, false
		}
	}
	return info, seen
}
