package pilot

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

// MaxAttempts bounds how often one engine move is clicked before giving up.
const MaxAttempts = 3

var (
	ErrBusy    = errors.New("pilot: a cycle is already running")
	ErrNoColor = errors.New("pilot: no color selected")
	ErrClosed  = errors.New("pilot: controller shut down")
)

type State uint8

const (
	AwaitingColorSelection State = iota
	Idle
	Analyzing
	AwaitingEngine
	Executing
	Verifying
	Retrying
)

func (s State) String() string {
	switch s {
	case AwaitingColorSelection:
		return "awaiting_color"
	case Idle:
		return "idle"
	case Analyzing:
		return "analyzing"
	case AwaitingEngine:
		return "awaiting_engine"
	case Executing:
		return "executing"
	case Verifying:
		return "verifying"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

type EventKind string

const (
	EventState      EventKind = "state"
	EventBestMove   EventKind = "best_move"
	EventExecuting  EventKind = "executing"
	EventMovePlayed EventKind = "move_played"
	EventFailure    EventKind = "failure"
	EventCheckmate  EventKind = "checkmate"
	EventInfo       EventKind = "info"
)

// Event reports progress. Message is already rendered for display.
type Event struct {
	Kind    EventKind
	State   State
	Move    string
	SAN     string
	Attempt int
	FEN     string
	Message string
	Err     error
	At      time.Time
}

// EngineSession is the part of uci.Session the controller drives.
type EngineSession interface {
	Start(ctx context.Context) error
	SetPosition(ctx context.Context, p position.Position) error
	Search(ctx context.Context, l uci.Limits) error
	AwaitBestMove(ctx context.Context, timeout time.Duration) (position.Move, error)
	Close() error
}

// EngineFactory creates an unstarted session that reports search info to onInfo.
type EngineFactory func(onInfo func(uci.Info)) EngineSession

// BoardReader reads one Position off a captured frame.
type BoardReader interface {
	Detect(ctx context.Context, img image.Image, o boardmap.Orientation, turn position.Color, rights position.CastlingRights) (detect.Observation, error)
}

// MoveExecutor clicks a move on screen.
type MoveExecutor interface {
	Execute(ctx context.Context, m position.Move, p position.Position, bounds image.Rectangle, o boardmap.Orientation) (position.PieceType, error)
}

// Status is a point-in-time view of the controller.
type Status struct {
	State     State
	Color     position.Color
	HasColor  bool
	Auto      bool
	Castling  position.CastlingRights
	Limits    uci.Limits
	LastFEN   string
	SessionID string
}
