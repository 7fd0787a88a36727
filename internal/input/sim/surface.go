// Package sim is an in-memory click-to-move board that renders itself like a
// real chess site. It records every click and can be told to misbehave.
package sim

import (
	"context"
	"image"
	"sync"

	"github.com/park285/Cheese-boardpilot/internal/boardimage"
	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/input"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

// DefaultPromotionOrder is the picker layout from the promotion square inwards.
var DefaultPromotionOrder = []position.PieceType{position.Queen, position.Knight, position.Rook, position.Bishop}

type pendingPromotion struct {
	from, to position.Square
	before   position.Board
	color    position.Color
}

type Surface struct {
	mu sync.Mutex

	renderer    *boardimage.Renderer
	canvas      image.Rectangle
	bounds      image.Rectangle
	orientation boardmap.Orientation
	order       []position.PieceType

	board     position.Board
	selected  position.Square
	promotion *pendingPromotion
	lastMove  []position.Square

	frozen bool
	drop   int

	clicks   []image.Point
	captures int
}

type Option func(*Surface)

func WithCanvas(r image.Rectangle) Option {
	return func(s *Surface) { s.canvas = r }
}

func WithBoard(b position.Board) Option {
	return func(s *Surface) { s.board = b }
}

func WithPromotionOrder(order []position.PieceType) Option {
	return func(s *Surface) {
		if len(order) > 0 {
			s.order = order
		}
	}
}

func WithRenderer(r *boardimage.Renderer) Option {
	return func(s *Surface) { s.renderer = r }
}

// New returns a surface showing the start position inside bounds.
func New(bounds image.Rectangle, o boardmap.Orientation, opts ...Option) *Surface {
	s := &Surface{
		renderer:    boardimage.NewRenderer(nil),
		canvas:      bounds,
		bounds:      bounds,
		orientation: o,
		order:       DefaultPromotionOrder,
		board:       position.Start().Board(),
		selected:    position.NoSquare,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !bounds.In(s.canvas) {
		s.canvas = s.canvas.Union(bounds)
	}
	return s
}

var _ input.Backend = (*Surface)(nil)

// Capture renders the current screen. region, when set, crops it.
func (s *Surface) Capture(ctx context.Context, region image.Rectangle) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	opts := boardimage.Options{
		Canvas:      s.canvas,
		Bounds:      s.bounds,
		Orientation: s.orientation,
		Labels:      true,
		Highlight:   append([]position.Square(nil), s.lastMove...),
	}
	if s.promotion != nil {
		pieces := make([]position.Piece, len(s.order))
		for i, t := range s.order {
			pieces[i] = position.NewPiece(s.promotion.color, t)
		}
		opts.Picker = &boardimage.Picker{To: s.promotion.to, Pieces: pieces}
	}
	board := s.board
	s.captures++
	s.mu.Unlock()

	img, err := s.renderer.Render(board, opts)
	if err != nil {
		return nil, err
	}
	if region.Empty() {
		return img, nil
	}
	return img.SubImage(region.Intersect(img.Bounds())), nil
}

func (s *Surface) Click(ctx context.Context, pt image.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, pt)
	if s.frozen {
		return nil
	}

	if s.promotion != nil {
		s.choosePromotion(pt)
		return nil
	}

	sq, ok := boardmap.SquareAt(pt, s.bounds, s.orientation)
	if !ok {
		s.selected = position.NoSquare
		return nil
	}
	if s.selected == position.NoSquare {
		if !s.board[sq].IsEmpty() {
			s.selected = sq
		}
		return nil
	}

	from := s.selected
	moving := s.board[from]
	switch {
	case sq == from:
		s.selected = position.NoSquare
	case !s.board[sq].IsEmpty() && s.board[sq].Color() == moving.Color():
		s.selected = sq
	default:
		s.selected = position.NoSquare
		if s.drop > 0 {
			s.drop--
			return nil
		}
		s.move(from, sq)
	}
	return nil
}

func (s *Surface) move(from, to position.Square) {
	before := s.board
	pc := s.board[from]
	if pc.Type() == position.Pawn && from.File() != to.File() && s.board[to].IsEmpty() {
		s.board[position.NewSquare(to.File(), from.Rank())] = position.NoPiece
	}
	s.board[to] = pc
	s.board[from] = position.NoPiece
	s.lastMove = []position.Square{from, to}
	if pc.Type() == position.Pawn && (to.Rank() == 0 || to.Rank() == 7) {
		s.promotion = &pendingPromotion{from: from, to: to, before: before, color: pc.Color()}
	}
}

// choosePromotion completes or cancels an open picker. Clicking outside it takes the pawn back.
func (s *Surface) choosePromotion(pt image.Point) {
	p := s.promotion
	s.promotion = nil
	idx := boardmap.PromotionChoiceAt(pt, p.to, s.bounds, s.orientation, len(s.order))
	if idx < 0 {
		s.board = p.before
		s.lastMove = nil
		return
	}
	s.board[p.to] = position.NewPiece(p.color, s.order[idx])
}

// Freeze makes the surface ignore clicks while f is true.
func (s *Surface) Freeze(f bool) {
	s.mu.Lock()
	s.frozen = f
	s.mu.Unlock()
}

// DropMoves discards the next n completed pick-place pairs.
func (s *Surface) DropMoves(n int) {
	s.mu.Lock()
	s.drop = n
	s.mu.Unlock()
}

// SetBoard replaces the displayed position, as an opponent's move would.
func (s *Surface) SetBoard(b position.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []position.Square
	for sq := range s.board {
		if s.board[sq] != b[sq] {
			changed = append(changed, position.Square(sq))
		}
	}
	s.lastMove = changed
	s.board = b
	s.selected = position.NoSquare
	s.promotion = nil
}

// SetOrientation flips the displayed board.
func (s *Surface) SetOrientation(o boardmap.Orientation) {
	s.mu.Lock()
	s.orientation = o
	s.mu.Unlock()
}

func (s *Surface) Board() position.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

func (s *Surface) Bounds() image.Rectangle { return s.bounds }

// PromotionOpen reports whether the picker is showing.
func (s *Surface) PromotionOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promotion != nil
}

func (s *Surface) Clicks() []image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]image.Point(nil), s.clicks...)
}

func (s *Surface) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}
