// Package detect turns a detector's per-cell classification into a Position.
package detect

import (
	"context"
	"fmt"
	"image"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

// Grid is a detector result in screen order: Cells[0] is the top row, Cells[r][0] the left column.
// Bounds is the board rectangle in image coordinates when the detector located it.
type Grid struct {
	Cells  [][]position.Piece
	Bounds image.Rectangle
}

// Detector classifies the board cells visible in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (Grid, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, img image.Image) (Grid, error)

func (f DetectorFunc) Detect(ctx context.Context, img image.Image) (Grid, error) { return f(ctx, img) }

// DetectionError reports a board read that cannot be trusted.
type DetectionError struct {
	Reason string
	Err    error
}

func (e *DetectionError) Error() string {
	if e.Err != nil {
		return "detection failed: " + e.Reason + ": " + e.Err.Error()
	}
	return "detection failed: " + e.Reason
}

func (e *DetectionError) Unwrap() error { return e.Err }

// Observation is one successful read of the board.
type Observation struct {
	Position position.Position
	Bounds   image.Rectangle
}

// Adapter wraps a Detector and validates its output.
type Adapter struct {
	detector Detector
	bounds   image.Rectangle
}

// NewAdapter returns an adapter. fixedBounds, when not empty, overrides detector bounds.
func NewAdapter(d Detector, fixedBounds image.Rectangle) *Adapter {
	return &Adapter{detector: d, bounds: fixedBounds}
}

// Detect runs the detector once and overlays the caller-tracked side to move and castling rights.
func (a *Adapter) Detect(ctx context.Context, img image.Image, o boardmap.Orientation, turn position.Color, rights position.CastlingRights) (Observation, error) {
	if img == nil {
		return Observation{}, &DetectionError{Reason: "no image"}
	}
	grid, err := a.detector.Detect(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Observation{}, &DetectionError{Reason: "detector", Err: err}
	}
	board, err := BoardFromGrid(grid, o)
	if err != nil {
		return Observation{}, err
	}
	bounds := grid.Bounds
	if !a.bounds.Empty() {
		bounds = a.bounds
	}
	return Observation{
		Position: position.New(board, turn, rights, position.NoSquare),
		Bounds:   bounds,
	}, nil
}

// BoardFromGrid maps screen cells to squares and checks king counts and
// back-rank pawns.
func BoardFromGrid(g Grid, o boardmap.Orientation) (position.Board, error) {
	var b position.Board
	if len(g.Cells) != 8 {
		return b, &DetectionError{Reason: fmt.Sprintf("grid has %d rows", len(g.Cells))}
	}
	for row, cells := range g.Cells {
		if len(cells) != 8 {
			return b, &DetectionError{Reason: fmt.Sprintf("grid row %d has %d cells", row, len(cells))}
		}
		for col, pc := range cells {
			b[boardmap.CellSquare(row, col, o)] = pc
		}
	}
	w, k := b.Kings()
	switch {
	case w == 0 || k == 0:
		return b, &DetectionError{Reason: fmt.Sprintf("missing king (white=%d black=%d)", w, k)}
	case w > 1 || k > 1:
		return b, &DetectionError{Reason: fmt.Sprintf("too many kings (white=%d black=%d)", w, k)}
	}
	for file := 0; file < 8; file++ {
		for _, rank := range [2]int{0, 7} {
			sq := position.NewSquare(file, rank)
			if b[sq].Type() == position.Pawn {
				return b, &DetectionError{Reason: fmt.Sprintf("pawn on back rank %s", sq)}
			}
		}
	}
	return b, nil
}

// EmptyGrid returns an 8x8 grid of empty cells.
func EmptyGrid() [][]position.Piece {
	cells := make([][]position.Piece, 8)
	for i := range cells {
		cells[i] = make([]position.Piece, 8)
	}
	return cells
}

// GridFromBoard lays b out in screen order for orientation o.
func GridFromBoard(b position.Board, o boardmap.Orientation) [][]position.Piece {
	cells := EmptyGrid()
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			cells[row][col] = b[boardmap.CellSquare(row, col, o)]
		}
	}
	return cells
}
