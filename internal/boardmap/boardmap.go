// Package boardmap converts between board squares and screen pixels.
package boardmap

import (
	"image"

	"github.com/park285/Cheese-boardpilot/internal/position"
)

// Orientation tells whether the board is drawn from black's side.
type Orientation bool

const (
	Normal  Orientation = false
	Flipped Orientation = true
)

// For returns the orientation used when playing c.
func For(c position.Color) Orientation {
	return Orientation(c == position.Black)
}

func (o Orientation) String() string {
	if o == Flipped {
		return "flipped"
	}
	return "normal"
}

// OutOfBoundsError means the board region on screen is unknown or unusable.
type OutOfBoundsError struct {
	Bounds image.Rectangle
}

func (e *OutOfBoundsError) Error() string {
	if e.Bounds.Empty() {
		return "board bounds not established"
	}
	return "board bounds too small: " + e.Bounds.String()
}

func checkBounds(bounds image.Rectangle) error {
	if bounds.Dx() < 8 || bounds.Dy() < 8 {
		return &OutOfBoundsError{Bounds: bounds}
	}
	return nil
}

// Cell returns the screen grid cell (row 0 at the top, col 0 at the left) showing sq.
func Cell(sq position.Square, o Orientation) (row, col int) {
	if o == Flipped {
		return sq.Rank(), 7 - sq.File()
	}
	return 7 - sq.Rank(), sq.File()
}

// CellSquare is the inverse of Cell.
func CellSquare(row, col int, o Orientation) position.Square {
	if o == Flipped {
		return position.NewSquare(7-col, row)
	}
	return position.NewSquare(col, 7-row)
}

// CellRect is the pixel rectangle of a grid cell inside bounds.
func CellRect(row, col int, bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	return image.Rect(
		bounds.Min.X+col*w/8,
		bounds.Min.Y+row*h/8,
		bounds.Min.X+(col+1)*w/8,
		bounds.Min.Y+(row+1)*h/8,
	)
}

// SquareRect is the pixel rectangle of sq.
func SquareRect(sq position.Square, bounds image.Rectangle, o Orientation) (image.Rectangle, error) {
	if err := checkBounds(bounds); err != nil {
		return image.Rectangle{}, err
	}
	row, col := Cell(sq, o)
	return CellRect(row, col, bounds), nil
}

// SquareToPixel returns the pixel center of sq.
func SquareToPixel(sq position.Square, bounds image.Rectangle, o Orientation) (image.Point, error) {
	if err := checkBounds(bounds); err != nil {
		return image.Point{}, err
	}
	row, col := Cell(sq, o)
	return cellCenter(row, col, bounds), nil
}

func cellCenter(row, col int, bounds image.Rectangle) image.Point {
	w, h := bounds.Dx(), bounds.Dy()
	return image.Point{
		X: bounds.Min.X + (2*col+1)*w/16,
		Y: bounds.Min.Y + (2*row+1)*h/16,
	}
}

// SquareAt maps a pixel back to the square under it.
func SquareAt(pt image.Point, bounds image.Rectangle, o Orientation) (position.Square, bool) {
	if checkBounds(bounds) != nil || !pt.In(bounds) {
		return position.NoSquare, false
	}
	col := (pt.X - bounds.Min.X) * 8 / bounds.Dx()
	row := (pt.Y - bounds.Min.Y) * 8 / bounds.Dy()
	return CellSquare(row, col, o), true
}

// Leg is one pick-then-place click pair.
type Leg struct {
	Pick  image.Point
	Place image.Point
}

// ClickSequenceFor returns the click legs realising m: one leg for a simple move,
// king then rook for a castle. m must have been resolved against its position.
func ClickSequenceFor(m position.Move, bounds image.Rectangle, o Orientation) ([]Leg, error) {
	squares := [][2]position.Square{{m.From, m.To}}
	if rf, rt, ok := m.RookLeg(); ok {
		squares = append(squares, [2]position.Square{rf, rt})
	}
	legs := make([]Leg, 0, len(squares))
	for _, pair := range squares {
		pick, err := SquareToPixel(pair[0], bounds, o)
		if err != nil {
			return nil, err
		}
		place, err := SquareToPixel(pair[1], bounds, o)
		if err != nil {
			return nil, err
		}
		legs = append(legs, Leg{Pick: pick, Place: place})
	}
	return legs, nil
}

// PromotionChoices returns the centers of n picker cells stacked from the
// promotion square towards the middle of the board.
func PromotionChoices(to position.Square, bounds image.Rectangle, o Orientation, n int) ([]image.Point, error) {
	if err := checkBounds(bounds); err != nil {
		return nil, err
	}
	row, col := Cell(to, o)
	step := 1
	if row >= 4 {
		step = -1
	}
	out := make([]image.Point, 0, n)
	for i := 0; i < n && i < 8; i++ {
		out = append(out, cellCenter(row+i*step, col, bounds))
	}
	return out, nil
}

// PromotionChoiceAt returns the picker index under pt, or -1.
func PromotionChoiceAt(pt image.Point, to position.Square, bounds image.Rectangle, o Orientation, n int) int {
	sq, ok := SquareAt(pt, bounds, o)
	if !ok {
		return -1
	}
	row, col := Cell(to, o)
	prow, pcol := Cell(sq, o)
	if pcol != col {
		return -1
	}
	idx := prow - row
	if row >= 4 {
		idx = row - prow
	}
	if idx < 0 || idx >= n {
		return -1
	}
	return idx
}
