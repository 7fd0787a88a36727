// Package boardimage draws a board into a screen-sized image.
package boardimage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

var (
	lightSquare = color.RGBA{233, 207, 163, 255}
	darkSquare  = color.RGBA{187, 136, 96, 255}
	background  = color.RGBA{48, 46, 43, 255}
	pickerPanel = color.RGBA{90, 90, 90, 255}
	highlight   = color.RGBA{205, 210, 106, 255}
)

// Picker is a promotion chooser drawn as a column over the board.
type Picker struct {
	To     position.Square
	Pieces []position.Piece
}

// Options control one render.
type Options struct {
	Canvas      image.Rectangle
	Bounds      image.Rectangle
	Orientation boardmap.Orientation
	Labels      bool
	Highlight   []position.Square
	Picker      *Picker
}

// Renderer draws boards with palette-colored glyphs.
type Renderer struct {
	palette Palette
}

func NewRenderer(p Palette) *Renderer {
	if p == nil {
		p = DefaultPalette()
	}
	return &Renderer{palette: p}
}

func (r *Renderer) Palette() Palette { return r.palette }

// Render draws b into a new image covering opts.Canvas. The image keeps the canvas
// coordinates so pixels line up with screen coordinates.
func (r *Renderer) Render(b position.Board, opts Options) (*image.RGBA, error) {
	if opts.Canvas.Empty() {
		opts.Canvas = opts.Bounds
	}
	if opts.Bounds.Dx() < 8 || opts.Bounds.Dy() < 8 {
		return nil, &boardmap.OutOfBoundsError{Bounds: opts.Bounds}
	}
	img := image.NewRGBA(opts.Canvas)
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	marked := make(map[position.Square]bool, len(opts.Highlight))
	for _, sq := range opts.Highlight {
		marked[sq] = true
	}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sq := boardmap.CellSquare(row, col, opts.Orientation)
			clr := squareColor(sq)
			if marked[sq] {
				clr = highlight
			}
			draw.Draw(img, boardmap.CellRect(row, col, opts.Bounds), image.NewUniform(clr), image.Point{}, draw.Src)
		}
	}

	if opts.Labels {
		drawCoordinates(img, opts.Bounds, opts.Orientation)
	}

	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			pc := b[boardmap.CellSquare(row, col, opts.Orientation)]
			if pc.IsEmpty() {
				continue
			}
			if err := r.drawPiece(img, pc, boardmap.CellRect(row, col, opts.Bounds)); err != nil {
				return nil, err
			}
		}
	}

	if opts.Picker != nil {
		if err := r.drawPicker(img, *opts.Picker, opts.Bounds, opts.Orientation); err != nil {
			return nil, err
		}
	}
	return img, nil
}

func (r *Renderer) drawPiece(dst *image.RGBA, pc position.Piece, cell image.Rectangle) error {
	fill, ok := r.palette[pc]
	if !ok {
		return fmt.Errorf("no palette color for %s", pc)
	}
	size := min(cell.Dx(), cell.Dy())
	glyph, err := renderGlyph(pc, fill, size)
	if err != nil {
		return err
	}
	at := image.Pt(cell.Min.X+(cell.Dx()-size)/2, cell.Min.Y+(cell.Dy()-size)/2)
	draw.Draw(dst, image.Rectangle{Min: at, Max: at.Add(image.Pt(size, size))}, glyph, image.Point{}, draw.Over)
	return nil
}

func (r *Renderer) drawPicker(dst *image.RGBA, p Picker, bounds image.Rectangle, o boardmap.Orientation) error {
	pts, err := boardmap.PromotionChoices(p.To, bounds, o, len(p.Pieces))
	if err != nil {
		return err
	}
	for i, pt := range pts {
		sq, ok := boardmap.SquareAt(pt, bounds, o)
		if !ok {
			continue
		}
		cell, _ := boardmap.SquareRect(sq, bounds, o)
		draw.Draw(dst, cell, image.NewUniform(pickerPanel), image.Point{}, draw.Src)
		if err := r.drawPiece(dst, p.Pieces[i], cell); err != nil {
			return err
		}
	}
	return nil
}

// drawCoordinates prints file letters on the bottom row and rank digits on the left column.
func drawCoordinates(dst draw.Image, bounds image.Rectangle, o boardmap.Orientation) {
	drawer := &font.Drawer{Dst: dst, Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		left := boardmap.CellSquare(i, 0, o)
		cell := boardmap.CellRect(i, 0, bounds)
		drawer.Src = image.NewUniform(labelColor(left))
		drawer.Dot = fixed.P(cell.Min.X+2, cell.Min.Y+ascent+1)
		drawer.DrawString(string(rune('1' + left.Rank())))

		bottom := boardmap.CellSquare(7, i, o)
		cell = boardmap.CellRect(7, i, bounds)
		drawer.Src = image.NewUniform(labelColor(bottom))
		drawer.Dot = fixed.P(cell.Max.X-9, cell.Max.Y-3)
		drawer.DrawString(string(rune('a' + bottom.File())))
	}
}

func squareColor(sq position.Square) color.RGBA {
	if (sq.File()+sq.Rank())%2 == 0 {
		return darkSquare
	}
	return lightSquare
}

func labelColor(sq position.Square) color.RGBA {
	if squareColor(sq) == darkSquare {
		return lightSquare
	}
	return darkSquare
}
