// Package palette reads boards drawn with flat, known piece colors.
//
// Each cell is classified by averaging a small patch around its center and
// matching the result against the palette. It needs the board bounds up front.
package palette

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/park285/Cheese-boardpilot/internal/boardimage"
	"github.com/park285/Cheese-boardpilot/internal/detect"
)

const (
	DefaultTolerance = 40
	patchRadius      = 2
)

type Detector struct {
	bounds    image.Rectangle
	palette   boardimage.Palette
	tolerance int
}

func New(bounds image.Rectangle, p boardimage.Palette, tolerance int) *Detector {
	if p == nil {
		p = boardimage.DefaultPalette()
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Detector{bounds: bounds, palette: p, tolerance: tolerance}
}

var _ detect.Detector = (*Detector)(nil)

func (d *Detector) Detect(ctx context.Context, img image.Image) (detect.Grid, error) {
	if d.bounds.Dx() < 8 || d.bounds.Dy() < 8 {
		return detect.Grid{}, fmt.Errorf("palette detector needs board bounds, have %v", d.bounds)
	}
	if !d.bounds.In(img.Bounds()) {
		return detect.Grid{}, fmt.Errorf("board %v outside frame %v", d.bounds, img.Bounds())
	}
	cells := detect.EmptyGrid()
	for row := 0; row < 8; row++ {
		if err := ctx.Err(); err != nil {
			return detect.Grid{}, err
		}
		for col := 0; col < 8; col++ {
			cx := d.bounds.Min.X + (2*col+1)*d.bounds.Dx()/16
			cy := d.bounds.Min.Y + (2*row+1)*d.bounds.Dy()/16
			if pc, ok := d.palette.Nearest(average(img, cx, cy), d.tolerance); ok {
				cells[row][col] = pc
			}
		}
	}
	return detect.Grid{Cells: cells, Bounds: d.bounds}, nil
}

func average(img image.Image, cx, cy int) color.RGBA {
	var r, g, b, n uint32
	for y := cy - patchRadius; y <= cy+patchRadius; y++ {
		for x := cx - patchRadius; x <= cx+patchRadius; x++ {
			if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
				continue
			}
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += pr >> 8
			g += pg >> 8
			b += pb >> 8
			n++
		}
	}
	if n == 0 {
		return color.RGBA{}
	}
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: 255}
}
