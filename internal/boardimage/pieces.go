package boardimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/Cheese-boardpilot/internal/position"
)

// Palette assigns every piece the fill color of its glyph.
type Palette map[position.Piece]color.RGBA

// DefaultPalette uses saturated colors far from both square colors.
func DefaultPalette() Palette {
	w := func(t position.PieceType) position.Piece { return position.NewPiece(position.White, t) }
	b := func(t position.PieceType) position.Piece { return position.NewPiece(position.Black, t) }
	return Palette{
		w(position.King):   {255, 0, 0, 255},
		w(position.Queen):  {0, 200, 0, 255},
		w(position.Rook):   {0, 0, 255, 255},
		w(position.Bishop): {255, 255, 0, 255},
		w(position.Knight): {255, 0, 255, 255},
		w(position.Pawn):   {0, 255, 255, 255},
		b(position.King):   {128, 0, 0, 255},
		b(position.Queen):  {0, 100, 0, 255},
		b(position.Rook):   {0, 0, 128, 255},
		b(position.Bishop): {128, 128, 0, 255},
		b(position.Knight): {128, 0, 128, 255},
		b(position.Pawn):   {0, 128, 128, 255},
	}
}

// Nearest returns the palette piece closest to c within tolerance.
func (p Palette) Nearest(c color.Color, tolerance int) (position.Piece, bool) {
	r, g, b, _ := c.RGBA()
	best, bestDist := position.NoPiece, tolerance*tolerance+1
	for pc, pcol := range p {
		dr := int(r>>8) - int(pcol.R)
		dg := int(g>>8) - int(pcol.G)
		db := int(b>>8) - int(pcol.B)
		if d := dr*dr + dg*dg + db*db; d < bestDist {
			best, bestDist = pc, d
		}
	}
	return best, best != position.NoPiece
}

const glyphTemplate = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">` +
	`<circle cx="50" cy="50" r="38" fill="#%02x%02x%02x" stroke="#1e1e1e" stroke-width="5"/>` +
	`%s</svg>`

// pawns get a plain disc; other pieces carry a crown bar above the center.
const crown = `<rect x="30" y="18" width="40" height="8" fill="#1e1e1e"/>`

type glyphKey struct {
	piece position.Piece
	fill  color.RGBA
	size  int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

func renderGlyph(piece position.Piece, fill color.RGBA, size int) (image.Image, error) {
	key := glyphKey{piece: piece, fill: fill, size: size}

	glyphCacheMu.RLock()
	if img, ok := glyphCache[key]; ok {
		glyphCacheMu.RUnlock()
		return img, nil
	}
	glyphCacheMu.RUnlock()

	decor := crown
	if piece.Type() == position.Pawn {
		decor = ""
	}
	src := fmt.Sprintf(glyphTemplate, fill.R, fill.G, fill.B, decor)
	icon, err := oksvg.ReadIconStream(bytes.NewReader([]byte(src)))
	if err != nil {
		return nil, fmt.Errorf("parse glyph svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = img
	glyphCacheMu.Unlock()
	return img, nil
}
