package remote

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

// ClassBoard is the model class of the board outline.
const ClassBoard = 12

var ErrNoBoard = errors.New("no board in frame")

// model class id -> piece; classes 0-5 black, 6-11 white
var classPieces = [12]position.Piece{
	position.NewPiece(position.Black, position.Pawn),
	position.NewPiece(position.Black, position.Rook),
	position.NewPiece(position.Black, position.Knight),
	position.NewPiece(position.Black, position.Bishop),
	position.NewPiece(position.Black, position.Queen),
	position.NewPiece(position.Black, position.King),
	position.NewPiece(position.White, position.Pawn),
	position.NewPiece(position.White, position.Rook),
	position.NewPiece(position.White, position.Knight),
	position.NewPiece(position.White, position.Bishop),
	position.NewPiece(position.White, position.Queen),
	position.NewPiece(position.White, position.King),
}

// ClassOf returns the model class of a piece, or -1.
func ClassOf(p position.Piece) int {
	for i, c := range classPieces {
		if c == p {
			return i
		}
	}
	return -1
}

// Box is one detection: corners, confidence and class.
type Box struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	Class          int
}

func (b Box) center() (float64, float64) { return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2 }

func parseBoxes(raw [][]float64) ([]Box, error) {
	out := make([]Box, 0, len(raw))
	for i, r := range raw {
		if len(r) < 6 {
			return nil, fmt.Errorf("box %d has %d values", i, len(r))
		}
		out = append(out, Box{X1: r[0], Y1: r[1], X2: r[2], Y2: r[3], Confidence: r[4], Class: int(r[5])})
	}
	return out, nil
}

type letterboxGeom struct {
	scale      float64
	padX, padY float64
}

// unmap converts model coordinates back to source image coordinates.
func (g letterboxGeom) unmap(b Box, origin image.Point) Box {
	b.X1 = (b.X1-g.padX)/g.scale + float64(origin.X)
	b.X2 = (b.X2-g.padX)/g.scale + float64(origin.X)
	b.Y1 = (b.Y1-g.padY)/g.scale + float64(origin.Y)
	b.Y2 = (b.Y2-g.padY)/g.scale + float64(origin.Y)
	return b
}

// letterbox scales img to fit a size x size square, padding the short side with black.
func letterbox(img image.Image, size int) (*image.RGBA, letterboxGeom) {
	src := img.Bounds()
	scale := math.Min(float64(size)/float64(src.Dx()), float64(size)/float64(src.Dy()))
	w := int(float64(src.Dx()) * scale)
	h := int(float64(src.Dy()) * scale)
	padX := (size - w) / 2
	padY := (size - h) / 2

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)
	xdraw.CatmullRom.Scale(dst, image.Rect(padX, padY, padX+w, padY+h), img, src, xdraw.Src, nil)
	return dst, letterboxGeom{scale: scale, padX: float64(padX), padY: float64(padY)}
}

// assemble places confident piece boxes into the cells of the most confident board box.
func assemble(boxes []Box, minConfidence float64) (detect.Grid, error) {
	var board *Box
	for i := range boxes {
		b := &boxes[i]
		if b.Class == ClassBoard && b.Confidence >= minConfidence && (board == nil || b.Confidence > board.Confidence) {
			board = b
		}
	}
	if board == nil {
		return detect.Grid{}, ErrNoBoard
	}
	bounds := image.Rect(
		int(math.Round(board.X1)), int(math.Round(board.Y1)),
		int(math.Round(board.X2)), int(math.Round(board.Y2)),
	)
	if bounds.Dx() < 8 || bounds.Dy() < 8 {
		return detect.Grid{}, fmt.Errorf("board box too small: %v", bounds)
	}

	cells := detect.EmptyGrid()
	var best [8][8]float64
	for _, b := range boxes {
		if b.Class < 0 || b.Class >= len(classPieces) || b.Confidence < minConfidence {
			continue
		}
		cx, cy := b.center()
		if cx < float64(bounds.Min.X) || cy < float64(bounds.Min.Y) || cx >= float64(bounds.Max.X) || cy >= float64(bounds.Max.Y) {
			continue
		}
		col := int((cx - float64(bounds.Min.X)) * 8 / float64(bounds.Dx()))
		row := int((cy - float64(bounds.Min.Y)) * 8 / float64(bounds.Dy()))
		if b.Confidence > best[row][col] {
			best[row][col] = b.Confidence
			cells[row][col] = classPieces[b.Class]
		}
	}
	return detect.Grid{Cells: cells, Bounds: bounds}, nil
}
