package detect

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

func staticDetector(g Grid, err error) Detector {
	return DetectorFunc(func(context.Context, image.Image) (Grid, error) { return g, err })
}

var anyImage = image.NewRGBA(image.Rect(0, 0, 8, 8))

func TestAdapterOverlaysCallerState(t *testing.T) {
	start := position.Start()
	for _, o := range []boardmap.Orientation{boardmap.Normal, boardmap.Flipped} {
		g := Grid{Cells: GridFromBoard(start.Board(), o), Bounds: image.Rect(0, 0, 400, 400)}
		a := NewAdapter(staticDetector(g, nil), image.Rectangle{})
		rights := position.CastlingRights{WhiteKingSide: true}
		obs, err := a.Detect(context.Background(), anyImage, o, position.Black, rights)
		if err != nil {
			t.Fatalf("%s: %v", o, err)
		}
		if obs.Position.Board() != start.Board() {
			t.Fatalf("%s: placement %s", o, obs.Position.Board().Placement())
		}
		if obs.Position.Turn() != position.Black || obs.Position.Castling() != rights {
			t.Fatalf("%s: caller state not applied", o)
		}
		if obs.Position.EnPassant() != position.NoSquare {
			t.Fatalf("%s: en passant must not be inferred from one image", o)
		}
		if obs.Bounds != g.Bounds {
			t.Fatalf("%s: bounds %v", o, obs.Bounds)
		}
	}
}

func TestAdapterFixedBoundsWin(t *testing.T) {
	g := Grid{Cells: GridFromBoard(position.Start().Board(), boardmap.Normal), Bounds: image.Rect(0, 0, 10, 10)}
	fixed := image.Rect(5, 5, 405, 405)
	obs, err := NewAdapter(staticDetector(g, nil), fixed).Detect(context.Background(), anyImage, boardmap.Normal, position.White, position.AllCastling)
	if err != nil {
		t.Fatal(err)
	}
	if obs.Bounds != fixed {
		t.Fatalf("bounds = %v, want %v", obs.Bounds, fixed)
	}
}

func TestAdapterRejectsMalformedGrids(t *testing.T) {
	twoKings := GridFromBoard(position.Start().Board(), boardmap.Normal)
	twoKings[4][4] = position.NewPiece(position.White, position.King)

	noBlackKing := GridFromBoard(position.Start().Board(), boardmap.Normal)
	noBlackKing[0][4] = position.NoPiece

	short := EmptyGrid()[:7]

	pawnOnRank8 := GridFromBoard(position.Start().Board(), boardmap.Normal)
	pawnOnRank8[0][0] = position.NewPiece(position.White, position.Pawn)

	pawnOnRank1Flipped := GridFromBoard(position.Start().Board(), boardmap.Flipped)
	pawnOnRank1Flipped[0][1] = position.NewPiece(position.Black, position.Pawn)

	ragged := GridFromBoard(position.Start().Board(), boardmap.Normal)
	ragged[3] = ragged[3][:5]

	cases := map[string]struct {
		cells [][]position.Piece
		o     boardmap.Orientation
	}{
		"two white kings":        {twoKings, boardmap.Normal},
		"no black king":          {noBlackKing, boardmap.Normal},
		"seven rows":             {short, boardmap.Normal},
		"ragged row":             {ragged, boardmap.Normal},
		"pawn on rank 8":         {pawnOnRank8, boardmap.Normal},
		"pawn on rank 1 flipped": {pawnOnRank1Flipped, boardmap.Flipped},
	}
	for name, tc := range cases {
		a := NewAdapter(staticDetector(Grid{Cells: tc.cells}, nil), image.Rectangle{})
		_, err := a.Detect(context.Background(), anyImage, tc.o, position.White, position.AllCastling)
		var detErr *DetectionError
		if !errors.As(err, &detErr) {
			t.Errorf("%s: expected DetectionError, got %v", name, err)
		}
	}
}

func TestAdapterWrapsDetectorFailure(t *testing.T) {
	cause := errors.New("model offline")
	a := NewAdapter(staticDetector(Grid{}, cause), image.Rectangle{})
	_, err := a.Detect(context.Background(), anyImage, boardmap.Normal, position.White, position.AllCastling)
	var detErr *DetectionError
	if !errors.As(err, &detErr) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped DetectionError, got %v", err)
	}
	if _, err := a.Detect(context.Background(), nil, boardmap.Normal, position.White, position.AllCastling); !errors.As(err, &detErr) {
		t.Fatalf("nil image should fail detection, got %v", err)
	}
}
