package position

import (
	"errors"
	"testing"
)

func mustFEN(t *testing.T, fen string) Position {
	t.Helper()
	p, err := ParseFEN(fen)
	if err != nil {
		t.Fatalf("parse fen %q: %v", fen, err)
	}
	return p
}

func mustMove(t *testing.T, token string) Move {
	t.Helper()
	m, err := ParseMove(token)
	if err != nil {
		t.Fatalf("parse move %q: %v", token, err)
	}
	return m
}

func mustApply(t *testing.T, p Position, m Move) Position {
	t.Helper()
	next, err := Apply(p, m)
	if err != nil {
		t.Fatalf("apply %s: %v", m, err)
	}
	return next
}

func TestApplyDoublePushSetsEnPassant(t *testing.T) {
	p := Start()
	next := mustApply(t, p, mustMove(t, "e2e4"))

	if !next.At(MustSquare("e2")).IsEmpty() {
		t.Fatalf("e2 should be empty")
	}
	if got := next.At(MustSquare("e4")); got != NewPiece(White, Pawn) {
		t.Fatalf("e4 = %v, want white pawn", got)
	}
	if next.Turn() != Black {
		t.Fatalf("turn = %v, want black", next.Turn())
	}
	if next.EnPassant() != MustSquare("e3") {
		t.Fatalf("en passant = %v, want e3", next.EnPassant())
	}
	if next.Castling() != AllCastling {
		t.Fatalf("castling changed: %v", next.Castling())
	}
	// input is untouched
	if p.At(MustSquare("e2")) != NewPiece(White, Pawn) || p.Turn() != White {
		t.Fatalf("Apply mutated its input")
	}
}

func TestApplyCastleMovesRookAndClearsRights(t *testing.T) {
	p := mustFEN(t, "4k3/8/8/8/8/8/8/R3K2R w KQ - 0 1")
	m := mustMove(t, "e1g1").Resolve(p)
	if !m.IsCastle() {
		t.Fatalf("e1g1 should resolve as castle")
	}
	next := mustApply(t, p, m)

	if next.At(G1) != NewPiece(White, King) || next.At(F1) != NewPiece(White, Rook) {
		t.Fatalf("unexpected placement %s", next.Board().Placement())
	}
	if !next.At(E1).IsEmpty() || !next.At(H1).IsEmpty() {
		t.Fatalf("home squares should be empty: %s", next.Board().Placement())
	}
	if next.Castling().WhiteKingSide || next.Castling().WhiteQueenSide {
		t.Fatalf("white rights should be cleared, got %v", next.Castling())
	}
	if got := len(Diff(p, next)); got != 4 {
		t.Fatalf("castle diff = %d squares, want 4", got)
	}
}

func TestApplyQueenSideCastle(t *testing.T) {
	p := mustFEN(t, "r3k3/8/8/8/8/8/8/4K3 b q - 0 1")
	next := mustApply(t, p, mustMove(t, "e8c8"))
	if next.At(MustSquare("c8")) != NewPiece(Black, King) || next.At(MustSquare("d8")) != NewPiece(Black, Rook) {
		t.Fatalf("unexpected placement %s", next.Board().Placement())
	}
	if next.Castling().BlackQueenSide {
		t.Fatalf("black queen-side right should be cleared")
	}
	if next.FullmoveNumber() != 2 {
		t.Fatalf("fullmove = %d, want 2", next.FullmoveNumber())
	}
}

func TestApplyPromotionSubstitutesPiece(t *testing.T) {
	p := mustFEN(t, "k7/4p3/8/8/8/8/8/K7 b - - 0 1")
	next := mustApply(t, p, mustMove(t, "e7e8q"))
	if next.At(E8) != NewPiece(Black, Queen) {
		t.Fatalf("e8 = %v, want black queen", next.At(E8))
	}
	if !next.At(MustSquare("e7")).IsEmpty() {
		t.Fatalf("e7 should be empty")
	}

	w := mustFEN(t, "k7/6P1/8/8/8/8/8/K7 w - - 0 1")
	next = mustApply(t, w, mustMove(t, "g7g8n"))
	if next.At(G8) != NewPiece(White, Knight) {
		t.Fatalf("g8 = %v, want white knight", next.At(G8))
	}
	if got := len(Diff(w, next)); got != 2 {
		t.Fatalf("promotion diff = %d, want 2", got)
	}
}

func TestApplyEnPassantCapture(t *testing.T) {
	p := mustFEN(t, "4k3/8/8/3pP3/8/8/8/4K3 w - d6 0 3")
	next := mustApply(t, p, mustMove(t, "e5d6"))
	if !next.At(MustSquare("d5")).IsEmpty() {
		t.Fatalf("captured pawn on d5 should be removed")
	}
	if next.At(MustSquare("d6")) != NewPiece(White, Pawn) {
		t.Fatalf("d6 should hold the white pawn")
	}
	if next.HalfmoveClock() != 0 {
		t.Fatalf("halfmove clock should reset on capture")
	}
}

func TestApplyRookCaptureClearsOpponentRight(t *testing.T) {
	p := mustFEN(t, "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	next := mustApply(t, p, mustMove(t, "h1h8"))
	want := CastlingRights{WhiteQueenSide: true, BlackQueenSide: true}
	if next.Castling() != want {
		t.Fatalf("castling = %v, want %v", next.Castling(), want)
	}
}

func TestApplyEmptySquareFails(t *testing.T) {
	if _, err := Apply(Start(), mustMove(t, "e4e5")); err == nil {
		t.Fatalf("expected error for empty from-square")
	}
}

func TestApplyChangesTurnAndTouchedSquaresOnly(t *testing.T) {
	cases := []struct {
		fen   string
		moves []string
		diff  int
	}{
		{StartFEN, []string{"g1f3", "e2e4", "d2d3"}, 2},
		{"r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K2R w KQkq - 0 1", []string{"e1g1", "e1c1"}, 4},
		{"r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K2R b KQkq - 0 1", []string{"e8g8", "e8c8"}, 4},
		{"8/1P4k1/8/8/8/8/6K1/8 w - - 0 1", []string{"b7b8q", "b7b8r", "b7b8b", "b7b8n"}, 2},
	}
	for _, tc := range cases {
		p := mustFEN(t, tc.fen)
		for _, tok := range tc.moves {
			next := mustApply(t, p, mustMove(t, tok))
			if next.Turn() == p.Turn() {
				t.Errorf("%s %s: turn not flipped", tc.fen, tok)
			}
			if got := len(Diff(p, next)); got != tc.diff {
				t.Errorf("%s %s: diff = %d, want %d", tc.fen, tok, got, tc.diff)
			}
		}
	}
}

func TestProtocolStringRoundTrip(t *testing.T) {
	lines := [][]string{
		{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1"},
		{"d2d4", "d7d5", "c2c4", "d5c4", "e2e3", "b7b5", "a2a4", "c7c6", "a4b5", "c6b5"},
		{"e2e4", "a7a6", "e4e5", "d7d5", "e5d6"},
	}
	for _, line := range lines {
		p := Start()
		for _, tok := range line {
			p = mustApply(t, p, mustMove(t, tok))
			fen, err := ToProtocolString(p)
			if err != nil {
				t.Fatalf("encode after %s: %v", tok, err)
			}
			back := mustFEN(t, fen)
			if back.Board() != p.Board() || back.Turn() != p.Turn() || back.Castling() != p.Castling() {
				t.Fatalf("round trip mismatch after %s: %s", tok, fen)
			}
			if back.EnPassant() != p.EnPassant() {
				t.Fatalf("en passant mismatch after %s: %s", tok, fen)
			}
		}
	}
}

func TestProtocolStringRejectsKingCount(t *testing.T) {
	var b Board
	b[E1] = NewPiece(White, King)
	_, err := ToProtocolString(New(b, White, CastlingRights{}, NoSquare))
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
	if encErr.WhiteKings != 1 || encErr.BlackKings != 0 {
		t.Fatalf("unexpected counts %+v", encErr)
	}
}

func TestStartPositionEncoding(t *testing.T) {
	fen, err := ToProtocolString(Start())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if fen != StartFEN {
		t.Fatalf("fen = %q, want %q", fen, StartFEN)
	}
}

func TestParseMove(t *testing.T) {
	m := mustMove(t, "e7e8q")
	if m.From != MustSquare("e7") || m.To != E8 || m.Promotion != Queen {
		t.Fatalf("unexpected move %+v", m)
	}
	if m.String() != "e7e8q" {
		t.Fatalf("String() = %q", m.String())
	}
	for _, bad := range []string{"", "0000", "(none)", "e2", "e2e2", "i2i4", "e7e8k", "e7e8qq"} {
		if _, err := ParseMove(bad); err == nil {
			t.Errorf("ParseMove(%q) should fail", bad)
		}
	}
}

func TestResolveCastleNeedsKingOnHome(t *testing.T) {
	p := mustFEN(t, "4k3/8/8/8/8/8/8/4K2R w K - 0 1")
	if mustMove(t, "h1f1").Resolve(p).IsCastle() {
		t.Fatalf("rook move is not a castle")
	}
	p = mustFEN(t, "4k3/8/8/8/8/8/8/3K3R w - - 0 1")
	if mustMove(t, "d1f1").Resolve(p).IsCastle() {
		t.Fatalf("king off its home square is not castling")
	}
	if _, _, ok := mustMove(t, "e2e4").RookLeg(); ok {
		t.Fatalf("unresolved move has no rook leg")
	}
}

func TestInferEnPassant(t *testing.T) {
	prev := Start()
	cur := mustApply(t, prev, mustMove(t, "e2e4"))
	sq, ok := InferEnPassant(prev, cur, White)
	if !ok || sq != MustSquare("e3") {
		t.Fatalf("got %v %v, want e3", sq, ok)
	}
	if _, ok := InferEnPassant(prev, cur, Black); ok {
		t.Fatalf("black made no double push")
	}

	single := mustApply(t, prev, mustMove(t, "e2e3"))
	if _, ok := InferEnPassant(prev, single, White); ok {
		t.Fatalf("single push should not set a target")
	}

	after := mustApply(t, cur, mustMove(t, "c7c5"))
	sq, ok = InferEnPassant(cur, after, Black)
	if !ok || sq != MustSquare("c6") {
		t.Fatalf("got %v %v, want c6", sq, ok)
	}
}

func TestCastlingRestrict(t *testing.T) {
	p := mustFEN(t, "r3k3/8/8/8/8/8/8/4K2R w KQkq - 0 1")
	got := AllCastling.Restrict(p)
	want := CastlingRights{WhiteKingSide: true, BlackQueenSide: true}
	if got != want {
		t.Fatalf("Restrict = %v, want %v", got, want)
	}
	if (CastlingRights{}).Restrict(Start()) != (CastlingRights{}) {
		t.Fatalf("Restrict must never grant rights")
	}
}

func TestNotationHelpers(t *testing.T) {
	if got := SAN(Start(), mustMove(t, "g1f3")); got != "Nf3" {
		t.Fatalf("SAN = %q, want Nf3", got)
	}
	for _, tok := range []string{"e2e5", "a1a8", "e1g1", "g1g3"} {
		m := mustMove(t, tok).Resolve(Start())
		if err := CheckLegal(Start(), m); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%s should be illegal, got %v", tok, err)
		}
		if got := SAN(Start(), m); got != tok {
			t.Fatalf("SAN of illegal %s = %q, want engine notation", tok, got)
		}
	}
	if err := CheckLegal(Start(), mustMove(t, "e2e4")); err != nil {
		t.Fatalf("e2e4 should be legal: %v", err)
	}
	castle := mustFEN(t, "4k3/8/8/8/8/8/8/4K2R w K - 0 1")
	if got := SAN(castle, mustMove(t, "e1g1").Resolve(castle)); got != "O-O" {
		t.Fatalf("SAN castle = %q, want O-O", got)
	}
	mate := mustFEN(t, "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3")
	if !IsCheckmate(mate) {
		t.Fatalf("fool's mate should be checkmate")
	}
	if IsCheckmate(Start()) {
		t.Fatalf("start position is not checkmate")
	}
}
