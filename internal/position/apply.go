package position

import "fmt"

// Apply returns the position after m. p is left untouched.
// Castling, en passant, promotion and the clocks are handled; legality is not checked.
func Apply(p Position, m Move) (Position, error) {
	if !m.From.Valid() || !m.To.Valid() {
		return Position{}, fmt.Errorf("apply %s: invalid square", m)
	}
	mover := p.board[m.From]
	if mover.IsEmpty() {
		return Position{}, fmt.Errorf("apply %s: no piece on %s", m, m.From)
	}
	m = m.Resolve(p)

	next := p
	captured := next.board[m.To]
	next.board[m.From] = NoPiece
	next.board[m.To] = mover

	if mover.Type() == Pawn && m.From.File() != m.To.File() && captured.IsEmpty() && m.To == p.enPassant {
		victim := NewSquare(m.To.File(), m.From.Rank())
		captured = next.board[victim]
		next.board[victim] = NoPiece
	}

	if rf, rt, ok := m.RookLeg(); ok {
		next.board[rt] = next.board[rf]
		next.board[rf] = NoPiece
	}

	if m.Promotion != NoPieceType && mover.Type() == Pawn {
		next.board[m.To] = NewPiece(mover.Color(), m.Promotion)
	}

	next.castling = next.castling.clearFor(m.From).clearFor(m.To)

	next.enPassant = NoSquare
	if mover.Type() == Pawn {
		if dr := m.To.Rank() - m.From.Rank(); dr == 2 || dr == -2 {
			next.enPassant = NewSquare(m.From.File(), (m.From.Rank()+m.To.Rank())/2)
		}
	}

	if mover.Type() == Pawn || !captured.IsEmpty() {
		next.halfmove = 0
	} else {
		next.halfmove++
	}
	if mover.Color() == Black {
		next.fullmove = max(next.fullmove, 1) + 1
	}
	next.turn = p.turn.Other()
	return next, nil
}

// Diff lists the squares whose occupant differs, in ascending order.
func Diff(before, after Position) []Square {
	var out []Square
	for i := range before.board {
		if before.board[i] != after.board[i] {
			out = append(out, Square(i))
		}
	}
	return out
}

// InferEnPassant compares two snapshots and returns the square passed over by a
// double pawn push of mover, if exactly that happened between them.
func InferEnPassant(prev, cur Position, mover Color) (Square, bool) {
	startRank, landRank, midRank := 1, 3, 2
	if mover == Black {
		startRank, landRank, midRank = 6, 4, 5
	}
	pawn := NewPiece(mover, Pawn)
	found := NoSquare
	for file := 0; file < 8; file++ {
		from := NewSquare(file, startRank)
		to := NewSquare(file, landRank)
		mid := NewSquare(file, midRank)
		if prev.At(from) == pawn && cur.At(from).IsEmpty() &&
			prev.At(to).IsEmpty() && cur.At(to) == pawn &&
			prev.At(mid).IsEmpty() && cur.At(mid).IsEmpty() {
			if found != NoSquare {
				return NoSquare, false
			}
			found = mid
		}
	}
	return found, found != NoSquare
}
