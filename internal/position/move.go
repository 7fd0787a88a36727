package position

import "fmt"

// Move is a single ply in coordinate notation.
type Move struct {
	From      Square
	To        Square
	Promotion PieceType
	castle    bool
}

// ParseMove parses an engine move token such as "e2e4" or "e7e8q".
func ParseMove(token string) (Move, error) {
	if len(token) != 4 && len(token) != 5 {
		return Move{}, fmt.Errorf("invalid move token %q", token)
	}
	from, err := ParseSquare(token[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move token %q: %w", token, err)
	}
	to, err := ParseSquare(token[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move token %q: %w", token, err)
	}
	if from == to {
		return Move{}, fmt.Errorf("invalid move token %q: null move", token)
	}
	m := Move{From: from, To: to}
	if len(token) == 5 {
		switch t := pieceTypeFromLetter(token[4]); t {
		case Queen, Rook, Bishop, Knight:
			m.Promotion = t
		default:
			return Move{}, fmt.Errorf("invalid promotion in %q", token)
		}
	}
	return m, nil
}

// Resolve derives the castle flag against the position the move is played in.
func (m Move) Resolve(p Position) Move {
	pc := p.At(m.From)
	m.castle = false
	if pc.Type() == King && m.From.Rank() == m.To.Rank() {
		home := E1
		if pc.Color() == Black {
			home = E8
		}
		df := m.To.File() - m.From.File()
		m.castle = m.From == home && (df == 2 || df == -2)
	}
	return m
}

// IsCastle reports whether the move was resolved as castling.
func (m Move) IsCastle() bool { return m.castle }

// RookLeg returns the rook's from/to squares of a castle. ok is false for other moves.
func (m Move) RookLeg() (from, to Square, ok bool) {
	if !m.castle {
		return NoSquare, NoSquare, false
	}
	rank := m.From.Rank()
	if m.To.File() > m.From.File() {
		return NewSquare(7, rank), NewSquare(5, rank), true
	}
	return NewSquare(0, rank), NewSquare(3, rank), true
}

// String returns the move in engine notation.
func (m Move) String() string {
	return m.From.String() + m.To.String() + m.Promotion.Letter()
}
