package position

import (
	"fmt"
	"strings"
)

// CastlingRights holds the four independent castling flags.
type CastlingRights struct {
	WhiteKingSide  bool
	WhiteQueenSide bool
	BlackKingSide  bool
	BlackQueenSide bool
}

// AllCastling is the starting set of rights.
var AllCastling = CastlingRights{true, true, true, true}

// String renders the FEN castling field ("KQkq", "-").
func (r CastlingRights) String() string {
	var b strings.Builder
	if r.WhiteKingSide {
		b.WriteByte('K')
	}
	if r.WhiteQueenSide {
		b.WriteByte('Q')
	}
	if r.BlackKingSide {
		b.WriteByte('k')
	}
	if r.BlackQueenSide {
		b.WriteByte('q')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// ParseCastling parses the FEN castling field.
func ParseCastling(s string) (CastlingRights, error) {
	var r CastlingRights
	if s == "-" || s == "" {
		return r, nil
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'K':
			r.WhiteKingSide = true
		case 'Q':
			r.WhiteQueenSide = true
		case 'k':
			r.BlackKingSide = true
		case 'q':
			r.BlackQueenSide = true
		default:
			return CastlingRights{}, fmt.Errorf("invalid castling field %q", s)
		}
	}
	return r, nil
}

// Restrict clears every right whose king or rook is not on its home square in p.
// Rights are never granted.
func (r CastlingRights) Restrict(p Position) CastlingRights {
	wk := p.At(E1) == NewPiece(White, King)
	bk := p.At(E8) == NewPiece(Black, King)
	r.WhiteKingSide = r.WhiteKingSide && wk && p.At(H1) == NewPiece(White, Rook)
	r.WhiteQueenSide = r.WhiteQueenSide && wk && p.At(A1) == NewPiece(White, Rook)
	r.BlackKingSide = r.BlackKingSide && bk && p.At(H8) == NewPiece(Black, Rook)
	r.BlackQueenSide = r.BlackQueenSide && bk && p.At(A8) == NewPiece(Black, Rook)
	return r
}

// clearFor revokes rights tied to a king or rook home square.
func (r CastlingRights) clearFor(sq Square) CastlingRights {
	switch sq {
	case E1:
		r.WhiteKingSide, r.WhiteQueenSide = false, false
	case E8:
		r.BlackKingSide, r.BlackQueenSide = false, false
	case H1:
		r.WhiteKingSide = false
	case A1:
		r.WhiteQueenSide = false
	case H8:
		r.BlackKingSide = false
	case A8:
		r.BlackQueenSide = false
	}
	return r
}
