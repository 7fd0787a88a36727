package position

// Color is the side owning a piece or having the move.
type Color uint8

const (
	White Color = iota
	Black
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// String returns the FEN side letter.
func (c Color) String() string {
	if c == Black {
		return "b"
	}
	return "w"
}

// Name returns "white" or "black".
func (c Color) Name() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// ParseColor accepts w/b/white/black in any case.
func ParseColor(s string) (Color, bool) {
	switch s {
	case "w", "W", "white", "White", "WHITE":
		return White, true
	case "b", "B", "black", "Black", "BLACK":
		return Black, true
	}
	return White, false
}

// PieceType is a piece kind without color.
type PieceType uint8

const (
	NoPieceType PieceType = iota
	King
	Queen
	Rook
	Bishop
	Knight
	Pawn
)

// Letter returns the lowercase notation letter, or "" for NoPieceType.
func (t PieceType) Letter() string {
	switch t {
	case King:
		return "k"
	case Queen:
		return "q"
	case Rook:
		return "r"
	case Bishop:
		return "b"
	case Knight:
		return "n"
	case Pawn:
		return "p"
	}
	return ""
}

func pieceTypeFromLetter(b byte) PieceType {
	switch b | 0x20 {
	case 'k':
		return King
	case 'q':
		return Queen
	case 'r':
		return Rook
	case 'b':
		return Bishop
	case 'n':
		return Knight
	case 'p':
		return Pawn
	}
	return NoPieceType
}

// Piece is a colored piece or NoPiece. The zero value is an empty square.
type Piece uint8

const NoPiece Piece = 0

// NewPiece combines a color and a kind.
func NewPiece(c Color, t PieceType) Piece {
	if t == NoPieceType {
		return NoPiece
	}
	return Piece(uint8(t) | uint8(c)<<3)
}

func (p Piece) Type() PieceType { return PieceType(uint8(p) & 0x7) }

func (p Piece) Color() Color { return Color(uint8(p) >> 3) }

func (p Piece) IsEmpty() bool { return p.Type() == NoPieceType }

// String returns the FEN letter (uppercase for white), or "." for an empty square.
func (p Piece) String() string {
	l := p.Type().Letter()
	if l == "" {
		return "."
	}
	if p.Color() == White {
		return string(l[0] - 0x20)
	}
	return l
}

// PieceFromFEN parses a single FEN piece letter.
func PieceFromFEN(b byte) (Piece, bool) {
	t := pieceTypeFromLetter(b)
	if t == NoPieceType {
		return NoPiece, false
	}
	if b >= 'A' && b <= 'Z' {
		return NewPiece(White, t), true
	}
	return NewPiece(Black, t), true
}

// AllPieces lists the twelve colored pieces, white first.
func AllPieces() []Piece {
	out := make([]Piece, 0, 12)
	for _, c := range []Color{White, Black} {
		for t := King; t <= Pawn; t++ {
			out = append(out, NewPiece(c, t))
		}
	}
	return out
}
