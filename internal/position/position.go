// Package position holds the immutable board snapshot passed through a pilot cycle.
package position

// Board maps squares (a1=0 ... h8=63) to pieces. It is a value type; copies are independent.
type Board [64]Piece

// Kings counts the kings of each color.
func (b Board) Kings() (white, black int) {
	for _, p := range b {
		if p.Type() != King {
			continue
		}
		if p.Color() == White {
			white++
		} else {
			black++
		}
	}
	return white, black
}

// Position is an immutable board snapshot. Mutating helpers return copies.
type Position struct {
	board     Board
	turn      Color
	castling  CastlingRights
	enPassant Square
	halfmove  int
	fullmove  int
}

// New builds a Position. ep may be NoSquare.
func New(b Board, turn Color, rights CastlingRights, ep Square) Position {
	if !ep.Valid() {
		ep = NoSquare
	}
	return Position{board: b, turn: turn, castling: rights, enPassant: ep, fullmove: 1}
}

// Start returns the standard initial position.
func Start() Position {
	p, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Position) Board() Board { return p.board }
func (p Position) At(sq Square) Piece { return p.board[sq] }
func (p Position) Turn() Color { return p.turn }
func (p Position) Castling() CastlingRights { return p.castling }
func (p Position) EnPassant() Square { return p.enPassant }
func (p Position) HalfmoveClock() int { return p.halfmove }
func (p Position) FullmoveNumber() int { return p.fullmove }
func (p Position) SamePlacement(o Position) bool { return p.board == o.board }

// WithTurn returns a copy with a different side to move.
func (p Position) WithTurn(c Color) Position {
	p.turn = c
	return p
}

// WithCastling returns a copy with different castling rights.
func (p Position) WithCastling(r CastlingRights) Position {
	p.castling = r
	return p
}

// WithEnPassant returns a copy with a different en-passant target.
func (p Position) WithEnPassant(sq Square) Position {
	if !sq.Valid() {
		sq = NoSquare
	}
	p.enPassant = sq
	return p
}

// WithClocks returns a copy with the given halfmove clock and fullmove number.
func (p Position) WithClocks(halfmove, fullmove int) Position {
	if halfmove < 0 {
		halfmove = 0
	}
	if fullmove < 1 {
		fullmove = 1
	}
	p.halfmove, p.fullmove = halfmove, fullmove
	return p
}
