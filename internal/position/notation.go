package position

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalMove = errors.New("illegal move")

func gameFor(p Position) (*nchess.Game, error) {
	fen, err := ToProtocolString(p)
	if err != nil {
		return nil, err
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("load fen %q: %w", fen, err)
	}
	return nchess.NewGame(opt), nil
}

// legalMove decodes m in p and accepts it only if the rules engine lists it
// among the legal moves.
func legalMove(p Position, m Move) (*nchess.Position, *nchess.Move, error) {
	game, err := gameFor(p)
	if err != nil {
		return nil, nil, err
	}
	pos := game.Position()
	mv, err := (nchess.UCINotation{}).Decode(pos, m.String())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrIllegalMove, m, err)
	}
	want := mv.String()
	for _, v := range game.ValidMoves() {
		if v.String() == want {
			return pos, mv, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrIllegalMove, m)
}

// CheckLegal reports whether m is legal in p according to the rules engine.
func CheckLegal(p Position, m Move) error {
	_, _, err := legalMove(p, m)
	return err
}

// SAN renders m in standard algebraic notation, falling back to engine notation
// when the move is not legal in p.
func SAN(p Position, m Move) string {
	pos, mv, err := legalMove(p, m)
	if err != nil {
		return m.String()
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv)
}

// IsCheckmate reports whether the side to move in p is checkmated.
func IsCheckmate(p Position) bool {
	game, err := gameFor(p)
	if err != nil {
		return false
	}
	return game.Method() == nchess.Checkmate
}
