package position

import (
	"fmt"
	"strconv"
	"strings"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// EncodingError reports a board that cannot be handed to an engine.
type EncodingError struct {
	WhiteKings int
	BlackKings int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("position not encodable: %d white king(s), %d black king(s)", e.WhiteKings, e.BlackKings)
}

// ToProtocolString encodes p as a six-field FEN string.
func ToProtocolString(p Position) (string, error) {
	w, b := p.board.Kings()
	if w != 1 || b != 1 {
		return "", &EncodingError{WhiteKings: w, BlackKings: b}
	}
	return fmt.Sprintf("%s %s %s %s %d %d",
		p.board.Placement(),
		p.turn,
		p.castling,
		p.enPassant,
		p.halfmove,
		max(p.fullmove, 1),
	), nil
}

// Placement renders the FEN piece-placement field, rank 8 first.
func (b Board) Placement() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			pc := b[NewSquare(file, rank)]
			if pc.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteString(pc.String())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// ParseFEN parses a FEN string. The clock fields are optional.
func ParseFEN(s string) (Position, error) {
	fields := strings.Fields(s)
	if len(fields) < 4 || len(fields) > 6 {
		return Position{}, fmt.Errorf("fen: expected 4-6 fields, got %d", len(fields))
	}

	board, err := parsePlacement(fields[0])
	if err != nil {
		return Position{}, err
	}

	var turn Color
	switch fields[1] {
	case "w":
		turn = White
	case "b":
		turn = Black
	default:
		return Position{}, fmt.Errorf("fen: invalid side to move %q", fields[1])
	}

	rights, err := ParseCastling(fields[2])
	if err != nil {
		return Position{}, fmt.Errorf("fen: %w", err)
	}

	ep := NoSquare
	if fields[3] != "-" {
		if ep, err = ParseSquare(fields[3]); err != nil {
			return Position{}, fmt.Errorf("fen: en passant: %w", err)
		}
	}

	p := New(board, turn, rights, ep)
	half, full := 0, 1
	if len(fields) >= 5 {
		if half, err = strconv.Atoi(fields[4]); err != nil || half < 0 {
			return Position{}, fmt.Errorf("fen: invalid halfmove clock %q", fields[4])
		}
	}
	if len(fields) == 6 {
		if full, err = strconv.Atoi(fields[5]); err != nil || full < 1 {
			return Position{}, fmt.Errorf("fen: invalid fullmove number %q", fields[5])
		}
	}
	return p.WithClocks(half, full), nil
}

func parsePlacement(s string) (Board, error) {
	var b Board
	ranks := strings.Split(s, "/")
	if len(ranks) != 8 {
		return b, fmt.Errorf("fen: expected 8 ranks, got %d", len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			pc, ok := PieceFromFEN(c)
			if !ok {
				return b, fmt.Errorf("fen: invalid piece %q", c)
			}
			if file > 7 {
				return b, fmt.Errorf("fen: rank %d overflows", rank+1)
			}
			b[NewSquare(file, rank)] = pc
			file++
		}
		if file != 8 {
			return b, fmt.Errorf("fen: rank %d has %d files", rank+1, file)
		}
	}
	return b, nil
}
