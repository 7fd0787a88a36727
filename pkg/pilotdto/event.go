package pilotdto

import "time"

// Event types pushed to feed clients. All controller event kinds pass through
// unchanged; TypeAck answers a command.
const (
	TypeState      = "state"
	TypeBestMove   = "best_move"
	TypeExecuting  = "executing"
	TypeMovePlayed = "move_played"
	TypeFailure    = "failure"
	TypeCheckmate  = "checkmate"
	TypeInfo       = "info"
	TypeAck        = "ack"
)

type Event struct {
	Type    string    `json:"type"`
	State   string    `json:"state,omitempty"`
	Move    string    `json:"move,omitempty"`
	SAN     string    `json:"san,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	FEN     string    `json:"fen,omitempty"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`

	// Ack only
	ID     string       `json:"id,omitempty"`
	OK     bool         `json:"ok,omitempty"`
	Code   string       `json:"code,omitempty"`
	Status *PilotStatus `json:"status,omitempty"`
}

type PilotStatus struct {
	State     string `json:"state"`
	Color     string `json:"color,omitempty"`
	Auto      bool   `json:"auto"`
	Castling  string `json:"castling"`
	Budget    string `json:"budget"`
	LastFEN   string `json:"last_fen,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}
