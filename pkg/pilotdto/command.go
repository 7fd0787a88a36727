package pilotdto

const (
	CmdSelectColor = "select_color"
	CmdSetCastling = "set_castling"
	CmdSetBudget   = "set_budget"
	CmdRequestMove = "request_move"
	CmdSetAuto     = "set_auto"
	CmdReset       = "reset"
	CmdStatus      = "status"
)

// Command is what a feed client (or the stdin loop) asks the controller to do.
// Only the fields of the given Type are read.
type Command struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	Color      string `json:"color,omitempty"`
	Castling   string `json:"castling,omitempty"`
	Depth      int    `json:"depth,omitempty"`
	MoveTimeMS int    `json:"movetime_ms,omitempty"`
	Nodes      int    `json:"nodes,omitempty"`
	On         bool   `json:"on,omitempty"`
}
