package statusfeed

import (
	"time"

	"github.com/park285/Cheese-boardpilot/internal/pilot"
	"github.com/park285/Cheese-boardpilot/pkg/pilotdto"
)

// FromEvent converts a controller event to its wire form.
func FromEvent(ev pilot.Event) pilotdto.Event {
	out := pilotdto.Event{
		Type:    string(ev.Kind),
		State:   ev.State.String(),
		Move:    ev.Move,
		SAN:     ev.SAN,
		Attempt: ev.Attempt,
		FEN:     ev.FEN,
		Message: ev.Message,
		At:      ev.At,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	if out.At.IsZero() {
		out.At = time.Now()
	}
	return out
}

func FromStatus(st pilot.Status) *pilotdto.PilotStatus {
	out := &pilotdto.PilotStatus{
		State:     st.State.String(),
		Auto:      st.Auto,
		Castling:  st.Castling.String(),
		Budget:    st.Limits.String(),
		LastFEN:   st.LastFEN,
		SessionID: st.SessionID,
	}
	if st.HasColor {
		out.Color = st.Color.Name()
	}
	return out
}
