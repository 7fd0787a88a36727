package statusfeed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-boardpilot/internal/engine/uci"
	"github.com/park285/Cheese-boardpilot/internal/msgcat"
	"github.com/park285/Cheese-boardpilot/internal/pilot"
	"github.com/park285/Cheese-boardpilot/internal/position"
	"github.com/park285/Cheese-boardpilot/pkg/pilotdto"
)

// Commander is the controller surface the feed and the stdin loop drive.
type Commander interface {
	SelectColor(ctx context.Context, color position.Color) error
	SetCastlingRights(r position.CastlingRights) error
	SetSearchBudget(l uci.Limits) error
	RequestMove() error
	SetAutoPlay(on bool) error
	Reset() error
	Status() pilot.Status
}

// Error codes carried by a failed ack.
const (
	CodeBusy       = "busy"
	CodeNoColor    = "no_color"
	CodeClosed     = "closed"
	CodeUnknown    = "unknown"
	CodeBadRequest = "bad_request"
	CodeFailed     = "failed"
)

type Dispatcher struct {
	cmd Commander
	cat *msgcat.Catalog
}

func NewDispatcher(cmd Commander, cat *msgcat.Catalog) *Dispatcher {
	return &Dispatcher{cmd: cmd, cat: cat}
}

// Dispatch runs one command and returns its ack. select_color blocks until the
// engine handshake finishes.
func (d *Dispatcher) Dispatch(ctx context.Context, c pilotdto.Command) pilotdto.Event {
	err := d.run(ctx, c)
	ack := pilotdto.Event{
		Type:   pilotdto.TypeAck,
		ID:     c.ID,
		OK:     err == nil,
		At:     time.Now(),
		Status: FromStatus(d.cmd.Status()),
	}
	ack.State = ack.Status.State
	if err == nil {
		ack.Message = d.cat.Text("command.ok", nil)
		return ack
	}
	var ce pilotdto.CommandError
	if !errors.As(err, &ce) {
		ce = d.classify(err)
	}
	ack.Code = ce.Code
	ack.Message = ce.Message
	ack.Error = err.Error()
	return ack
}

func (d *Dispatcher) run(ctx context.Context, c pilotdto.Command) error {
	switch c.Type {
	case pilotdto.CmdSelectColor:
		color, ok := position.ParseColor(strings.ToLower(strings.TrimSpace(c.Color)))
		if !ok {
			return d.badRequest(fmt.Errorf("color %q", c.Color))
		}
		return d.cmd.SelectColor(ctx, color)
	case pilotdto.CmdSetCastling:
		r, err := position.ParseCastling(strings.TrimSpace(c.Castling))
		if err != nil {
			return d.badRequest(err)
		}
		return d.cmd.SetCastlingRights(r)
	case pilotdto.CmdSetBudget:
		err := d.cmd.SetSearchBudget(uci.Limits{Depth: c.Depth, MoveTimeMillis: c.MoveTimeMS, NodeCap: c.Nodes})
		if errors.Is(err, uci.ErrNoSearchLimits) {
			return d.badRequest(err)
		}
		return err
	case pilotdto.CmdRequestMove:
		return d.cmd.RequestMove()
	case pilotdto.CmdSetAuto:
		return d.cmd.SetAutoPlay(c.On)
	case pilotdto.CmdReset:
		return d.cmd.Reset()
	case pilotdto.CmdStatus:
		return nil
	}
	return pilotdto.CommandError{
		Code:    CodeUnknown,
		Message: d.cat.Text("command.unknown", map[string]any{"Command": c.Type}),
	}
}

func (d *Dispatcher) classify(err error) pilotdto.CommandError {
	switch {
	case errors.Is(err, pilot.ErrBusy):
		return pilotdto.CommandError{Code: CodeBusy, Message: d.cat.Text("command.busy", nil)}
	case errors.Is(err, pilot.ErrNoColor):
		return pilotdto.CommandError{Code: CodeNoColor, Message: d.cat.Text("command.no_color", nil)}
	case errors.Is(err, pilot.ErrClosed):
		return pilotdto.CommandError{Code: CodeClosed, Message: d.cat.Text("command.closed", nil)}
	}
	return pilotdto.CommandError{Code: CodeFailed, Message: err.Error()}
}

func (d *Dispatcher) badRequest(err error) error {
	return pilotdto.CommandError{Code: CodeBadRequest, Message: err.Error()}
}

// ParseLine reads a console command:
//
//	white | black | move | reset | status
//	auto on|off
//	castle KQkq
//	depth N | movetime MS | nodes N
func ParseLine(line string) (pilotdto.Command, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return pilotdto.Command{}, errors.New("empty command")
	}
	word := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch word {
	case "white", "black", "w", "b":
		return pilotdto.Command{Type: pilotdto.CmdSelectColor, Color: word}, nil
	case "move", "go":
		return pilotdto.Command{Type: pilotdto.CmdRequestMove}, nil
	case "reset":
		return pilotdto.Command{Type: pilotdto.CmdReset}, nil
	case "status":
		return pilotdto.Command{Type: pilotdto.CmdStatus}, nil
	case "auto":
		switch strings.ToLower(arg) {
		case "on":
			return pilotdto.Command{Type: pilotdto.CmdSetAuto, On: true}, nil
		case "off":
			return pilotdto.Command{Type: pilotdto.CmdSetAuto, On: false}, nil
		}
		return pilotdto.Command{}, fmt.Errorf("auto wants on or off, got %q", arg)
	case "castle":
		if arg == "" {
			return pilotdto.Command{}, errors.New("castle wants rights such as KQkq or -")
		}
		return pilotdto.Command{Type: pilotdto.CmdSetCastling, Castling: arg}, nil
	case "depth", "movetime", "nodes":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return pilotdto.Command{}, fmt.Errorf("%s wants a positive number, got %q", word, arg)
		}
		c := pilotdto.Command{Type: pilotdto.CmdSetBudget}
		switch word {
		case "depth":
			c.Depth = n
		case "movetime":
			c.MoveTimeMS = n
		default:
			c.Nodes = n
		}
		return c, nil
	}
	return pilotdto.Command{Type: word}, nil
}
