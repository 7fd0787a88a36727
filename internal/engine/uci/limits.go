package uci

import (
	"strconv"
	"strings"
	"time"
)

// Limits is the search budget passed through to the "go" command.
type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

func (l Limits) IsZero() bool {
	return l.Depth <= 0 && l.MoveTimeMillis <= 0 && l.NodeCap <= 0
}

func (l Limits) String() string {
	tokens, err := buildGoTokens(l)
	if err != nil {
		return "none"
	}
	return strings.Join(tokens[1:], " ")
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, ErrNoSearchLimits
	}
	return args, nil
}

// FormatGoCommand renders the go command line for l.
func FormatGoCommand(l Limits) (string, error) {
	args, err := buildGoTokens(l)
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}

// computeSearchTimeout derives the await deadline from the budget.
func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		ms := l.MoveTimeMillis + 2000
		return time.Duration(ms) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}
