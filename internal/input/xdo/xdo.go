// Package xdo drives a desktop through xdotool and grim/import.
package xdo

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/input"
	"github.com/park285/Cheese-boardpilot/internal/obslog"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CaptureTool selects the screenshot program.
type CaptureTool string

const (
	Grim   CaptureTool = "grim"
	Import CaptureTool = "import"
)

type Backend struct {
	run     Runner
	capture CaptureTool
	logger  *zap.Logger
}

type Option func(*Backend)

func WithRunner(r Runner) Option {
	return func(b *Backend) { b.run = r }
}

func WithCaptureTool(t CaptureTool) Option {
	return func(b *Backend) { b.capture = t }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		run:     execRunner,
		capture: Import,
		logger:  obslog.Named("xdo"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DetectCaptureTool prefers grim on Wayland sessions.
func DetectCaptureTool(waylandDisplay string) CaptureTool {
	if strings.TrimSpace(waylandDisplay) != "" {
		return Grim
	}
	return Import
}

var _ input.Backend = (*Backend)(nil)

func (b *Backend) Click(ctx context.Context, pt image.Point) error {
	_, err := b.run(ctx, "xdotool",
		"mousemove", "--sync", strconv.Itoa(pt.X), strconv.Itoa(pt.Y),
		"click", "1")
	if err != nil {
		return fmt.Errorf("click %v: %w", pt, err)
	}
	return nil
}

func (b *Backend) Capture(ctx context.Context, region image.Rectangle) (image.Image, error) {
	var args []string
	switch b.capture {
	case Grim:
		if !region.Empty() {
			args = append(args, "-g", fmt.Sprintf("%d,%d %dx%d", region.Min.X, region.Min.Y, region.Dx(), region.Dy()))
		}
		args = append(args, "-t", "png", "-")
	default:
		args = append(args, "-window", "root")
		if !region.Empty() {
			args = append(args, "-crop", fmt.Sprintf("%dx%d+%d+%d", region.Dx(), region.Dy(), region.Min.X, region.Min.Y), "+repage")
		}
		args = append(args, "png:-")
	}
	out, err := b.run(ctx, string(b.capture), args...)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	b.logger.Debug("captured", zap.Stringer("region", region), zap.Int("bytes", len(out)))
	return input.Offset(img, region.Min), nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
