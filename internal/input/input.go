// Package input defines the screen capture and click surface the pilot drives.
package input

import (
	"context"
	"image"
	"image/color"
)

// Backend captures screen regions and clicks screen points. Coordinates are
// absolute screen pixels; captured images keep them in their Bounds.
type Backend interface {
	Capture(ctx context.Context, region image.Rectangle) (image.Image, error)
	Click(ctx context.Context, pt image.Point) error
}

// Offset wraps img so that its bounds start at origin.
func Offset(img image.Image, origin image.Point) image.Image {
	if img.Bounds().Min == origin {
		return img
	}
	return &offsetImage{Image: img, delta: img.Bounds().Min.Sub(origin)}
}

type offsetImage struct {
	image.Image
	delta image.Point
}

func (o *offsetImage) Bounds() image.Rectangle {
	return o.Image.Bounds().Sub(o.delta)
}

func (o *offsetImage) At(x, y int) color.Color {
	return o.Image.At(x+o.delta.X, y+o.delta.Y)
}
