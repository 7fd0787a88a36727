package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/park285/Cheese-boardpilot/internal/boardmap"
	"github.com/park285/Cheese-boardpilot/internal/detect"
	"github.com/park285/Cheese-boardpilot/internal/detect/remote"
	"github.com/park285/Cheese-boardpilot/internal/position"
)

func main() {
	flipped := flag.Bool("flipped", false, "board is shown from black's side")
	conf := flag.Float64("confidence", 0.7, "minimum box confidence")
	flag.Parse()

	endpoint := strings.TrimSpace(os.Getenv("DETECTOR_URL"))
	if endpoint == "" {
		log.Fatal("DETECTOR_URL is required")
	}
	if flag.NArg() != 1 {
		log.Fatal("usage: detectcheck [-flipped] [-confidence 0.7] board.png")
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	img, err := png.Decode(f)
	_ = f.Close()
	if err != nil {
		log.Fatalf("decode png: %v", err)
	}

	client := remote.New(endpoint,
		remote.WithTimeout(8*time.Second),
		remote.WithConfidence(*conf),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	start := time.Now()
	grid, err := client.Detect(ctx, img)
	if err != nil {
		log.Fatalf("detect: %v", err)
	}
	log.Printf("detect ok in %s, image=%v bounds=%v", time.Since(start).Round(time.Millisecond), img.Bounds(), grid.Bounds)

	printGrid(grid)

	o := boardmap.Normal
	if *flipped {
		o = boardmap.Flipped
	}
	b, err := detect.BoardFromGrid(grid, o)
	if err != nil {
		color.New(color.FgRed).Printf("not a valid board: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("placement: %s (%s)\n", b.Placement(), o)
	if !grid.Bounds.Empty() && grid.Bounds.In(img.Bounds()) {
		sq := image.Pt(grid.Bounds.Dx()/8, grid.Bounds.Dy()/8)
		fmt.Printf("square size: %dx%d px\n", sq.X, sq.Y)
	}
}

var (
	whitePiece = color.New(color.FgHiWhite, color.Bold)
	blackPiece = color.New(color.FgHiRed, color.Bold)
	emptyCell  = color.New(color.FgHiBlack)
)

func printGrid(g detect.Grid) {
	for _, row := range g.Cells {
		for _, p := range row {
			switch {
			case p.IsEmpty():
				emptyCell.Print(". ")
			case p.Color() == position.White:
				whitePiece.Print(p.String() + " ")
			default:
				blackPiece.Print(p.String() + " ")
			}
		}
		fmt.Println()
	}
}
