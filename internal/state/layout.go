package state

import (
	"fmt"
	"image"
)

// Region is a named screen area used to map detection boxes onto slot keys.
type Region struct {
	Key  string
	Rect image.Rectangle
}

// Layout holds the named regions of the game screen. Coordinates assume the
// reference resolution; detections from other resolutions should be scaled
// before lookup.
type Layout struct {
	Width  int
	Height int

	Board []Region // "board/<row>,<col>", 4 rows of 7 hexes
	Bench []Region // "bench/<i>", 9 slots
	Shop  []Region // "shop/<i>", 5 cards
}

// DefaultLayout returns the 1920x1080 region table.
func DefaultLayout() Layout {
	l := Layout{Width: 1920, Height: 1080}

	// Board hexes: 4 rows x 7 columns across the arena center. Odd rows are
	// shifted half a hex to the right.
	const (
		hexW   = 128
		hexH   = 110
		boardX = 480
		boardY = 330
	)
	for row := 0; row < 4; row++ {
		xOff := boardX
		if row%2 == 1 {
			xOff += hexW / 2
		}
		for col := 0; col < 7; col++ {
			x0 := xOff + col*hexW
			y0 := boardY + row*hexH
			l.Board = append(l.Board, Region{
				Key:  fmt.Sprintf("board/%d,%d", row, col),
				Rect: image.Rect(x0, y0, x0+hexW, y0+hexH),
			})
		}
	}

	// Bench: 9 slots along the bottom of the arena.
	const (
		benchW = 116
		benchX = 420
		benchY = 770
		benchH = 96
	)
	for i := 0; i < 9; i++ {
		x0 := benchX + i*benchW
		l.Bench = append(l.Bench, Region{
			Key:  fmt.Sprintf("bench/%d", i),
			Rect: image.Rect(x0, benchY, x0+benchW, benchY+benchH),
		})
	}

	// Shop: 5 cards along the bottom edge.
	const (
		shopW = 194
		shopX = 482
		shopY = 955
		shopH = 120
	)
	for i := 0; i < 5; i++ {
		x0 := shopX + i*shopW
		l.Shop = append(l.Shop, Region{
			Key:  fmt.Sprintf("shop/%d", i),
			Rect: image.Rect(x0, shopY, x0+shopW, shopY+shopH),
		})
	}

	return l
}

// SlotFor maps a detection box to the slot whose region contains its center.
// Shop regions are checked first since they overlap nothing; board before
// bench because their rows never intersect.
func (l Layout) SlotFor(box image.Rectangle) (string, bool) {
	center := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
	for _, group := range [][]Region{l.Shop, l.Board, l.Bench} {
		for _, r := range group {
			if center.In(r.Rect) {
				return r.Key, true
			}
		}
	}
	return "", false
}
