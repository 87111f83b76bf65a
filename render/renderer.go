package render

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/highway"
	"github.com/lixenwraith/vi-highway/track"
	"github.com/lixenwraith/vi-highway/vmath"
)

// cellAspect is terminal cell height over width
const cellAspect = 2.0

// HUD is the viewer state shown in the status line
type HUD struct {
	Stats   engine.TickStats
	Workers int
	Paused  bool
	Muted   bool
	Err     error
}

type cell struct{ x, y int }

// Renderer draws a track and its cars onto a tcell screen
// The road layer is rasterized once per screen size
type Renderer struct {
	screen tcell.Screen
	track  *track.Track

	width, height int
	scale         float64
	originX       float64
	originY       float64
	road          []cell
	boundaries    []cell
}

func NewRenderer(screen tcell.Screen, tr *track.Track) *Renderer {
	return &Renderer{screen: screen, track: tr}
}

// Project maps a world point to a screen cell; the last row is reserved for the status line
func (r *Renderer) Project(p vmath.Vec2F) (x, y int) {
	x = int(math.Round(r.originX + p.X*r.scale*cellAspect))
	y = int(math.Round(r.originY - p.Y*r.scale))
	return x, y
}

// resize recomputes the projection and road layer when the screen size changed
func (r *Renderer) resize() {
	w, h := r.screen.Size()
	if w == r.width && h == r.height && r.road != nil {
		return
	}
	r.width, r.height = w, h

	lo, hi := r.track.Bounds()
	span := vmath.V2FSub(hi, lo)
	usableW, usableH := float64(max(w-1, 1)), float64(max(h-2, 1))
	r.scale = min(usableW/(span.X*cellAspect), usableH/span.Y)
	r.originX = -lo.X * r.scale * cellAspect
	r.originY = float64(h-2) + lo.Y*r.scale

	r.road = r.road[:0]
	r.boundaries = r.boundaries[:0]
	seen := make(map[cell]bool)
	lanes := r.track.Lanes()
	for b := 0; b < r.track.Segments(); b++ {
		length := r.track.SegmentLength(b)
		// Sample at half-cell resolution so curves have no gaps
		steps := max(int(math.Ceil(length*r.scale*cellAspect*2)), 1)
		for s := 0; s <= steps; s++ {
			pos := length * float64(s) / float64(steps)
			for _, edge := range []float64{-0.5, float64(lanes) - 0.5} {
				x, y := r.Project(r.track.Point(b, pos, edge))
				c := cell{x, y}
				if !seen[c] {
					seen[c] = true
					r.road = append(r.road, c)
				}
			}
		}
		x, y := r.Project(r.track.Point(b, 0, -0.5))
		r.boundaries = append(r.boundaries, cell{x, y})
	}
}

func (r *Renderer) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.width && y < r.height-1
}

// Draw renders one frame; ring must not be mutated during the call, so pass it from Simulation.View
func (r *Renderer) Draw(ring *highway.Ring, hud HUD) {
	r.resize()
	r.screen.Fill(' ', styleBackground)

	for _, c := range r.road {
		if r.inBounds(c.x, c.y) {
			r.screen.SetContent(c.x, c.y, '·', nil, styleRoad)
		}
	}
	for _, c := range r.boundaries {
		if r.inBounds(c.x, c.y) {
			r.screen.SetContent(c.x, c.y, '+', nil, styleBoundary)
		}
	}

	cur := ring.Cursor()
	for c, b, ok := cur.Next(); ok; c, b, ok = cur.Next() {
		r.drawCar(c, b)
	}

	r.drawStatus(hud)
}

func (r *Renderer) drawCar(c *car.Car, bucket int) {
	p := r.track.Point(bucket, c.Pos, c.LateralLane())
	x, y := r.Project(p)
	if !r.inBounds(x, y) {
		return
	}
	r.screen.SetContent(x, y, Glyph(r.track.Heading(bucket, c.Pos)), nil, StyleForCar(c))
}

// arrows indexed by heading octant, counter-clockwise from east
var arrows = [8]rune{'>', '/', '^', '\\', '<', '/', 'v', '\\'}

// Glyph returns an arrow for a heading in radians
func Glyph(heading float64) rune {
	return arrows[int(math.Round(heading/(math.Pi/4)))&7]
}

func (r *Renderer) drawStatus(hud HUD) {
	bg := RgbStatusBar
	mode := " RUN "
	switch {
	case hud.Err != nil:
		bg, mode = RgbStatusError, " HALT "
	case hud.Paused:
		bg, mode = RgbStatusPaused, " PAUSE "
	}
	style := tcell.StyleDefault.Background(bg).Foreground(RgbStatusText)

	s := hud.Stats
	text := fmt.Sprintf("%stick %d  cars %d  migrated %d  passing %d  merging %d  v %.1f  step %s  workers %d",
		mode, s.Tick, s.Cars, s.Migrated, s.Overtaking, s.Merging, s.MeanSpeed, s.Duration, hud.Workers)
	if hud.Muted {
		text += "  muted"
	}
	if hud.Err != nil {
		text += "  " + hud.Err.Error()
	}

	y := r.height - 1
	x := 0
	for _, ch := range text {
		if x >= r.width {
			break
		}
		r.screen.SetContent(x, y, ch, nil, style)
		x++
	}
	for ; x < r.width; x++ {
		r.screen.SetContent(x, y, ' ', nil, style)
	}
}
