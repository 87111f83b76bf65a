package render

import (
	"github.com/gdamore/tcell/v2"

	"github.com/lixenwraith/vi-highway/car"
)

// RGB color definitions
var (
	RgbBackground = tcell.NewRGBColor(26, 27, 38)    // Tokyo Night background
	RgbRoad       = tcell.NewRGBColor(60, 62, 80)    // Dim lane marks
	RgbBoundary   = tcell.NewRGBColor(110, 110, 130) // Segment boundary ticks

	RgbCarNormal     = tcell.NewRGBColor(0, 200, 0)     // Cruising
	RgbCarOvertaking = tcell.NewRGBColor(255, 255, 0)   // Holding the passing lane
	RgbCarMergeOut   = tcell.NewRGBColor(0, 200, 200)   // Pulling out to pass
	RgbCarMergeBack  = tcell.NewRGBColor(255, 120, 200) // Returning to the source lane
	RgbCarBlocked    = tcell.NewRGBColor(255, 80, 80)   // Stuck behind a leader

	RgbStatusBar    = tcell.NewRGBColor(135, 206, 250) // Light sky blue
	RgbStatusPaused = tcell.NewRGBColor(255, 165, 0)   // Orange
	RgbStatusError  = tcell.NewRGBColor(200, 50, 50)   // Red
	RgbStatusText   = tcell.NewRGBColor(0, 0, 0)       // Dark text for status
)

var (
	styleBackground = tcell.StyleDefault.Background(RgbBackground)
	styleRoad       = styleBackground.Foreground(RgbRoad)
	styleBoundary   = styleBackground.Foreground(RgbBoundary)
)

// StyleForCar returns the glyph style for a car's state
// A Normal car that has waited behind a leader is drawn as blocked
func StyleForCar(c *car.Car) tcell.Style {
	switch c.State {
	case car.OvertakingLeft, car.OvertakingRight:
		return styleBackground.Foreground(RgbCarOvertaking).Bold(true)
	case car.OvertakingLeftStart, car.OvertakingRightStart:
		return styleBackground.Foreground(RgbCarMergeOut).Bold(true)
	case car.OvertakingLeftEnd, car.OvertakingRightEnd:
		return styleBackground.Foreground(RgbCarMergeBack)
	}
	if c.BlockedTimer > 0 {
		return styleBackground.Foreground(RgbCarBlocked)
	}
	return styleBackground.Foreground(RgbCarNormal)
}
