package track

import (
	"fmt"
	"math"

	"github.com/lixenwraith/vi-highway/highway"
	"github.com/lixenwraith/vi-highway/vmath"
)

// Params describes a rounded-square loop
type Params struct {
	StraightLength   float64
	CurveRadius      float64
	StraightSegments int
	CurveSegments    int
	Lanes            int
	LaneWidth        float64
}

// segment is one bucket's stretch of road in world space
type segment struct {
	start   vmath.Vec2F
	heading float64 // Radians at segment start
	length  float64
	radius  float64 // Zero on straights
}

// Track is a counter-clockwise loop of four straights joined by four quarter-circle curves
// Bucket 0 starts at the bottom-left end of the southern straight heading east
// Lane 0 is the outermost lane; higher lanes sit further left, toward the infield
type Track struct {
	params   Params
	segments []segment
	length   float64
}

// New builds the segment table; every side contributes the same number of segments so the
// total is always even
func New(p Params) (*Track, error) {
	switch {
	case !(p.StraightLength > 0) || !(p.CurveRadius > 0):
		return nil, fmt.Errorf("%w: track straight %v radius %v", highway.ErrConfiguration, p.StraightLength, p.CurveRadius)
	case p.StraightSegments < 1 || p.CurveSegments < 1:
		return nil, fmt.Errorf("%w: track needs at least one straight and one curve segment per side", highway.ErrConfiguration)
	case p.Lanes < 1:
		return nil, fmt.Errorf("%w: track lanes %d", highway.ErrConfiguration, p.Lanes)
	case !(p.LaneWidth > 0):
		return nil, fmt.Errorf("%w: lane width %v", highway.ErrConfiguration, p.LaneWidth)
	case halfWidth(p) >= p.CurveRadius:
		return nil, fmt.Errorf("%w: road half-width %v reaches curve radius %v", highway.ErrConfiguration, halfWidth(p), p.CurveRadius)
	}

	t := &Track{
		params:   p,
		segments: make([]segment, 0, 4*(p.StraightSegments+p.CurveSegments)),
	}

	pos := vmath.Vec2F{X: p.CurveRadius}
	heading := 0.0
	straightLen := p.StraightLength / float64(p.StraightSegments)
	curveLen := math.Pi / 2 * p.CurveRadius / float64(p.CurveSegments)

	for side := 0; side < 4; side++ {
		for i := 0; i < p.StraightSegments; i++ {
			t.add(segment{start: pos, heading: heading, length: straightLen})
			pos = t.centerline(len(t.segments)-1, straightLen)
		}
		for i := 0; i < p.CurveSegments; i++ {
			t.add(segment{start: pos, heading: heading, length: curveLen, radius: p.CurveRadius})
			pos = t.centerline(len(t.segments)-1, curveLen)
			heading += curveLen / p.CurveRadius
		}
	}
	return t, nil
}

func (t *Track) add(s segment) {
	t.segments = append(t.segments, s)
	t.length += s.length
}

func halfWidth(p Params) float64 {
	return float64(p.Lanes) * p.LaneWidth / 2
}

// SegmentLength implements highway.Geometry
func (t *Track) SegmentLength(bucket int) float64 {
	return t.segments[bucket].length
}

// Segments returns the bucket count
func (t *Track) Segments() int {
	return len(t.segments)
}

func (t *Track) Lanes() int {
	return t.params.Lanes
}

// Length returns the centerline length of the whole loop
func (t *Track) Length() float64 {
	return t.length
}

// Shortest returns the smallest segment length
func (t *Track) Shortest() float64 {
	return min(t.params.StraightLength/float64(t.params.StraightSegments),
		math.Pi/2*t.params.CurveRadius/float64(t.params.CurveSegments))
}

// Longest returns the largest segment length
func (t *Track) Longest() float64 {
	return max(t.params.StraightLength/float64(t.params.StraightSegments),
		math.Pi/2*t.params.CurveRadius/float64(t.params.CurveSegments))
}

// Bounds returns the world-space box enclosing every lane
func (t *Track) Bounds() (lo, hi vmath.Vec2F) {
	hw := halfWidth(t.params)
	side := t.params.StraightLength + 2*t.params.CurveRadius
	return vmath.Vec2F{X: -hw, Y: -hw}, vmath.Vec2F{X: side + hw, Y: side + hw}
}

// Heading returns the direction of travel in radians at pos within bucket
func (t *Track) Heading(bucket int, pos float64) float64 {
	s := &t.segments[bucket]
	if s.radius == 0 {
		return s.heading
	}
	return s.heading + pos/s.radius
}

// Point projects a car to world space; lane may be fractional while merging
func (t *Track) Point(bucket int, pos, lane float64) vmath.Vec2F {
	center := t.centerline(bucket, pos)
	lateral := (lane - float64(t.params.Lanes-1)/2) * t.params.LaneWidth
	// Lane 0 is outermost, which on a counter-clockwise loop is to the right
	normal := vmath.V2FLeft(vmath.V2FHeading(t.Heading(bucket, pos)))
	return vmath.V2FAdd(center, vmath.V2FScale(normal, lateral))
}

func (t *Track) centerline(bucket int, pos float64) vmath.Vec2F {
	s := &t.segments[bucket]
	dir := vmath.V2FHeading(s.heading)
	if s.radius == 0 {
		return vmath.V2FAdd(s.start, vmath.V2FScale(dir, pos))
	}
	normal := vmath.V2FLeft(dir)
	center := vmath.V2FAdd(s.start, vmath.V2FScale(normal, s.radius))
	// Rotate the center-to-start radius by the swept angle
	sweep := vmath.V2FHeading(s.heading + pos/s.radius)
	return vmath.V2FSub(center, vmath.V2FScale(vmath.V2FLeft(sweep), s.radius))
}
