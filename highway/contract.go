package highway

import "github.com/lixenwraith/vi-highway/car"

// Geometry supplies the length of each ring segment, stable for the duration of a tick
type Geometry interface {
	SegmentLength(bucket int) float64
}

// Lengths adapts a plain slice to Geometry
type Lengths []float64

func (l Lengths) SegmentLength(bucket int) float64 { return l[bucket] }

// Behavior is the per-car interaction body run during interaction resolution
// Avoidance may read own and next but nothing beyond them; parity scheduling depends on it
type Behavior interface {
	MergingMove(c *car.Car, mergeRate float64)
	Avoidance(c *car.Car, idx int, segmentLength float64, own, next []car.Car, mergeLeft bool, dt float64)
}
