package car

// State is the lateral state machine of a car
// Start/End variants are the merge transitions into and out of the passing lane
type State uint8

const (
	Normal State = iota
	OvertakingLeft
	OvertakingLeftStart
	OvertakingLeftEnd
	OvertakingRight
	OvertakingRightStart
	OvertakingRightEnd
)

func (s State) String() string {
	switch s {
	case Normal:
		return "Normal"
	case OvertakingLeft:
		return "OvertakingLeft"
	case OvertakingLeftStart:
		return "OvertakingLeftStart"
	case OvertakingLeftEnd:
		return "OvertakingLeftEnd"
	case OvertakingRight:
		return "OvertakingRight"
	case OvertakingRightStart:
		return "OvertakingRightStart"
	case OvertakingRightEnd:
		return "OvertakingRightEnd"
	default:
		return "Unknown"
	}
}

// Valid reports whether s is a defined state
func (s State) Valid() bool {
	return s <= OvertakingRightEnd
}

// IsMerging reports whether the car is between two lanes
func (s State) IsMerging() bool {
	switch s {
	case OvertakingLeftStart, OvertakingLeftEnd, OvertakingRightStart, OvertakingRightEnd:
		return true
	}
	return false
}

// IsOvertaking reports whether the car has left its cruising lane
func (s State) IsOvertaking() bool {
	return s != Normal
}

// mergeDir returns the lateral direction of an in-progress merge: +1 left, -1 right, 0 none
func (s State) mergeDir() int {
	switch s {
	case OvertakingLeftStart, OvertakingRightEnd:
		return 1
	case OvertakingRightStart, OvertakingLeftEnd:
		return -1
	}
	return 0
}

// Car is a value type moved between buckets by copy
// Pos is always relative to the segment the car is currently bucketed in
type Car struct {
	ID uint32

	Pos           float64
	Speed         float64
	DesiredSpeed  float64
	OvertakeSpeed float64

	// Lane is the lane the car left; LaneOffset is signed progress toward the merge target, left positive
	Lane       int
	LaneOffset float64
	State      State

	OvertakeTimer float64
	BlockedTimer  float64
}

// Occupies reports whether the car blocks the given lane, counting both lanes during a merge
func (c *Car) Occupies(lane int) bool {
	if lane == c.Lane {
		return true
	}
	dir := c.State.mergeDir()
	return dir != 0 && lane == c.Lane+dir
}

// LateralLane returns the fractional lane coordinate used for rendering
func (c *Car) LateralLane() float64 {
	return float64(c.Lane) + c.LaneOffset
}

// Less orders cars by position along the segment
func Less(a, b *Car) bool {
	return a.Pos < b.Pos
}
