package car

import "math"

// Behavior holds the tuning of the default car body
// Lane 0 is the rightmost lane; lane indices grow to the left
type Behavior struct {
	Lanes int

	Accel float64 // speed gained per second
	Decel float64 // speed shed per second

	// FollowDistance is the gap inside which a car matches its leader's speed
	FollowDistance float64
	// MinGap is the gap inside which a car never outruns its leader
	MinGap float64

	// Window around a car that must be empty in the destination lane before merging
	MergeAhead  float64
	MergeBehind float64

	BlockedPatience float64 // seconds blocked before seeking an overtake
	OvertakeTime    float64 // seconds spent in the passing lane before seeking to merge back
}

// MergingMove advances lateral merge progress by rate lane widths
// A completed merge commits the lane change and leaves the transitional state
func (b *Behavior) MergingMove(c *Car, rate float64) {
	dir := c.State.mergeDir()
	if dir == 0 {
		return
	}

	c.LaneOffset += float64(dir) * rate
	if math.Abs(c.LaneOffset) < 1 {
		return
	}

	c.Lane += dir
	c.LaneOffset = 0
	switch c.State {
	case OvertakingLeftStart:
		c.State = OvertakingLeft
		c.OvertakeTimer = b.OvertakeTime
	case OvertakingRightStart:
		c.State = OvertakingRight
		c.OvertakeTimer = b.OvertakeTime
	default:
		c.State = Normal
		c.OvertakeTimer = 0
	}
}

// Avoidance adjusts speed for the car ahead and drives overtaking decisions
// own is the car's bucket with the car at idx; next is the following bucket in ring order
// Neighbors are never read beyond these two buckets
func (b *Behavior) Avoidance(c *Car, idx int, segmentLength float64, own, next []Car, mergeLeft bool, dt float64) {
	leader, dist, found := b.leader(c, idx, segmentLength, own, next)

	target := c.DesiredSpeed
	if c.State.IsOvertaking() {
		target = c.OvertakeSpeed
	}

	blocked := false
	if found && dist < b.FollowDistance && leader.Speed < target {
		target = leader.Speed
		blocked = true
	}

	c.Speed = approach(c.Speed, target, b.Accel*dt, b.Decel*dt)
	if found && dist < b.MinGap && c.Speed > leader.Speed {
		c.Speed = leader.Speed
	}
	if c.Speed < 0 {
		c.Speed = 0
	}

	switch c.State {
	case Normal:
		if !blocked {
			c.BlockedTimer = 0
			return
		}
		c.BlockedTimer += dt
		if c.BlockedTimer < b.BlockedPatience {
			return
		}

		// Alternating preference keeps neighbours from all diving into the same lane
		dirs := [2]int{-1, 1}
		if mergeLeft {
			dirs = [2]int{1, -1}
		}
		for _, dir := range dirs {
			if !b.laneClear(c, c.Lane+dir, idx, segmentLength, own, next) {
				continue
			}
			c.BlockedTimer = 0
			if dir > 0 {
				c.State = OvertakingLeftStart
			} else {
				c.State = OvertakingRightStart
			}
			return
		}

	case OvertakingLeft, OvertakingRight:
		c.OvertakeTimer -= dt
		if c.OvertakeTimer > 0 {
			return
		}
		if c.State == OvertakingLeft {
			if b.laneClear(c, c.Lane-1, idx, segmentLength, own, next) {
				c.State = OvertakingLeftEnd
			}
		} else {
			if b.laneClear(c, c.Lane+1, idx, segmentLength, own, next) {
				c.State = OvertakingRightEnd
			}
		}
	}
}

// leader finds the nearest car ahead sharing a lane with c
func (b *Behavior) leader(c *Car, idx int, segmentLength float64, own, next []Car) (Car, float64, bool) {
	for j := idx + 1; j < len(own); j++ {
		if sharesLane(c, &own[j]) {
			return own[j], own[j].Pos - c.Pos, true
		}
	}
	for j := range next {
		if sharesLane(c, &next[j]) {
			return next[j], next[j].Pos + segmentLength - c.Pos, true
		}
	}
	return Car{}, 0, false
}

// laneClear reports whether lane exists and has no car inside the merge window of c
func (b *Behavior) laneClear(c *Car, lane, idx int, segmentLength float64, own, next []Car) bool {
	if lane < 0 || lane >= b.Lanes {
		return false
	}

	lo := c.Pos - b.MergeBehind
	hi := c.Pos + b.MergeAhead

	for j := range own {
		if j == idx {
			continue
		}
		o := &own[j]
		if o.Pos > hi {
			break
		}
		if o.Pos >= lo && o.Occupies(lane) {
			return false
		}
	}
	for j := range next {
		o := &next[j]
		p := o.Pos + segmentLength
		if p > hi {
			break
		}
		if p >= lo && o.Occupies(lane) {
			return false
		}
	}
	return true
}

func sharesLane(c, o *Car) bool {
	if o.Occupies(c.Lane) {
		return true
	}
	dir := c.State.mergeDir()
	return dir != 0 && o.Occupies(c.Lane+dir)
}

func approach(v, target, up, down float64) float64 {
	if v < target {
		return math.Min(target, v+up)
	}
	return math.Max(target, v-down)
}
