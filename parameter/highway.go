package parameter

import "time"

// Track Geometry Defaults
const (
	// DefaultStraightLength is the centerline length of each of the four straights
	DefaultStraightLength = 120.0

	// DefaultCurveRadius is the centerline radius of each quarter-circle curve
	DefaultCurveRadius = 30.0

	// DefaultStraightSegments is buckets per straight
	DefaultStraightSegments = 6

	// DefaultCurveSegments is buckets per curve
	DefaultCurveSegments = 3

	DefaultLanes     = 3
	DefaultLaneWidth = 3.5
)

// DefaultBucketCapacity is the fixed car capacity of every bucket
// Must cover a full jam: lanes * (longest segment / min gap + 1)
const DefaultBucketCapacity = 256

// Traffic Defaults
const (
	DefaultCars = 120

	// Desired speeds are drawn uniformly from [DefaultMinSpeed, DefaultMaxSpeed], units per second
	DefaultMinSpeed = 18.0
	DefaultMaxSpeed = 32.0

	// DefaultOvertakeFactor scales desired speed while in the passing lane
	DefaultOvertakeFactor = 1.25

	DefaultSeed = 1
)

// Car Behavior Defaults
const (
	DefaultAccel = 4.0
	DefaultDecel = 10.0

	// DefaultFollowDistance is the gap at which a car starts matching its leader
	DefaultFollowDistance = 12.0

	// DefaultMinGap is the gap inside which a car never outruns its leader
	DefaultMinGap = 5.0

	// Merge window along the target lane, relative to the merging car
	DefaultMergeAhead  = 8.0
	DefaultMergeBehind = 10.0

	// DefaultBlockedPatience is seconds blocked before seeking to overtake
	DefaultBlockedPatience = 1.0

	// DefaultOvertakeTime is seconds held in the passing lane before merging back
	DefaultOvertakeTime = 4.0

	// DefaultMergeRate is lane widths per second of lateral travel
	DefaultMergeRate = 1.5
)

// Engine Timing
const (
	// DefaultTickHz is simulation ticks per second; dt is 1/DefaultTickHz
	DefaultTickHz = 30

	// FrameUpdateInterval is the viewer redraw interval (~30 FPS)
	FrameUpdateInterval = 33 * time.Millisecond

	// DefaultBenchTicks is the headless run length
	DefaultBenchTicks = 3000

	// DefaultRecordEvery is ticks between telemetry rows
	DefaultRecordEvery = 10
)
