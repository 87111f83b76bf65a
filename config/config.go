package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/highway"
	"github.com/lixenwraith/vi-highway/parameter"
	"github.com/lixenwraith/vi-highway/spawn"
	"github.com/lixenwraith/vi-highway/telemetry"
	"github.com/lixenwraith/vi-highway/track"
)

// Config is the complete simulation setup, one TOML table per section
type Config struct {
	Track     Track     `toml:"track"`
	Ring      Ring      `toml:"ring"`
	Traffic   Traffic   `toml:"traffic"`
	Behavior  Behavior  `toml:"behavior"`
	Engine    Engine    `toml:"engine"`
	Telemetry Telemetry `toml:"telemetry"`
}

type Track struct {
	StraightLength   float64 `toml:"straight_length"`
	CurveRadius      float64 `toml:"curve_radius"`
	StraightSegments int     `toml:"straight_segments"`
	CurveSegments    int     `toml:"curve_segments"`
	Lanes            int     `toml:"lanes"`
	LaneWidth        float64 `toml:"lane_width"`
}

type Ring struct {
	Capacity int `toml:"capacity"`
}

type Traffic struct {
	Cars           int     `toml:"cars"`
	MinSpeed       float64 `toml:"min_speed"`
	MaxSpeed       float64 `toml:"max_speed"`
	OvertakeFactor float64 `toml:"overtake_factor"`
	Seed           uint64  `toml:"seed"`
}

type Behavior struct {
	Accel           float64 `toml:"accel"`
	Decel           float64 `toml:"decel"`
	FollowDistance  float64 `toml:"follow_distance"`
	MinGap          float64 `toml:"min_gap"`
	MergeAhead      float64 `toml:"merge_ahead"`
	MergeBehind     float64 `toml:"merge_behind"`
	BlockedPatience float64 `toml:"blocked_patience"`
	OvertakeTime    float64 `toml:"overtake_time"`
	MergeRate       float64 `toml:"merge_rate"`
}

type Engine struct {
	Workers            int  `toml:"workers"` // 0 = GOMAXPROCS
	TickHz             int  `toml:"tick_hz"`
	CheckOrder         bool `toml:"check_order"`
	SerialInteractions bool `toml:"serial_interactions"`
}

type Telemetry struct {
	DB          string `toml:"db"`       // SQLite path, empty disables recording
	Snapshot    string `toml:"snapshot"` // JSON path written on exit, empty disables
	Restore     string `toml:"restore"`  // JSON snapshot replacing the initial traffic
	RecordEvery int    `toml:"record_every"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Track: Track{
			StraightLength:   parameter.DefaultStraightLength,
			CurveRadius:      parameter.DefaultCurveRadius,
			StraightSegments: parameter.DefaultStraightSegments,
			CurveSegments:    parameter.DefaultCurveSegments,
			Lanes:            parameter.DefaultLanes,
			LaneWidth:        parameter.DefaultLaneWidth,
		},
		Ring: Ring{Capacity: parameter.DefaultBucketCapacity},
		Traffic: Traffic{
			Cars:           parameter.DefaultCars,
			MinSpeed:       parameter.DefaultMinSpeed,
			MaxSpeed:       parameter.DefaultMaxSpeed,
			OvertakeFactor: parameter.DefaultOvertakeFactor,
			Seed:           parameter.DefaultSeed,
		},
		Behavior: Behavior{
			Accel:           parameter.DefaultAccel,
			Decel:           parameter.DefaultDecel,
			FollowDistance:  parameter.DefaultFollowDistance,
			MinGap:          parameter.DefaultMinGap,
			MergeAhead:      parameter.DefaultMergeAhead,
			MergeBehind:     parameter.DefaultMergeBehind,
			BlockedPatience: parameter.DefaultBlockedPatience,
			OvertakeTime:    parameter.DefaultOvertakeTime,
			MergeRate:       parameter.DefaultMergeRate,
		},
		Engine: Engine{TickHz: parameter.DefaultTickHz},
		Telemetry: Telemetry{
			RecordEvery: parameter.DefaultRecordEvery,
		},
	}
}

// Load reads path over the defaults and validates the result
// Unknown keys are rejected so a typo never silently falls back to a default
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", highway.ErrConfiguration, path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result
func Parse(data string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", highway.ErrConfiguration, err)
	}
	if err := checkUndecoded(md); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	sort.Strings(keys)
	return fmt.Errorf("%w: unknown keys %s", highway.ErrConfiguration, strings.Join(keys, ", "))
}

// Validate checks every constraint the ring relies on but cannot enforce at runtime
func (c Config) Validate() error {
	tr, err := track.New(c.TrackParams())
	if err != nil {
		return err
	}

	t, b := c.Traffic, c.Behavior
	switch {
	case c.Ring.Capacity < 1:
		return fmt.Errorf("%w: ring capacity %d", highway.ErrConfiguration, c.Ring.Capacity)
	case c.Engine.TickHz < 1:
		return fmt.Errorf("%w: tick_hz %d", highway.ErrConfiguration, c.Engine.TickHz)
	case t.Cars < 0:
		return fmt.Errorf("%w: cars %d", highway.ErrConfiguration, t.Cars)
	case !(t.MinSpeed >= 0) || t.MinSpeed > t.MaxSpeed:
		return fmt.Errorf("%w: speed range [%v, %v]", highway.ErrConfiguration, t.MinSpeed, t.MaxSpeed)
	case !(t.OvertakeFactor >= 1):
		return fmt.Errorf("%w: overtake_factor %v below 1", highway.ErrConfiguration, t.OvertakeFactor)
	case !(b.MinGap > 0) || b.FollowDistance < b.MinGap:
		return fmt.Errorf("%w: min_gap %v follow_distance %v", highway.ErrConfiguration, b.MinGap, b.FollowDistance)
	case !(b.Accel > 0) || !(b.Decel > 0) || !(b.MergeRate > 0):
		return fmt.Errorf("%w: accel, decel and merge_rate must be positive", highway.ErrConfiguration)
	case b.MergeAhead < 0 || b.MergeBehind < 0 || b.BlockedPatience < 0 || b.OvertakeTime < 0:
		return fmt.Errorf("%w: negative merge window or timer", highway.ErrConfiguration)
	case c.Telemetry.RecordEvery < 1:
		return fmt.Errorf("%w: record_every %d", highway.ErrConfiguration, c.Telemetry.RecordEvery)
	}

	// A car must never cross more than one boundary per tick
	if step := t.MaxSpeed * t.OvertakeFactor / float64(c.Engine.TickHz); step >= tr.Shortest() {
		return fmt.Errorf("%w: per-tick displacement %.3f reaches shortest segment %.3f", highway.ErrConfiguration, step, tr.Shortest())
	}

	// Capacity must hold a fully jammed segment, since buckets never grow
	if jam := c.JamOccupancy(tr); c.Ring.Capacity < jam {
		return fmt.Errorf("%w: capacity %d below jam occupancy %d", highway.ErrConfiguration, c.Ring.Capacity, jam)
	}

	if total := tr.Segments() * c.Ring.Capacity; t.Cars > total {
		return fmt.Errorf("%w: %d cars exceed total capacity %d", highway.ErrConfiguration, t.Cars, total)
	}
	if t.Cars > tr.Segments()*c.JamOccupancy(tr) {
		return fmt.Errorf("%w: %d cars cannot fit the track at min_gap %v", highway.ErrConfiguration, t.Cars, b.MinGap)
	}
	return nil
}

// JamOccupancy is the most cars a segment of tr can hold with every lane packed at min_gap
func (c Config) JamOccupancy(tr *track.Track) int {
	return c.Track.Lanes * (int(math.Ceil(tr.Longest()/c.Behavior.MinGap)) + 1)
}

// TickInterval returns the wall time between ticks
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Engine.TickHz)
}

// Dt returns the simulated seconds per tick
func (c Config) Dt() float64 {
	return 1 / float64(c.Engine.TickHz)
}

func (c Config) TrackParams() track.Params {
	return track.Params{
		StraightLength:   c.Track.StraightLength,
		CurveRadius:      c.Track.CurveRadius,
		StraightSegments: c.Track.StraightSegments,
		CurveSegments:    c.Track.CurveSegments,
		Lanes:            c.Track.Lanes,
		LaneWidth:        c.Track.LaneWidth,
	}
}

func (c Config) SpawnParams() spawn.Params {
	return spawn.Params{
		Lanes:          c.Track.Lanes,
		MinSpeed:       c.Traffic.MinSpeed,
		MaxSpeed:       c.Traffic.MaxSpeed,
		OvertakeFactor: c.Traffic.OvertakeFactor,
		Seed:           c.Traffic.Seed,
	}
}

// CarBehavior builds the default avoidance and merging body
func (c Config) CarBehavior() *car.Behavior {
	b := c.Behavior
	return &car.Behavior{
		Lanes:           c.Track.Lanes,
		Accel:           b.Accel,
		Decel:           b.Decel,
		FollowDistance:  b.FollowDistance,
		MinGap:          b.MinGap,
		MergeAhead:      b.MergeAhead,
		MergeBehind:     b.MergeBehind,
		BlockedPatience: b.BlockedPatience,
		OvertakeTime:    b.OvertakeTime,
	}
}

func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		MergeRate:          c.Behavior.MergeRate,
		CheckOrder:         c.Engine.CheckOrder,
		SerialInteractions: c.Engine.SerialInteractions,
	}
}

// World is everything a runner needs, built from one config
type World struct {
	Track   *track.Track
	Ring    *highway.Ring
	Pool    *engine.Pool
	Sim     *engine.Simulation
	Spawner *spawn.Spawner
}

// Build constructs the track, ring, pool and simulation, then populates the initial traffic
// or restores it from Telemetry.Restore
// The caller owns Pool and must Close it
func (c Config) Build() (*World, error) {
	tr, err := track.New(c.TrackParams())
	if err != nil {
		return nil, err
	}
	ring, err := highway.NewRing(tr.Segments(), c.Ring.Capacity)
	if err != nil {
		return nil, err
	}

	pool := engine.NewPool(c.Engine.Workers)
	sim, err := engine.NewSimulation(ring, tr, c.CarBehavior(), pool, nil, c.EngineOptions())
	if err != nil {
		pool.Close()
		return nil, err
	}

	sp := spawn.New(c.SpawnParams(), pool)
	if err := sim.Mutate(func(r *highway.Ring) error {
		if c.Telemetry.Restore == "" {
			return sp.Populate(r, tr, c.Traffic.Cars)
		}
		snap, err := telemetry.ReadFile(c.Telemetry.Restore)
		if err != nil {
			return err
		}
		if err := snap.Restore(r); err != nil {
			return err
		}
		sp.Adopt(r)
		return nil
	}); err != nil {
		pool.Close()
		return nil, err
	}

	return &World{Track: tr, Ring: ring, Pool: pool, Sim: sim, Spawner: sp}, nil
}
