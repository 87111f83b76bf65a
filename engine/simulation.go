package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/vi-highway/highway"
	"github.com/lixenwraith/vi-highway/status"
)

// Default batch sizes per phase, in buckets per task
const (
	AdvanceBatch = 8
	UpdateBatch  = 2
	SortBatch    = 4
)

// Options configures a Simulation
type Options struct {
	// MergeRate is lane widths per second; a tick advances merges by dt*MergeRate
	MergeRate float64

	// CheckOrder asserts the sorted-bucket invariant before advance and after sort
	CheckOrder bool

	// SerialInteractions resolves interactions on the calling goroutine
	// Required for rings with an odd bucket count, where parity batches would race
	SerialInteractions bool

	// Batch sizes; zero selects the defaults
	AdvanceBatch int
	UpdateBatch  int
	SortBatch    int
}

// TickStats summarizes one completed step
type TickStats struct {
	Tick       uint64
	Cars       int
	Migrated   int
	Overtaking int
	Merging    int
	MeanSpeed  float64
	Duration   time.Duration
}

type bucketStat struct {
	cars       int
	overtaking int
	merging    int
	speedSum   float64
}

// Simulation advances a ring one tick at a time with a fixed phase order:
// advance (parallel) -> transfer (serial) -> reorder (parallel) -> interactions even/odd (parallel) -> sort (parallel)
// Step, Mutate and View are mutually exclusive
type Simulation struct {
	mu sync.Mutex

	ring     *highway.Ring
	geometry highway.Geometry
	behavior highway.Behavior
	pool     *Pool
	opts     Options

	// Step inputs read by phase workers; written only between batches
	dt        float64
	mergeRate float64
	mergeLeft bool

	// Phase bodies bound once so a step dispatches without allocating closures
	advanceFn func(i int)
	reorderFn func(i int)
	updateFn  func(i int)
	sortFn    func(i int)

	bucketStats []bucketStat
	tick        uint64
	last        TickStats

	// Cached metric pointers
	statusReg      *status.Registry
	statTicks      *atomic.Int64
	statStepNanos  *atomic.Int64
	statCars       *atomic.Int64
	statMigrated   *atomic.Int64
	statOvertaking *atomic.Int64
	statMerging    *atomic.Int64
	statMeanSpeed  *status.AtomicFloat
}

// NewSimulation wires a ring to its geometry, car behavior and worker pool
// An odd ring is rejected unless interactions are serial
func NewSimulation(ring *highway.Ring, geometry highway.Geometry, behavior highway.Behavior, pool *Pool, reg *status.Registry, opts Options) (*Simulation, error) {
	if ring.Len()%2 != 0 && !opts.SerialInteractions {
		return nil, fmt.Errorf("%w: parity scheduling needs an even ring, got %d buckets", highway.ErrConfiguration, ring.Len())
	}
	for i := 0; i < ring.Len(); i++ {
		if l := geometry.SegmentLength(i); !(l > 0) {
			return nil, fmt.Errorf("%w: segment %d length %v", highway.ErrConfiguration, i, l)
		}
	}
	if pool == nil {
		pool = NewPool(1)
	}
	if reg == nil {
		reg = status.NewRegistry()
	}
	if opts.AdvanceBatch < 1 {
		opts.AdvanceBatch = AdvanceBatch
	}
	if opts.UpdateBatch < 1 {
		opts.UpdateBatch = UpdateBatch
	}
	if opts.SortBatch < 1 {
		opts.SortBatch = SortBatch
	}

	s := &Simulation{
		ring:           ring,
		geometry:       geometry,
		behavior:       behavior,
		pool:           pool,
		opts:           opts,
		bucketStats:    make([]bucketStat, ring.Len()),
		statusReg:      reg,
		statTicks:      reg.Ints.Get("engine.ticks"),
		statStepNanos:  reg.Ints.Get("engine.step_ns"),
		statCars:       reg.Ints.Get("highway.cars"),
		statMigrated:   reg.Ints.Get("highway.migrated"),
		statOvertaking: reg.Ints.Get("highway.overtaking"),
		statMerging:    reg.Ints.Get("highway.merging"),
		statMeanSpeed:  reg.Floats.Get("highway.mean_speed"),
	}
	s.advanceFn = s.advanceBucket
	s.reorderFn = s.ring.SortBucket
	s.updateFn = s.updateBucket
	s.sortFn = s.sortBucket

	return s, nil
}

// Step runs one tick; mergeLeft is the caller's alternating lateral bias
// Any error leaves the ring mid-tick and must halt the simulation
func (s *Simulation) Step(dt float64, mergeLeft bool) (TickStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	n := s.ring.Len()

	if s.opts.CheckOrder {
		if err := s.ring.CheckOrder(); err != nil {
			return TickStats{}, fmt.Errorf("before advance: %w", err)
		}
	}

	s.dt = dt
	s.mergeRate = dt * s.opts.MergeRate
	s.mergeLeft = mergeLeft

	// 1. Advance: each worker touches only its own bucket and cut slot
	s.pool.For(n, s.opts.AdvanceBatch, s.advanceFn)

	// 2. Transfer mutates adjacent buckets and the wraparound, single-threaded
	if err := s.ring.Transfer(); err != nil {
		return TickStats{}, fmt.Errorf("transfer: %w", err)
	}
	migrated := s.ring.Migrated()

	// Migrants sit at the tail of their new bucket with small positions; leader and lane
	// scans assume ascending order, so restore it before any interaction reads a bucket
	s.pool.For(n, s.opts.SortBatch, s.reorderFn)
	if s.opts.CheckOrder {
		if err := s.ring.CheckOrder(); err != nil {
			return TickStats{}, fmt.Errorf("before interactions: %w", err)
		}
	}

	// 3. Interactions: bucket i writes itself and reads bucket i+1
	// On an even ring neighbours always differ in parity, so no bucket in a batch is read by
	// another worker of the same batch, and the join between batches orders every read of a
	// bucket against its write. Any change to adjacency or this order voids that argument
	if s.opts.SerialInteractions {
		for i := 0; i < n; i++ {
			s.updateBucket(i)
		}
	} else {
		s.pool.ForParity(n, 0, s.opts.UpdateBatch, s.updateFn)
		s.pool.ForParity(n, 1, s.opts.UpdateBatch, s.updateFn)
	}

	// 4. Sort: self-contained per bucket, any parity; positions are unchanged since the
	// reorder, so this pass keeps the invariant at the tick boundary and gathers stats
	s.pool.For(n, s.opts.SortBatch, s.sortFn)

	if s.opts.CheckOrder {
		if err := s.ring.CheckOrder(); err != nil {
			return TickStats{}, fmt.Errorf("after sort: %w", err)
		}
	}

	s.tick++
	stats := s.collect(migrated, time.Since(start))
	s.last = stats
	s.publish(stats)

	return stats, nil
}

func (s *Simulation) advanceBucket(i int) {
	s.ring.AdvanceBucket(i, s.geometry.SegmentLength(i), s.dt)
}

func (s *Simulation) updateBucket(i int) {
	s.ring.UpdateBucket(i, s.geometry.SegmentLength(i), s.dt, s.mergeRate, s.mergeLeft, s.behavior)
}

// sortBucket also gathers the bucket's stats while its cars are hot
func (s *Simulation) sortBucket(i int) {
	s.ring.SortBucket(i)

	st := bucketStat{}
	for _, c := range s.ring.Bucket(i).Cars() {
		st.cars++
		st.speedSum += c.Speed
		if c.State.IsOvertaking() {
			st.overtaking++
		}
		if c.State.IsMerging() {
			st.merging++
		}
	}
	s.bucketStats[i] = st
}

func (s *Simulation) collect(migrated int, d time.Duration) TickStats {
	stats := TickStats{Tick: s.tick, Migrated: migrated, Duration: d}
	speed := 0.0
	for _, st := range s.bucketStats {
		stats.Cars += st.cars
		stats.Overtaking += st.overtaking
		stats.Merging += st.merging
		speed += st.speedSum
	}
	if stats.Cars > 0 {
		stats.MeanSpeed = speed / float64(stats.Cars)
	}
	return stats
}

func (s *Simulation) publish(stats TickStats) {
	s.statTicks.Store(int64(stats.Tick))
	s.statStepNanos.Store(stats.Duration.Nanoseconds())
	s.statCars.Store(int64(stats.Cars))
	s.statMigrated.Store(int64(stats.Migrated))
	s.statOvertaking.Store(int64(stats.Overtaking))
	s.statMerging.Store(int64(stats.Merging))
	s.statMeanSpeed.Set(stats.MeanSpeed)
}

// Mutate runs spawner or despawner work on the ring between ticks
func (s *Simulation) Mutate(fn func(r *highway.Ring) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.ring); err != nil {
		return err
	}
	if s.opts.CheckOrder {
		if err := s.ring.CheckOrder(); err != nil {
			return fmt.Errorf("after mutate: %w", err)
		}
	}
	s.statCars.Store(int64(s.ring.Count()))
	return nil
}

// View gives read access to a ring that no phase is touching
func (s *Simulation) View(fn func(r *highway.Ring)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.ring)
}

// Tick returns the number of completed steps
func (s *Simulation) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Last returns the stats of the most recent step
func (s *Simulation) Last() TickStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Status returns the metrics registry the simulation publishes to
func (s *Simulation) Status() *status.Registry {
	return s.statusReg
}
