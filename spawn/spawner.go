package spawn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/highway"
)

// Params configures generated cars
type Params struct {
	Lanes          int
	MinSpeed       float64
	MaxSpeed       float64
	OvertakeFactor float64
	Seed           uint64 // Zero picks a random seed
}

// Spawner creates and removes cars between ticks
// Callers run it inside Simulation.Mutate or before the simulation starts
type Spawner struct {
	params Params
	rng    *rand.Rand
	pool   *engine.Pool
	nextID uint32

	// Reused per-bucket scratch for Populate
	batches [][]car.Car
}

// New creates a spawner; a nil pool writes buckets on the caller
func New(p Params, pool *engine.Pool) *Spawner {
	var rng *rand.Rand
	if p.Seed == 0 {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	} else {
		rng = rand.New(rand.NewPCG(p.Seed, p.Seed))
	}
	if pool == nil {
		pool = engine.NewPool(1)
	}
	return &Spawner{params: p, rng: rng, pool: pool, nextID: 1}
}

// NextID returns the ID the next spawned car will get
func (s *Spawner) NextID() uint32 {
	return s.nextID
}

// Adopt advances ID allocation past every car already on the ring, after a restore
func (s *Spawner) Adopt(r *highway.Ring) {
	cur := r.Cursor()
	for c, _, ok := cur.Next(); ok; c, _, ok = cur.Next() {
		if c.ID >= s.nextID {
			s.nextID = c.ID + 1
		}
	}
}

func (s *Spawner) newCar(pos float64, lane int) car.Car {
	desired := s.params.MinSpeed + s.rng.Float64()*(s.params.MaxSpeed-s.params.MinSpeed)
	c := car.Car{
		ID:            s.nextID,
		Pos:           pos,
		Speed:         desired,
		DesiredSpeed:  desired,
		OvertakeSpeed: desired * s.params.OvertakeFactor,
		Lane:          lane,
	}
	s.nextID++
	return c
}

// Populate spreads n cars over the ring: bucket k gets its even share, spaced along the segment
// and rotated through lanes. Cars are generated in ring order so a seed reproduces the same traffic,
// then each bucket is filled concurrently through its Writer and sorted
// Nothing is written if any bucket would overflow
func (s *Spawner) Populate(r *highway.Ring, g highway.Geometry, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative car count %d", highway.ErrConfiguration, n)
	}
	if n == 0 {
		return nil
	}

	segments := r.Len()
	base, extra := n/segments, n%segments
	share := func(i int) int {
		if i < extra {
			return base + 1
		}
		return base
	}

	for i := 0; i < segments; i++ {
		b := r.Bucket(i)
		if need := b.Len() + share(i); need > b.Cap() {
			return fmt.Errorf("populate: %w: bucket %d needs %d, capacity %d", highway.ErrCapacityExceeded, i, need, b.Cap())
		}
	}

	if cap(s.batches) < segments {
		s.batches = make([][]car.Car, segments)
	}
	s.batches = s.batches[:segments]
	for i := 0; i < segments; i++ {
		k := share(i)
		batch := s.batches[i][:0]
		step := g.SegmentLength(i) / float64(k)
		for j := 0; j < k; j++ {
			batch = append(batch, s.newCar((float64(j)+0.5)*step, (i+j)%s.params.Lanes))
		}
		s.batches[i] = batch
	}

	// Capacity was checked above, so a writer error here means another writer raced us
	errs := make([]error, segments)
	s.pool.For(segments, 1, func(i int) {
		w := r.Writer(i)
		for _, c := range s.batches[i] {
			if err := w.Append(c); err != nil {
				errs[i] = err
				return
			}
		}
		r.Bucket(i).Sort()
	})
	return errors.Join(errs...)
}

// SpawnOne inserts a car in the emptiest bucket, midway between its two widest-spaced neighbours
func (s *Spawner) SpawnOne(r *highway.Ring, g highway.Geometry) (uint32, error) {
	best := 0
	for i := 1; i < r.Len(); i++ {
		if r.Bucket(i).Len() < r.Bucket(best).Len() {
			best = i
		}
	}

	b := r.Bucket(best)
	pos := widestGapMidpoint(b.Cars(), g.SegmentLength(best))
	c := s.newCar(pos, s.rng.IntN(s.params.Lanes))
	if err := b.Append(c); err != nil {
		s.nextID--
		return 0, fmt.Errorf("spawn: %w", err)
	}
	b.Sort()
	return c.ID, nil
}

func widestGapMidpoint(cars []car.Car, length float64) float64 {
	if len(cars) == 0 {
		return length / 2
	}
	prev, bestLo, bestGap := 0.0, 0.0, 0.0
	for _, c := range cars {
		if gap := c.Pos - prev; gap > bestGap {
			bestLo, bestGap = prev, gap
		}
		prev = c.Pos
	}
	if gap := length - prev; gap > bestGap {
		bestLo, bestGap = prev, gap
	}
	return bestLo + bestGap/2
}

// Remove deletes the car with the given ID, keeping its bucket ordered
func (s *Spawner) Remove(r *highway.Ring, id uint32) bool {
	for i := 0; i < r.Len(); i++ {
		b := r.Bucket(i)
		for j := 0; j < b.Len(); j++ {
			if b.At(j).ID == id {
				b.RemoveAt(j)
				return true
			}
		}
	}
	return false
}

// Trim removes cars from the most crowded buckets until at most n remain
// Returns the number removed
func (s *Spawner) Trim(r *highway.Ring, n int) int {
	removed := 0
	for r.Count() > max(n, 0) {
		fullest := 0
		for i := 1; i < r.Len(); i++ {
			if r.Bucket(i).Len() > r.Bucket(fullest).Len() {
				fullest = i
			}
		}
		b := r.Bucket(fullest)
		b.RemoveAt(b.Len() - 1)
		removed++
	}
	return removed
}
