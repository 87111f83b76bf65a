package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/highway"
)

func testBehavior() *car.Behavior {
	return &car.Behavior{
		Lanes:           3,
		Accel:           3,
		Decel:           9,
		FollowDistance:  4,
		MinGap:          1.5,
		MergeAhead:      3,
		MergeBehind:     3,
		BlockedPatience: 0.3,
		OvertakeTime:    1.5,
	}
}

func uniformLengths(n int, length float64) highway.Lengths {
	l := make(highway.Lengths, n)
	for i := range l {
		l[i] = length
	}
	return l
}

// populate seeds perBucket cars per bucket at evenly spaced, jittered positions
func populate(t *testing.T, r *highway.Ring, lengths highway.Lengths, perBucket, lanes int, seed uint64) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	id := uint32(0)
	for i := 0; i < r.Len(); i++ {
		step := lengths[i] / float64(perBucket)
		for j := 0; j < perBucket; j++ {
			id++
			speed := 4 + rng.Float64()*8
			c := car.Car{
				ID:            id,
				Pos:           float64(j)*step + rng.Float64()*step*0.5,
				Speed:         speed,
				DesiredSpeed:  speed,
				OvertakeSpeed: speed * 1.3,
				Lane:          rng.IntN(lanes),
			}
			if err := r.Bucket(i).Append(c); err != nil {
				t.Fatalf("populate bucket %d: %v", i, err)
			}
		}
		r.Bucket(i).Sort()
	}
}

func newTestSimulation(t *testing.T, segments, perBucket, workers int, opts Options) *Simulation {
	t.Helper()
	r, err := highway.NewRing(segments, 64)
	if err != nil {
		t.Fatal(err)
	}
	lengths := uniformLengths(segments, 20)
	populate(t, r, lengths, perBucket, 3, 42)

	pool := NewPool(workers)
	t.Cleanup(pool.Close)

	if opts.MergeRate == 0 {
		opts.MergeRate = 2
	}
	sim, err := NewSimulation(r, lengths, testBehavior(), pool, nil, opts)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return sim
}

// snapshotCars copies every car in ring order
func snapshotCars(sim *Simulation) ([]car.Car, []int) {
	var cars []car.Car
	var buckets []int
	sim.View(func(r *highway.Ring) {
		cur := r.Cursor()
		for c, b, ok := cur.Next(); ok; c, b, ok = cur.Next() {
			cars = append(cars, *c)
			buckets = append(buckets, b)
		}
	})
	return cars, buckets
}
