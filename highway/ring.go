package highway

import (
	"fmt"

	"github.com/lixenwraith/vi-highway/car"
)

// NoMigration marks a bucket with no car past its segment end this tick
const NoMigration = -1

// Ring owns the buckets of a closed lane loop; the successor of the last bucket is bucket 0
// All storage, including the wraparound staging buffer, is allocated in NewRing
type Ring struct {
	buckets  []Bucket
	cuts     []int
	staging  []car.Car
	capacity int
	migrated int
}

// NewRing allocates segments buckets of fixed capacity
func NewRing(segments, capacity int) (*Ring, error) {
	if segments < 1 {
		return nil, fmt.Errorf("%w: ring needs at least one segment, got %d", ErrConfiguration, segments)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: bucket capacity must be positive, got %d", ErrConfiguration, capacity)
	}

	r := &Ring{
		buckets:  make([]Bucket, segments),
		cuts:     make([]int, segments),
		staging:  make([]car.Car, 0, capacity),
		capacity: capacity,
	}
	for i := range r.buckets {
		r.buckets[i].index = i
		r.buckets[i].cars = make([]car.Car, capacity)
		r.cuts[i] = NoMigration
	}
	return r, nil
}

// Len returns the number of buckets
func (r *Ring) Len() int { return len(r.buckets) }

// Capacity returns the per-bucket capacity
func (r *Ring) Capacity() int { return r.capacity }

func (r *Ring) LastIndex() int { return len(r.buckets) - 1 }

func (r *Ring) IsBucket(i int) bool { return i >= 0 && i < len(r.buckets) }

// Next returns the successor of bucket i in ring order
func (r *Ring) Next(i int) int {
	if i == len(r.buckets)-1 {
		return 0
	}
	return i + 1
}

func (r *Ring) Bucket(i int) *Bucket { return &r.buckets[i] }

// Cut returns the migration cut recorded for bucket i by the last advance, or NoMigration
func (r *Ring) Cut(i int) int { return r.cuts[i] }

// Migrated returns the number of cars moved by the last transfer
func (r *Ring) Migrated() int { return r.migrated }

// Count returns the total number of cars in the ring
func (r *Ring) Count() int {
	total := 0
	for i := range r.buckets {
		total += r.buckets[i].Len()
	}
	return total
}

// Reset empties every bucket and clears pending cuts
func (r *Ring) Reset() {
	for i := range r.buckets {
		r.buckets[i].Clear()
		r.cuts[i] = NoMigration
	}
	r.staging = r.staging[:0]
	r.migrated = 0
}

// Writer returns the concurrent append handle for bucket i
func (r *Ring) Writer(i int) Writer {
	return Writer{b: &r.buckets[i]}
}

// AdvanceBucket moves every car in bucket i forward by speed*dt and records the migration cut
// Cars past segmentLength are rebased into the next segment's frame but stay in place until Transfer
// The cut is the lowest overflowing index; everything from it to the tail migrates, which
// assumes overflowing cars form a suffix of the sorted bucket
// Touches only bucket i and cuts[i]; safe to run for all buckets concurrently
func (r *Ring) AdvanceBucket(i int, segmentLength, dt float64) {
	b := &r.buckets[i]
	cars := b.Cars()

	cut := len(cars)
	for j := range cars {
		c := &cars[j]
		c.Pos += c.Speed * dt
		if c.Pos > segmentLength {
			c.Pos -= segmentLength
			if j < cut {
				cut = j
			}
		}
	}

	if cut == len(cars) {
		cut = NoMigration
	}
	r.cuts[i] = cut
}

// Transfer moves each bucket's suffix past its cut onto the tail of the next bucket
// Must run single-threaded after every AdvanceBucket of the tick has finished
// Destination capacities are checked up front; on ErrCapacityExceeded nothing is moved
func (r *Ring) Transfer() error {
	if err := r.checkTransfer(); err != nil {
		return err
	}

	last := r.LastIndex()
	r.migrated = 0

	// 1. Last bucket's migrants go to bucket 0, park them before bucket 0 is touched
	r.staging = r.staging[:0]
	if cut := r.cuts[last]; cut != NoMigration {
		src := &r.buckets[last]
		r.staging = append(r.staging, src.cars[cut:src.Len()]...)
		r.migrated += src.Len() - cut
		src.Truncate(cut)
		r.cuts[last] = NoMigration
	}

	// 2. Descending, so each destination has already shed its own suffix before receiving
	for i := last - 1; i >= 0; i-- {
		r.moveNext(i, i+1)
	}

	// 3. Unstage onto bucket 0
	r.buckets[0].appendUnchecked(r.staging)
	r.staging = r.staging[:0]

	return nil
}

func (r *Ring) moveNext(src, dst int) {
	cut := r.cuts[src]
	if cut == NoMigration {
		return
	}
	s := &r.buckets[src]
	n := s.Len()
	r.buckets[dst].appendUnchecked(s.cars[cut:n])
	r.migrated += n - cut
	s.Truncate(cut)
	r.cuts[src] = NoMigration
}

// checkTransfer verifies every bucket can hold its kept cars plus its predecessor's migrants
func (r *Ring) checkTransfer() error {
	// A single bucket only hands cars back to itself
	if len(r.buckets) == 1 {
		return nil
	}

	last := r.LastIndex()
	for i := range r.buckets {
		prev := i - 1
		if i == 0 {
			prev = last
		}

		kept := r.buckets[i].Len()
		if cut := r.cuts[i]; cut != NoMigration {
			kept = cut
		}
		incoming := 0
		if cut := r.cuts[prev]; cut != NoMigration {
			incoming = r.buckets[prev].Len() - cut
		}

		if kept+incoming > r.capacity {
			return r.buckets[i].capacityError(kept + incoming)
		}
	}
	return nil
}

// UpdateBucket runs merge progress and avoidance for every car in bucket i
// Reads the first cars of the successor bucket, so the successor must not be written concurrently
func (r *Ring) UpdateBucket(i int, segmentLength, dt, mergeRate float64, mergeLeft bool, behavior Behavior) {
	own := r.buckets[i].Cars()
	next := r.buckets[r.Next(i)].Cars()

	for j := range own {
		c := own[j]
		behavior.MergingMove(&c, mergeRate)
		behavior.Avoidance(&c, j, segmentLength, own, next, mergeLeft, dt)
		own[j] = c
	}
}

// SortBucket restores ascending order in bucket i
func (r *Ring) SortBucket(i int) {
	r.buckets[i].Sort()
}

// Advance is the single-threaded advance, transfer and sort of the whole ring
func (r *Ring) Advance(g Geometry, dt float64) error {
	for i := range r.buckets {
		r.AdvanceBucket(i, g.SegmentLength(i), dt)
	}
	if err := r.Transfer(); err != nil {
		return err
	}
	r.Sort()
	return nil
}

// Update is the single-threaded interaction pass
// Walks buckets from last to first so each bucket sees its successor already updated,
// except bucket N-1 which sees bucket 0 before its update
func (r *Ring) Update(g Geometry, dt, mergeRate float64, mergeLeft bool, behavior Behavior) {
	for i := r.LastIndex(); i >= 0; i-- {
		r.UpdateBucket(i, g.SegmentLength(i), dt, mergeRate, mergeLeft, behavior)
	}
}

// Sort restores ascending order in every bucket
func (r *Ring) Sort() {
	for i := range r.buckets {
		r.buckets[i].Sort()
	}
}

// CheckOrder returns ErrOrderViolation naming the first bucket out of order
func (r *Ring) CheckOrder() error {
	for i := range r.buckets {
		if err := r.CheckBucketOrder(i); err != nil {
			return err
		}
	}
	return nil
}

// CheckBucketOrder returns ErrOrderViolation if bucket i is out of order
func (r *Ring) CheckBucketOrder(i int) error {
	b := &r.buckets[i]
	if j := b.firstUnsorted(); j >= 0 {
		return fmt.Errorf("%w: bucket %d index %d pos %.4f behind %.4f",
			ErrOrderViolation, i, j, b.cars[j].Pos, b.cars[j-1].Pos)
	}
	return nil
}
