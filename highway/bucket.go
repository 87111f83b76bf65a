package highway

import (
	"fmt"
	"sync/atomic"

	"github.com/lixenwraith/vi-highway/car"
)

// Bucket is a fixed-capacity run of cars for one ring segment
// Backing storage is allocated once; length moves within it and never past capacity
// No locking: the tick phases guarantee a single writer per bucket, Writer covers concurrent spawning
type Bucket struct {
	index int
	cars  []car.Car
	n     atomic.Int64
}

// Len returns the number of cars in the bucket
func (b *Bucket) Len() int {
	return int(b.n.Load())
}

// Cap returns the fixed capacity set at ring construction
func (b *Bucket) Cap() int {
	return len(b.cars)
}

// Index returns the bucket's position in the ring
func (b *Bucket) Index() int {
	return b.index
}

func (b *Bucket) Get(i int) car.Car {
	b.checkIndex(i)
	return b.cars[i]
}

func (b *Bucket) Set(i int, c car.Car) {
	b.checkIndex(i)
	b.cars[i] = c
}

// At returns a pointer into bucket storage, valid until the next truncate or transfer
func (b *Bucket) At(i int) *car.Car {
	b.checkIndex(i)
	return &b.cars[i]
}

// Cars returns the live cars as a view over bucket storage
// The view's capacity is clipped so appending to it can never write into the bucket
func (b *Bucket) Cars() []car.Car {
	n := b.Len()
	return b.cars[:n:n]
}

// Truncate shrinks the bucket to n cars
func (b *Bucket) Truncate(n int) {
	if n < 0 || n > b.Len() {
		panic(fmt.Sprintf("highway: truncate bucket %d to %d, length %d", b.index, n, b.Len()))
	}
	b.n.Store(int64(n))
}

// Append adds a car at the tail
// A full bucket returns ErrCapacityExceeded and is left unmodified
func (b *Bucket) Append(c car.Car) error {
	n := b.Len()
	if n >= len(b.cars) {
		return b.capacityError(n + 1)
	}
	b.cars[n] = c
	b.n.Store(int64(n + 1))
	return nil
}

// AppendSlice adds all cars or none
func (b *Bucket) AppendSlice(cs []car.Car) error {
	n := b.Len()
	if n+len(cs) > len(b.cars) {
		return b.capacityError(n + len(cs))
	}
	b.appendUnchecked(cs)
	return nil
}

func (b *Bucket) appendUnchecked(cs []car.Car) {
	n := b.Len()
	copy(b.cars[n:], cs)
	b.n.Store(int64(n + len(cs)))
}

// RemoveAt deletes the car at i, shifting the tail down to keep order
func (b *Bucket) RemoveAt(i int) car.Car {
	b.checkIndex(i)
	n := b.Len()
	removed := b.cars[i]
	copy(b.cars[i:], b.cars[i+1:n])
	b.cars[n-1] = car.Car{}
	b.n.Store(int64(n - 1))
	return removed
}

// Clear empties the bucket without releasing storage
func (b *Bucket) Clear() {
	b.n.Store(0)
}

// Sort restores ascending position order with a stable insertion sort
// Contents are nearly sorted tick to tick, so cost stays close to linear
func (b *Bucket) Sort() {
	cars := b.Cars()
	for i := 1; i < len(cars); i++ {
		t := cars[i]
		j := i - 1
		for j >= 0 && car.Less(&t, &cars[j]) {
			cars[j+1] = cars[j]
			j--
		}
		cars[j+1] = t
	}
}

// Sorted reports whether the bucket is in ascending position order
func (b *Bucket) Sorted() bool {
	return b.firstUnsorted() < 0
}

// firstUnsorted returns the first index whose car is behind its predecessor, or -1
func (b *Bucket) firstUnsorted() int {
	cars := b.Cars()
	for i := 1; i < len(cars); i++ {
		if car.Less(&cars[i], &cars[i-1]) {
			return i
		}
	}
	return -1
}

func (b *Bucket) checkIndex(i int) {
	if i < 0 || i >= b.Len() {
		panic(fmt.Sprintf("highway: bucket %d index %d out of range [0,%d)", b.index, i, b.Len()))
	}
}

func (b *Bucket) capacityError(need int) error {
	return fmt.Errorf("%w: bucket %d needs %d, capacity %d", ErrCapacityExceeded, b.index, need, len(b.cars))
}
