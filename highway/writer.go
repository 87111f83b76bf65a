package highway

import "github.com/lixenwraith/vi-highway/car"

// Writer appends into one bucket from many goroutines at once
// Slots are reserved by bumping the bucket length with CAS, so concurrent writers never share a slot
// Only for spawning between ticks: readers and tick phases must not run while writers are active
type Writer struct {
	b *Bucket
}

// Append reserves the next slot and stores c
// A full bucket returns ErrCapacityExceeded without reserving anything
func (w Writer) Append(c car.Car) error {
	for {
		n := w.b.n.Load()
		if int(n) >= len(w.b.cars) {
			return w.b.capacityError(int(n) + 1)
		}
		if w.b.n.CompareAndSwap(n, n+1) {
			w.b.cars[n] = c
			return nil
		}
	}
}

// Bucket returns the index of the bucket written to
func (w Writer) Bucket() int {
	return w.b.index
}
