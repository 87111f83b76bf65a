package highway

import "github.com/lixenwraith/vi-highway/car"

// Cursor walks every car in ring order: bucket 0 first, ascending position within a bucket
// The ring must not be mutated while a cursor is in use
type Cursor struct {
	ring   *Ring
	bucket int
	idx    int
}

// Cursor returns a cursor positioned before the first car
func (r *Ring) Cursor() *Cursor {
	return &Cursor{ring: r}
}

// Next returns the next car and its bucket, or ok=false once the ring is exhausted
func (c *Cursor) Next() (*car.Car, int, bool) {
	for c.bucket < c.ring.Len() {
		b := &c.ring.buckets[c.bucket]
		if c.idx < b.Len() {
			cur := &b.cars[c.idx]
			c.idx++
			return cur, c.bucket, true
		}
		c.bucket++
		c.idx = 0
	}
	return nil, 0, false
}
