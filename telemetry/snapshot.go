package telemetry

import (
	"fmt"
	"math"
	"os"

	"github.com/sugawarayuuta/sonnet"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/highway"
)

// CarRecord is the on-disk form of one car
type CarRecord struct {
	ID            uint32    `json:"id"`
	Pos           float64   `json:"pos"`
	Speed         float64   `json:"speed"`
	DesiredSpeed  float64   `json:"desired_speed"`
	OvertakeSpeed float64   `json:"overtake_speed"`
	Lane          int       `json:"lane"`
	LaneOffset    float64   `json:"lane_offset"`
	State         car.State `json:"state"`
	OvertakeTimer float64   `json:"overtake_timer"`
	BlockedTimer  float64   `json:"blocked_timer"`
}

// Snapshot is the full ring state at a tick boundary
type Snapshot struct {
	Tick     uint64        `json:"tick"`
	Capacity int           `json:"capacity"`
	Digest   string        `json:"digest"`
	Buckets  [][]CarRecord `json:"buckets"`
}

// Capture copies the ring; call it from Simulation.View or between ticks
func Capture(r *highway.Ring, tick uint64) *Snapshot {
	s := &Snapshot{
		Tick:     tick,
		Capacity: r.Capacity(),
		Digest:   DigestHex(r),
		Buckets:  make([][]CarRecord, r.Len()),
	}
	for i := 0; i < r.Len(); i++ {
		cars := r.Bucket(i).Cars()
		recs := make([]CarRecord, len(cars))
		for j, c := range cars {
			recs[j] = CarRecord(c)
		}
		s.Buckets[i] = recs
	}
	return s
}

// Restore replaces the ring's contents with the snapshot
// The ring must have the same bucket count; capacity may differ as long as every bucket fits
// Every record is validated first, so a rejected snapshot leaves the ring untouched
func (s *Snapshot) Restore(r *highway.Ring) error {
	if len(s.Buckets) != r.Len() {
		return fmt.Errorf("%w: snapshot has %d buckets, ring has %d", highway.ErrConfiguration, len(s.Buckets), r.Len())
	}
	for i, recs := range s.Buckets {
		if len(recs) > r.Capacity() {
			return fmt.Errorf("restore: %w: bucket %d needs %d, capacity %d", highway.ErrCapacityExceeded, i, len(recs), r.Capacity())
		}
		if err := checkRecords(i, recs); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}

	r.Reset()
	for i, recs := range s.Buckets {
		b := r.Bucket(i)
		for _, rec := range recs {
			// Capacity checked above
			_ = b.Append(car.Car(rec))
		}
	}
	return nil
}

// checkRecords rejects a bucket that is out of order or holds a car no tick could produce
func checkRecords(bucket int, recs []CarRecord) error {
	for j := range recs {
		c := &recs[j]
		switch {
		case !finite(c.Pos) || c.Pos < 0:
			return fmt.Errorf("%w: bucket %d car %d pos %v", highway.ErrConfiguration, bucket, c.ID, c.Pos)
		case !finite(c.Speed) || c.Speed < 0 || !finite(c.DesiredSpeed) || !finite(c.OvertakeSpeed):
			return fmt.Errorf("%w: bucket %d car %d speed %v", highway.ErrConfiguration, bucket, c.ID, c.Speed)
		case !c.State.Valid():
			return fmt.Errorf("%w: bucket %d car %d state %d", highway.ErrConfiguration, bucket, c.ID, c.State)
		case c.Lane < 0 || !(math.Abs(c.LaneOffset) < 1):
			return fmt.Errorf("%w: bucket %d car %d lane %d offset %v", highway.ErrConfiguration, bucket, c.ID, c.Lane, c.LaneOffset)
		}
		if j > 0 && c.Pos < recs[j-1].Pos {
			return fmt.Errorf("%w: bucket %d index %d pos %.4f behind %.4f",
				highway.ErrOrderViolation, bucket, j, c.Pos, recs[j-1].Pos)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Encode renders the snapshot as JSON
func Encode(s *Snapshot) ([]byte, error) {
	return sonnet.Marshal(s)
}

// Decode parses a JSON snapshot
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := sonnet.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// WriteFile encodes s to path
func WriteFile(path string, s *Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile decodes a snapshot from path
func ReadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
