package telemetry

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/lixenwraith/vi-highway/car"
	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/highway"
)

func sampleRing(t *testing.T) *highway.Ring {
	t.Helper()
	r, err := highway.NewRing(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	cars := [][]car.Car{
		{{ID: 1, Pos: 1.5, Speed: 10, DesiredSpeed: 10, OvertakeSpeed: 12.5}, {ID: 2, Pos: 7, Speed: 8, Lane: 1}},
		{},
		{{ID: 3, Pos: 2, Speed: 9, Lane: 2, LaneOffset: -0.25, State: car.OvertakingLeftEnd, OvertakeTimer: 0.5}},
		{{ID: 4, Pos: 0.1, BlockedTimer: 0.3}},
	}
	for i, cs := range cars {
		if err := r.Bucket(i).AppendSlice(cs); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

// ============================================================================
// Digest
// ============================================================================

func TestDigestDeterministic(t *testing.T) {
	a, b := sampleRing(t), sampleRing(t)
	if Digest(a) != Digest(b) {
		t.Fatal("identical rings hash differently")
	}
	if len(DigestHex(a)) != 64 {
		t.Errorf("DigestHex length = %d, want 64", len(DigestHex(a)))
	}
}

func TestDigestSensitivity(t *testing.T) {
	base := Digest(sampleRing(t))

	tests := []struct {
		name   string
		mutate func(r *highway.Ring)
	}{
		{"position", func(r *highway.Ring) { r.Bucket(0).At(0).Pos += 1e-12 }},
		{"state", func(r *highway.Ring) { r.Bucket(2).At(0).State = car.Normal }},
		{"lane", func(r *highway.Ring) { r.Bucket(0).At(1).Lane = 0 }},
		{"bucket membership", func(r *highway.Ring) {
			c := r.Bucket(3).RemoveAt(0)
			_ = r.Bucket(1).Append(c)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleRing(t)
			tt.mutate(r)
			if Digest(r) == base {
				t.Error("digest unchanged after mutation")
			}
		})
	}
}

// ============================================================================
// Snapshot
// ============================================================================

func TestSnapshotRestoresExactState(t *testing.T) {
	src := sampleRing(t)
	path := filepath.Join(t.TempDir(), "snap.json")
	if err := WriteFile(path, Capture(src, 42)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	snap, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if snap.Tick != 42 || snap.Capacity != 8 {
		t.Errorf("snapshot header = tick %d capacity %d, want 42 and 8", snap.Tick, snap.Capacity)
	}

	dst, _ := highway.NewRing(4, 8)
	_ = dst.Bucket(1).Append(car.Car{ID: 99})
	if err := snap.Restore(dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if DigestHex(dst) != snap.Digest {
		t.Errorf("restored digest %s, want %s", DigestHex(dst), snap.Digest)
	}
	if dst.Count() != 4 {
		t.Errorf("Count() = %d, want 4", dst.Count())
	}
}

func TestSnapshotRestoreRejects(t *testing.T) {
	snap := Capture(sampleRing(t), 1)

	wrongSize, _ := highway.NewRing(6, 8)
	if err := snap.Restore(wrongSize); !errors.Is(err, highway.ErrConfiguration) {
		t.Errorf("bucket count mismatch err = %v, want ErrConfiguration", err)
	}

	small, _ := highway.NewRing(4, 1)
	_ = small.Bucket(2).Append(car.Car{ID: 7})
	if err := snap.Restore(small); !errors.Is(err, highway.ErrCapacityExceeded) {
		t.Errorf("small ring err = %v, want ErrCapacityExceeded", err)
	}
	if small.Bucket(2).Get(0).ID != 7 {
		t.Error("rejected restore modified the ring")
	}

	unordered := Capture(sampleRing(t), 1)
	unordered.Buckets[0][0].Pos = 100
	r, _ := highway.NewRing(4, 8)
	_ = r.Bucket(3).Append(car.Car{ID: 7})
	if err := unordered.Restore(r); !errors.Is(err, highway.ErrOrderViolation) {
		t.Errorf("unordered snapshot err = %v, want ErrOrderViolation", err)
	}
	if r.Count() != 1 || r.Bucket(3).Get(0).ID != 7 {
		t.Error("unordered snapshot modified the ring")
	}

	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("Decode accepted malformed input")
	}
}

// ============================================================================
// Recorder
// ============================================================================

func TestRecorderSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticks.db")
	rec, err := Open(path, RunInfo{Label: "test", Segments: 4, Capacity: 8, Workers: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 1; i <= recordBatch+10; i++ {
		stats := engine.TickStats{
			Tick:       uint64(i),
			Cars:       10,
			Migrated:   i % 5,
			Overtaking: 1,
			MeanSpeed:  20,
			Duration:   time.Microsecond,
		}
		if err := rec.Record(stats); err != nil {
			t.Fatalf("Record tick %d: %v", i, err)
		}
	}
	if err := rec.Finish("abc"); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	sum, err := rec.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := Summary{
		Ticks:       recordBatch + 10,
		MeanCars:    10,
		MaxMigrated: 4,
		Overtaking:  recordBatch + 10,
		MeanSpeed:   20,
		MeanStep:    time.Microsecond,
		Digest:      "abc",
	}
	if sum != want {
		t.Errorf("Summary() = %+v, want %+v", sum, want)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// A second run in the same file gets its own id and an empty summary
	rec2, err := Open(path, RunInfo{Label: "second", Segments: 4, Capacity: 8, Workers: 1, Serial: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer rec2.Close()
	if rec2.RunID() == rec.RunID() {
		t.Error("second run reused the run id")
	}
	sum2, err := rec2.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if sum2.Ticks != 0 || sum2.Digest != "" {
		t.Errorf("fresh run summary = %+v, want empty", sum2)
	}
}

func TestSnapshotRestoreRejectsBadRecords(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *CarRecord)
	}{
		{"negative pos", func(c *CarRecord) { c.Pos = -1 }},
		{"nan pos", func(c *CarRecord) { c.Pos = math.NaN() }},
		{"negative speed", func(c *CarRecord) { c.Speed = -3 }},
		{"infinite desired speed", func(c *CarRecord) { c.DesiredSpeed = math.Inf(1) }},
		{"unknown state", func(c *CarRecord) { c.State = car.OvertakingRightEnd + 1 }},
		{"negative lane", func(c *CarRecord) { c.Lane = -1 }},
		{"full lane offset", func(c *CarRecord) { c.LaneOffset = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Capture(sampleRing(t), 1)
			tt.mutate(&snap.Buckets[0][0])

			r, _ := highway.NewRing(4, 8)
			_ = r.Bucket(2).Append(car.Car{ID: 7})
			if err := snap.Restore(r); !errors.Is(err, highway.ErrConfiguration) {
				t.Errorf("Restore err = %v, want ErrConfiguration", err)
			}
			if r.Count() != 1 || r.Bucket(2).Get(0).ID != 7 {
				t.Error("rejected restore modified the ring")
			}
		})
	}
}
