package engine

import (
	"testing"
	"time"
)

type manualTime struct{ t time.Time }

func (m *manualTime) now() time.Time          { return m.t }
func (m *manualTime) advance(d time.Duration) { m.t = m.t.Add(d) }

func TestPausableClockFreezesWhilePaused(t *testing.T) {
	mt := &manualTime{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	pc := newPausableClock(mt.now)
	start := pc.Now()

	mt.advance(time.Second)
	pc.Pause()
	frozen := pc.Now()
	mt.advance(5 * time.Second)

	if got := pc.Now(); !got.Equal(frozen) {
		t.Errorf("Now moved while paused: %v -> %v", frozen, got)
	}

	pc.Resume()
	mt.advance(time.Second)

	if got := pc.Now().Sub(start); got != 2*time.Second {
		t.Errorf("elapsed = %v, want 2s", got)
	}
	if got := pc.TotalPaused(); got != 5*time.Second {
		t.Errorf("TotalPaused = %v, want 5s", got)
	}
}

func TestPausableClockToggle(t *testing.T) {
	pc := NewPausableClock()
	if !pc.Toggle() || !pc.IsPaused() {
		t.Error("first Toggle should pause")
	}
	if pc.Toggle() || pc.IsPaused() {
		t.Error("second Toggle should resume")
	}
	pc.Resume()
	if pc.IsPaused() {
		t.Error("Resume on a running clock should be a no-op")
	}
}
