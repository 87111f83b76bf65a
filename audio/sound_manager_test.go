package audio

import (
	"testing"
	"time"

	"github.com/gopxl/beep"

	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/parameter"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

// newTestManager returns a manager that counts cues instead of opening a speaker
func newTestManager() (*SoundManager, *fakeClock, *int) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	played := 0
	sm := NewSoundManager()
	sm.initialized = true
	sm.now = clock.now
	sm.play = func(beep.Streamer) { played++ }
	return sm, clock, &played
}

func TestUninitializedManagerIsSilent(t *testing.T) {
	sm := NewSoundManager()
	played := 0
	sm.play = func(beep.Streamer) { played++ }

	sm.OnTick(engine.TickStats{Overtaking: 3})
	sm.PlayHalt()
	sm.Cleanup()

	if played != 0 {
		t.Errorf("played %d cues before Initialize, want 0", played)
	}
}

func TestOvertakeCueOnRisingCount(t *testing.T) {
	sm, clock, played := newTestManager()

	steps := []struct {
		overtaking int
		want       int
	}{
		{0, 0},
		{2, 1}, // Rise
		{2, 1}, // Steady
		{1, 1}, // Fall
		{3, 2}, // Rise again
	}
	for i, s := range steps {
		sm.OnTick(engine.TickStats{Overtaking: s.overtaking})
		if *played != s.want {
			t.Errorf("step %d: played = %d, want %d", i, *played, s.want)
		}
		clock.advance(time.Second)
	}
}

func TestCueGap(t *testing.T) {
	sm, clock, played := newTestManager()

	sm.OnTick(engine.TickStats{Overtaking: 1})
	clock.advance(parameter.MinCueGap / 2)
	sm.OnTick(engine.TickStats{Overtaking: 2})
	if *played != 1 {
		t.Errorf("played = %d inside the cue gap, want 1", *played)
	}

	clock.advance(parameter.MinCueGap)
	sm.OnTick(engine.TickStats{Overtaking: 3})
	if *played != 2 {
		t.Errorf("played = %d after the gap, want 2", *played)
	}

	// Halt ignores the gap
	sm.PlayHalt()
	if *played != 3 {
		t.Errorf("played = %d after halt, want 3", *played)
	}
}

func TestMute(t *testing.T) {
	sm, clock, played := newTestManager()

	if !sm.ToggleMute() {
		t.Fatal("ToggleMute() = false, want true")
	}
	sm.OnTick(engine.TickStats{Overtaking: 1})
	sm.PlayHalt()
	if *played != 0 {
		t.Errorf("played %d cues while muted", *played)
	}

	sm.SetMuted(false)
	clock.advance(time.Second)
	sm.OnTick(engine.TickStats{Overtaking: 2})
	if *played != 1 {
		t.Errorf("played = %d after unmute, want 1", *played)
	}

	sm.SetMasterVolume(3)
	if sm.master != 1 {
		t.Errorf("master = %v, want clamp to 1", sm.master)
	}
}
