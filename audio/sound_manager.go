package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/lixenwraith/vi-highway/engine"
	"github.com/lixenwraith/vi-highway/parameter"
)

const sampleRate = beep.SampleRate(parameter.AudioSampleRate)

// SoundManager plays simulation cues through one mixer
// Every method is a no-op until Initialize succeeds, so a machine without audio runs silent
type SoundManager struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
	muted       bool
	master      float64

	lastCue    time.Time
	now        func() time.Time
	overtaking int // Overtaking count at the previous tick

	// Replaced in tests to capture cues without a speaker
	play func(s beep.Streamer)
}

// NewSoundManager creates a manager at full master volume
func NewSoundManager() *SoundManager {
	sm := &SoundManager{
		mixer:  &beep.Mixer{},
		master: 1.0,
		now:    time.Now,
	}
	sm.play = func(s beep.Streamer) {
		speaker.Lock()
		sm.mixer.Add(s)
		speaker.Unlock()
	}
	return sm
}

// Initialize opens the speaker and starts the mixer
func (sm *SoundManager) Initialize() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	if err := speaker.Init(sampleRate, sampleRate.N(parameter.AudioBufferDuration)); err != nil {
		return err
	}

	speaker.Play(sm.mixer)
	sm.initialized = true
	return nil
}

// Cleanup stops all sounds and closes the speaker
func (sm *SoundManager) Cleanup() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized {
		return
	}

	speaker.Clear()
	speaker.Close()
	sm.initialized = false
}

// ToggleMute flips mute and returns the new state
func (sm *SoundManager) ToggleMute() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.muted = !sm.muted
	return sm.muted
}

func (sm *SoundManager) Muted() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.muted
}

func (sm *SoundManager) SetMuted(muted bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.muted = muted
}

// SetMasterVolume sets the linear gain applied to every cue, clamped to [0, 1]
func (sm *SoundManager) SetMasterVolume(v float64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.master = min(max(v, 0), 1)
}

// OnTick plays the overtake cue when more cars are passing than at the previous tick
// Safe to register as the scheduler's tick callback
func (sm *SoundManager) OnTick(stats engine.TickStats) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	rising := stats.Overtaking > sm.overtaking
	sm.overtaking = stats.Overtaking
	if rising {
		sm.cueLocked(CreateOvertakeCue(sampleRate, sm.master))
	}
}

// PlayHalt plays the halt buzz, bypassing the cue gap
func (sm *SoundManager) PlayHalt() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.initialized || sm.muted {
		return
	}
	sm.lastCue = sm.now()
	sm.play(CreateHaltCue(sampleRate, sm.master))
}

func (sm *SoundManager) cueLocked(s beep.Streamer) {
	if !sm.initialized || sm.muted {
		return
	}
	now := sm.now()
	if now.Sub(sm.lastCue) < parameter.MinCueGap {
		return
	}
	sm.lastCue = now
	sm.play(s)
}
