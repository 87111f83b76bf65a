package parameter

import "time"

// Audio Hardware Settings
const (
	AudioSampleRate = 44100

	// AudioBufferDuration determines latency of the speaker mixer
	AudioBufferDuration = 50 * time.Millisecond
)

// MinCueGap between consecutive cues; bursts of overtakes collapse into one
const MinCueGap = 120 * time.Millisecond

// Overtake Cue: short rising chirp
const (
	OvertakeCueDuration = 90 * time.Millisecond
	OvertakeCueAttack   = 5 * time.Millisecond
	OvertakeCueRelease  = 40 * time.Millisecond
	OvertakeCueFreqLow  = 660.0
	OvertakeCueFreqHigh = 990.0
	OvertakeCueVolume   = 0.25
)

// Halt Cue: low buzz when the simulation stops on an error
const (
	HaltCueDuration = 300 * time.Millisecond
	HaltCueAttack   = 5 * time.Millisecond
	HaltCueRelease  = 120 * time.Millisecond
	HaltCueFreq     = 110.0
	HaltCueVolume   = 0.35
)
