package clock

import "math"

// DefaultBPM is used whenever a tempo is unset or non-positive.
const DefaultBPM = 120.0

// BeatsToMs converts a duration in beats to milliseconds at the given tempo.
// One bar of 4/4 at 120 BPM is two seconds, so one "beat" here is a whole note.
// +Inf beats yield +Inf.
func BeatsToMs(beats, bpm float64) float64 {
	if bpm <= 0 || math.IsNaN(bpm) {
		bpm = DefaultBPM
	}
	if math.IsInf(beats, 0) {
		return beats
	}
	return 60000 * beats / (bpm / 4)
}

// FrameDeltaMs is the virtual time that passes per engine tick when the host
// calls the engine once every frameDivider samples.
func FrameDeltaMs(sampleRate float64, frameDivider int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	if frameDivider <= 0 {
		frameDivider = 1
	}
	return 1000 / (sampleRate / float64(frameDivider))
}
