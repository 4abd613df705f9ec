package monitor

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/cvseq-go/internal/rng"
)

// Waveform selects the oscillator shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSaw
	WaveSquare
	WaveTriangle
	WaveNoise
)

var waveNames = map[string]Waveform{
	"sine":     WaveSine,
	"saw":      WaveSaw,
	"square":   WaveSquare,
	"triangle": WaveTriangle,
	"noise":    WaveNoise,
}

// ParseWaveform accepts a waveform name in any case.
func ParseWaveform(s string) (Waveform, error) {
	w, ok := waveNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return WaveTriangle, errors.Errorf("unknown waveform %q", s)
	}
	return w, nil
}

// Oscillator produces one band-unlimited waveform sample per call.
type Oscillator struct {
	freq  float64
	wave  Waveform
	phase float64 // [0, 1)
	held  float64 // noise value, refreshed once per cycle
	noise *rng.Rand
}

func NewOscillator(wave Waveform, seed string) *Oscillator {
	o := &Oscillator{noise: rng.New(seed)}
	o.SetWaveform(wave)
	return o
}

func (o *Oscillator) SetWaveform(wave Waveform) {
	if wave < WaveSine || wave > WaveNoise {
		wave = WaveTriangle
	}
	o.wave = wave
}

// SetFrequency changes the pitch without resetting the phase.
func (o *Oscillator) SetFrequency(hz float64) {
	if hz < 0 || math.IsNaN(hz) {
		hz = 0
	}
	o.freq = hz
}

func (o *Oscillator) Frequency() float64 { return o.freq }

// Sample returns the value at the current phase in [-1, 1] and advances by
// one sample.
func (o *Oscillator) Sample(sampleRate float64) float64 {
	if o.freq == 0 || sampleRate <= 0 {
		return 0
	}
	var v float64
	switch o.wave {
	case WaveSine:
		v = math.Sin(2 * math.Pi * o.phase)
	case WaveSaw:
		v = 1 - 2*o.phase
	case WaveSquare:
		if o.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case WaveNoise:
		v = o.held
	default:
		if o.phase < 0.5 {
			v = 4*o.phase - 1
		} else {
			v = 3 - 4*o.phase
		}
	}

	old := o.phase
	o.phase += o.freq / sampleRate
	o.phase -= math.Floor(o.phase)
	if o.wave == WaveNoise && o.phase < old {
		o.held = o.noise.Float64Range(-1, 1)
	}
	return v
}

// Reset zeros the phase and the held noise value.
func (o *Oscillator) Reset() {
	o.phase = 0
	o.held = 0
}
