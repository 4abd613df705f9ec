// Package monitor turns gate and voltage outputs into an audible stereo
// signal: each rising gate edge is a short panned click and voltage channel
// 0 drives a tone at 1 V per octave.
package monitor

import (
	"math"
	"strconv"
)

// GateThreshold is the level above which a gate counts as high.
const GateThreshold = 1.0

type Params struct {
	// BaseHz is the tone pitch at 0 V.
	BaseHz       float64
	ToneWave     Waveform
	ToneLevel    float64
	ClickHz      float64
	ClickWave    Waveform
	ClickLevel   float64
	ClickDecayMs float64
}

func DefaultParams() Params {
	return Params{
		BaseHz:       55,
		ToneWave:     WaveTriangle,
		ToneLevel:    0.15,
		ClickHz:      1760,
		ClickWave:    WaveSine,
		ClickLevel:   0.5,
		ClickDecayMs: 15,
	}
}

type click struct {
	osc   *Oscillator
	env   float64
	left  float64
	right float64
}

type Monitor struct {
	sampleRate float64
	params     Params
	decay      float64
	tone       *Oscillator
	clicks     []click
	high       []bool
}

func New(sampleRate float64, numGates int, params Params) *Monitor {
	m := &Monitor{
		sampleRate: sampleRate,
		params:     params,
		tone:       NewOscillator(params.ToneWave, "tone"),
		clicks:     make([]click, numGates),
		high:       make([]bool, numGates),
	}
	if params.ClickDecayMs > 0 && sampleRate > 0 {
		m.decay = math.Exp(-1000 / (params.ClickDecayMs * sampleRate))
	}
	for i := range m.clicks {
		pan := 0.5
		if numGates > 1 {
			pan = float64(i) / float64(numGates-1)
		}
		osc := NewOscillator(params.ClickWave, "click"+strconv.Itoa(i))
		// Spread the clicks a fifth apart so neighbouring gates are distinguishable.
		osc.SetFrequency(params.ClickHz * math.Pow(1.5, float64(i%4)))
		m.clicks[i] = click{
			osc:   osc,
			left:  math.Cos(pan * math.Pi / 2),
			right: math.Sin(pan * math.Pi / 2),
		}
	}
	return m
}

// Render produces one stereo sample for the given outputs.
func (m *Monitor) Render(gates, voltages []float64) (float32, float32) {
	var l, r float64
	for i := range m.clicks {
		c := &m.clicks[i]
		high := i < len(gates) && gates[i] > GateThreshold
		if high && !m.high[i] {
			c.env = 1
			c.osc.Reset()
		}
		m.high[i] = high
		if c.env < 1e-4 {
			c.env = 0
			continue
		}
		v := c.osc.Sample(m.sampleRate) * c.env * m.params.ClickLevel
		l += v * c.left
		r += v * c.right
		c.env *= m.decay
	}
	if len(voltages) > 0 && m.params.ToneLevel > 0 {
		m.tone.SetFrequency(m.params.BaseHz * math.Exp2(voltages[0]))
		v := m.tone.Sample(m.sampleRate) * m.params.ToneLevel
		l += v
		r += v
	}
	return float32(clamp(l)), float32(clamp(r))
}

// ToneFrequency is the pitch chosen for the most recent Render.
func (m *Monitor) ToneFrequency() float64 { return m.tone.Frequency() }

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
