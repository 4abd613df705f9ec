package sequencer

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/cbegin/cvseq-go/internal/clock"
	"github.com/cbegin/cvseq-go/internal/phrase"
)

const (
	DefaultNumGates    = 6
	DefaultNumVoltages = 6

	// GateOn and GateOff are the two gate output levels, in volts.
	GateOn  = 12.0
	GateOff = 0.0
)

// Mode selects how a voltage channel moves between written values.
type Mode int

const (
	// ModeNone steps to each written value and holds it.
	ModeNone Mode = iota
	// ModeLinear ramps between consecutive written values.
	ModeLinear
)

func (m Mode) String() string {
	if m == ModeLinear {
		return "linear"
	}
	return "none"
}

// ParseMode accepts "none" or "linear", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ModeNone, nil
	case "linear":
		return ModeLinear, nil
	}
	return ModeNone, errors.Wrapf(phrase.ErrConstruction, "unknown interpolation mode %q", s)
}

type interpShape int

const (
	shapeAll interpShape = iota
	shapeChannels
	shapeSparse
)

// Interpolation assigns a Mode to every voltage channel. The zero value is
// ModeNone everywhere.
type Interpolation struct {
	shape    interpShape
	mode     Mode
	channels []Mode
	sparse   map[int]Mode
}

// InterpolateAll uses m on every channel.
func InterpolateAll(m Mode) Interpolation {
	return Interpolation{shape: shapeAll, mode: m}
}

// InterpolateChannels lists one mode per channel. It must cover every
// configured voltage channel.
func InterpolateChannels(modes ...Mode) Interpolation {
	return Interpolation{shape: shapeChannels, channels: append([]Mode(nil), modes...)}
}

// InterpolateSparse sets modes for some channels; the rest use ModeNone.
func InterpolateSparse(modes map[int]Mode) Interpolation {
	cp := make(map[int]Mode, len(modes))
	for k, v := range modes {
		cp[k] = v
	}
	return Interpolation{shape: shapeSparse, sparse: cp}
}

// Resolve expands the assignment to exactly n channels.
func (in Interpolation) Resolve(n int) ([]Mode, error) {
	out := make([]Mode, n)
	switch in.shape {
	case shapeAll:
		for i := range out {
			out[i] = in.mode
		}
	case shapeChannels:
		if len(in.channels) < n {
			return nil, errors.Wrapf(phrase.ErrConstruction,
				"wrong interpolation list length %d for %d voltage channels", len(in.channels), n)
		}
		copy(out, in.channels)
	case shapeSparse:
		keys := make([]int, 0, len(in.sparse))
		for k := range in.sparse {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			if k < 0 || k >= n {
				return nil, errors.Wrapf(phrase.ErrConstruction,
					"interpolation channel %d out of range for %d voltage channels", k, n)
			}
			out[k] = in.sparse[k]
		}
	}
	return out, nil
}

// GateProfile picks the default gate length.
type GateProfile int

const (
	GateProfileShort GateProfile = iota // 1/512 beat
	GateProfileLong                     // 1/64 beat
)

// ParseGateProfile accepts "short" or "long".
func ParseGateProfile(s string) (GateProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short", "":
		return GateProfileShort, nil
	case "long":
		return GateProfileLong, nil
	}
	return GateProfileShort, errors.Wrapf(phrase.ErrConstruction, "unknown gate profile %q", s)
}

func (g GateProfile) Duration() float64 {
	if g == GateProfileLong {
		return phrase.LongGateDuration
	}
	return phrase.ShortGateDuration
}

// ChannelShift rotates the host-visible outputs by whole blocks of Block
// channels, selected by HostState.Shift.
type ChannelShift struct {
	Enabled bool
	Block   int
}

// Config describes one sequencer instance. Zero fields take defaults.
type Config struct {
	BPM              float64
	Looped           bool
	RunningByDefault bool
	NumGates         int
	NumVoltages      int
	Interpolation    Interpolation
	// FrameDivider is the number of host samples between Tick calls.
	FrameDivider int
	GateProfile  GateProfile
	ChannelShift ChannelShift
}

func (c Config) withDefaults() (Config, error) {
	if c.NumGates < 0 || c.NumVoltages < 0 {
		return c, errors.Wrapf(phrase.ErrConstruction, "channel counts must be positive (gates=%d voltages=%d)", c.NumGates, c.NumVoltages)
	}
	if c.BPM <= 0 {
		c.BPM = clock.DefaultBPM
	}
	if c.NumGates == 0 {
		c.NumGates = DefaultNumGates
	}
	if c.NumVoltages == 0 {
		c.NumVoltages = DefaultNumVoltages
	}
	if c.FrameDivider <= 0 {
		c.FrameDivider = 1
	}
	return c, nil
}

// Kit returns the phrase constructors matching this configuration.
func (c Config) Kit() phrase.Kit {
	c, _ = c.withDefaults()
	return phrase.Kit{
		GateDuration: c.GateProfile.Duration(),
		NumGates:     c.NumGates,
		NumVoltages:  c.NumVoltages,
	}
}
