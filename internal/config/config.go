// Package config loads sequencer settings from an HCL file:
//
//	bpm           = 128
//	looped        = true
//	running       = true
//	gates         = 6
//	voltages      = 6
//	frame_divider = 1
//	gate_profile  = "short"
//	interpolation = "linear"   # or ["none", "linear"] or { "2" = "linear" }
//	patch         = "four-on-the-floor"
//	seed          = "cvseq"
//
//	channel_shift {
//	  block = 3
//	}
package config

import (
	"os"
	"strconv"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"

	"github.com/cbegin/cvseq-go/internal/sequencer"
)

var ErrConfig = errors.New("invalid config")

// File is a decoded configuration file.
type File struct {
	Sequencer sequencer.Config
	// Patch names a built-in phrase; empty means the caller decides.
	Patch string
	// Seed seeds the random helpers of the patch.
	Seed string
	// HasInterpolation is set when the file names an interpolation.
	HasInterpolation bool
}

type hclChannelShift struct {
	Block   int   `hcl:"block"`
	Enabled *bool `hcl:"enabled,optional"`
}

type hclFile struct {
	BPM           float64          `hcl:"bpm,optional"`
	Looped        bool             `hcl:"looped,optional"`
	Running       bool             `hcl:"running,optional"`
	Gates         int              `hcl:"gates,optional"`
	Voltages      int              `hcl:"voltages,optional"`
	FrameDivider  int              `hcl:"frame_divider,optional"`
	GateProfile   string           `hcl:"gate_profile,optional"`
	Interpolation *cty.Value       `hcl:"interpolation,optional"`
	Patch         string           `hcl:"patch,optional"`
	Seed          string           `hcl:"seed,optional"`
	ChannelShift  *hclChannelShift `hcl:"channel_shift,block"`
}

// Load reads and decodes the file at path.
func Load(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(src, path)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(ErrConfig, "parse %s: %s", filename, diags.Error())
	}
	var raw hclFile
	if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
		return nil, errors.Wrapf(ErrConfig, "decode %s: %s", filename, diags.Error())
	}
	return raw.toFile(filename)
}

func (raw *hclFile) toFile(filename string) (*File, error) {
	if raw.BPM < 0 {
		return nil, errors.Wrapf(ErrConfig, "%s: bpm must not be negative, got %v", filename, raw.BPM)
	}
	if raw.Gates < 0 || raw.Voltages < 0 {
		return nil, errors.Wrapf(ErrConfig, "%s: channel counts must not be negative", filename)
	}
	if raw.FrameDivider < 0 {
		return nil, errors.Wrapf(ErrConfig, "%s: frame_divider must not be negative", filename)
	}
	profile, err := sequencer.ParseGateProfile(raw.GateProfile)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "%s: %v", filename, err)
	}
	cfg := sequencer.Config{
		BPM:              raw.BPM,
		Looped:           raw.Looped,
		RunningByDefault: raw.Running,
		NumGates:         raw.Gates,
		NumVoltages:      raw.Voltages,
		FrameDivider:     raw.FrameDivider,
		GateProfile:      profile,
	}
	if raw.Interpolation != nil {
		in, err := decodeInterpolation(*raw.Interpolation)
		if err != nil {
			return nil, errors.Wrapf(ErrConfig, "%s: interpolation: %v", filename, err)
		}
		cfg.Interpolation = in
	}
	voltages := cfg.NumVoltages
	if voltages == 0 {
		voltages = sequencer.DefaultNumVoltages
	}
	if _, err := cfg.Interpolation.Resolve(voltages); err != nil {
		return nil, errors.Wrapf(ErrConfig, "%s: %v", filename, err)
	}
	if cs := raw.ChannelShift; cs != nil {
		if cs.Block <= 0 {
			return nil, errors.Wrapf(ErrConfig, "%s: channel_shift block must be positive, got %d", filename, cs.Block)
		}
		cfg.ChannelShift = sequencer.ChannelShift{Enabled: cs.Enabled == nil || *cs.Enabled, Block: cs.Block}
	}
	return &File{
		Sequencer:        cfg,
		Patch:            raw.Patch,
		Seed:             raw.Seed,
		HasInterpolation: raw.Interpolation != nil,
	}, nil
}

// decodeInterpolation accepts a mode name for every channel, a list with one
// mode per channel, or an object keyed by channel number.
func decodeInterpolation(v cty.Value) (sequencer.Interpolation, error) {
	if v.IsNull() {
		return sequencer.Interpolation{}, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		m, err := sequencer.ParseMode(v.AsString())
		if err != nil {
			return sequencer.Interpolation{}, err
		}
		return sequencer.InterpolateAll(m), nil

	case ty.IsTupleType() || ty.IsListType():
		var modes []sequencer.Mode
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			m, err := modeOf(ev)
			if err != nil {
				return sequencer.Interpolation{}, err
			}
			modes = append(modes, m)
		}
		return sequencer.InterpolateChannels(modes...), nil

	case ty.IsObjectType() || ty.IsMapType():
		sparse := map[int]sequencer.Mode{}
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			ch, err := strconv.Atoi(kv.AsString())
			if err != nil {
				return sequencer.Interpolation{}, errors.Errorf("channel key %q is not a number", kv.AsString())
			}
			m, err := modeOf(ev)
			if err != nil {
				return sequencer.Interpolation{}, err
			}
			sparse[ch] = m
		}
		return sequencer.InterpolateSparse(sparse), nil
	}
	return sequencer.Interpolation{}, errors.Errorf("unsupported type %s", ty.FriendlyName())
}

func modeOf(v cty.Value) (sequencer.Mode, error) {
	if v.IsNull() || v.Type() != cty.String {
		return sequencer.ModeNone, errors.Errorf("mode must be a string, got %s", v.Type().FriendlyName())
	}
	return sequencer.ParseMode(v.AsString())
}
