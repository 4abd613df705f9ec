// Package midiexport writes a recorded run as a Standard MIDI File. Each gate
// channel becomes a track of notes and the voltage channels become control
// changes on a shared track.
package midiexport

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/cvseq-go/internal/clock"
)

const (
	TicksPerQuarter = 960

	// BaseNote is the key of gate 0; gate i plays BaseNote+i.
	BaseNote = 36
	// BaseController is the CC number of voltage 0; voltage i uses BaseController+i.
	BaseController = 20
	Velocity       = 100

	// GateThreshold is the level above which a gate counts as high.
	GateThreshold = 1.0
	// MaxCVVolts maps to controller value 127.
	MaxCVVolts = 10.0
)

// Source is a fixed-rate sequence of output frames.
type Source interface {
	Frames() int
	// FrameRate is the number of frames per second.
	FrameRate() float64
	Frame(i int) (gates, voltages []float64)
}

// track accumulates absolute-time events and emits them as deltas.
type track struct {
	smf.Track
	last uint32
}

func (t *track) at(tick uint32, msg midi.Message) {
	if tick < t.last {
		tick = t.last
	}
	t.Add(tick-t.last, msg)
	t.last = tick
}

func (t *track) close(tick uint32) {
	if tick < t.last {
		tick = t.last
	}
	t.Close(tick - t.last)
}

// Build converts src into an SMF at the given tempo.
func Build(src Source, bpm float64) (*smf.SMF, error) {
	if src.FrameRate() <= 0 || math.IsNaN(src.FrameRate()) {
		return nil, errors.Errorf("invalid frame rate %v", src.FrameRate())
	}
	if bpm <= 0 {
		bpm = clock.DefaultBPM
	}
	frames := src.Frames()
	var numGates, numVoltages int
	if frames > 0 {
		g, v := src.Frame(0)
		numGates, numVoltages = len(g), len(v)
	}
	if numGates > 16 {
		return nil, errors.Errorf("%d gate channels do not fit in 16 MIDI channels", numGates)
	}
	msPerQuarter := 60000 / bpm
	tickOf := func(frame int) uint32 {
		ms := float64(frame) * 1000 / src.FrameRate()
		return uint32(math.Round(ms / msPerQuarter * TicksPerQuarter))
	}

	gateTracks := make([]track, numGates)
	cvTrack := &track{}
	high := make([]bool, numGates)
	lastCC := make([]int, numVoltages)
	for i := range lastCC {
		lastCC[i] = -1
	}
	for f := 0; f < frames; f++ {
		gates, voltages := src.Frame(f)
		tick := tickOf(f)
		for i := 0; i < numGates && i < len(gates); i++ {
			on := gates[i] > GateThreshold
			switch {
			case on && !high[i]:
				gateTracks[i].at(tick, midi.NoteOn(uint8(i), uint8(BaseNote+i), Velocity))
			case !on && high[i]:
				gateTracks[i].at(tick, midi.NoteOff(uint8(i), uint8(BaseNote+i)))
			}
			high[i] = on
		}
		for i := 0; i < numVoltages && i < len(voltages); i++ {
			cc := ControllerValue(voltages[i])
			if cc == lastCC[i] {
				continue
			}
			lastCC[i] = cc
			cvTrack.at(tick, midi.ControlChange(0, uint8(BaseController+i), uint8(cc)))
		}
	}

	end := tickOf(frames)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)
	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := s.Add(tempo); err != nil {
		return nil, errors.Wrap(err, "add tempo track")
	}
	for i := range gateTracks {
		t := &gateTracks[i]
		if high[i] {
			t.at(end, midi.NoteOff(uint8(i), uint8(BaseNote+i)))
		}
		t.close(end)
		if err := s.Add(t.Track); err != nil {
			return nil, errors.Wrapf(err, "add gate track %d", i)
		}
	}
	if numVoltages > 0 {
		cvTrack.close(end)
		if err := s.Add(cvTrack.Track); err != nil {
			return nil, errors.Wrap(err, "add cv track")
		}
	}
	return s, nil
}

// Write builds the SMF for src and writes it to w.
func Write(w io.Writer, src Source, bpm float64) error {
	s, err := Build(src, bpm)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		return errors.Wrap(err, "write midi")
	}
	return nil
}

// ControllerValue maps 0..MaxCVVolts onto 0..127, clamping outside values.
func ControllerValue(volts float64) int {
	v := int(math.Round(volts / MaxCVVolts * 127))
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}
