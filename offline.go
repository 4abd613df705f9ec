package cvseq

import (
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/cbegin/cvseq-go/internal/midiexport"
	"github.com/cbegin/cvseq-go/internal/phrase"
	intseq "github.com/cbegin/cvseq-go/internal/sequencer"
)

// FullScaleVolts is the level written as full scale in WAV exports.
const FullScaleVolts = 12.0

// RecordedEvent is a sequencer event stamped with the frame it occurred in.
type RecordedEvent struct {
	Kind  intseq.EventKind
	Frame int
}

// Recording holds one frame of outputs per engine tick.
type Recording struct {
	// TickRate is the number of frames per second.
	TickRate    float64
	BPM         float64
	NumGates    int
	NumVoltages int
	Events      []RecordedEvent

	gates    []float64
	voltages []float64
}

// Render runs p offline for the given duration, ticking the engine the way
// a host at sampleRate would. The engine is started regardless of
// cfg.RunningByDefault.
func Render(p phrase.Phrase, cfg intseq.Config, sampleRate int, seconds float64) (*Recording, error) {
	return RenderWithHost(p, cfg, sampleRate, seconds, nil)
}

// RenderWithHost is Render with a per-frame host state, used to automate
// the channel shift.
func RenderWithHost(p phrase.Phrase, cfg intseq.Config, sampleRate int, seconds float64, host func(frame int) intseq.HostState) (*Recording, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, errors.Errorf("invalid duration %v", seconds)
	}
	rec := &Recording{}
	frame := 0
	cfg.RunningByDefault = true
	seq, err := intseq.NewWithOptions(p, cfg, intseq.Options{
		OnEvent: func(e intseq.Event) {
			rec.Events = append(rec.Events, RecordedEvent{Kind: e.Kind, Frame: frame})
		},
	})
	if err != nil {
		return nil, err
	}
	seq.Init(float64(sampleRate))

	resolved := seq.Config()
	rec.TickRate = float64(sampleRate) / float64(resolved.FrameDivider)
	rec.BPM = resolved.BPM
	rec.NumGates = resolved.NumGates
	rec.NumVoltages = resolved.NumVoltages

	frames := int(seconds * rec.TickRate)
	rec.gates = make([]float64, 0, frames*rec.NumGates)
	rec.voltages = make([]float64, 0, frames*rec.NumVoltages)
	for ; frame < frames; frame++ {
		var hs intseq.HostState
		if host != nil {
			hs = host(frame)
		}
		seq.Tick(hs)
		rec.gates = append(rec.gates, seq.Gates()...)
		rec.voltages = append(rec.voltages, seq.Voltages()...)
	}
	return rec, nil
}

func (r *Recording) Frames() int {
	if r.NumGates > 0 {
		return len(r.gates) / r.NumGates
	}
	if r.NumVoltages > 0 {
		return len(r.voltages) / r.NumVoltages
	}
	return 0
}

func (r *Recording) FrameRate() float64 { return r.TickRate }

// Frame returns views of the outputs at frame i. Do not modify them.
func (r *Recording) Frame(i int) (gates, voltages []float64) {
	return r.gates[i*r.NumGates : (i+1)*r.NumGates], r.voltages[i*r.NumVoltages : (i+1)*r.NumVoltages]
}

// WriteWAV encodes the recording as 24-bit PCM at the tick rate, gates
// first then voltages, one WAV channel per output.
func (r *Recording) WriteWAV(w io.WriteSeeker) error {
	channels := r.NumGates + r.NumVoltages
	if channels == 0 {
		return errors.New("recording has no channels")
	}
	sr := int(math.Round(r.TickRate))
	if sr <= 0 {
		return errors.Errorf("invalid tick rate %v", r.TickRate)
	}
	const bitDepth = 24
	scale := float64(int(1)<<(bitDepth-1) - 1)

	frames := r.Frames()
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sr,
		},
		Data:           make([]int, 0, frames*channels),
		SourceBitDepth: bitDepth,
	}
	for i := 0; i < frames; i++ {
		gates, voltages := r.Frame(i)
		for _, v := range gates {
			buf.Data = append(buf.Data, pcm(v, scale))
		}
		for _, v := range voltages {
			buf.Data = append(buf.Data, pcm(v, scale))
		}
	}

	enc := wav.NewEncoder(w, sr, bitDepth, channels, 1)
	if err := enc.Write(buf); err != nil {
		return errors.Wrap(err, "encode wav")
	}
	return errors.Wrap(enc.Close(), "finish wav")
}

// WriteMIDI exports the recording as a Standard MIDI File.
func (r *Recording) WriteMIDI(w io.Writer) error {
	return midiexport.Write(w, r, r.BPM)
}

func pcm(volts, scale float64) int {
	v := volts / FullScaleVolts
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * scale))
}
