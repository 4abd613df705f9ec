package sequencer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cbegin/cvseq-go/internal/clock"
	"github.com/cbegin/cvseq-go/internal/logger"
	"github.com/cbegin/cvseq-go/internal/phrase"
)

var (
	// ErrUnknownCheckpoint is returned by RestartAt for a label the phrase does not define.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint label")

	// ErrInvalidState is the panic value wrapped when the engine meets an
	// action/status pair it has no transition for. It indicates a bug.
	ErrInvalidState = errors.New("invalid sequencer state")
)

// Status is the processing stage of the current action.
type Status int

const (
	StatusNew Status = iota
	StatusProcessing
	StatusProcessed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusProcessing:
		return "processing"
	case StatusProcessed:
		return "processed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// EventKind identifies sequencer lifecycle events.
type EventKind int

const (
	// EventLoopCompleted fires each time the engine jumps back to the loop start.
	EventLoopCompleted EventKind = iota
	// EventPlaybackEnded fires once when a non-looped phrase runs out.
	EventPlaybackEnded
)

// Event is delivered to Options.OnEvent. Time is the engine time in ms at
// which it happened.
type Event struct {
	Kind EventKind
	Time float64
}

// HostState is the per-tick snapshot supplied by the host.
type HostState struct {
	// Shift in [0,1] selects the output block when channel shifting is enabled.
	Shift float64
}

type Options struct {
	OnEvent func(Event)
	Logger  *zap.Logger
}

// Sequencer plays one phrase. It is not safe for concurrent use.
type Sequencer struct {
	phrase  phrase.Phrase
	cfg     Config
	modes   []Mode
	index   *phraseIndex
	log     *zap.Logger
	onEvent func(Event)

	deltaTime float64
	running   bool
	halted    bool

	time         float64
	current      int
	status       Status
	delayUntil   float64
	gates        []float64
	gateOffTimes []float64
	voltages     []float64
	cursors      []int

	host        HostState
	outGates    []float64
	outVoltages []float64
}

func New(p phrase.Phrase, cfg Config) (*Sequencer, error) {
	return NewWithOptions(p, cfg, Options{})
}

// NewWithOptions indexes p and returns an engine positioned at its start.
// Call Init before the first Tick.
func NewWithOptions(p phrase.Phrase, cfg Config, opts Options) (*Sequencer, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	modes, err := cfg.Interpolation.Resolve(cfg.NumVoltages)
	if err != nil {
		return nil, err
	}
	log := logger.OrNop(opts.Logger)
	idx, err := indexPhrase(p, cfg, modes, log)
	if err != nil {
		return nil, err
	}
	s := &Sequencer{
		phrase:       append(phrase.Phrase(nil), p...),
		cfg:          cfg,
		modes:        modes,
		index:        idx,
		log:          log,
		onEvent:      opts.OnEvent,
		running:      cfg.RunningByDefault,
		gates:        make([]float64, cfg.NumGates),
		gateOffTimes: make([]float64, cfg.NumGates),
		voltages:     make([]float64, cfg.NumVoltages),
		cursors:      make([]int, cfg.NumVoltages),
		outGates:     make([]float64, cfg.NumGates),
		outVoltages:  make([]float64, cfg.NumVoltages),
	}
	log.Debug("sequencer built",
		zap.Int("actions", len(p)),
		zap.Float64("beats", p.Duration()),
		zap.Float64("bpm", cfg.BPM),
		zap.Bool("looped", cfg.Looped),
		zap.Int("loop_start", idx.loopStart.index),
		zap.Int("labels", len(idx.labels)),
	)
	return s, nil
}

// Init sets the per-tick time step for the host sample rate and rewinds to
// the loop start.
func (s *Sequencer) Init(sampleRate float64) {
	s.deltaTime = clock.FrameDeltaMs(sampleRate, s.cfg.FrameDivider)
	s.Restart()
}

// Tick advances the engine by one step. It does nothing while stopped.
func (s *Sequencer) Tick(host HostState) {
	if !s.running {
		return
	}
	s.processActions()
	s.processGates()
	s.interpolate()
	s.host = host
	s.publish()
	s.time += s.deltaTime
}

// Gates returns the host-visible gate levels. The slice is reused between ticks.
func (s *Sequencer) Gates() []float64 { return s.outGates }

// Voltages returns the host-visible voltages. The slice is reused between ticks.
func (s *Sequencer) Voltages() []float64 { return s.outVoltages }

// Restart rewinds to the loop start (or the phrase start if there is none).
func (s *Sequencer) Restart() {
	s.restartAt(s.index.loopStart)
}

// RestartAt rewinds to the checkpoint with the given label.
func (s *Sequencer) RestartAt(label string) error {
	pos, ok := s.index.labels[label]
	if !ok {
		return errors.Wrapf(ErrUnknownCheckpoint, "%q", label)
	}
	s.restartAt(pos)
	return nil
}

// Toggle starts or freezes the engine. A frozen engine keeps its outputs.
func (s *Sequencer) Toggle() { s.running = !s.running }

func (s *Sequencer) Running() bool { return s.running }

// Halted reports whether a non-looped phrase has run out.
func (s *Sequencer) Halted() bool { return s.halted }

// Time is the current engine time in ms.
func (s *Sequencer) Time() float64 { return s.time }

func (s *Sequencer) Config() Config { return s.cfg }

func (s *Sequencer) Phrase() phrase.Phrase { return s.phrase }

// LoopBounds returns the action indexes of the loop markers in effect;
// ok is false when the phrase has no LoopEnd.
func (s *Sequencer) LoopBounds() (start, end int, ok bool) {
	return s.index.loopStart.index, s.index.loopEnd.index, s.index.hasLoop
}

// Labels returns the checkpoint labels of the phrase.
func (s *Sequencer) Labels() []string {
	out := make([]string, 0, len(s.index.labels))
	for k := range s.index.labels {
		out = append(out, k)
	}
	return out
}

// Cursor returns the current action index and its status.
func (s *Sequencer) Cursor() (int, Status) { return s.current, s.status }

func (s *Sequencer) restartAt(pos position) {
	s.time = clock.BeatsToMs(pos.beats, s.cfg.BPM)
	s.current = pos.index
	s.status = StatusNew
	s.delayUntil = 0
	s.halted = false
	clear(s.gates)
	clear(s.gateOffTimes)
	clear(s.voltages)
	s.resyncCursors()
	s.publish()
}

func (s *Sequencer) loop() {
	s.restartAt(s.index.loopStart)
	if s.onEvent != nil {
		s.onEvent(Event{Kind: EventLoopCompleted, Time: s.time})
	}
}

func (s *Sequencer) halt() {
	if s.halted {
		return
	}
	s.halted = true
	s.log.Debug("phrase ended", zap.Float64("time_ms", s.time), zap.Int("action", s.current))
	if s.onEvent != nil {
		s.onEvent(Event{Kind: EventPlaybackEnded, Time: s.time})
	}
}

// processActions runs the current action and every following instantaneous
// one until a Delay is pending or the phrase ends.
func (s *Sequencer) processActions() {
	for {
		if s.current >= len(s.phrase) {
			if s.cfg.Looped {
				s.loop()
				continue
			}
			s.halt()
			return
		}
		a := s.phrase[s.current]
		switch s.status {
		case StatusNew:
			switch a.Kind {
			case phrase.KindGate:
				s.gates[a.Index] = GateOn
				s.gateOffTimes[a.Index] = s.time + clock.BeatsToMs(a.Duration, s.cfg.BPM)
				s.status = StatusProcessed
			case phrase.KindVoltage:
				s.voltages[a.Index] = a.Value
				s.status = StatusProcessed
			case phrase.KindDelay:
				s.delayUntil = s.time + clock.BeatsToMs(a.Duration, s.cfg.BPM)
				s.status = StatusProcessing
			case phrase.KindCheckpoint, phrase.KindLoopStart:
				s.status = StatusProcessed
			case phrase.KindLoopEnd:
				if s.cfg.Looped {
					s.loop()
					continue
				}
				s.halt()
				return
			default:
				s.invalid(a)
			}
		case StatusProcessing:
			if a.Kind != phrase.KindDelay {
				s.invalid(a)
			}
			if s.time > s.delayUntil {
				s.status = StatusProcessed
			}
		default:
			s.invalid(a)
		}

		switch s.status {
		case StatusProcessing:
			return
		case StatusProcessed:
			s.current++
			s.status = StatusNew
		default:
			s.invalid(a)
		}
	}
}

func (s *Sequencer) invalid(a phrase.Action) {
	panic(errors.Wrapf(ErrInvalidState, "action %d %s in status %s", s.current, a, s.status))
}

func (s *Sequencer) processGates() {
	for i, off := range s.gateOffTimes {
		if s.time > off {
			s.gates[i] = GateOff
		}
	}
}

// publish copies the internal outputs to the host-visible slices, rotated
// by the channel shift when it is enabled.
func (s *Sequencer) publish() {
	gOff, vOff := 0, 0
	if s.cfg.ChannelShift.Enabled {
		gOff = shiftOffset(s.host.Shift, len(s.gates), s.cfg.ChannelShift.Block)
		vOff = shiftOffset(s.host.Shift, len(s.voltages), s.cfg.ChannelShift.Block)
	}
	rotate(s.outGates, s.gates, gOff)
	rotate(s.outVoltages, s.voltages, vOff)
}

func shiftOffset(shift float64, channels, block int) int {
	if block <= 0 || block >= channels || math.IsNaN(shift) {
		return 0
	}
	blocks := channels / block
	k := int(math.Floor(shift * float64(blocks)))
	if k < 0 {
		k = 0
	}
	if k > blocks-1 {
		k = blocks - 1
	}
	return k * block
}

func rotate(dst, src []float64, offset int) {
	n := len(src)
	for i := range dst {
		dst[i] = src[(i+offset)%n]
	}
}
