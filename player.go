// Package cvseq plays gate/CV phrases live through the audio device and
// renders them offline to WAV or MIDI.
package cvseq

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	intaudio "github.com/cbegin/cvseq-go/internal/audio"
	"github.com/cbegin/cvseq-go/internal/logger"
	"github.com/cbegin/cvseq-go/internal/monitor"
	"github.com/cbegin/cvseq-go/internal/phrase"
	intseq "github.com/cbegin/cvseq-go/internal/sequencer"
)

// PlaybackEvent carries sequencer events from Watch().
type PlaybackEvent struct {
	Kind int // EventLoopCompleted or EventPlaybackEnded
	// TimeMs is the engine time of the event.
	TimeMs float64
}

const (
	EventLoopCompleted = int(intseq.EventLoopCompleted)
	EventPlaybackEnded = int(intseq.EventPlaybackEnded)
)

// Snapshot is a copy of the engine state taken between audio buffers.
type Snapshot struct {
	TimeMs   float64
	Running  bool
	Halted   bool
	Shift    float64
	Gates    []float64
	Voltages []float64
	// Action is the index of the phrase action the engine is on.
	Action int
	Status string

	// Playing reports whether the audio stream is open and not paused.
	Playing bool
	// Position is the sample the listener hears; Rendered counts the
	// samples already handed to the driver.
	Position int64
	Rendered int64
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	monitor   monitor.Params
	stopAtEnd bool
	frameTap  func(gates, voltages []float64)
	logger    *zap.Logger
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{monitor: monitor.DefaultParams(), stopAtEnd: true}
}

// WithMonitorParams replaces the default click and tone settings.
func WithMonitorParams(params monitor.Params) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.monitor = params
	}
}

// WithStopAtEnd controls whether the audio stream ends when a non-looped
// phrase halts. When false the held outputs keep sounding.
func WithStopAtEnd(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.stopAtEnd = enabled
	}
}

// WithFrameTap installs a callback invoked after every engine tick with the
// host-visible outputs. It runs on the audio thread; keep it brief and do
// not retain the slices.
func WithFrameTap(tap func(gates, voltages []float64)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.frameTap = tap
	}
}

func WithLogger(l *zap.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = l
	}
}

type Player struct {
	mu         sync.Mutex
	sampleRate int
	seq        *intseq.Sequencer
	mon        *monitor.Monitor
	audio      *intaudio.Player
	divider    int
	countdown  int
	shift      float64
	stopAtEnd  bool
	frameTap   func(gates, voltages []float64)
	log        *zap.Logger
	finished   atomic.Bool
	done       chan struct{}
	eventCh    chan PlaybackEvent
	eventChMu  sync.Mutex
}

// source implements SampleSource and FinishingSource for the audio stream.
type source struct{ p *Player }

func (s source) Process(dst []float32) { s.p.process(dst) }

func (s source) Finished() bool { return s.p.stopAtEnd && s.p.finished.Load() }

// NewPlayer builds the sequencer for p and prepares it for sampleRate. No
// audio device is opened until Play.
func NewPlayer(sampleRate int, p phrase.Phrase, cfg intseq.Config, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	pc := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&pc)
	}
	pl := &Player{
		sampleRate: sampleRate,
		stopAtEnd:  pc.stopAtEnd,
		frameTap:   pc.frameTap,
		log:        logger.OrNop(pc.logger),
	}
	seq, err := intseq.NewWithOptions(p, cfg, intseq.Options{
		OnEvent: pl.onEvent,
		Logger:  pl.log,
	})
	if err != nil {
		return nil, err
	}
	seq.Init(float64(sampleRate))
	pl.seq = seq
	pl.divider = seq.Config().FrameDivider
	pl.mon = monitor.New(float64(sampleRate), seq.Config().NumGates, pc.monitor)
	return pl, nil
}

// BuildPlayer is NewPlayer for a phrase produced by fn.
func BuildPlayer(sampleRate int, cfg intseq.Config, fn intseq.BuilderFunc, opts ...PlayerOption) (*Player, error) {
	seq, err := intseq.Build(cfg, fn)
	if err != nil {
		return nil, err
	}
	return NewPlayer(sampleRate, seq.Phrase(), cfg, opts...)
}

// onEvent runs inside Tick, with p.mu held.
func (p *Player) onEvent(e intseq.Event) {
	if e.Kind == intseq.EventPlaybackEnded {
		p.finished.Store(true)
		if p.done != nil {
			close(p.done)
			p.done = nil
		}
	}
	p.sendEvent(PlaybackEvent{Kind: int(e.Kind), TimeMs: e.Time})
}

func (p *Player) process(dst []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		if p.countdown == 0 {
			p.seq.Tick(intseq.HostState{Shift: p.shift})
			if p.frameTap != nil {
				p.frameTap(p.seq.Gates(), p.seq.Voltages())
			}
			p.countdown = p.divider
		}
		p.countdown--
		dst[i], dst[i+1] = p.mon.Render(p.seq.Gates(), p.seq.Voltages())
	}
}

// Play opens the audio stream on first use and starts the engine.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.seq.Running() {
		p.seq.Toggle()
	}
	if p.done == nil && !p.finished.Load() {
		p.done = make(chan struct{})
	}
	if p.audio == nil {
		backend, err := intaudio.NewPlayer(p.sampleRate, source{p: p})
		if err != nil {
			return err
		}
		p.audio = backend
		p.log.Info("playback started", zap.Int("sample_rate", p.sampleRate))
	}
	p.audio.Play()
	return nil
}

// Pause suspends the audio stream; the engine keeps its position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Stop() error {
	p.mu.Lock()
	if p.audio == nil {
		p.mu.Unlock()
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded})
	if done != nil {
		close(done)
	}
	return err
}

// Toggle starts or freezes the engine without touching the audio stream.
func (p *Player) Toggle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq.Toggle()
}

func (p *Player) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq.Restart()
	p.rearm()
}

func (p *Player) RestartAt(label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.seq.RestartAt(label); err != nil {
		return err
	}
	p.rearm()
	return nil
}

// rearm clears the finished state after a restart so the stream keeps going.
func (p *Player) rearm() {
	if p.finished.Swap(false) && p.done == nil {
		p.done = make(chan struct{})
	}
	p.countdown = 0
}

// SetShift sets the channel shift scalar, clamped to [0, 1].
func (p *Player) SetShift(shift float64) {
	if shift < 0 || math.IsNaN(shift) {
		shift = 0
	}
	if shift > 1 {
		shift = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shift = shift
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	action, status := p.seq.Cursor()
	snap := Snapshot{
		TimeMs:   p.seq.Time(),
		Running:  p.seq.Running(),
		Halted:   p.seq.Halted(),
		Shift:    p.shift,
		Gates:    append([]float64(nil), p.seq.Gates()...),
		Voltages: append([]float64(nil), p.seq.Voltages()...),
		Action:   action,
		Status:   status.String(),
	}
	a := p.audio
	p.mu.Unlock()

	// The stream reader takes p.mu while rendering, so the audio player is
	// queried without it.
	if a != nil {
		snap.Playing = a.IsPlaying()
		snap.Position = p.samples(a)
		snap.Rendered = a.Rendered()
	}
	return snap
}

// Labels lists the checkpoints RestartAt accepts.
func (p *Player) Labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq.Labels()
}

func (p *Player) Config() intseq.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq.Config()
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// full; drop
		}
	}
}

// Wait blocks until a non-looped phrase halts or Stop is called. It returns
// immediately when nothing is playing.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events:
//   - EventLoopCompleted: the engine jumped back to the loop start
//   - EventPlaybackEnded: a non-looped phrase halted, or Stop was called
//
// The channel is buffered (cap 8) and events are dropped when it is full.
// Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// PlaybackPosition returns the output position of the audio driver in
// samples, or 0 when not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return p.samples(a)
}

func (p *Player) samples(a *intaudio.Player) int64 {
	return int64(a.Position().Seconds() * float64(p.sampleRate))
}
