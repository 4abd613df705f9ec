package sequencer

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/cvseq-go/internal/phrase"
	"github.com/cbegin/cvseq-go/internal/rng"
)

func mustOf(t *testing.T, items ...any) phrase.Phrase {
	t.Helper()
	p, err := phrase.Of(items...)
	require.NoError(t, err)
	return p
}

// newRunning builds a running sequencer ticking once per millisecond.
func newRunning(t *testing.T, p phrase.Phrase, cfg Config, opts Options) *Sequencer {
	t.Helper()
	cfg.RunningByDefault = true
	s, err := NewWithOptions(p, cfg, opts)
	require.NoError(t, err)
	s.Init(1000)
	return s
}

func tickN(s *Sequencer, n int, host HostState) {
	for i := 0; i < n; i++ {
		s.Tick(host)
	}
}

func TestSequencerHaltsAtEndOfPhrase(t *testing.T) {
	var events []Event
	s := newRunning(t, mustOf(t, "1", phrase.Voltage(7, 0)), Config{}, Options{
		OnEvent: func(e Event) { events = append(events, e) },
	})

	tickN(s, 1000, HostState{})
	require.Equal(t, 0.0, s.Voltages()[0])
	require.False(t, s.Halted())

	tickN(s, 1100, HostState{})
	require.Equal(t, 7.0, s.Voltages()[0])
	require.True(t, s.Halted())

	tickN(s, 5000, HostState{})
	require.Equal(t, 7.0, s.Voltages()[0])
	require.Len(t, events, 1)
	require.Equal(t, EventPlaybackEnded, events[0].Kind)
}

func TestSequencerLinearMidpoint(t *testing.T) {
	p := mustOf(t, phrase.Voltage(0, 0), "1", phrase.Voltage(10, 0))
	s := newRunning(t, p, Config{Interpolation: InterpolateAll(ModeLinear)}, Options{})

	// The 1001st tick processes t=1000ms, half of the 2000ms beat at 120 BPM.
	tickN(s, 1001, HostState{})
	require.InDelta(t, 5.0, s.Voltages()[0], 1e-9)

	tickN(s, 2000, HostState{})
	require.InDelta(t, 10.0, s.Voltages()[0], 1e-9)
}

func TestSequencerLinearZeroLengthSegmentJumps(t *testing.T) {
	p := mustOf(t, phrase.Voltage(0, 0), phrase.Voltage(10, 0), "1")
	s := newRunning(t, p, Config{Interpolation: InterpolateAll(ModeLinear)}, Options{})
	s.Tick(HostState{})
	require.Equal(t, 10.0, s.Voltages()[0])
}

func TestSequencerStepModeHoldsValue(t *testing.T) {
	p := mustOf(t, phrase.Voltage(2, 1), "1", phrase.Voltage(8, 1), "1")
	s := newRunning(t, p, Config{}, Options{})
	tickN(s, 1500, HostState{})
	require.Equal(t, 2.0, s.Voltages()[1])
	tickN(s, 1000, HostState{})
	require.Equal(t, 8.0, s.Voltages()[1])
}

func TestSequencerFourOnTheFloorLoops(t *testing.T) {
	var loops int
	s := newRunning(t, mustOf(t, phrase.G, "1/4"), Config{Looped: true}, Options{
		OnEvent: func(e Event) {
			if e.Kind == EventLoopCompleted {
				loops++
			}
		},
	})

	s.Tick(HostState{})
	require.Equal(t, GateOn, s.Gates()[0])
	tickN(s, 9, HostState{})
	require.Equal(t, GateOff, s.Gates()[0])

	tickN(s, 2090, HostState{})
	require.Equal(t, 4, loops)
	require.False(t, s.Halted())
}

func TestSequencerGateProfileLong(t *testing.T) {
	s := newRunning(t, mustOf(t, phrase.G, "1"), Config{GateProfile: GateProfileLong}, Options{})
	// Gate tokens reified by phrase.Of use the short profile.
	tickN(s, 10, HostState{})
	require.Equal(t, GateOff, s.Gates()[0])

	p := phrase.Phrase{s.Config().Kit().Gate(0), phrase.DelayBeats(1)}
	s = newRunning(t, p, Config{GateProfile: GateProfileLong}, Options{})
	// 1/64 beat is 31.25ms at 120 BPM.
	tickN(s, 31, HostState{})
	require.Equal(t, GateOn, s.Gates()[0])
	tickN(s, 2, HostState{})
	require.Equal(t, GateOff, s.Gates()[0])
}

func TestSequencerRestartAtCheckpoint(t *testing.T) {
	p := mustOf(t, "1", phrase.Checkpoint("b"), phrase.Voltage(3, 0), "1")
	s := newRunning(t, p, Config{}, Options{})

	require.NoError(t, s.RestartAt("b"))
	require.Equal(t, 2000.0, s.Time())
	s.Tick(HostState{})
	require.Equal(t, 3.0, s.Voltages()[0])

	err := s.RestartAt("nope")
	require.True(t, errors.Is(err, ErrUnknownCheckpoint), "got %v", err)
}

func TestSequencerRestartJumpsToLoopStart(t *testing.T) {
	p := mustOf(t, phrase.Voltage(1, 0), "1", phrase.LoopStart(), phrase.Voltage(2, 0), "1", phrase.LoopEnd())
	s := newRunning(t, p, Config{Looped: true}, Options{})

	require.Equal(t, 2000.0, s.Time())
	s.Tick(HostState{})
	require.Equal(t, 2.0, s.Voltages()[0])

	// The loop region repeats without replaying the intro.
	tickN(s, 5000, HostState{})
	require.Equal(t, 2.0, s.Voltages()[0])
	require.GreaterOrEqual(t, s.Time(), 2000.0)
	require.Less(t, s.Time(), 4002.0)
}

func TestSequencerLoopResyncsLinearCursors(t *testing.T) {
	loops := 0
	p := mustOf(t, phrase.Voltage(0, 0), "1", phrase.LoopStart(), phrase.Voltage(10, 0), "1", phrase.Voltage(0, 0), "1")
	s := newRunning(t, p, Config{Looped: true, Interpolation: InterpolateAll(ModeLinear)}, Options{
		OnEvent: func(e Event) {
			if e.Kind == EventLoopCompleted {
				loops++
			}
		},
	})
	require.Equal(t, 2000.0, s.Time())

	// 1001 ticks process t=3000ms, halfway down the 10V to 0V segment.
	tickN(s, 1001, HostState{})
	require.InDelta(t, 5.0, s.Voltages()[0], 1e-9)

	for i := 0; loops == 0 && i < 10000; i++ {
		s.Tick(HostState{})
	}
	require.Equal(t, 1, loops)
	// The looping tick processed t=2000ms again.
	require.InDelta(t, 10.0, s.Voltages()[0], 1e-9)

	tickN(s, 1000, HostState{})
	require.InDelta(t, 5.0, s.Voltages()[0], 1e-9)
}

func TestSequencerRestartAtResyncsLinearCursors(t *testing.T) {
	p := mustOf(t, phrase.Voltage(0, 0), "1/2", phrase.Checkpoint("m"), "1/2", phrase.Voltage(10, 0), "1")
	s := newRunning(t, p, Config{Interpolation: InterpolateAll(ModeLinear)}, Options{})

	tickN(s, 3000, HostState{})
	require.InDelta(t, 10.0, s.Voltages()[0], 1e-9)

	require.NoError(t, s.RestartAt("m"))
	require.Equal(t, 1000.0, s.Time())
	s.Tick(HostState{})
	require.InDelta(t, 5.0, s.Voltages()[0], 1e-9)

	s.Restart()
	tickN(s, 501, HostState{})
	require.InDelta(t, 2.5, s.Voltages()[0], 1e-9)
}

func TestSequencerLoopEndHaltsWhenNotLooped(t *testing.T) {
	var events []Event
	p := mustOf(t, phrase.Voltage(1, 0), "1/4", phrase.LoopEnd(), phrase.Voltage(9, 0))
	s := newRunning(t, p, Config{}, Options{
		OnEvent: func(e Event) { events = append(events, e) },
	})
	tickN(s, 3000, HostState{})
	require.Equal(t, 1.0, s.Voltages()[0])
	require.True(t, s.Halted())
	require.Len(t, events, 1)
}

func TestSequencerLastLoopMarkersWin(t *testing.T) {
	p := mustOf(t,
		phrase.LoopStart(), phrase.Voltage(1, 0), "1",
		phrase.LoopStart(), phrase.Voltage(2, 0), "1",
		phrase.LoopEnd(),
	)
	s := newRunning(t, p, Config{Looped: true}, Options{})
	start, end, ok := s.LoopBounds()
	require.True(t, ok)
	require.Equal(t, 3, start)
	require.Equal(t, 6, end)
}

func TestSequencerToggleFreezesOutputs(t *testing.T) {
	p := mustOf(t, phrase.Voltage(0, 0), "1", phrase.Voltage(10, 0))
	s := newRunning(t, p, Config{Interpolation: InterpolateAll(ModeLinear)}, Options{})
	tickN(s, 500, HostState{})
	before := s.Voltages()[0]
	at := s.Time()

	s.Toggle()
	require.False(t, s.Running())
	tickN(s, 500, HostState{})
	require.Equal(t, at, s.Time())
	require.Equal(t, before, s.Voltages()[0])

	s.Toggle()
	s.Tick(HostState{})
	require.Greater(t, s.Time(), at)
}

func TestSequencerStoppedByDefault(t *testing.T) {
	s, err := New(mustOf(t, phrase.Voltage(5, 0), "1"), Config{})
	require.NoError(t, err)
	s.Init(1000)
	tickN(s, 10, HostState{})
	require.Equal(t, 0.0, s.Time())
	require.Equal(t, 0.0, s.Voltages()[0])
}

func TestSequencerChannelShift(t *testing.T) {
	p := mustOf(t, phrase.Voltage(1, 0), phrase.Voltage(4, 3), phrase.GateBeats(1, 1), "1")
	cfg := Config{ChannelShift: ChannelShift{Enabled: true, Block: 3}}
	s := newRunning(t, p, cfg, Options{})

	s.Tick(HostState{Shift: 0})
	require.Equal(t, []float64{1, 0, 0, 4, 0, 0}, s.Voltages())
	require.Equal(t, GateOn, s.Gates()[1])

	s.Tick(HostState{Shift: 0.5})
	require.Equal(t, []float64{4, 0, 0, 1, 0, 0}, s.Voltages())
	require.Equal(t, GateOn, s.Gates()[4])

	s.Tick(HostState{Shift: 1})
	require.Equal(t, []float64{4, 0, 0, 1, 0, 0}, s.Voltages())
}

func TestShiftOffset(t *testing.T) {
	cases := []struct {
		shift    float64
		channels int
		block    int
		want     int
	}{
		{0, 6, 3, 0},
		{0.49, 6, 3, 0},
		{0.5, 6, 3, 3},
		{1, 6, 3, 3},
		{0.7, 8, 2, 4},
		{-1, 6, 3, 0},
		{0.9, 6, 0, 0},
		{0.9, 6, 6, 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, shiftOffset(tc.shift, tc.channels, tc.block), "%+v", tc)
	}
}

func TestSequencerFrameDivider(t *testing.T) {
	p := mustOf(t, "1")
	s, err := New(p, Config{RunningByDefault: true, FrameDivider: 4})
	require.NoError(t, err)
	s.Init(4000)
	s.Tick(HostState{})
	require.InDelta(t, 1.0, s.Time(), 1e-12)
}

func TestNewRejectsInvalidPhrases(t *testing.T) {
	cases := []struct {
		name string
		p    phrase.Phrase
		cfg  Config
		want error
	}{
		{"gate out of range", phrase.Phrase{phrase.GateBeats(6, 1)}, Config{}, phrase.ErrConstruction},
		{"voltage out of range", phrase.Phrase{phrase.Voltage(1, 2)}, Config{NumVoltages: 2}, phrase.ErrConstruction},
		{"duplicate label", phrase.Phrase{phrase.Checkpoint("a"), phrase.Checkpoint("a")}, Config{}, phrase.ErrConstruction},
		{"unknown kind", phrase.Phrase{{Kind: phrase.Kind(99)}}, Config{}, phrase.ErrConstruction},
		{"looped without delay", phrase.Phrase{phrase.Voltage(1, 0)}, Config{Looped: true}, phrase.ErrInfiniteLoop},
		{"loop region without delay", phrase.Phrase{phrase.DelayBeats(1), phrase.LoopStart(), phrase.Voltage(1, 0), phrase.LoopEnd()}, Config{Looped: true}, phrase.ErrInfiniteLoop},
		{"short interpolation list", nil, Config{NumVoltages: 3, Interpolation: InterpolateChannels(ModeLinear)}, phrase.ErrConstruction},
		{"sparse key out of range", nil, Config{Interpolation: InterpolateSparse(map[int]Mode{6: ModeLinear})}, phrase.ErrConstruction},
		{"negative channels", nil, Config{NumGates: -1}, phrase.ErrConstruction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.p, tc.cfg)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSparseInterpolationOnlyAffectsNamedChannels(t *testing.T) {
	p := mustOf(t,
		phrase.Voltage(0, 0), phrase.Voltage(0, 2),
		"1",
		phrase.Voltage(10, 0), phrase.Voltage(10, 2),
	)
	s := newRunning(t, p, Config{Interpolation: InterpolateSparse(map[int]Mode{2: ModeLinear})}, Options{})
	tickN(s, 1001, HostState{})
	require.Equal(t, 0.0, s.Voltages()[0])
	require.InDelta(t, 5.0, s.Voltages()[2], 1e-9)
}

func TestResolveInterpolation(t *testing.T) {
	modes, err := InterpolateChannels(ModeLinear, ModeNone, ModeLinear).Resolve(3)
	require.NoError(t, err)
	require.Equal(t, []Mode{ModeLinear, ModeNone, ModeLinear}, modes)

	modes, err = Interpolation{}.Resolve(2)
	require.NoError(t, err)
	require.Equal(t, []Mode{ModeNone, ModeNone}, modes)

	m, err := ParseMode("LINEAR")
	require.NoError(t, err)
	require.Equal(t, ModeLinear, m)
	_, err = ParseMode("cubic")
	require.Error(t, err)
}

func TestInvalidStatePanics(t *testing.T) {
	s := newRunning(t, mustOf(t, phrase.G, "1"), Config{}, Options{})
	s.status = StatusProcessing
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, ErrInvalidState), "got %v", err)
	}()
	s.Tick(HostState{})
}

func TestBuildUsesSeededHelpers(t *testing.T) {
	fn := func(h *Helpers) (phrase.Phrase, error) {
		return h.Times(8, func(i int) any {
			return []any{h.RandGate(), h.RandVoltage(0, 5), "1/8"}
		})
	}
	a, err := Build(Config{}, fn)
	require.NoError(t, err)
	b, err := Build(Config{}, fn)
	require.NoError(t, err)
	require.Equal(t, a.Phrase(), b.Phrase())
	require.Len(t, a.Phrase(), 24)

	var first float64
	_, err = Build(Config{}, func(h *Helpers) (phrase.Phrase, error) {
		first = h.Rand.Float64()
		return h.Of("1")
	})
	require.NoError(t, err)
	require.Equal(t, rng.New("vcv-prototype-sequencer").Float64(), first)
}

func TestBuildRecoversMustPanics(t *testing.T) {
	_, err := Build(Config{}, func(h *Helpers) (phrase.Phrase, error) {
		return phrase.Must(h.Of(struct{}{})), nil
	})
	require.True(t, errors.Is(err, phrase.ErrConstruction), "got %v", err)

	_, err = Build(Config{}, nil)
	require.Error(t, err)
}

func TestBuildHelpersFollowGateProfile(t *testing.T) {
	s, err := Build(Config{GateProfile: GateProfileLong}, func(h *Helpers) (phrase.Phrase, error) {
		return phrase.Phrase{h.Gate(2), phrase.DelayBeats(1)}, nil
	})
	require.NoError(t, err)
	require.Equal(t, phrase.LongGateDuration, s.Phrase()[0].Duration)
}
