package cvseq

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/cvseq-go/internal/phrase"
	intseq "github.com/cbegin/cvseq-go/internal/sequencer"
)

func mustPhrase(t *testing.T, items ...any) phrase.Phrase {
	t.Helper()
	p, err := phrase.Of(items...)
	require.NoError(t, err)
	return p
}

// pull renders frames of audio the way the driver would, without a device.
func pull(p *Player, frames int) []float32 {
	buf := make([]float32, frames*2)
	source{p: p}.Process(buf)
	return buf
}

func TestPlayerReportsPlaybackEnded(t *testing.T) {
	pl, err := NewPlayer(1000, mustPhrase(t, phrase.Voltage(3, 0), "1/8"), intseq.Config{RunningByDefault: true})
	require.NoError(t, err)
	ch := pl.Watch()

	pull(pl, 600)
	select {
	case ev := <-ch:
		require.Equal(t, EventPlaybackEnded, ev.Kind)
	default:
		t.Fatalf("expected a playback ended event")
	}
	snap := pl.Snapshot()
	require.True(t, snap.Halted)
	require.Equal(t, []float64{3, 0, 0, 0, 0, 0}, snap.Voltages)
	require.True(t, source{p: pl}.Finished())

	pl.Restart()
	require.False(t, source{p: pl}.Finished())
	require.False(t, pl.Snapshot().Halted)
}

func TestPlayerSnapshotReportsCursor(t *testing.T) {
	pl, err := NewPlayer(1000, mustPhrase(t, phrase.Voltage(3, 0), "1/8", phrase.Voltage(4, 0)), intseq.Config{RunningByDefault: true})
	require.NoError(t, err)

	snap := pl.Snapshot()
	require.Equal(t, 0, snap.Action)
	require.Equal(t, "new", snap.Status)

	pull(pl, 10)
	snap = pl.Snapshot()
	require.Equal(t, 1, snap.Action)
	require.Equal(t, "processing", snap.Status)

	// No audio device has been opened.
	require.False(t, snap.Playing)
	require.Zero(t, snap.Position)
	require.Zero(t, snap.Rendered)
	require.Zero(t, pl.PlaybackPosition())
}

func TestPlayerStopAtEndDisabledKeepsStreaming(t *testing.T) {
	pl, err := NewPlayer(1000, mustPhrase(t, "1/8"), intseq.Config{RunningByDefault: true}, WithStopAtEnd(false))
	require.NoError(t, err)
	pull(pl, 600)
	require.True(t, pl.Snapshot().Halted)
	require.False(t, source{p: pl}.Finished())
}

func TestPlayerReportsLoops(t *testing.T) {
	pl, err := NewPlayer(1000, mustPhrase(t, phrase.G, "1/8"), intseq.Config{RunningByDefault: true, Looped: true})
	require.NoError(t, err)
	ch := pl.Watch()
	pull(pl, 1000)
	loops := 0
	for len(ch) > 0 {
		if ev := <-ch; ev.Kind == EventLoopCompleted {
			loops++
		}
	}
	// 1/8 beat is 250ms at 120 BPM; each pass takes 251 ticks.
	require.Equal(t, 3, loops)
}

func TestPlayerFrameDividerAndTap(t *testing.T) {
	var taps int
	pl, err := NewPlayer(4000, mustPhrase(t, "1"), intseq.Config{RunningByDefault: true, FrameDivider: 4},
		WithFrameTap(func(gates, voltages []float64) { taps++ }))
	require.NoError(t, err)
	pull(pl, 8)
	require.Equal(t, 2, taps)
	require.InDelta(t, 2.0, pl.Snapshot().TimeMs, 1e-9)
}

func TestPlayerToggleFreezesEngine(t *testing.T) {
	pl, err := NewPlayer(1000, mustPhrase(t, "1"), intseq.Config{})
	require.NoError(t, err)
	pull(pl, 100)
	require.Equal(t, 0.0, pl.Snapshot().TimeMs)
	require.False(t, pl.Snapshot().Running)

	pl.Toggle()
	pull(pl, 100)
	require.Equal(t, 100.0, pl.Snapshot().TimeMs)
}

func TestPlayerShiftAndRestartAt(t *testing.T) {
	p := mustPhrase(t, phrase.Voltage(1, 0), "1", phrase.Checkpoint("b"), phrase.Voltage(2, 3), "1")
	cfg := intseq.Config{RunningByDefault: true, ChannelShift: intseq.ChannelShift{Enabled: true, Block: 3}}
	pl, err := NewPlayer(1000, p, cfg)
	require.NoError(t, err)

	pl.SetShift(7)
	require.Equal(t, 1.0, pl.Snapshot().Shift)
	pl.SetShift(-1)
	require.Equal(t, 0.0, pl.Snapshot().Shift)

	require.NoError(t, pl.RestartAt("b"))
	pl.SetShift(0.9)
	pull(pl, 1)
	require.Equal(t, []float64{2, 0, 0, 0, 0, 0}, pl.Snapshot().Voltages)

	err = pl.RestartAt("missing")
	require.True(t, errors.Is(err, intseq.ErrUnknownCheckpoint), "got %v", err)
	require.Equal(t, []string{"b"}, pl.Labels())
}

func TestNewPlayerRejectsBadInput(t *testing.T) {
	_, err := NewPlayer(0, nil, intseq.Config{})
	require.Error(t, err)

	_, err = NewPlayer(48000, phrase.Phrase{phrase.GateBeats(9, 1)}, intseq.Config{})
	require.True(t, errors.Is(err, phrase.ErrConstruction), "got %v", err)
}

func TestBuildPlayer(t *testing.T) {
	pl, err := BuildPlayer(1000, intseq.Config{RunningByDefault: true}, func(h *intseq.Helpers) (phrase.Phrase, error) {
		return h.Of(h.Gate(1), "1/4")
	})
	require.NoError(t, err)
	pull(pl, 1)
	require.Equal(t, intseq.GateOn, pl.Snapshot().Gates[1])
}
