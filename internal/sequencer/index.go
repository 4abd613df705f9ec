package sequencer

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cbegin/cvseq-go/internal/clock"
	"github.com/cbegin/cvseq-go/internal/phrase"
)

// position is an action index together with the beat time at which it is reached.
type position struct {
	index int
	beats float64
}

// breakpoint is one (time, value) pair of a linear voltage channel. at is in ms.
type breakpoint struct {
	at    float64
	value float64
}

type phraseIndex struct {
	loopStart position
	loopEnd   position
	hasLoop   bool
	labels    map[string]position
	// breakpoints is indexed by voltage channel; nil for channels that are
	// not interpolated or never written.
	breakpoints [][]breakpoint
}

// indexPhrase walks p once and records everything the engine needs to look up
// in constant time while running.
func indexPhrase(p phrase.Phrase, cfg Config, modes []Mode, log *zap.Logger) (*phraseIndex, error) {
	idx := &phraseIndex{
		labels:      map[string]position{},
		breakpoints: make([][]breakpoint, cfg.NumVoltages),
	}
	var (
		beats        float64
		starts, ends int
	)
	for i, a := range p {
		switch a.Kind {
		case phrase.KindDelay:
			beats += a.Duration
		case phrase.KindGate:
			if a.Index < 0 || a.Index >= cfg.NumGates {
				return nil, errors.Wrapf(phrase.ErrConstruction, "action %d: gate %d out of range [0,%d)", i, a.Index, cfg.NumGates)
			}
		case phrase.KindVoltage:
			if a.Index < 0 || a.Index >= cfg.NumVoltages {
				return nil, errors.Wrapf(phrase.ErrConstruction, "action %d: voltage %d out of range [0,%d)", i, a.Index, cfg.NumVoltages)
			}
			if modes[a.Index] == ModeLinear {
				idx.breakpoints[a.Index] = append(idx.breakpoints[a.Index], breakpoint{
					at:    clock.BeatsToMs(beats, cfg.BPM),
					value: a.Value,
				})
			}
		case phrase.KindCheckpoint:
			if a.Label == "" {
				continue
			}
			if _, dup := idx.labels[a.Label]; dup {
				return nil, errors.Wrapf(phrase.ErrConstruction, "duplicate checkpoint label %q", a.Label)
			}
			idx.labels[a.Label] = position{index: i, beats: beats}
		case phrase.KindLoopStart:
			starts++
			idx.loopStart = position{index: i, beats: beats}
		case phrase.KindLoopEnd:
			ends++
			idx.hasLoop = true
			idx.loopEnd = position{index: i, beats: beats}
		default:
			return nil, errors.Wrapf(phrase.ErrConstruction, "action %d: unknown kind %d", i, int(a.Kind))
		}
	}
	if starts > 1 || ends > 1 {
		log.Warn("multiple loop markers, the last of each wins",
			zap.Int("loop_starts", starts),
			zap.Int("loop_ends", ends),
			zap.Int("loop_start_index", idx.loopStart.index),
		)
	}
	for ch, table := range idx.breakpoints {
		if len(table) == 0 {
			continue
		}
		idx.breakpoints[ch] = append(table, breakpoint{at: math.Inf(1), value: table[len(table)-1].value})
	}
	if cfg.Looped {
		if err := checkLoopAdvances(p, idx.loopStart.index); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// checkLoopAdvances rejects a looped phrase whose repeating region has no
// Delay; the engine would cycle through it forever within a single tick.
func checkLoopAdvances(p phrase.Phrase, from int) error {
	for _, a := range p[from:] {
		switch a.Kind {
		case phrase.KindDelay:
			return nil
		case phrase.KindLoopEnd:
			return errors.Wrap(phrase.ErrInfiniteLoop, "loop region has no delay")
		}
	}
	return errors.Wrap(phrase.ErrInfiniteLoop, "looped phrase has no delay")
}
