// Package phrase builds the immutable action sequences the sequencer plays.
//
// A Phrase is an ordered list of actions. Constructors and combinators never
// modify their inputs; every operation returns a new Phrase.
package phrase

import (
	"math"

	"github.com/pkg/errors"
)

// Epsilon is the tolerance used when comparing accumulated beat times.
const Epsilon = 1e-9

// Phrase is an ordered sequence of actions.
type Phrase []Action

// Duration is the total beat length: the sum of all Delay durations.
func (p Phrase) Duration() float64 {
	var total float64
	for _, a := range p {
		if a.Kind == KindDelay {
			total += a.Duration
		}
	}
	return total
}

// HasDelay reports whether p contains at least one Delay.
func (p Phrase) HasDelay() bool {
	for _, a := range p {
		if a.Kind == KindDelay {
			return true
		}
	}
	return false
}

func (p Phrase) clone() Phrase {
	out := make(Phrase, len(p))
	copy(out, p)
	return out
}

// Concat joins phrases end to end.
func Concat(phrases ...Phrase) Phrase {
	n := 0
	for _, p := range phrases {
		n += len(p)
	}
	out := make(Phrase, 0, n)
	for _, p := range phrases {
		out = append(out, p...)
	}
	return out
}

// Loop brackets p with LoopStart and LoopEnd markers.
func Loop(p Phrase) Phrase {
	return Concat(Phrase{LoopStart()}, p, Phrase{LoopEnd()})
}

// Interleave merges phrases so that each keeps its own timing. Instantaneous
// actions are emitted as soon as they are reached and the delays between them
// are split at every point where any input has an event.
func Interleave(phrases ...Phrase) Phrase {
	var out Phrase
	queues := make([]Phrase, 0, len(phrases))
	for _, p := range phrases {
		queues = append(queues, p.clone())
	}
	for {
		for i, q := range queues {
			for len(q) > 0 && q[0].Kind != KindDelay {
				out = append(out, q[0])
				q = q[1:]
			}
			queues[i] = q
		}
		live := queues[:0]
		for _, q := range queues {
			if len(q) > 0 {
				live = append(live, q)
			}
		}
		queues = live
		if len(queues) == 0 {
			return out
		}
		step := queues[0][0].Duration
		for _, q := range queues[1:] {
			step = math.Min(step, q[0].Duration)
		}
		out = append(out, DelayBeats(step))
		for i, q := range queues {
			if math.Abs(q[0].Duration-step) < Epsilon {
				queues[i] = q[1:]
				continue
			}
			q[0] = DelayBeats(q[0].Duration - step)
		}
	}
}

// CycleToBars replays p from the start until exactly n beats have elapsed.
// The delay that crosses the boundary is shortened to land on it.
func (p Phrase) CycleToBars(n float64) (Phrase, error) {
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, errors.Wrapf(ErrConstruction, "cannot cycle to %v bars", n)
	}
	if !p.HasDelay() {
		return nil, errors.Wrap(ErrInfiniteLoop, "cannot cycle phrase without delays")
	}
	if n > Epsilon && p.Duration() < Epsilon {
		return nil, errors.Wrap(ErrInfiniteLoop, "cannot cycle phrase whose delays are all zero")
	}
	var (
		out  Phrase
		time float64
	)
	for {
		for _, a := range p {
			if a.Kind != KindDelay {
				out = append(out, a)
				continue
			}
			next := time + a.Duration
			if next > n || math.Abs(n-next) < Epsilon {
				a.Duration = n - time
				return append(out, a), nil
			}
			out = append(out, a)
			time = next
		}
	}
}

// PadToBars makes p exactly n beats long: unchanged if it already is,
// cut with CycleToBars if longer, extended with one trailing Delay if shorter.
func (p Phrase) PadToBars(n float64) (Phrase, error) {
	total := p.Duration()
	switch {
	case math.Abs(total-n) < Epsilon:
		return p.clone(), nil
	case total > n:
		return p.CycleToBars(n)
	}
	return append(p.clone(), DelayBeats(n-total)), nil
}

// Repeat concatenates floor(n) copies of p.
func (p Phrase) Repeat(n float64) Phrase {
	count := int(math.Floor(n))
	if count <= 0 {
		return Phrase{}
	}
	out := make(Phrase, 0, len(p)*count)
	for i := 0; i < count; i++ {
		out = append(out, p...)
	}
	return out
}
