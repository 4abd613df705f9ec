package phrase

import (
	"math"

	"github.com/pkg/errors"
)

// Iterate maps fn over items and flattens the results with k.Of.
func Iterate[T any](k Kit, items []T, fn func(item T, i int) any) (Phrase, error) {
	parts := make([]any, 0, len(items))
	for i, item := range items {
		parts = append(parts, fn(item, i))
	}
	return k.Of(parts...)
}

// Times is Iterate over 0..n-1.
func (k Kit) Times(n int, fn func(i int) any) (Phrase, error) {
	if n < 0 {
		n = 0
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return Iterate(k, idx, func(i, _ int) any { return fn(i) })
}

// EmitStatus tells an emitting function whether to keep going.
type EmitStatus int

const (
	Continue EmitStatus = iota
	Done
)

// Emitter appends items to a phrase under construction until a beat limit is
// reached. The delay that reaches the limit is shortened to land on it.
type Emitter struct {
	kit   Kit
	limit float64
	time  float64
	out   Phrase
	done  bool
}

// Emit reifies items and appends them. Once the limit has been reached it
// returns Done and ignores any further items.
func (e *Emitter) Emit(items ...any) (EmitStatus, error) {
	if e.done {
		return Done, nil
	}
	p, err := e.kit.Of(items...)
	if err != nil {
		return Continue, err
	}
	for _, a := range p {
		if a.Kind == KindDelay {
			next := e.time + a.Duration
			if next > e.limit || math.Abs(e.limit-next) < Epsilon {
				a.Duration = e.limit - e.time
				e.out = append(e.out, a)
				e.time = e.limit
				e.done = true
				return Done, nil
			}
			e.time = next
		}
		e.out = append(e.out, a)
	}
	return Continue, nil
}

// Elapsed is the beat time emitted so far.
func (e *Emitter) Elapsed() float64 { return e.time }

// MaxStalledCalls is how many calls in a row may add no beat time before
// Imperative gives up.
const MaxStalledCalls = 1024

// Imperative calls fn repeatedly, each time from its beginning, until the
// emitted phrase is n beats long. State meant to carry across calls has to
// live in fn's closure, so a call may emit only gates or voltages as long as
// a later call adds a delay.
func (k Kit) Imperative(n float64, fn func(e *Emitter) error) (Phrase, error) {
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, errors.Wrapf(ErrConstruction, "cannot emit %v bars", n)
	}
	e := &Emitter{kit: k, limit: n}
	stalled := 0
	for !e.done {
		before := e.time
		if err := fn(e); err != nil {
			return nil, err
		}
		if e.done || e.time-before >= Epsilon {
			stalled = 0
			continue
		}
		stalled++
		if stalled >= MaxStalledCalls {
			return nil, errors.Wrapf(ErrInfiniteLoop, "emit function made no progress in %d calls", stalled)
		}
	}
	return e.out, nil
}
