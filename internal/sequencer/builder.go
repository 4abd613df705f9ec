package sequencer

import (
	"github.com/pkg/errors"

	"github.com/cbegin/cvseq-go/internal/phrase"
	"github.com/cbegin/cvseq-go/internal/rng"
)

// DefaultSeed seeds Helpers.Rand.
const DefaultSeed = "vcv-prototype-sequencer"

// Helpers is handed to a BuilderFunc. The embedded Kit builds gates with the
// configured gate profile and checks channel counts for random draws.
type Helpers struct {
	phrase.Kit
	Rand *rng.Rand
}

// NewRand returns an independent generator for seed.
func (h *Helpers) NewRand(seed string) *rng.Rand { return rng.New(seed) }

// RandGate draws a gate from h.Rand. See phrase.Kit.RandomGate.
func (h *Helpers) RandGate(bounds ...int) phrase.Action {
	return h.Kit.RandomGate(h.Rand, bounds...)
}

// RandVoltage draws a voltage from h.Rand. See phrase.Kit.RandomVoltage.
func (h *Helpers) RandVoltage(args ...float64) phrase.Action {
	return h.Kit.RandomVoltage(h.Rand, args...)
}

// BuilderFunc produces the phrase a sequencer plays.
type BuilderFunc func(h *Helpers) (phrase.Phrase, error)

func Build(cfg Config, fn BuilderFunc) (*Sequencer, error) {
	return BuildWithOptions(cfg, fn, Options{})
}

// BuildWithOptions calls fn once and indexes the returned phrase. Panics
// raised by phrase.Must inside fn are returned as errors.
func BuildWithOptions(cfg Config, fn BuilderFunc, opts Options) (*Sequencer, error) {
	if fn == nil {
		return nil, errors.Wrap(phrase.ErrConstruction, "nil builder")
	}
	p, err := runBuilder(fn, &Helpers{Kit: cfg.Kit(), Rand: rng.New(DefaultSeed)})
	if err != nil {
		return nil, err
	}
	return NewWithOptions(p, cfg, opts)
}

func runBuilder(fn BuilderFunc, h *Helpers) (p phrase.Phrase, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(error)
		if !ok || !(errors.Is(e, phrase.ErrConstruction) || errors.Is(e, phrase.ErrInfiniteLoop)) {
			panic(r)
		}
		p, err = nil, e
	}()
	return fn(h)
}
