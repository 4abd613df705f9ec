// Package patches holds named phrase builders for the command line tools.
package patches

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/cbegin/cvseq-go/internal/phrase"
	"github.com/cbegin/cvseq-go/internal/rng"
	"github.com/cbegin/cvseq-go/internal/sequencer"
)

// ErrUnknownPatch is returned by Builder for names not in the registry.
var ErrUnknownPatch = errors.New("unknown patch")

// DefaultPatch is played when no patch is named.
const DefaultPatch = "four-on-the-floor"

type Patch struct {
	Name        string
	Description string

	// Interpolation is the voltage mode the patch is written for. Callers
	// apply it when the configuration leaves interpolation unset.
	Interpolation sequencer.Mode
	build         func(h *sequencer.Helpers, r *rng.Rand) (phrase.Phrase, error)
}

var registry = map[string]Patch{}

func register(p Patch) { registry[p.Name] = p }

func init() {
	register(Patch{
		Name:        "four-on-the-floor",
		Description: "gate 0 on every quarter of a looped bar",
		build: func(h *sequencer.Helpers, _ *rng.Rand) (phrase.Phrase, error) {
			p, err := h.Of(h.Gate(0), "1/4")
			if err != nil {
				return nil, err
			}
			p, err = p.CycleToBars(1)
			if err != nil {
				return nil, err
			}
			return phrase.Loop(p), nil
		},
	})
	register(Patch{
		Name:        "tresillo",
		Description: "3+3+2 eighths on gate 1 over a quarter-note kick",
		build: func(h *sequencer.Helpers, _ *rng.Rand) (phrase.Phrase, error) {
			kick, err := h.Of(h.Gate(0), "1/4")
			if err != nil {
				return nil, err
			}
			kick, err = kick.CycleToBars(1)
			if err != nil {
				return nil, err
			}
			clave, err := h.Of(h.Gate(0), "3/8", h.Gate(0), "3/8", h.Gate(0), "2/8")
			if err != nil {
				return nil, err
			}
			clave = clave.MapGateIndex(func(int, phrase.Action) int { return 1 })
			return phrase.Loop(phrase.Interleave(kick, clave)), nil
		},
	})
	register(Patch{
		Name:          "ramp",
		Description:   "voltage 0 ramps 0V to 5V and back, gate 0 marks each turn (linear interpolation)",
		Interpolation: sequencer.ModeLinear,
		build: func(h *sequencer.Helpers, _ *rng.Rand) (phrase.Phrase, error) {
			return h.Of(
				phrase.Mark,
				phrase.Checkpoint("up"), h.Gate(0), phrase.Voltage(0, 0), "1",
				phrase.Checkpoint("down"), h.Gate(0), phrase.Voltage(5, 0), "1",
				phrase.Voltage(0, 0),
				phrase.LoopEnd(),
			)
		},
	})
	register(Patch{
		Name:        "random-walk",
		Description: "seeded random gates and voltages on sixteenths",
		build: func(h *sequencer.Helpers, r *rng.Rand) (phrase.Phrase, error) {
			steps, err := h.Times(16, func(i int) any {
				gate := h.RandomGate(r)
				if i%4 == 0 {
					gate = h.Gate(0)
				}
				return []any{gate, h.RandomVoltage(r, 0, 5, 0), "1/16"}
			})
			if err != nil {
				return nil, err
			}
			return phrase.Loop(steps), nil
		},
	})
	register(Patch{
		Name:        "fill",
		Description: "gates on three channels, halving the step every half bar, until two bars are full",
		build: func(h *sequencer.Helpers, _ *rng.Rand) (phrase.Phrase, error) {
			p, err := h.Imperative(2, func(e *phrase.Emitter) error {
				step := 0.25
				for t := 0.5; t <= e.Elapsed() && step > 1.0/32; t += 0.5 {
					step /= 2
				}
				for _, ch := range []int{0, 1, 2} {
					if st, err := e.Emit(h.Gate(ch), phrase.DelayBeats(step)); err != nil || st == phrase.Done {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			return phrase.Loop(p), nil
		},
	})
	register(Patch{
		Name:        "octaves",
		Description: "1 V/oct arpeggio on voltage 0, gated on gate 0",
		build: func(h *sequencer.Helpers, _ *rng.Rand) (phrase.Phrase, error) {
			notes := []float64{0, 1, 7.0 / 12, 1 + 4.0/12}
			p, err := phrase.Iterate(h.Kit, notes, func(v float64, _ int) any {
				return []any{phrase.Voltage(v, 0), h.Gate(0), "1/8"}
			})
			if err != nil {
				return nil, err
			}
			return phrase.Loop(p.Repeat(2)), nil
		},
	})
}

// Names lists the registered patches in order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup finds a patch by name; the empty name is DefaultPatch.
func Lookup(name string) (Patch, bool) {
	if name == "" {
		name = DefaultPatch
	}
	p, ok := registry[name]
	return p, ok
}

// Configure fills in the interpolation the named patch expects unless the
// caller has already chosen one. Unknown names leave cfg unchanged.
func Configure(name string, cfg sequencer.Config, interpolationSet bool) sequencer.Config {
	if interpolationSet {
		return cfg
	}
	if p, ok := Lookup(name); ok {
		cfg.Interpolation = sequencer.InterpolateAll(p.Interpolation)
	}
	return cfg
}

// Builder returns the builder for the named patch. An empty seed keeps the
// helpers' default generator.
func Builder(name, seed string) (sequencer.BuilderFunc, error) {
	if name == "" {
		name = DefaultPatch
	}
	p, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPatch, "%q", name)
	}
	return func(h *sequencer.Helpers) (phrase.Phrase, error) {
		r := h.Rand
		if seed != "" {
			r = h.NewRand(seed)
		}
		return p.build(h, r)
	}, nil
}
