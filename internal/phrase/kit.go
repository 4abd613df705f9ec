package phrase

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/cbegin/cvseq-go/internal/rng"
)

// Token is a bare placeholder accepted by Of in place of a full action.
type Token int

const (
	// G stands for a default gate on channel 0.
	G Token = iota + 1
	// Mark stands for a LoopStart marker.
	Mark
)

// Kit carries the defaults that depend on how the sequencer is configured:
// the default gate length and the number of output channels that random
// constructors may pick from.
type Kit struct {
	GateDuration float64
	NumGates     int
	NumVoltages  int
}

// DefaultKit uses short gates and six channels of each output kind.
var DefaultKit = Kit{GateDuration: ShortGateDuration, NumGates: 6, NumVoltages: 6}

// Of builds a phrase with DefaultKit.
func Of(items ...any) (Phrase, error) { return DefaultKit.Of(items...) }

// Must panics if err is non-nil. It is meant for phrase literals in builder
// functions, where a malformed item is a programming error.
func Must(p Phrase, err error) Phrase {
	if err != nil {
		panic(err)
	}
	return p
}

// Gate raises gate index for the kit's default gate length.
func (k Kit) Gate(index int) Action {
	return GateBeats(index, k.gateDuration())
}

// GateFor raises gate index for a duration written like a Delay spec.
// An empty spec means the default gate length.
func (k Kit) GateFor(index int, spec string) (Action, error) {
	if spec == "" {
		return k.Gate(index), nil
	}
	d, err := ParseDuration(spec)
	if err != nil {
		return Action{}, err
	}
	return GateBeats(index, d), nil
}

// GateAt binds a gate channel.
func (k Kit) GateAt(index int) func(beats float64) Action {
	return func(beats float64) Action { return GateBeats(index, beats) }
}

func (k Kit) gateDuration() float64 {
	if k.GateDuration <= 0 {
		return ShortGateDuration
	}
	return k.GateDuration
}

// Of flattens items, at any nesting depth, into a phrase. Leaves become actions:
//
//	string          Delay parsed with ParseDuration
//	float64, int    Voltage on channel 0
//	G               default Gate on channel 0
//	Mark            LoopStart
//	Action          itself
//
// Slices and arrays of any element type, Phrase and []Phrase included, are
// flattened recursively.
func (k Kit) Of(items ...any) (Phrase, error) {
	out := make(Phrase, 0, len(items))
	if err := k.reify(&out, items); err != nil {
		return nil, err
	}
	return out, nil
}

func (k Kit) reify(out *Phrase, items []any) error {
	for _, item := range items {
		switch v := item.(type) {
		case []any:
			if err := k.reify(out, v); err != nil {
				return err
			}
		case Phrase:
			if err := appendActions(out, v); err != nil {
				return err
			}
		case []Action:
			if err := appendActions(out, v); err != nil {
				return err
			}
		case Action:
			if err := appendActions(out, []Action{v}); err != nil {
				return err
			}
		case string:
			a, err := Delay(v)
			if err != nil {
				return err
			}
			*out = append(*out, a)
		case float64:
			*out = append(*out, Voltage(v, 0))
		case float32:
			*out = append(*out, Voltage(float64(v), 0))
		case int:
			*out = append(*out, Voltage(float64(v), 0))
		case int64:
			*out = append(*out, Voltage(float64(v), 0))
		case Token:
			switch v {
			case G:
				*out = append(*out, k.Gate(0))
			case Mark:
				*out = append(*out, LoopStart())
			default:
				return errors.Wrapf(ErrConstruction, "unknown token %d", int(v))
			}
		default:
			rv := reflect.ValueOf(item)
			if kind := rv.Kind(); kind != reflect.Slice && kind != reflect.Array {
				return errors.Wrapf(ErrConstruction, "unknown syntax %#v (%T)", item, item)
			}
			nested := make([]any, rv.Len())
			for i := range nested {
				nested[i] = rv.Index(i).Interface()
			}
			if err := k.reify(out, nested); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendActions(out *Phrase, actions []Action) error {
	for _, a := range actions {
		if !a.Kind.Valid() {
			return errors.Wrapf(ErrConstruction, "unknown action kind %d", int(a.Kind))
		}
		*out = append(*out, a)
	}
	return nil
}

// RandomGate picks a gate channel with r: any configured gate with no bounds,
// [0, b0] with one bound, [b0, b1] with two.
func (k Kit) RandomGate(r *rng.Rand, bounds ...int) Action {
	var index int
	switch len(bounds) {
	case 0:
		index = r.IntRange(0, k.NumGates-1)
	case 1:
		index = r.IntRange(0, bounds[0])
	default:
		index = r.IntRange(bounds[0], bounds[1])
	}
	return k.Gate(index)
}

// RandomVoltage draws a voltage action with r. args[0:2] bound the value
// ([0,10) by default, [0,a0) with one, [a0,a1) with two) and args[2:4] bound
// the channel the same way RandomGate does. The channel is drawn first.
func (k Kit) RandomVoltage(r *rng.Rand, args ...float64) Action {
	var index int
	switch len(args) {
	case 0, 1, 2:
		index = r.IntRange(0, k.NumVoltages-1)
	case 3:
		index = r.IntRange(0, int(args[2]))
	default:
		index = r.IntRange(int(args[2]), int(args[3]))
	}
	var value float64
	switch len(args) {
	case 0:
		value = r.Float64Range(0, 10)
	case 1:
		value = r.Float64Range(0, args[0])
	default:
		value = r.Float64Range(args[0], args[1])
	}
	return Voltage(value, index)
}
