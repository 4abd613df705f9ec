package phrase

import (
	"math"

	"github.com/pkg/errors"
)

// Field names a numeric action field for MapActions.
type Field int

const (
	FieldIndex Field = iota + 1
	FieldDuration
	FieldValue
)

func (f Field) String() string {
	switch f {
	case FieldIndex:
		return "index"
	case FieldDuration:
		return "duration"
	case FieldValue:
		return "value"
	}
	return "field(?)"
}

// Mapper computes a new field value from the current one and the whole action.
type Mapper func(current float64, a Action) float64

// Const is a Mapper that ignores its input.
func Const(v float64) Mapper {
	return func(float64, Action) float64 { return v }
}

func carries(k Kind, f Field) bool {
	switch k {
	case KindDelay:
		return f == FieldDuration
	case KindGate:
		return f == FieldIndex || f == FieldDuration
	case KindVoltage:
		return f == FieldIndex || f == FieldValue
	}
	return false
}

// MapActions rewrites field on every action of the given kind.
// Index results are floored to whole channels.
func (p Phrase) MapActions(kind Kind, field Field, m Mapper) (Phrase, error) {
	if !carries(kind, field) {
		return nil, errors.Wrapf(ErrConstruction, "%s actions have no %s field", kind, field)
	}
	if m == nil {
		return nil, errors.Wrap(ErrConstruction, "nil mapper")
	}
	return p.mapField(kind, field, m), nil
}

// SetField replaces field on every action of the given kind with v.
func (p Phrase) SetField(kind Kind, field Field, v float64) (Phrase, error) {
	return p.MapActions(kind, field, Const(v))
}

func (p Phrase) mapField(kind Kind, field Field, m Mapper) Phrase {
	out := p.clone()
	for i, a := range out {
		if a.Kind != kind {
			continue
		}
		switch field {
		case FieldIndex:
			out[i].Index = int(math.Floor(m(float64(a.Index), a)))
		case FieldDuration:
			out[i].Duration = m(a.Duration, a)
		case FieldValue:
			out[i].Value = m(a.Value, a)
		}
	}
	return out
}

func indexMapper(f func(int, Action) int) Mapper {
	return func(v float64, a Action) float64 { return float64(f(int(v), a)) }
}

func (p Phrase) MapGateIndex(f func(index int, a Action) int) Phrase {
	return p.mapField(KindGate, FieldIndex, indexMapper(f))
}

func (p Phrase) MapGateDuration(f func(beats float64, a Action) float64) Phrase {
	return p.mapField(KindGate, FieldDuration, f)
}

func (p Phrase) MapVoltageIndex(f func(index int, a Action) int) Phrase {
	return p.mapField(KindVoltage, FieldIndex, indexMapper(f))
}

func (p Phrase) MapVoltageValue(f func(value float64, a Action) float64) Phrase {
	return p.mapField(KindVoltage, FieldValue, f)
}
