package phrase

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates the action variants.
type Kind int

const (
	KindDelay Kind = iota + 1
	KindGate
	KindVoltage
	KindCheckpoint
	KindLoopStart
	KindLoopEnd
)

func (k Kind) String() string {
	switch k {
	case KindDelay:
		return "delay"
	case KindGate:
		return "gate"
	case KindVoltage:
		return "voltage"
	case KindCheckpoint:
		return "checkpoint"
	case KindLoopStart:
		return "loop-start"
	case KindLoopEnd:
		return "loop-end"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool { return k >= KindDelay && k <= KindLoopEnd }

// Action is one event of a phrase. Which fields are meaningful depends on Kind:
//
//	Delay      Duration
//	Gate       Index, Duration
//	Voltage    Index, Value
//	Checkpoint Label
//
// Durations are in beats.
type Action struct {
	Kind     Kind
	Index    int
	Duration float64
	Value    float64
	Label    string
}

func (a Action) String() string {
	switch a.Kind {
	case KindDelay:
		return fmt.Sprintf("Delay(%g)", a.Duration)
	case KindGate:
		return fmt.Sprintf("Gate(%d, %g)", a.Index, a.Duration)
	case KindVoltage:
		return fmt.Sprintf("Voltage(%d, %g)", a.Index, a.Value)
	case KindCheckpoint:
		return fmt.Sprintf("Checkpoint(%q)", a.Label)
	case KindLoopStart:
		return "LoopStart"
	case KindLoopEnd:
		return "LoopEnd"
	}
	return a.Kind.String()
}

// Default gate lengths for the two gate profiles.
const (
	ShortGateDuration = 1.0 / 512
	LongGateDuration  = 1.0 / 64
)

// ParseDuration reads a beat duration written either as a plain number
// ("0.25") or as a fraction ("1/4").
func ParseDuration(spec string) (float64, error) {
	s := strings.TrimSpace(spec)
	if num, den, ok := strings.Cut(s, "/"); ok {
		q, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, errors.Wrapf(ErrConstruction, "bad duration numerator in %q", spec)
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, errors.Wrapf(ErrConstruction, "bad duration denominator in %q", spec)
		}
		if d == 0 {
			return 0, errors.Wrapf(ErrConstruction, "zero denominator in duration %q", spec)
		}
		return checkDuration(q/d, spec)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrConstruction, "bad duration %q", spec)
	}
	return checkDuration(v, spec)
}

func checkDuration(v float64, spec string) (float64, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Wrapf(ErrConstruction, "duration %q must be a finite non-negative number", spec)
	}
	return v, nil
}

// Delay parses spec into a Delay action.
func Delay(spec string) (Action, error) {
	d, err := ParseDuration(spec)
	if err != nil {
		return Action{}, err
	}
	return DelayBeats(d), nil
}

// DelayBeats is a Delay of the given number of beats.
func DelayBeats(beats float64) Action {
	return Action{Kind: KindDelay, Duration: beats}
}

// GateBeats raises gate index for the given number of beats.
func GateBeats(index int, beats float64) Action {
	return Action{Kind: KindGate, Index: index, Duration: beats}
}

// Voltage sets voltage output index to value.
func Voltage(value float64, index int) Action {
	return Action{Kind: KindVoltage, Index: index, Value: value}
}

// VoltageAt binds a voltage channel.
func VoltageAt(index int) func(value float64) Action {
	return func(value float64) Action { return Voltage(value, index) }
}

// Checkpoint marks a position that can be restarted from by label.
func Checkpoint(label string) Action {
	return Action{Kind: KindCheckpoint, Label: label}
}

func LoopStart() Action { return Action{Kind: KindLoopStart} }
func LoopEnd() Action   { return Action{Kind: KindLoopEnd} }
