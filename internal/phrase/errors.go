package phrase

import "github.com/pkg/errors"

var (
	// ErrConstruction reports malformed phrase syntax: bad durations,
	// unknown items given to Of, fields a kind does not carry.
	ErrConstruction = errors.New("phrase construction error")

	// ErrInfiniteLoop reports a construction that would never advance beat time.
	ErrInfiniteLoop = errors.New("phrase has no delays to advance time")
)
