// Package rng is the seeded generator used to build generative phrases.
// Output depends only on the seed string and the order of calls.
package rng

import (
	"math"
	"unicode/utf16"
)

const (
	modulus    = 1<<31 - 1
	multiplier = 48271
	scale      = 1 << 31
)

// HashSeed folds a string into 32 bits with h = h*31 + c over its UTF-16 code units.
func HashSeed(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	return h
}

// Rand is a multiplicative linear congruential generator (MINSTD, a = 48271).
type Rand struct {
	state int64
}

// New returns a generator seeded from the hash of seed.
func New(seed string) *Rand {
	return NewFromInt(HashSeed(seed))
}

// NewFromInt seeds the generator directly. The seed is reduced into
// [1, modulus-1]; a zero seed would otherwise stick the generator at zero.
func NewFromInt(seed int32) *Rand {
	s := int64(seed) % modulus
	if s < 0 {
		s += modulus
	}
	if s == 0 {
		s = 1
	}
	return &Rand{state: s}
}

func (r *Rand) next() float64 {
	r.state = r.state * multiplier % modulus
	return float64(r.state) / scale
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 { return r.next() }

// Float64n returns a value in [0, hi).
func (r *Rand) Float64n(hi float64) float64 { return r.next() * hi }

// Float64Range returns a value in [lo, hi).
func (r *Rand) Float64Range(lo, hi float64) float64 { return lo + r.next()*(hi-lo) }

// Int returns 0 or 1.
func (r *Rand) Int() int { return int(math.Floor(r.next() * 2)) }

// IntUpTo returns an integer in [0, hi], both ends inclusive.
func (r *Rand) IntUpTo(hi int) int { return int(math.Floor(r.next() * float64(hi+1))) }

// IntRange returns an integer in [lo, hi], both ends inclusive.
func (r *Rand) IntRange(lo, hi int) int {
	return lo + int(math.Floor(r.next()*float64(hi-lo+1)))
}
