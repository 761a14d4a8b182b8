package cpso

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// golden-ratio increment used to derive the second PCG word from the seed
const seedMix = 0x9e3779b97f4a7c15

// Rand is an explicitly owned uniform random stream.  Two Rands created
// with the same seed produce identical draws.  A Rand is not safe for
// concurrent use; use Split to hand independent streams to goroutines.
type Rand struct {
	src *rand.PCG
	r   *rand.Rand
}

func NewRand(seed uint64) *Rand {
	src := rand.NewPCG(seed, seed^seedMix)
	return &Rand{src: src, r: rand.New(src)}
}

// Float64 returns a uniform draw in [0,1).
func (r *Rand) Float64() float64 { return r.r.Float64() }

// Unif returns a uniform draw in [lo,hi).  If lo == hi, lo is returned.
func (r *Rand) Unif(lo, hi float64) float64 {
	return distuv.Uniform{Min: lo, Max: hi, Src: r.src}.Rand()
}

// IntRange returns a uniform integer in [lo,hi).  It panics if hi <= lo.
func (r *Rand) IntRange(lo, hi int) int {
	return lo + r.r.IntN(hi-lo)
}

// Split derives a new independent stream seeded from r.  Splitting the
// same stream in the same order always yields the same children.
func (r *Rand) Split() *Rand {
	return NewRand(r.r.Uint64())
}
