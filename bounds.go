package cpso

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Bounds are the box bounds Lower[i] <= x[i] <= Upper[i] of a problem.  The
// number of dimensions is len(Lower).
type Bounds struct {
	Lower []float64
	Upper []float64
}

// NewBounds copies and validates lower and upper.  Both must be non-empty,
// of equal length, free of NaNs and satisfy lower[i] <= upper[i].
func NewBounds(lower, upper []float64) (*Bounds, error) {
	if len(lower) == 0 {
		return nil, errors.Wrap(ErrBounds, "zero dimensions")
	} else if !floats.EqualLengths(lower, upper) {
		return nil, errors.Wrapf(ErrBounds, "lower has %v dims, upper has %v", len(lower), len(upper))
	} else if floats.HasNaN(lower) || floats.HasNaN(upper) {
		return nil, errors.Wrap(ErrBounds, "NaN bound")
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, errors.Wrapf(ErrBounds, "dim %v: lower %v > upper %v", i, lower[i], upper[i])
		}
	}
	return &Bounds{
		Lower: append([]float64{}, lower...),
		Upper: append([]float64{}, upper...),
	}, nil
}

func (b *Bounds) Len() int { return len(b.Lower) }

func (b *Bounds) Width(i int) float64 { return b.Upper[i] - b.Lower[i] }

func (b *Bounds) Contains(x []float64) bool {
	return b.Violation(x) == 0
}

// Violation returns the summed distance of x outside of the box.
func (b *Bounds) Violation(x []float64) float64 {
	tot := 0.0
	for i, v := range x {
		if v < b.Lower[i] {
			tot += b.Lower[i] - v
		} else if v > b.Upper[i] {
			tot += v - b.Upper[i]
		}
	}
	return tot
}

// Rand returns a position drawn uniformly from the box.
func (b *Bounds) Rand(r *Rand) []float64 {
	pos := make([]float64, b.Len())
	for i := range pos {
		pos[i] = r.Unif(b.Lower[i], b.Upper[i])
	}
	return pos
}

// LinConstr holds linear constraints "Low <= A*x <= Up".  Infinite entries
// in Low or Up make a row one-sided.
type LinConstr struct {
	Low []float64
	A   *mat.Dense
	Up  []float64
}

func NewLinConstr(low []float64, A *mat.Dense, up []float64) (*LinConstr, error) {
	r, _ := A.Dims()
	if len(low) != r || len(up) != r {
		return nil, errors.Wrapf(ErrConfig, "constraint matrix has %v rows, low %v, up %v", r, len(low), len(up))
	}
	for i := range low {
		if low[i] > up[i] {
			return nil, errors.Wrapf(ErrConfig, "constraint row %v: low %v > up %v", i, low[i], up[i])
		}
	}
	return &LinConstr{Low: low, A: A, Up: up}, nil
}

// Dims returns the number of variables constrained.
func (c *LinConstr) Dims() int {
	_, n := c.A.Dims()
	return n
}

// Stack converts the constraints into the single system "A*x <= b".  Each
// finite upper bound contributes row a_i with b_i = up_i and each finite
// lower bound contributes -a_i with b_i = -low_i.  ranges holds the
// up-low span for each stacked row (1 where the span is infinite or zero)
// and is used to normalize violations.
func (c *LinConstr) Stack() (A *mat.Dense, b []float64, ranges []float64) {
	nr, nc := c.A.Dims()
	rows := []float64{}
	for i := 0; i < nr; i++ {
		span := c.Up[i] - c.Low[i]
		if math.IsInf(span, 0) || span == 0 {
			span = 1
		}
		row := mat.Row(nil, i, c.A)
		if !math.IsInf(c.Up[i], 1) {
			rows = append(rows, row...)
			b = append(b, c.Up[i])
			ranges = append(ranges, span)
		}
		if !math.IsInf(c.Low[i], -1) {
			floats.Scale(-1, row)
			rows = append(rows, row...)
			b = append(b, -c.Low[i])
			ranges = append(ranges, span)
		}
	}
	if len(b) == 0 {
		return nil, nil, nil
	}
	return mat.NewDense(len(b), nc, rows), b, ranges
}

// Infeasibility returns the sum of the violations of x, each normalized by
// the range of its constraint row.  It is zero iff x satisfies all
// constraints.
func (c *LinConstr) Infeasibility(x []float64) float64 {
	A, b, ranges := c.Stack()
	if A == nil {
		return 0
	}
	ax := mat.NewVecDense(len(b), nil)
	ax.MulVec(A, mat.NewVecDense(len(x), append([]float64{}, x...)))

	howbad := 0.0
	for i := range b {
		if diff := ax.AtVec(i) - b[i]; diff > 0 {
			howbad += diff / ranges[i]
		}
	}
	return howbad
}

type linConstrObj struct {
	Objectiver
	c *LinConstr
}

// WithLinConstr returns an objective that adds the infeasibility of the
// linear constraints c to the infeasibility reported by obj.
func WithLinConstr(obj Objectiver, c *LinConstr) Objectiver {
	return linConstrObj{Objectiver: obj, c: c}
}

func (o linConstrObj) Objective(v []float64) (float64, float64, error) {
	cost, infeas, err := o.Objectiver.Objective(v)
	return cost, infeas + o.c.Infeasibility(v), err
}
