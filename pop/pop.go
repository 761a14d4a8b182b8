// Package pop generates initial swarm positions.
package pop

import (
	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"
	"github.com/rwcarlsen/cpso"
	"github.com/rwcarlsen/cpso/mesh"
	"gonum.org/v1/gonum/mat"
)

// New returns n points drawn uniformly from the box b.
func New(n int, b *cpso.Bounds, rng *cpso.Rand) [][]float64 {
	points := make([][]float64, n)
	for i := range points {
		points[i] = b.Rand(rng)
	}
	return points
}

type item struct {
	pos    []float64
	howbad float64
	seq    int
}

func (p1 item) Less(than llrb.Item) bool {
	p2 := than.(item)
	if p1.howbad == p2.howbad {
		return p1.seq < p2.seq
	}
	return p1.howbad < p2.howbad
}

// NewConstr tries to generate a random population of n feasible points
// satisfying the linear constraints c within the box b.  NewConstr draws
// random points from the box and keeps all feasible ones.  It queues up the
// least unfavorable infeasible points in case n feasible ones cannot be found
// within maxiter draws; nbad is the number of those in the result.
func NewConstr(n, maxiter int, b *cpso.Bounds, c *cpso.LinConstr, rng *cpso.Rand) (points [][]float64, nbad, iter int) {
	violaters := llrb.New()
	points = make([][]float64, 0, n)
	for i := 0; i < maxiter; i++ {
		pos := b.Rand(rng)
		howbad := c.Infeasibility(pos)
		if howbad == 0 {
			points = append(points, pos)
			if len(points) == n {
				return points, 0, i + 1
			}
			continue
		}

		violaters.InsertNoReplace(item{pos: pos, howbad: howbad, seq: i})
		for violaters.Len() > n-len(points) {
			violaters.DeleteMax()
		}
	}

	nbad = n - len(points)
	for len(points) < n && violaters.Len() > 0 {
		points = append(points, violaters.DeleteMin().(item).pos)
	}
	return points, nbad, maxiter
}

// NewProjected draws n random points from the box b and moves each
// infeasible one to the nearest point satisfying both c and b.
func NewProjected(n int, b *cpso.Bounds, c *cpso.LinConstr, rng *cpso.Rand) ([][]float64, error) {
	A, rhs := boxed(b, c)

	points := make([][]float64, n)
	for i := range points {
		pos := b.Rand(rng)
		proj, err := mesh.Nearest(pos, A, rhs)
		if err != nil {
			return nil, errors.Wrapf(err, "projecting point %v", i)
		}
		// round off can leave projections a hair outside the box
		for j := range proj {
			proj[j] = min(max(proj[j], b.Lower[j]), b.Upper[j])
		}
		points[i] = proj
	}
	return points, nil
}

// boxed stacks c together with the box rows "x <= up" and "-x <= -low" into
// a single "A x <= rhs" system.
func boxed(b *cpso.Bounds, c *cpso.LinConstr) (*mat.Dense, []float64) {
	n := b.Len()
	box := mat.NewDense(2*n, n, nil)
	rhs := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		box.Set(2*i, i, 1)
		box.Set(2*i+1, i, -1)
		rhs = append(rhs, b.Upper[i], -b.Lower[i])
	}

	A, cb, _ := c.Stack()
	if A == nil {
		return box, rhs
	}
	r, _ := A.Dims()
	stacked := mat.NewDense(r+2*n, n, nil)
	stacked.Stack(A, box)
	return stacked, append(cb, rhs...)
}
