// Package bench provides tools for testing solvers against benchmark
// optimization functions from
// http://en.wikipedia.org/wiki/Test_functions_for_optimization.
package bench

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/cpso"
	"github.com/rwcarlsen/cpso/pop"
	"github.com/rwcarlsen/cpso/swarm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	sin  = math.Sin
	cos  = math.Cos
	abs  = math.Abs
	exp  = math.Exp
	sqrt = math.Sqrt
	pow  = math.Pow
)

var AllFuncs = []Func{
	Sphere{NDim: 1},
	Sphere{NDim: 10},
	Ackley{},
	CrossTray{},
	Eggholder{},
	HolderTable{},
	Schaffer2{},
	Styblinski{NDim: 1},
	Styblinski{NDim: 10},
	Rosenbrock{NDim: 2},
	Rosenbrock{NDim: 10},
	TwoRegion{},
	Budget{NDim: 5},
	Golinski{},
}

type Func interface {
	// Eval returns the cost and infeasibility of v.  Points outside
	// Bounds have infinite cost.
	Eval(v []float64) (cost, infeas float64)
	Bounds() (low, up []float64)
	Optima() []cpso.Point
	Name() string
}

// Constrained is implemented by functions whose feasible region is (or
// contains) a linear polytope useful for seeding feasible populations.
type Constrained interface {
	Func
	Constraints() *cpso.LinConstr
}

// ByName returns the function in AllFuncs named name, ignoring case.
func ByName(name string) (Func, error) {
	for _, fn := range AllFuncs {
		if strings.EqualFold(fn.Name(), name) {
			return fn, nil
		}
	}
	return nil, errors.Errorf("unknown benchmark function %q", name)
}

// Objective adapts fn for use by the optimizer.
func Objective(fn Func) cpso.Objectiver { return cpso.Func(fn.Eval) }

type Sphere struct {
	NDim int
}

func (fn Sphere) Name() string { return fmt.Sprintf("Sphere_%vD", fn.NDim) }

func (fn Sphere) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}
	return floats.Dot(v, v), 0
}

func (fn Sphere) Bounds() (low, up []float64) { return cube(fn.NDim, -10, 10) }

func (fn Sphere) Optima() []cpso.Point {
	return []cpso.Point{cpso.NewPoint(make([]float64, fn.NDim), 0, 0)}
}

type Ackley struct{}

func (fn Ackley) Name() string { return "Ackley" }

func (fn Ackley) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	x := v[0]
	y := v[1]
	return -20*exp(-0.2*sqrt(0.5*(x*x+y*y))) -
		exp(0.5*(cos(2*math.Pi*x)+cos(2*math.Pi*y))) +
		20 + math.E, 0
}

func (fn Ackley) Bounds() (low, up []float64) {
	return []float64{-5, -5}, []float64{5, 5}
}

func (fn Ackley) Optima() []cpso.Point {
	return []cpso.Point{
		cpso.NewPoint([]float64{0, 0}, 0, 0),
	}
}

type CrossTray struct{}

func (fn CrossTray) Name() string { return "CrossTray" }

func (fn CrossTray) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	x := v[0]
	y := v[1]
	return -.0001 * pow(abs(sin(x)*sin(y)*exp(abs(100-sqrt(x*x+y*y)/math.Pi)))+1, 0.1), 0
}

func (fn CrossTray) Bounds() (low, up []float64) {
	return []float64{-10, -10}, []float64{10, 10}
}

func (fn CrossTray) Optima() []cpso.Point {
	return []cpso.Point{
		cpso.NewPoint([]float64{1.34941, -1.34941}, -2.06261, 0),
		cpso.NewPoint([]float64{1.34941, 1.34941}, -2.06261, 0),
		cpso.NewPoint([]float64{-1.34941, 1.34941}, -2.06261, 0),
		cpso.NewPoint([]float64{-1.34941, -1.34941}, -2.06261, 0),
	}
}

type Eggholder struct{}

func (fn Eggholder) Name() string { return "Eggholder" }

func (fn Eggholder) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	x := v[0]
	y := v[1]
	return -(y+47)*sin(sqrt(abs(y+x/2+47))) - x*sin(sqrt(abs(x-(y+47)))), 0
}

func (fn Eggholder) Bounds() (low, up []float64) {
	return []float64{-512, -512}, []float64{512, 512}
}

func (fn Eggholder) Optima() []cpso.Point {
	return []cpso.Point{
		cpso.NewPoint([]float64{512, 404.2319}, -959.6407, 0),
	}
}

type HolderTable struct{}

func (fn HolderTable) Name() string { return "HolderTable" }

func (fn HolderTable) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	x := v[0]
	y := v[1]
	return -abs(sin(x) * cos(y) * exp(abs(1-sqrt(x*x+y*y)/math.Pi))), 0
}

func (fn HolderTable) Bounds() (low, up []float64) {
	return []float64{-10, -10}, []float64{10, 10}
}

func (fn HolderTable) Optima() []cpso.Point {
	return []cpso.Point{
		cpso.NewPoint([]float64{8.05502, 9.66459}, -19.2085, 0),
		cpso.NewPoint([]float64{-8.05502, 9.66459}, -19.2085, 0),
		cpso.NewPoint([]float64{8.05502, -9.66459}, -19.2085, 0),
		cpso.NewPoint([]float64{-8.05502, -9.66459}, -19.2085, 0),
	}
}

type Schaffer2 struct{}

func (fn Schaffer2) Name() string { return "Schaffer2" }

func (fn Schaffer2) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	x := v[0]
	y := v[1]
	return 0.5 + (pow(sin(x*x-y*y), 2)-0.5)/pow(1+.0001*(x*x+y*y), 2), 0
}

func (fn Schaffer2) Bounds() (low, up []float64) {
	return []float64{-100, -100}, []float64{100, 100}
}

func (fn Schaffer2) Optima() []cpso.Point {
	return []cpso.Point{
		cpso.NewPoint([]float64{0, 0}, 0, 0),
	}
}

type Styblinski struct {
	NDim int
}

func (fn Styblinski) Name() string { return fmt.Sprintf("Styblinski_%vD", fn.NDim) }

func (fn Styblinski) Eval(x []float64) (float64, float64) {
	if d := outside(x, fn); d > 0 {
		return math.Inf(1), d
	}

	tot := 0.0
	for _, v := range x {
		tot += pow(v, 4) - 16*pow(v, 2) + 5*v
	}
	return tot / 2, 0
}

func (fn Styblinski) Bounds() (low, up []float64) { return cube(fn.NDim, -5, 5) }

func (fn Styblinski) Optima() []cpso.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = -2.903534
	}
	return []cpso.Point{
		cpso.NewPoint(pos, -39.16599*float64(fn.NDim), 0),
	}
}

type Rosenbrock struct {
	NDim int
}

func (fn Rosenbrock) Name() string { return fmt.Sprintf("Rosenbrock_%vD", fn.NDim) }

func (fn Rosenbrock) Eval(x []float64) (float64, float64) {
	if d := outside(x, fn); d > 0 {
		return math.Inf(1), d
	}

	tot := 0.0
	for i := 0; i < fn.NDim-1; i++ {
		tot += 100*pow(x[i+1]-x[i]*x[i], 2) + pow(x[i]-1, 2)
	}
	return tot, 0
}

func (fn Rosenbrock) Bounds() (low, up []float64) { return cube(fn.NDim, -1000, 1000) }

func (fn Rosenbrock) Optima() []cpso.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = 1
	}
	return []cpso.Point{
		cpso.NewPoint(pos, 0, 0),
	}
}

// TwoRegion has its cheapest point at x=-9 inside the infeasible region
// x < -8.  The feasible minimum is x=5 with cost 1.
type TwoRegion struct{}

func (fn TwoRegion) Name() string { return "TwoRegion" }

func (fn TwoRegion) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	x := v[0]
	if x < -8 {
		return (x + 9) * (x + 9), -8 - x
	}
	return (x-5)*(x-5) + 1, 0
}

func (fn TwoRegion) Bounds() (low, up []float64) {
	return []float64{-10}, []float64{10}
}

func (fn TwoRegion) Optima() []cpso.Point {
	return []cpso.Point{cpso.NewPoint([]float64{5}, 1, 0)}
}

func (fn TwoRegion) Constraints() *cpso.LinConstr {
	return &cpso.LinConstr{
		Low: []float64{-8},
		A:   mat.NewDense(1, 1, []float64{1}),
		Up:  []float64{math.Inf(1)},
	}
}

// Budget is a sphere centered at (1, ..., 1) subject to the linear
// constraint sum(x) <= NDim/2.
type Budget struct {
	NDim int
}

func (fn Budget) Name() string { return fmt.Sprintf("Budget_%vD", fn.NDim) }

func (fn Budget) Eval(v []float64) (float64, float64) {
	if d := outside(v, fn); d > 0 {
		return math.Inf(1), d
	}

	tot := 0.0
	for _, x := range v {
		tot += (x - 1) * (x - 1)
	}
	return tot, fn.Constraints().Infeasibility(v)
}

func (fn Budget) Bounds() (low, up []float64) { return cube(fn.NDim, -5, 5) }

func (fn Budget) Optima() []cpso.Point {
	pos := make([]float64, fn.NDim)
	for i := range pos {
		pos[i] = 0.5
	}
	return []cpso.Point{cpso.NewPoint(pos, 0.25*float64(fn.NDim), 0)}
}

func (fn Budget) Constraints() *cpso.LinConstr {
	row := make([]float64, fn.NDim)
	for i := range row {
		row[i] = 1
	}
	return &cpso.LinConstr{
		Low: []float64{math.Inf(-1)},
		A:   mat.NewDense(1, fn.NDim, row),
		Up:  []float64{float64(fn.NDim) / 2},
	}
}

// Golinski is the speed reducer design problem: minimize the weight of a
// gear box subject to eleven nonlinear design constraints.  Infeasibility
// is the sum of the constraint violations.
type Golinski struct{}

func (fn Golinski) Name() string { return "Golinski" }

func (fn Golinski) Eval(x []float64) (float64, float64) {
	if d := outside(x, fn); d > 0 {
		return math.Inf(1), d
	}

	a := 0.7854 * x[0] * pow(x[1], 2) * (3.3333*pow(x[2], 2) + 14.9334*x[2] - 43.0934)
	b := 1.508 * x[0] * (pow(x[5], 2) + pow(x[6], 2))
	c := 7.4777 * (pow(x[5], 3) + pow(x[6], 3))
	d := 0.7854 * (x[3]*pow(x[5], 2) + x[4]*pow(x[6], 2))

	// each g must be <= 1
	g := []float64{
		27.0 / (x[0] * pow(x[1], 2) * x[2]),
		397.5 / (x[0] * pow(x[1], 2) * pow(x[2], 2)),
		1.93 * pow(x[3], 3) / (x[1] * x[2] * pow(x[5], 4)),
		1.93 * pow(x[4], 3) / (x[1] * x[2] * pow(x[6], 4)),
		sqrt(pow(745*x[3]/x[1]/x[2], 2)+16.9e6) / (110 * pow(x[5], 3)),
		sqrt(pow(745*x[4]/x[1]/x[2], 2)+157.5e6) / (85 * pow(x[6], 3)),
		x[1] * x[2] / 40,
		5 * x[1] / x[0],
		x[0] / 12 / x[1],
		(1.5*x[5] + 1.9) / x[3],
		(1.1*x[6] + 1.9) / x[4],
	}
	infeas := 0.0
	for _, v := range g {
		infeas += math.Max(0, v-1)
	}
	return a - b + c + d, infeas
}

func (fn Golinski) Bounds() (low, up []float64) {
	return []float64{2.6, 0.7, 17, 7.3, 7.3, 2.9, 5.0},
		[]float64{3.6, 0.8, 28, 8.3, 8.3, 3.9, 5.5}
}

func (fn Golinski) Optima() []cpso.Point {
	return []cpso.Point{
		cpso.NewPoint([]float64{3.5, 0.7, 17, 7.3, 7.7153, 3.3502, 5.2867}, 2994.4711, 0),
	}
}

// Seed returns n initial positions for fn.  Constrained functions get
// feasible points where they can be found within maxiter draws.
func Seed(fn Func, n, maxiter int, rng *cpso.Rand) ([][]float64, error) {
	if n < 1 {
		return nil, errors.Wrapf(cpso.ErrSwarmSize, "got %v", n)
	}
	b, err := cpso.NewBounds(fn.Bounds())
	if err != nil {
		return nil, err
	}
	if c, ok := fn.(Constrained); ok {
		points, _, _ := pop.NewConstr(n, maxiter, b, c.Constraints(), rng)
		return points, nil
	}
	return pop.New(n, b, rng), nil
}

// Benchmark iterates it until the best point found is feasible and within
// tol (relative, at least 0.001 absolute) of fn's optimum, maxeval is
// reached or it terminates.
func Benchmark(it *swarm.Iterator, fn Func, tol float64, maxeval int) (best cpso.Point, niter, neval int, err error) {
	optimum := fn.Optima()[0].Cost
	thresh := tol * abs(optimum)
	if 0.001 > thresh {
		thresh = 0.001
	}

	best = it.Best().Point
	for it.State() == swarm.Iterating && it.Neval() < maxeval {
		best, err = it.Iterate()
		if err != nil {
			return best, it.Niter(), it.Neval(), err
		} else if best.Feasible() && abs(optimum-best.Cost) < thresh {
			break
		}
	}
	return best, it.Niter(), it.Neval(), nil
}

// outside returns how far p lies outside fn's bounds.
func outside(p []float64, fn Func) float64 {
	low, up := fn.Bounds()
	d := 0.0
	for i := range p {
		if p[i] < low[i] {
			d += low[i] - p[i]
		} else if p[i] > up[i] {
			d += p[i] - up[i]
		}
	}
	return d
}

func cube(n int, l, u float64) (low, up []float64) {
	low = make([]float64, n)
	up = make([]float64, n)
	for i := range low {
		low[i] = l
		up[i] = u
	}
	return low, up
}
