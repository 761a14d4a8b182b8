package swarm

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rwcarlsen/cpso"
	"github.com/rwcarlsen/cpso/mesh"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"
)

const seed = 7

func TestSphere1D(t *testing.T) {
	best, err := Minimize(sphere, []float64{-10}, []float64{10},
		Particles(20), MaxIter(200), Seed(seed))
	if err != nil {
		t.Fatal(err)
	}
	if best.Cost >= 1e-3 || !best.Feasible() {
		t.Errorf("[ERROR] want cost < 1e-3, got %v at x=%v", best.Cost, best.Pos())
	} else {
		t.Logf("[INFO] cost %v at x=%v", best.Cost, best.Pos())
	}
}

// twoRegion has its cheapest point at x=-9 which is infeasible.  The best
// feasible point is x=5 with cost 1.
var twoRegion = cpso.Func(func(v []float64) (float64, float64) {
	x := v[0]
	if x < -8 {
		return (x + 9) * (x + 9), -8 - x
	}
	return (x-5)*(x-5) + 1, 0
})

func TestFeasibilityFirst(t *testing.T) {
	// the first particle starts feasible and the second at the infeasible
	// minimum.  The global best starts as particle 0, and dominance never
	// lets an infeasible point replace a feasible one, while a cheap
	// infeasible incumbent can keep every feasible point out.  Random
	// starts therefore do not guarantee a feasible answer here.
	it, err := New(twoRegion, []float64{-10}, []float64{10},
		Particles(20), MaxIter(200), Seed(seed),
		InitPoints([]float64{10}, []float64{-9}))
	if err != nil {
		t.Fatal(err)
	}
	if it.Pop[1].Cost != 0 || it.Pop[1].Feasible() {
		t.Fatalf("second particle: want infeasible zero cost start, got %v", it.Pop[1].Point)
	}

	best, err := it.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !best.Feasible() {
		t.Errorf("[ERROR] global best is infeasible: %v", best.Point)
	}
	if math.Abs(best.At(0)-5) > 0.1 {
		t.Errorf("[ERROR] want x near 5, got %v (cost %v)", best.At(0), best.Cost)
	}
}

func TestGlobalBestMonotone(t *testing.T) {
	it, err := New(halfFeasible, []float64{-5, -5}, []float64{5, 5},
		Particles(10), MaxIter(100), Seed(seed))
	if err != nil {
		t.Fatal(err)
	}

	prev := it.Best().Point
	for it.State() == Iterating {
		best, err := it.Iterate()
		if err != nil {
			t.Fatal(err)
		}
		if best.String() != prev.String() && !best.Dominates(prev) {
			t.Fatalf("iter %v: global best %v replaced by non-dominating %v", it.Niter(), prev, best)
		}
		prev = best
	}

	if it.Niter() != 100 {
		t.Errorf("want 100 iterations, got %v", it.Niter())
	}
	if _, err := it.Iterate(); !errors.Is(err, ErrTerminated) {
		t.Errorf("want ErrTerminated after the last iteration, got %v", err)
	}
}

type snapshot struct {
	Id           int
	X, V, PBest  []float64
	Cost, Infeas float64
	BestCost     float64
}

func snap(pop Population) []snapshot {
	var ss []snapshot
	for _, p := range pop {
		ss = append(ss, snapshot{
			Id:       p.Id,
			X:        p.Pos(),
			V:        append([]float64{}, p.Vel...),
			PBest:    p.Best.Pos(),
			Cost:     p.Cost,
			Infeas:   p.Infeas,
			BestCost: p.Best.Cost,
		})
	}
	return ss
}

func runSnap(t *testing.T, opts ...Option) ([]snapshot, []float64) {
	opts = append([]Option{Particles(12), MaxIter(60)}, opts...)
	it, err := New(halfFeasible, []float64{-3, -3, -3}, []float64{3, 3, 3}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	best, err := it.Run()
	if err != nil {
		t.Fatal(err)
	}
	return snap(it.Pop), best.Pos()
}

func TestDeterministic(t *testing.T) {
	pop1, best1 := runSnap(t, Seed(42))
	pop2, best2 := runSnap(t, Seed(42))
	if diff := cmp.Diff(pop1, pop2); diff != "" {
		t.Errorf("same seed, different swarms (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(best1, best2); diff != "" {
		t.Errorf("same seed, different best (-first +second):\n%s", diff)
	}

	pop3, _ := runSnap(t, Seed(43))
	if cmp.Equal(pop1, pop3) {
		t.Errorf("different seeds gave identical swarms")
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq, bseq := runSnap(t, Seed(3))
	par, bpar := runSnap(t, Seed(3), Parallel(4))
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel swarm differs (-sequential +parallel):\n%s", diff)
	}
	if diff := cmp.Diff(bseq, bpar); diff != "" {
		t.Errorf("parallel best differs (-sequential +parallel):\n%s", diff)
	}
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		low, up []float64
		opts    []Option
		want    error
	}{
		{"no particles", []float64{0}, []float64{1}, []Option{Particles(0)}, cpso.ErrSwarmSize},
		{"one iteration", []float64{0}, []float64{1}, []Option{MaxIter(1)}, cpso.ErrMaxIter},
		{"inverted bounds", []float64{1}, []float64{0}, nil, cpso.ErrBounds},
		{"bound length", []float64{0, 0}, []float64{1}, nil, cpso.ErrBounds},
		{"mutation decay", []float64{0}, []float64{1}, []Option{MutationDecay(0)}, cpso.ErrConfig},
		{"accept", []float64{0}, []float64{1}, []Option{MutationAccept(1.5)}, cpso.ErrConfig},
		{"workers", []float64{0}, []float64{1}, []Option{Parallel(-1)}, cpso.ErrConfig},
		{"vmax dims", []float64{0}, []float64{1}, []Option{Vmax([]float64{1, 1})}, cpso.ErrConfig},
		{"init outside", []float64{0}, []float64{1}, []Option{InitPoints([]float64{2})}, cpso.ErrConfig},
		{"too many init", []float64{0}, []float64{1}, []Option{Particles(1), InitPoints([]float64{0}, []float64{1})}, cpso.ErrConfig},
	}

	for _, test := range tests {
		_, err := New(sphere, test.low, test.up, test.opts...)
		if !errors.Is(err, test.want) {
			t.Errorf("%v: want error %v, got %v", test.name, test.want, err)
		}
	}
}

var errFake = errors.New("simulation crashed")

type failAfter struct {
	n     int64
	calls atomic.Int64
}

func (f *failAfter) Objective(v []float64) (float64, float64, error) {
	if f.calls.Add(1) > f.n {
		return 0, 0, errFake
	}
	c, inf := sphere(v)
	return c, inf, nil
}

func TestObjectiveError(t *testing.T) {
	// construction
	_, err := New(&failAfter{n: 3}, []float64{-1}, []float64{1}, Particles(5))
	if !errors.Is(err, errFake) {
		t.Errorf("construction: want objective error, got %v", err)
	}

	// iteration
	for _, workers := range []int{0, 4} {
		it, err := New(&failAfter{n: 50}, []float64{-1}, []float64{1}, Particles(5), Parallel(workers))
		if err != nil {
			t.Fatal(err)
		}
		_, err = it.Run()
		if !errors.Is(err, errFake) {
			t.Errorf("workers=%v: want objective error, got %v", workers, err)
		}
		if it.State() != Terminated {
			t.Errorf("workers=%v: want terminated state, got %v", workers, it.State())
		}
		if it.Niter() >= it.MaxIter {
			t.Errorf("workers=%v: objective failure did not stop the run: %v iterations", workers, it.Niter())
		}
		if _, err := it.Iterate(); !errors.Is(err, ErrTerminated) {
			t.Errorf("workers=%v: want ErrTerminated, got %v", workers, err)
		}
	}
}

func TestSchedules(t *testing.T) {
	it, err := New(sphere, []float64{0}, []float64{1})
	if err != nil {
		t.Fatal(err)
	}

	if got, want := it.Inertia(0), (500-0.09)/500+0.01; math.Abs(got-want) > 1e-15 {
		t.Errorf("inertia(0): want %v, got %v", want, got)
	}
	if got, want := it.Inertia(250), (250-0.09)/500+0.01; math.Abs(got-want) > 1e-15 {
		t.Errorf("inertia(250): want %v, got %v", want, got)
	}
	if got := it.MutationProb(0); got != 1 {
		t.Errorf("mutation(0): want 1, got %v", got)
	}
	if got := it.MutationProb(it.MaxIter - 1); got != 0 {
		t.Errorf("mutation(last): want 0, got %v", got)
	}
	prev := 2.0
	for i := 0; i < it.MaxIter; i++ {
		pm := it.MutationProb(i)
		if pm > prev || pm < 0 || pm > 1 {
			t.Fatalf("mutation(%v) = %v after %v", i, pm, prev)
		}
		prev = pm
	}

	it, err = New(sphere, []float64{0}, []float64{1}, FixedInertia(0.4))
	if err != nil {
		t.Fatal(err)
	}
	if it.Inertia(0) != 0.4 || it.Inertia(300) != 0.4 {
		t.Errorf("fixed inertia not used: %v, %v", it.Inertia(0), it.Inertia(300))
	}
}

func TestConstriction(t *testing.T) {
	const want = 0.7298437881283576
	if got := Constriction(2.05, 2.05); math.Abs(got-want) > 1e-12 {
		t.Errorf("want %v, got %v", want, got)
	}

	it, err := New(sphere, []float64{0}, []float64{1}, ConstrictionFactors(2.05, 2.05))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(it.Cognition-want*2.05) > 1e-12 || math.Abs(it.Inertia(10)-want) > 1e-12 {
		t.Errorf("constriction factors not applied: c1=%v w=%v", it.Cognition, it.Inertia(10))
	}
}

func TestInitPoints(t *testing.T) {
	pts := [][]float64{{1, 2}, {-1, 0.5}}
	it, err := New(sphere, []float64{-2, -2}, []float64{2, 2}, Particles(4), InitPoints(pts...))
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range pts {
		if diff := cmp.Diff(want, it.Pop[i].Pos()); diff != "" {
			t.Errorf("particle %v position (-want +got):\n%s", i, diff)
		}
	}
	if it.Neval() != 4 {
		t.Errorf("want 4 initial evaluations, got %v", it.Neval())
	}
}

func TestVmax(t *testing.T) {
	it, err := New(sphere, []float64{-10, -10}, []float64{10, 10}, VmaxAll(0.5), MaxIter(20))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0.5, 0.5}, it.Vmax); diff != "" {
		t.Fatalf("vmax (-want +got):\n%s", diff)
	}
	for it.State() == Iterating {
		if _, err := it.Iterate(); err != nil {
			t.Fatal(err)
		}
		for _, p := range it.Pop {
			for _, v := range p.Vel {
				if math.Abs(v) > 0.5 {
					t.Fatalf("particle %v speed %v exceeds vmax", p.Id, v)
				}
			}
		}
	}
}

func TestMeshOption(t *testing.T) {
	var offgrid atomic.Int64
	obj := cpso.Func(func(v []float64) (float64, float64) {
		for _, x := range v {
			if x != math.Round(x) {
				offgrid.Add(1)
			}
		}
		return sphere(v)
	})

	best, err := Minimize(obj, []float64{-10.5, -10.5}, []float64{10.5, 10.5},
		Mesh(mesh.Integer{}), MaxIter(50), Seed(seed))
	if err != nil {
		t.Fatal(err)
	}
	if n := offgrid.Load(); n > 0 {
		t.Errorf("%v evaluations off the integer mesh", n)
	}
	if best.Cost != math.Round(best.Cost) {
		t.Errorf("best cost %v is not integral", best.Cost)
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Particles = 7
	cfg.MaxIter = 30
	cfg.SingleBounce = true
	cfg.Workers = 2
	cfg.Vmax = 2

	it, err := New(sphere, []float64{-1, -1}, []float64{1, 1}, cfg.Options()...)
	if err != nil {
		t.Fatal(err)
	}
	if len(it.Pop) != 7 || it.MaxIter != 30 || it.Workers != 2 || it.Reflect != SingleBounce {
		t.Errorf("config not applied: %v particles, maxiter %v, workers %v, bounce %v",
			len(it.Pop), it.MaxIter, it.Workers, it.Reflect)
	}
	if it.Mu != DefaultMutationDecay || it.Accept != DefaultAccept || it.Cognition != DefaultCognition {
		t.Errorf("defaults lost: mu=%v accept=%v c1=%v", it.Mu, it.Accept, it.Cognition)
	}
	if diff := cmp.Diff([]float64{2, 2}, it.Vmax); diff != "" {
		t.Errorf("vmax (-want +got):\n%s", diff)
	}
}

func TestDb(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	const npar, niter = 6, 15
	it, err := New(sphere, []float64{-1, -1}, []float64{1, 1},
		Particles(npar), MaxIter(niter), DB(db))
	if err != nil {
		t.Fatal(err)
	}
	best, err := it.Run()
	if err != nil {
		t.Fatal(err)
	}

	counts := map[string]int{
		TblParticles:     npar * niter,
		TblParticlesBest: npar * niter,
		TblBest:          niter,
	}
	for tbl, want := range counts {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM "+tbl+" WHERE run = ?", it.RunId.String()).Scan(&count)
		if err != nil {
			t.Errorf("[ERROR] %v table query failed: %v", tbl, err)
		} else if count != want {
			t.Errorf("[ERROR] %v table: want %v rows, got %v", tbl, want, count)
		}
	}

	var cost, x0 float64
	err = db.QueryRow("SELECT cost,x0 FROM "+TblBest+" WHERE iter = ?", niter).Scan(&cost, &x0)
	if err != nil {
		t.Fatal(err)
	}
	if cost != best.Cost || x0 != best.At(0) {
		t.Errorf("last recorded best (%v, x0=%v) differs from %v", cost, x0, best.Point)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	it, err := New(sphere, []float64{-4}, []float64{4}, Particles(8), MaxIter(40), Observe(m))
	if err != nil {
		t.Fatal(err)
	}
	best, err := it.Run()
	if err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.Iterations); got != 40 {
		t.Errorf("iterations: want 40, got %v", got)
	}
	// evaluations made while initializing are reported with the first
	// iteration
	if got, want := testutil.ToFloat64(m.Evaluations), float64(it.Neval()); got != want {
		t.Errorf("evaluations: want %v, got %v", want, got)
	}
	trials, accepts := it.Pop.Mutations()
	if got := testutil.ToFloat64(m.MutationTrials); got != float64(trials) {
		t.Errorf("mutation trials: want %v, got %v", trials, got)
	}
	if got := testutil.ToFloat64(m.MutationAccepts); got != float64(accepts) {
		t.Errorf("mutation accepts: want %v, got %v", accepts, got)
	}
	if got := testutil.ToFloat64(m.BestCost); got != best.Cost {
		t.Errorf("best cost: want %v, got %v", best.Cost, got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 6 {
		t.Errorf("want 6 registered metrics, got %v (%v)", n, err)
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, err := Minimize(sphere, []float64{-1}, []float64{1}, MaxIter(5), Logger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}

	if n := logs.FilterMessage("swarm initialized").Len(); n != 1 {
		t.Errorf("want 1 init entry, got %v", n)
	}
	if n := logs.FilterMessage("iteration complete").Len(); n != 5 {
		t.Errorf("want 5 iteration entries, got %v", n)
	}
	if n := logs.FilterMessage("swarm terminated").Len(); n != 1 {
		t.Errorf("want 1 termination entry, got %v", n)
	}
}

func TestReport(t *testing.T) {
	it, err := New(halfFeasible, []float64{-1, -1}, []float64{1, 1}, Particles(3), MaxIter(5))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := it.Run(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := it.Pop[0].Info(&buf); err != nil {
		t.Fatal(err)
	}
	info := buf.String()
	for _, s := range []string{"particle 0:", "pBest:", "infeasibility ="} {
		if !strings.Contains(info, s) {
			t.Errorf("info output missing %q:\n%s", s, info)
		}
	}

	buf.Reset()
	if err := WriteCSV(&buf, it.Pop...); err != nil {
		t.Fatal(err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 4 {
		t.Fatalf("want 4 csv records, got %v", len(recs))
	}
	if diff := cmp.Diff(CSVHeader, recs[0]); diff != "" {
		t.Errorf("csv header (-want +got):\n%s", diff)
	}
	for i, rec := range recs[1:] {
		if len(strings.Split(rec[0], ",")) != 2 || len(strings.Split(rec[3], ",")) != 2 {
			t.Errorf("record %v: bad vector columns %q, %q", i, rec[0], rec[3])
		}
	}
}
