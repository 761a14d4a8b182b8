// Package cpso provides the shared pieces of a constrained particle swarm
// optimizer: points with feasibility-aware dominance, objective functions
// and wrappers, box bounds, linear constraints and seedable random streams.
// The swarm itself lives in github.com/rwcarlsen/cpso/swarm.
package cpso

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Point is an immutable position together with the objective values
// evaluated there.  Positions are copied in and out so a Point can be held
// as a snapshot while the particle it came from keeps moving.
type Point struct {
	pos    []float64
	Cost   float64
	Infeas float64
}

// NewPoint copies pos into a new point with the given cost and
// infeasibility.
func NewPoint(pos []float64, cost, infeas float64) Point {
	cpos := make([]float64, len(pos))
	copy(cpos, pos)
	return Point{pos: cpos, Cost: cost, Infeas: infeas}
}

// Unevaluated returns a point at pos with infinite cost and infeasibility.
func Unevaluated(pos []float64) Point {
	return NewPoint(pos, math.Inf(1), math.Inf(1))
}

func (p Point) At(i int) float64 { return p.pos[i] }

func (p Point) Len() int { return len(p.pos) }

func (p Point) Pos() []float64 {
	pos := make([]float64, len(p.pos))
	copy(pos, p.pos)
	return pos
}

// Feasible reports whether p violates no constraints.
func (p Point) Feasible() bool { return p.Infeas == 0 }

// Dominates reports whether p is at least as feasible as q and strictly
// cheaper.  This is a strict partial order: two points can each fail to
// dominate the other.
func (p Point) Dominates(q Point) bool {
	return p.Infeas <= q.Infeas && p.Cost < q.Cost
}

func (p Point) String() string {
	return fmt.Sprintf("{cost=%v infeas=%v x=%v}", p.Cost, p.Infeas, p.pos)
}

func hashPos(pos []float64) [sha1.Size]byte {
	data := make([]byte, len(pos)*8)
	for i, x := range pos {
		binary.BigEndian.PutUint64(data[i*8:], math.Float64bits(x))
	}
	return sha1.Sum(data)
}

type Objectiver interface {
	// Objective evaluates the variables in v and returns the cost to
	// minimize and an aggregate constraint violation infeas >= 0 where zero
	// means feasible.  Implementations must be deterministic.  A non-nil
	// error aborts the optimization run that requested the evaluation.
	Objective(v []float64) (cost, infeas float64, err error)
}

// Func adapts a plain function that cannot fail to an Objectiver.
type Func func(v []float64) (cost, infeas float64)

func (fn Func) Objective(v []float64) (float64, float64, error) {
	c, inf := fn(v)
	return c, inf, nil
}

type cached struct {
	cost, infeas float64
}

// Cache memoizes objective evaluations by a hash of the exact position.
// Failed evaluations are not cached.  It is safe for concurrent use if the
// wrapped objective is.
type Cache struct {
	Objectiver
	mu    sync.Mutex
	cache map[[sha1.Size]byte]cached
	hits  int
}

func NewCache(obj Objectiver) *Cache {
	return &Cache{
		Objectiver: obj,
		cache:      map[[sha1.Size]byte]cached{},
	}
}

func (c *Cache) Objective(v []float64) (float64, float64, error) {
	h := hashPos(v)
	c.mu.Lock()
	if r, ok := c.cache[h]; ok {
		c.hits++
		c.mu.Unlock()
		return r.cost, r.infeas, nil
	}
	c.mu.Unlock()

	cost, infeas, err := c.Objectiver.Objective(v)
	if err != nil {
		return cost, infeas, err
	}

	c.mu.Lock()
	c.cache[h] = cached{cost, infeas}
	c.mu.Unlock()
	return cost, infeas, nil
}

// Hits returns the number of evaluations answered from the cache.
func (c *Cache) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Counter counts calls to the wrapped objective.
type Counter struct {
	Objectiver
	n atomic.Int64
}

func NewCounter(obj Objectiver) *Counter { return &Counter{Objectiver: obj} }

func (c *Counter) Objective(v []float64) (float64, float64, error) {
	c.n.Add(1)
	return c.Objectiver.Objective(v)
}

func (c *Counter) Count() int { return int(c.n.Load()) }

// ObjectiveLogger logs every evaluation of the wrapped objective at debug
// level.
type ObjectiveLogger struct {
	Objectiver
	Log   *zap.Logger
	count atomic.Int64
}

func NewObjectiveLogger(obj Objectiver, log *zap.Logger) *ObjectiveLogger {
	return &ObjectiveLogger{Objectiver: obj, Log: log}
}

func (ol *ObjectiveLogger) Objective(v []float64) (float64, float64, error) {
	cost, infeas, err := ol.Objectiver.Objective(v)

	n := ol.count.Add(1)
	ol.Log.Debug("objective evaluated",
		zap.Int64("eval", n),
		zap.Float64s("x", v),
		zap.Float64("cost", cost),
		zap.Float64("infeas", infeas),
		zap.Error(err),
	)
	return cost, infeas, err
}
