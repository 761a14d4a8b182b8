// Package mesh projects continuous positions onto grids and feasible
// regions.  A swarm can evaluate its objective on a mesh to handle
// discrete or integer variables while particles keep moving continuously.
package mesh

import (
	"fmt"
	"math"

	"github.com/rwcarlsen/cpso"
	"gonum.org/v1/gonum/mat"
)

// Mesh is an interface for projecting arbitrary dimensional points onto some
// kind of (potentially discrete) mesh.
type Mesh interface {
	// Nearest returns the mesh point nearest to p.  It must not modify p
	// and must be safe for concurrent use.
	Nearest(p []float64) []float64
}

// Infinite is a grid-based, linear-axis mesh that extends in all dimensions
// without bounds.  If Origin == nil, the origin is the zero vector of the
// dimension of each point passed to Nearest.  If Basis == nil, a unit basis
// is used.  If Step == 0, the mesh represents continuous space and Nearest
// returns a copy of the point passed to it.
type Infinite struct {
	Origin []float64
	// Basis contains a set of column vectors defining the directions of
	// each mesh axis.
	Basis *mat.Dense
	// Step represents the discretization or grid size of the mesh.
	Step float64
}

// Nearest returns the nearest grid point to p by rounding each dimensional
// position to the nearest grid point.  If the mesh basis is not the identity
// matrix, then p is transformed to the mesh basis before rounding and then
// retransformed back.
func (sm *Infinite) Nearest(p []float64) []float64 {
	if sm.Step == 0 {
		return append([]float64{}, p...)
	} else if l := len(sm.Origin); l != 0 && l != len(p) {
		panic(fmt.Sprintf("origin len %v incompatible with point len %v", l, len(p)))
	}

	origin := sm.Origin
	if len(origin) == 0 {
		origin = make([]float64, len(p))
	}

	// translate p based on origin and transform to the mesh basis
	v := mat.NewVecDense(len(p), nil)
	for i := range p {
		v.SetVec(i, p[i]-origin[i])
	}
	if sm.Basis != nil {
		var inv mat.Dense
		if err := inv.Inverse(sm.Basis); err != nil {
			panic("mesh basis is singular: " + err.Error())
		}
		var w mat.VecDense
		w.MulVec(&inv, v)
		v = &w
	}

	for i := 0; i < v.Len(); i++ {
		v.SetVec(i, math.Round(v.AtVec(i)/sm.Step)*sm.Step)
	}

	// transform back to standard space
	if sm.Basis != nil {
		var w mat.VecDense
		w.MulVec(sm.Basis, v)
		v = &w
	}

	nearest := make([]float64, len(p))
	for i := range nearest {
		nearest[i] = v.AtVec(i) + origin[i]
	}
	return nearest
}

// Bounded clamps points into box bounds before handing them to an
// underlying mesh.
type Bounded struct {
	Lower []float64
	Upper []float64
	core  Mesh
}

func NewBounded(m Mesh, b *cpso.Bounds) *Bounded {
	return &Bounded{
		Lower: b.Lower,
		Upper: b.Upper,
		core:  m,
	}
}

// Nearest returns the nearest bounded grid point to p by sliding each
// dimensional position to the nearest value inside bounds and then rounding
// to the nearest grid point.  Grid points that round back outside the
// bounds are clamped again.
func (m *Bounded) Nearest(p []float64) []float64 {
	pdup := make([]float64, len(p))
	for i := range pdup {
		pdup[i] = math.Min(m.Upper[i], math.Max(m.Lower[i], p[i]))
	}
	near := m.core.Nearest(pdup)
	for i := range near {
		near[i] = math.Min(m.Upper[i], math.Max(m.Lower[i], near[i]))
	}
	return near
}

// Integer rounds every coordinate produced by the wrapped mesh to the
// nearest integer.  A nil Mesh rounds p directly.
type Integer struct {
	Mesh
}

func (m Integer) Nearest(p []float64) []float64 {
	near := append([]float64{}, p...)
	if m.Mesh != nil {
		near = m.Mesh.Nearest(p)
	}
	for i, v := range near {
		near[i] = math.Round(v)
	}
	return near
}
