package cpso

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestNewBounds(t *testing.T) {
	tests := []struct {
		low, up []float64
		ok      bool
	}{
		{[]float64{0, -1}, []float64{1, 1}, true},
		{[]float64{2}, []float64{2}, true},
		{[]float64{}, []float64{}, false},
		{[]float64{0}, []float64{1, 2}, false},
		{[]float64{1}, []float64{0}, false},
		{[]float64{math.NaN()}, []float64{0}, false},
	}

	for i, test := range tests {
		b, err := NewBounds(test.low, test.up)
		if test.ok && err != nil {
			t.Errorf("test %v: unexpected error %v", i, err)
		} else if !test.ok && !errors.Is(err, ErrBounds) {
			t.Errorf("test %v: want ErrBounds, got %v", i, err)
		} else if test.ok && b.Len() != len(test.low) {
			t.Errorf("test %v: want %v dims, got %v", i, len(test.low), b.Len())
		}
	}
}

func TestBoundsRand(t *testing.T) {
	b, err := NewBounds([]float64{-1, 10, 5}, []float64{1, 20, 5})
	if err != nil {
		t.Fatal(err)
	}
	r := NewRand(11)
	for i := 0; i < 100; i++ {
		if x := b.Rand(r); !b.Contains(x) {
			t.Errorf("random position %v outside bounds", x)
		}
	}
	if v := b.Violation([]float64{-2, 21, 5}); v != 2 {
		t.Errorf("want violation 2, got %v", v)
	}
}

func TestLinConstr(t *testing.T) {
	// 0 <= x1+x2 <= 10 and x1-x2 <= 0 (one sided)
	A := mat.NewDense(2, 2, []float64{1, 1, 1, -1})
	c, err := NewLinConstr([]float64{0, math.Inf(-1)}, A, []float64{10, 0})
	if err != nil {
		t.Fatal(err)
	}

	stacked, b, _ := c.Stack()
	if r, _ := stacked.Dims(); r != 3 || len(b) != 3 {
		t.Errorf("want 3 stacked rows, got %v (len(b)=%v)", r, len(b))
	}

	if v := c.Infeasibility([]float64{1, 2}); v != 0 {
		t.Errorf("feasible point has infeasibility %v", v)
	}
	// x1+x2 = 20 violates the first row by 10 over a range of 10
	if v := c.Infeasibility([]float64{10, 10}); math.Abs(v-1) > 1e-12 {
		t.Errorf("want infeasibility 1, got %v", v)
	}
	// x1-x2 = 2 violates the one sided row by 2 with unit range
	if v := c.Infeasibility([]float64{3, 1}); math.Abs(v-2) > 1e-12 {
		t.Errorf("want infeasibility 2, got %v", v)
	}

	obj := WithLinConstr(Func(func(v []float64) (float64, float64) { return 0, 0.5 }), c)
	if _, inf, _ := obj.Objective([]float64{3, 1}); math.Abs(inf-2.5) > 1e-12 {
		t.Errorf("want combined infeasibility 2.5, got %v", inf)
	}

	if _, err := NewLinConstr([]float64{0}, A, []float64{1, 2}); !errors.Is(err, ErrConfig) {
		t.Errorf("want ErrConfig for row mismatch, got %v", err)
	}
}
