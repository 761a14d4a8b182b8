package mesh

import "gonum.org/v1/gonum/mat"

// OrthoProj computes the orthogonal projection of x0 onto the affine subspace
// defined by Ax=b which is the intersection of affine hyperplanes that
// constitute the rows of A with associated shifts in b.  The equation is:
//
//	proj = [I - A^T * (A * A^T)^-1 * A]*x0 + A^T * (A * A^T)^-1 * b
//
// where x0 is the point being projected and I is the identity matrix.  A is
// an m by n matrix where m <= n. if m == n, the returned result is the
// solution to the system A*x0=b
func OrthoProj(x0 []float64, A *mat.Dense, b []float64) ([]float64, error) {
	m, n := A.Dims()
	bv := mat.NewVecDense(len(b), append([]float64{}, b...))
	if m == n {
		var proj mat.VecDense
		if err := proj.SolveVec(A, bv); err != nil {
			return nil, err
		}
		return proj.RawVector().Data, nil
	}

	var AAtrans mat.Dense
	AAtrans.Mul(A, A.T())

	// B = A^T * (A*A^T)^-1
	var inv mat.Dense
	if err := inv.Inverse(&AAtrans); err != nil {
		return nil, err
	}
	var B mat.Dense
	B.Mul(A.T(), &inv)

	var tmp mat.Dense
	tmp.Mul(&B, A)
	tmp.Sub(eye(n), &tmp)

	proj := mat.NewVecDense(n, nil)
	proj.MulVec(&tmp, mat.NewVecDense(n, append([]float64{}, x0...)))

	var shift mat.VecDense
	shift.MulVec(&B, bv)
	proj.AddVec(proj, &shift)

	return proj.RawVector().Data, nil
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Nearest returns the nearest point to x0 that doesn't violate constraints in
// the equation Ax <= b.  The most violated constraint is activated one at a
// time and x0 is projected onto the intersection of all active constraints
// until nothing is violated or the active set pins down a single point.
func Nearest(x0 []float64, A *mat.Dense, b []float64) ([]float64, error) {
	proj := append([]float64{}, x0...)
	var badA *mat.Dense
	var badb []float64
	active := map[int]bool{}
	for {
		row := mostviolated(proj, A, b)
		if row == -1 || active[row] { // projection is complete
			break
		}
		active[row] = true

		viol := mat.NewDense(1, len(x0), mat.Row(nil, row, A))
		if badA == nil {
			badA = viol
		} else {
			stacked := &mat.Dense{}
			stacked.Stack(badA, viol)
			badA = stacked
		}
		badb = append(badb, b[row])

		var err error
		proj, err = OrthoProj(x0, badA, badb)
		if err != nil {
			return nil, err
		}

		// we have projected to a single point
		if m, n := badA.Dims(); m == n {
			break
		}
	}
	return proj, nil
}

// mostviolated returns the row of the most violated constraint in the
// system Ax <= b or -1 if x0 violates no constraints.
func mostviolated(x0 []float64, A *mat.Dense, b []float64) int {
	eps := 1e-10

	ax := mat.NewVecDense(len(b), nil)
	ax.MulVec(A, mat.NewVecDense(len(x0), append([]float64{}, x0...)))

	worst := eps
	worstRow := -1
	for i := range b {
		if diff := ax.AtVec(i) - b[i]; diff > worst {
			worst = diff
			worstRow = i
		}
	}
	return worstRow
}
