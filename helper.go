package poseukf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// identitySym returns an n×n identity matrix.
func identitySym(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

// isFiniteVec reports whether every entry of v is finite.
func isFiniteVec(v mat.Vector) bool {
	for i := 0; i < v.Len(); i++ {
		if !isFinite(v.AtVec(i)) {
			return false
		}
	}
	return true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// isFiniteSym reports whether every entry of m is finite.
func isFiniteSym(m *mat.SymDense) bool {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if !isFinite(m.At(i, j)) {
				return false
			}
		}
	}
	return true
}

// symmetrize returns (m + mᵀ)/2 as a SymDense, tolerating the small
// asymmetries that accumulate from repeated matrix products.
func symmetrize(m mat.Matrix) *mat.SymDense {
	r, _ := m.Dims()
	out := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			out.SetSym(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}

// clampPSD symmetrizes m and clamps any eigenvalue below -1e-10 to zero,
// reconstructing the matrix from the clamped eigendecomposition. This keeps
// covariance matrices PSD after the numerical noise a long predict/update
// chain accumulates, per the algebraic invariants in the testable
// properties.
func clampPSD(m mat.Matrix) (*mat.SymDense, error) {
	sym := symmetrize(m)
	n, _ := sym.Dims()

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return nil, errNumericalFailure("eigendecomposition did not converge")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	needsClamp := false
	for _, v := range values {
		if v < -1e-10 {
			needsClamp = true
			break
		}
	}
	if !needsClamp {
		return sym, nil
	}

	clamped := make([]float64, n)
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		clamped[i] = v
	}
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, &vectors)
		for i := 0; i < n; i++ {
			scaled.Set(i, j, col[i]*clamped[j])
		}
	}
	var rebuilt mat.Dense
	rebuilt.Mul(scaled, vectors.T())
	return symmetrize(&rebuilt), nil
}

// addJitter adds a small diagonal term to m before it is inverted, so that a
// degenerate (near-singular) measurement covariance cannot NaN the filter.
func addJitter(m *mat.SymDense, eps float64) *mat.SymDense {
	n, _ := m.Dims()
	out := mat.NewSymDense(n, nil)
	out.CopySym(m)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, out.At(i, i)+eps)
	}
	return out
}

// invertSym inverts a symmetric matrix, jittering the diagonal first so a
// near-singular R cannot produce a NaN gain.
func invertSym(m *mat.SymDense) (*mat.Dense, error) {
	jittered := addJitter(m, 1e-12)
	var inv mat.Dense
	if err := inv.Inverse(jittered); err != nil {
		return nil, numericalFailuref(err, "matrix inversion failed")
	}
	return &inv, nil
}

// choleskyLower returns the lower-triangular Cholesky factor L of a
// symmetric positive-definite matrix, L·Lᵀ = m.
func choleskyLower(m *mat.SymDense) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return nil, errNumericalFailure("covariance is not positive definite")
	}
	var l mat.TriDense
	chol.LTo(&l)
	return &l, nil
}

// errNumericalFailure builds a *FilterError of Kind NumericalFailure, the
// same contract every other fallible path in this package returns, so
// callers can always type-assert to FilterError and dispatch on Kind rather
// than matching a string.
func errNumericalFailure(msg string) error { return numericalFailuref(nil, "%s", msg) }
