package kernel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	badInputDim    = "kernel: input dimension mismatch"
	badStorageDim  = "kernel: bad storage dimension"
	badHyperLength = "kernel: hyperparameter length mismatch"
	badShape       = "kernel: unknown shape"
)

// ErrNonFinite is returned when a kernel evaluates to NaN or ±Inf.
var ErrNonFinite = errors.New("kernel: non-finite covariance")

// Matrix computes the kernel matrix between the rows of x and the rows of xp
// and stores it into dst. If dst is nil a new matrix is allocated.
func Matrix(dst *mat.Dense, x, xp mat.Matrix, ker Kerneler) (*mat.Dense, error) {
	m, p := x.Dims()
	n, p2 := xp.Dims()
	if p != p2 {
		panic(badInputDim)
	}
	if dst == nil {
		dst = mat.NewDense(m, n, nil)
	}
	m2, n2 := dst.Dims()
	if m2 != m || n2 != n {
		panic(badStorageDim)
	}
	xi := make([]float64, p)
	xj := make([]float64, p)
	for i := 0; i < m; i++ {
		mat.Row(xi, i, x)
		for j := 0; j < n; j++ {
			mat.Row(xj, j, xp)
			v := ker.Kernel(xi, xj)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: k(%v, %v) = %v", ErrNonFinite, xi, xj, v)
			}
			dst.Set(i, j, v)
		}
	}
	return dst, nil
}

// SymMatrix computes the kernel matrix between the rows of x and themselves
// and stores it into dst. If dst is nil a new matrix is allocated.
func SymMatrix(dst *mat.SymDense, x mat.Matrix, ker Kerneler) (*mat.SymDense, error) {
	m, p := x.Dims()
	if dst == nil {
		dst = mat.NewSymDense(m, nil)
	}
	if dst.SymmetricDim() != m {
		panic(badStorageDim)
	}
	xi := make([]float64, p)
	xj := make([]float64, p)
	for i := 0; i < m; i++ {
		mat.Row(xi, i, x)
		for j := i; j < m; j++ {
			mat.Row(xj, j, x)
			v := ker.Kernel(xi, xj)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: k(%v, %v) = %v", ErrNonFinite, xi, xj, v)
			}
			dst.SetSym(i, j, v)
		}
	}
	return dst, nil
}
