package mra

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NormalizeLocations returns a copy of x with every column shifted and scaled
// onto [0, 1]. Constant columns are mapped to zero. The returned min and scale
// undo the transform: x = xn*scale + min.
func NormalizeLocations(x mat.Matrix) (xn *mat.Dense, min, scale []float64) {
	r, c := x.Dims()
	xn = mat.DenseCopyOf(x)
	min = make([]float64, c)
	scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		lo, hi := floats.Min(col), floats.Max(col)
		s := hi - lo
		if s == 0 {
			s = 1
		}
		for i := range col {
			col[i] = (col[i] - lo) / s
		}
		xn.SetCol(j, col)
		min[j] = lo
		scale[j] = s
	}
	return xn, min, scale
}

// CenterObservations subtracts the mean of the observed (non-NaN) entries of
// y and returns the centered copy with the mean. NaN entries are preserved.
func CenterObservations(y []float64) ([]float64, float64) {
	obs := make([]float64, 0, len(y))
	for _, v := range y {
		if !math.IsNaN(v) {
			obs = append(obs, v)
		}
	}
	var mean float64
	if len(obs) > 0 {
		mean = stat.Mean(obs, nil)
	}
	dst := make([]float64, len(y))
	for i, v := range y {
		dst[i] = v - mean
	}
	return dst, mean
}

// observed returns the positions in idx whose observations are not NaN.
func observed(y []float64, idx []int) []int {
	var pos []int
	for p, i := range idx {
		if !math.IsNaN(y[i]) {
			pos = append(pos, p)
		}
	}
	return pos
}

// rows gathers the rows of x listed in idx. It returns nil for an empty idx,
// which stands for a zero-sized block throughout the package.
func rows(x mat.Matrix, idx []int) *mat.Dense {
	if len(idx) == 0 {
		return nil
	}
	_, c := x.Dims()
	dst := mat.NewDense(len(idx), c, nil)
	for i, row := range idx {
		dst.SetRow(i, mat.Row(nil, row, x))
	}
	return dst
}

// addTo returns dst + a, treating a nil dst or a nil a as zero. A nil dst is
// replaced by a copy of a.
func addTo(dst *mat.Dense, a *mat.Dense) *mat.Dense {
	if a == nil {
		return dst
	}
	if dst == nil {
		return mat.DenseCopyOf(a)
	}
	dst.Add(dst, a)
	return dst
}

func addVecTo(dst *mat.VecDense, a *mat.VecDense) *mat.VecDense {
	if a == nil {
		return dst
	}
	if dst == nil {
		return mat.VecDenseCopyOf(a)
	}
	dst.AddVec(dst, a)
	return dst
}

// symmetrize returns the symmetric part of the square matrix a.
func symmetrize(a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
	return s
}

// cholSolve solves A X = B using the factorization of A. Poor conditioning
// is not an error here; a failed factorization has already been reported.
func cholSolve(chol *mat.Cholesky, b mat.Matrix) *mat.Dense {
	var x mat.Dense
	err := chol.SolveTo(&x, b)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		panic(err)
	}
	return &x
}

func cholSolveVec(chol *mat.Cholesky, b mat.Vector) *mat.VecDense {
	var x mat.VecDense
	err := chol.SolveVecTo(&x, b)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		panic(err)
	}
	return &x
}
