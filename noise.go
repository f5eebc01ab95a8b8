package mra

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Noise is the measurement-error covariance of the observations.
type Noise interface {
	// Validate checks the noise against n locations.
	Validate(n int) error
	// AddTo adds the measurement-error covariance between the locations in
	// idx to dst, which has dimension len(idx).
	AddTo(dst *mat.SymDense, idx []int)
}

// ScalarNoise is independent measurement error with a common variance.
type ScalarNoise float64

func (s ScalarNoise) Validate(n int) error {
	if !(s > 0) || math.IsInf(float64(s), 1) {
		return fmt.Errorf("%w: variance %v", ErrNoise, float64(s))
	}
	return nil
}

func (s ScalarNoise) AddTo(dst *mat.SymDense, idx []int) {
	for i := range idx {
		dst.SetSym(i, i, dst.At(i, i)+float64(s))
	}
}

// DiagNoise is independent measurement error with a variance per location.
type DiagNoise []float64

func (d DiagNoise) Validate(n int) error {
	if len(d) != n {
		return fmt.Errorf("%w: %d variances for %d locations", ErrNoise, len(d), n)
	}
	for i, v := range d {
		if !(v > 0) || math.IsInf(v, 1) {
			return fmt.Errorf("%w: variance %v at location %d", ErrNoise, v, i)
		}
	}
	return nil
}

func (d DiagNoise) AddTo(dst *mat.SymDense, idx []int) {
	for i, row := range idx {
		dst.SetSym(i, i, dst.At(i, i)+d[row])
	}
}

// MatrixNoise is a full measurement-error covariance over all locations.
// Only the blocks between locations that enter the tree at the same node are
// used; entries coupling different nodes are ignored.
type MatrixNoise struct {
	mat.Symmetric
}

func (m MatrixNoise) Validate(n int) error {
	if m.Symmetric == nil {
		return fmt.Errorf("%w: nil matrix", ErrNoise)
	}
	if dim := m.SymmetricDim(); dim != n {
		return fmt.Errorf("%w: %d×%d matrix for %d locations", ErrNoise, dim, dim, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite entry (%d, %d)", ErrNoise, i, j)
			}
		}
		if !(m.At(i, i) > 0) {
			return fmt.Errorf("%w: non-positive variance at location %d", ErrNoise, i)
		}
	}
	return nil
}

func (m MatrixNoise) AddTo(dst *mat.SymDense, idx []int) {
	if len(idx) == 0 {
		return
	}
	var sub mat.SymDense
	sub.SubsetSym(m.Symmetric, idx)
	dst.AddSym(dst, &sub)
}
