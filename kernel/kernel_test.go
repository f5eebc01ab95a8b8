package kernel

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestShapeCorr(t *testing.T) {
	for _, s := range []Shape{Exponential, Matern32, Matern52, SqExp} {
		t.Run(s.String(), func(t *testing.T) {
			assert.InDelta(t, 1, s.Corr(0), 1e-15)
			prev := 1.0
			for r := 0.1; r < 5; r += 0.1 {
				c := s.Corr(r)
				assert.True(t, c > 0 && c < prev, "correlation must decrease in r")
				prev = c
			}
		})
	}
	assert.InDelta(t, math.Exp(-2), Exponential.Corr(2), 1e-15)
}

func TestParseShape(t *testing.T) {
	s, ok := ParseShape("matern32")
	require.True(t, ok)
	assert.Equal(t, Matern32, s)
	_, ok = ParseShape("bessel")
	assert.False(t, ok)
}

func TestIsotropicHyperRoundTrip(t *testing.T) {
	k := Isotropic{Shape: Matern52, Variance: 2, Length: 0.3}
	h := k.Hyper(nil)
	k2 := Matern52.FromLog(h)
	assert.InDelta(t, k.Variance, k2.Variance, 1e-14)
	assert.InDelta(t, k.Length, k2.Length, 1e-14)
	assert.InDelta(t, 2*math.Exp(-1/0.3), Isotropic{Shape: Exponential, Variance: 2, Length: 0.3}.Kernel([]float64{0, 0}, []float64{0.6, 0.8}), 1e-14)
}

func TestSymMatrix(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		0, 0,
		0.5, 0,
		0, 1,
	})
	k := Isotropic{Shape: Exponential, Variance: 1.5, Length: 0.5}
	sym, err := SymMatrix(nil, x, k)
	require.NoError(t, err)
	full, err := Matrix(nil, x, x, k)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(sym, full, 1e-15))
	assert.InDelta(t, 1.5, sym.At(1, 1), 1e-15)
	assert.InDelta(t, 1.5*math.Exp(-1), sym.At(0, 1), 1e-15)

	var chol mat.Cholesky
	assert.True(t, chol.Factorize(sym))
}

func TestMatrixNonFinite(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 1})
	bad := Func(func(a, b []float64) float64 { return math.NaN() })
	_, err := Matrix(nil, x, x, bad)
	assert.True(t, errors.Is(err, ErrNonFinite))
	_, err = SymMatrix(nil, x, bad)
	assert.True(t, errors.Is(err, ErrNonFinite))
}
