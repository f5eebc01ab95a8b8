package mra

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/btracey/mra/kernel"
)

// jitter is added to the diagonal of the kernel matrix, relative to its
// largest entry, before simulating.
const jitter = 1e-10

// Simulate draws the latent process at the rows of x from a zero-mean
// Gaussian process with the given kernel, and noisy observations of it with
// measurement-error variance noise. The draw is determined by seed.
func Simulate(x mat.Matrix, ker kernel.Kerneler, noise float64, seed uint64) (latent, obs []float64, err error) {
	k, err := kernel.SymMatrix(nil, x, ker)
	if err != nil {
		return nil, nil, err
	}
	n := k.SymmetricDim()
	var max float64
	for i := 0; i < n; i++ {
		max = math.Max(max, k.At(i, i))
	}
	for i := 0; i < n; i++ {
		k.SetSym(i, i, k.At(i, i)+jitter*max)
	}
	var chol mat.Cholesky
	if !chol.Factorize(k) {
		return nil, nil, ErrNotPositiveDefinite
	}

	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	z := make([]float64, n)
	for i := range z {
		z[i] = rnd.NormFloat64()
	}
	var f mat.VecDense
	f.MulVec(chol.RawU().T(), mat.NewVecDense(n, z))

	latent = make([]float64, n)
	obs = make([]float64, n)
	sd := math.Sqrt(noise)
	for i := range latent {
		latent[i] = f.AtVec(i)
		obs[i] = latent[i] + sd*rnd.NormFloat64()
	}
	return latent, obs, nil
}
