package mra

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// predictNode computes the posterior mean and variance of the latent process
// at the locations of an observation-carrying node, storing them at the
// node's input rows.
//
// Given the weights of its ancestors, the weights of a_l are Gaussian,
//  η_l | η_0..η_{l-1}, y ~ N(m_l - sum_{k<l} G_lk η_k, P_l^-1)
// with m_l = postMean and G_lk = gain[k]. The process at the locations is
// sum_l A_l η_l (+ the exact remainder for attached nodes). Eliminating η
// from the deepest level up expresses it through independent Gaussian terms.
func (t *Tree) predictNode(nd *node, mean, variance []float64) {
	if !nd.carrier || len(nd.locs) == 0 {
		return
	}
	n := len(nd.locs)
	path := t.path(nd.id)
	top := nd.top()

	coef := make([]*mat.Dense, top+1)
	for l := 0; l <= top; l++ {
		coef[l] = copyDense(nd.locCross[l])
	}
	mu := make([]float64, n)
	v := make([]float64, n)

	if nd.role == Attached {
		t.attachedRemainder(nd, coef, mu, v)
	}

	for p := top; p >= 0; p-- {
		a := path[p]
		c := coef[p]
		if c == nil || !a.hasWeights() {
			continue
		}
		var m mat.VecDense
		m.MulVec(c, a.postMean)
		// Row i of c P^-1 c^T on the diagonal.
		x := cholSolve(a.post, c.T())
		for i := 0; i < n; i++ {
			mu[i] += m.AtVec(i)
			v[i] += mat.Dot(c.RowView(i), x.ColView(i))
		}
		for l := 0; l < p; l++ {
			if coef[l] == nil || a.gain[l] == nil {
				continue
			}
			var d mat.Dense
			d.Mul(c, a.gain[l])
			coef[l].Sub(coef[l], &d)
		}
	}
	for i, row := range nd.locs {
		mean[row] = mu[i]
		variance[row] = v[i]
	}
}

// attachedRemainder adds the conditional mean and variance of the exact
// remainder at an attached node. With R the remainder covariance at the
// node's locations, V the observation covariance and H = R[S,O] V^-1, the
// remainder given the weights has mean H (y - sum_l A_l(O) η_l) and variance
// R[S,S] - H R[O,S]. The weight coefficients are adjusted in place.
func (t *Tree) attachedRemainder(nd *node, coef []*mat.Dense, mu, v []float64) {
	n := len(nd.locs)
	if len(nd.obs) == 0 {
		for i := 0; i < n; i++ {
			v[i] = nd.w.At(i, i)
		}
		return
	}
	rOS := mat.NewDense(len(nd.obs), n, nil)
	for i, p := range nd.obs {
		for j := 0; j < n; j++ {
			rOS.Set(i, j, nd.w.At(p, j))
		}
	}
	// ht = H^T = V^-1 R[O,S].
	ht := cholSolve(nd.vChol, rOS)
	for j := 0; j < n; j++ {
		mu[j] = mat.Dot(rOS.ColView(j), nd.vInvY)
		v[j] = nd.w.At(j, j) - mat.Dot(ht.ColView(j), rOS.ColView(j))
	}
	for l, c := range coef {
		if c == nil {
			continue
		}
		aO := rows(nd.locCross[l], nd.obs)
		var d mat.Dense
		d.Mul(ht.T(), aO)
		c.Sub(c, &d)
		coef[l] = c
	}
}

// predictPass fills in the posterior mean and variance at every location.
func (t *Tree) predictPass() (mean, variance []float64) {
	n, _ := t.x.Dims()
	mean = make([]float64, n)
	variance = make([]float64, n)
	for m := range t.levels {
		for i := range t.levels[m] {
			t.predictNode(&t.levels[m][i], mean, variance)
		}
	}
	return mean, variance
}

// stdDevs converts variances to standard deviations, mapping the small
// negative values left by rounding to zero.
func stdDevs(variance []float64) []float64 {
	std := make([]float64, len(variance))
	for i, v := range variance {
		std[i] = math.Sqrt(math.Max(v, 0))
	}
	return std
}
