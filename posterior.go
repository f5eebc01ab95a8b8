package mra

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// posteriorPass folds the observations into the tree from the leaves up.
// Every node sums the information its subtree holds about the latent weights
// of its ancestors and itself, integrates out its own weights and hands the
// rest to its parent. The root ends with the contribution of the whole data
// set. The pass discards any earlier posterior state and may be rerun.
func (t *Tree) posteriorPass() error {
	for m := len(t.levels) - 1; m >= 0; m-- {
		for i := range t.levels[m] {
			if err := t.posteriorNode(&t.levels[m][i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) posteriorNode(nd *node) error {
	level := nd.id.Level
	nd.omegaT = make([]*mat.VecDense, level+1)
	nd.lambdaT = make([][]*mat.Dense, level+1)
	for l := range nd.lambdaT {
		nd.lambdaT[l] = make([]*mat.Dense, level+1)
	}
	nd.omega, nd.lambda = nil, nil
	nd.post, nd.postMean, nd.gain = nil, nil, nil
	nd.vChol, nd.vInvY = nil, nil
	nd.logLike = 0

	if nd.role == Inert {
		return nil
	}
	if err := t.dataTerms(nd); err != nil {
		return err
	}
	for _, ch := range t.children(nd) {
		for l, v := range ch.omega {
			nd.omegaT[l] = addVecTo(nd.omegaT[l], v)
		}
		for l, row := range ch.lambda {
			for k, b := range row {
				nd.lambdaT[l][k] = addTo(nd.lambdaT[l][k], b)
			}
		}
	}

	nd.omega = nd.omegaT[:level]
	nd.lambda = make([][]*mat.Dense, level)
	for l := range nd.lambda {
		nd.lambda[l] = nd.lambdaT[l][:level]
	}
	if !nd.hasWeights() {
		return nil
	}
	return t.integrateWeights(nd)
}

// dataTerms computes the information carried by the node's own
// observations. With V the covariance of the observations given the latent
// weights and A_l = C_l(O, Q_l),
//  omega_l = A_l^T V^-1 y,  lambda_lk = A_l^T V^-1 A_k
// and the log-likelihood term is -1/2 (log|V| + y^T V^-1 y + n log 2π).
func (t *Tree) dataTerms(nd *node) error {
	if !nd.carrier || len(nd.obs) == 0 {
		return nil
	}
	obsRows := make([]int, len(nd.obs))
	y := make([]float64, len(nd.obs))
	for i, p := range nd.obs {
		obsRows[i] = nd.locs[p]
		y[i] = t.y[obsRows[i]]
	}
	var v *mat.SymDense
	if nd.role == Attached {
		v = &mat.SymDense{}
		v.SubsetSym(nd.w, nd.obs)
	} else {
		v = mat.NewSymDense(len(nd.obs), nil)
	}
	t.noise.AddTo(v, obsRows)

	var chol mat.Cholesky
	if !chol.Factorize(v) {
		t.logger.Debug("observation covariance not positive definite", "node", nd.id, "observations", len(nd.obs))
		return &NumericalError{Node: nd.id, Stage: "observation covariance", Err: ErrNotPositiveDefinite}
	}
	yVec := mat.NewVecDense(len(y), y)
	vInvY := cholSolveVec(&chol, yVec)
	nd.vChol, nd.vInvY = &chol, vInvY

	top := nd.top()
	a := make([]*mat.Dense, top+1)
	vInvA := make([]*mat.Dense, top+1)
	for l := 0; l <= top; l++ {
		if nd.locCross[l] == nil {
			continue
		}
		a[l] = rows(nd.locCross[l], nd.obs)
		vInvA[l] = cholSolve(&chol, a[l])
	}
	for l := 0; l <= top; l++ {
		if a[l] == nil {
			continue
		}
		var w mat.VecDense
		w.MulVec(a[l].T(), vInvY)
		nd.omegaT[l] = &w
		for k := 0; k <= top; k++ {
			if a[k] == nil {
				continue
			}
			var b mat.Dense
			b.Mul(a[l].T(), vInvA[k])
			nd.lambdaT[l][k] = &b
		}
	}
	n := float64(len(y))
	nd.logLike = -0.5 * (chol.LogDet() + mat.Dot(yVec, vInvY) + n*math.Log(2*math.Pi))
	return nil
}

// integrateWeights combines the prior of the node's weights,
// η ~ N(0, W^-1), with the information from its subtree, and integrates the
// weights out:
//  P = W + lambda_mm
//  omega_l  <- omega_l - lambda_lm P^-1 omega_m
//  lambda_lk <- lambda_lk - lambda_lm P^-1 lambda_mk
// adding -1/2 (log|P| - log|W| - omega_m^T P^-1 omega_m) to the likelihood.
func (t *Tree) integrateWeights(nd *node) error {
	m := nd.id.Level
	p := mat.NewSymDense(nd.numKnots(), nil)
	p.CopySym(nd.w)
	if b := nd.lambdaT[m][m]; b != nil {
		p.AddSym(p, symmetrize(b))
	}
	var post mat.Cholesky
	if !post.Factorize(p) {
		t.logger.Debug("posterior precision not positive definite", "node", nd.id)
		return &NumericalError{Node: nd.id, Stage: "posterior precision", Err: ErrNotPositiveDefinite}
	}
	nd.post = &post

	if om := nd.omegaT[m]; om != nil {
		nd.postMean = cholSolveVec(&post, om)
	} else {
		nd.postMean = mat.NewVecDense(nd.numKnots(), nil)
	}
	nd.gain = make([]*mat.Dense, m)
	for l := 0; l < m; l++ {
		if b := nd.lambdaT[m][l]; b != nil {
			nd.gain[l] = cholSolve(&post, b)
		}
	}

	omega := make([]*mat.VecDense, m)
	lambda := make([][]*mat.Dense, m)
	for l := 0; l < m; l++ {
		lambda[l] = make([]*mat.Dense, m)
		omega[l] = copyVec(nd.omegaT[l])
		if b := nd.lambdaT[l][m]; b != nil {
			var d mat.VecDense
			d.MulVec(b, nd.postMean)
			omega[l] = subVec(omega[l], &d)
		}
		for k := 0; k < m; k++ {
			lambda[l][k] = copyDense(nd.lambdaT[l][k])
			if b := nd.lambdaT[l][m]; b != nil && nd.gain[k] != nil {
				var d mat.Dense
				d.Mul(b, nd.gain[k])
				lambda[l][k] = subDense(lambda[l][k], &d)
			}
		}
	}
	nd.omega, nd.lambda = omega, lambda

	var quad float64
	if om := nd.omegaT[m]; om != nil {
		quad = mat.Dot(om, nd.postMean)
	}
	nd.logLike += -0.5 * (post.LogDet() - nd.chol.LogDet() - quad)
	return nil
}

func copyVec(v *mat.VecDense) *mat.VecDense {
	if v == nil {
		return nil
	}
	return mat.VecDenseCopyOf(v)
}

func copyDense(a *mat.Dense) *mat.Dense {
	if a == nil {
		return nil
	}
	return mat.DenseCopyOf(a)
}

// subVec returns v - d, treating a nil v as zero.
func subVec(v, d *mat.VecDense) *mat.VecDense {
	if v == nil {
		v = mat.NewVecDense(d.Len(), nil)
	}
	v.SubVec(v, d)
	return v
}

// subDense returns a - d, treating a nil a as zero.
func subDense(a, d *mat.Dense) *mat.Dense {
	if a == nil {
		r, c := d.Dims()
		a = mat.NewDense(r, c, nil)
	}
	a.Sub(a, d)
	return a
}
