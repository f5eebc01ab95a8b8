package mra

import (
	"gonum.org/v1/gonum/mat"

	"github.com/btracey/mra/kernel"
)

// priorPass computes the prior remainder covariances of every node from the
// root down. Each node only reads state of its ancestors, so a level can be
// processed in any order once the level above is done. The pass discards
// any earlier prior state and may be rerun.
func (t *Tree) priorPass() error {
	for m := range t.levels {
		for i := range t.levels[m] {
			if err := t.priorNode(&t.levels[m][i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) priorNode(nd *node) error {
	nd.cross, nd.proj, nd.w, nd.chol, nd.locCross = nil, nil, nil, nil, nil
	if nd.role == Inert {
		return nil
	}
	path := t.path(nd.id)
	level := nd.id.Level

	if nd.q != nil {
		cross, err := t.remainderCross(path, nd.q, level-1)
		if err != nil {
			return &NumericalError{Node: nd.id, Stage: "prior cross-covariance", Err: err}
		}
		proj := make([]*mat.Dense, level)
		for l, c := range cross {
			if c != nil {
				proj[l] = cholSolve(path[l].chol, c.T())
			}
		}
		w, err := t.remainder(nd.q, cross, proj)
		if err != nil {
			return &NumericalError{Node: nd.id, Stage: "prior remainder", Err: err}
		}
		nd.cross, nd.proj, nd.w = cross, proj, w

		if nd.role == Knotted {
			var chol mat.Cholesky
			if !chol.Factorize(w) {
				t.logger.Debug("prior remainder not positive definite", "node", nd.id, "knots", nd.numKnots())
				return &NumericalError{Node: nd.id, Stage: "prior remainder", Err: ErrNotPositiveDefinite}
			}
			nd.chol = &chol
		}
	}

	switch {
	case nd.role == Attached:
		nd.locCross = nd.cross
	case nd.carrier && len(nd.locs) > 0:
		lc, err := t.remainderCross(path, rows(t.x, nd.locs), level)
		if err != nil {
			return &NumericalError{Node: nd.id, Stage: "location cross-covariance", Err: err}
		}
		nd.locCross = lc
	}
	return nil
}

// remainderCross returns C_l(x, Q_{a_l}) for l = 0..top, where a_l are the
// nodes of path. It uses the incremental form
//  C_l(x, Q_l) = k(x, Q_l) - sum_{k<l} C_k(x, Q_k) W_k^-1 C_k(Q_k, Q_l)
// with W_k^-1 C_k(Q_k, Q_l) cached on a_l. Levels without knots give nil.
func (t *Tree) remainderCross(path []*node, x *mat.Dense, top int) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, top+1)
	for l := 0; l <= top; l++ {
		a := path[l]
		if a.q == nil {
			continue
		}
		c, err := kernel.Matrix(nil, x, a.q, t.kernel)
		if err != nil {
			return nil, err
		}
		for k := 0; k < l; k++ {
			if out[k] == nil || a.proj[k] == nil {
				continue
			}
			var p mat.Dense
			p.Mul(out[k], a.proj[k])
			c.Sub(c, &p)
		}
		out[l] = c
	}
	return out, nil
}

// remainder returns C_m(x, x) = k(x, x) - sum_l C_l(x, Q_l) W_l^-1 C_l(Q_l, x)
// given the cross-covariances and their projections.
func (t *Tree) remainder(x *mat.Dense, cross, proj []*mat.Dense) (*mat.SymDense, error) {
	k, err := kernel.SymMatrix(nil, x, t.kernel)
	if err != nil {
		return nil, err
	}
	var explained *mat.Dense
	for l, c := range cross {
		if c == nil {
			continue
		}
		var p mat.Dense
		p.Mul(c, proj[l])
		explained = addTo(explained, &p)
	}
	if explained == nil {
		return k, nil
	}
	e := symmetrize(explained)
	e.ScaleSym(-1, e)
	k.AddSym(k, e)
	return k, nil
}
