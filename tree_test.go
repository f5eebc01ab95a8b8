package mra

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/btracey/mra/kernel"
)

// randomLocations returns n uniform locations in the unit box of dimension
// dim.
func randomLocations(n, dim int, seed uint64) *mat.Dense {
	rnd := rand.New(rand.NewPCG(seed, 1))
	x := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			x.Set(i, j, rnd.Float64())
		}
	}
	return x
}

func gridLocations(n int) *mat.Dense {
	x := mat.NewDense(n*n, 2, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			x.Set(i*n+j, 0, float64(i)/float64(n-1))
			x.Set(i*n+j, 1, float64(j)/float64(n-1))
		}
	}
	return x
}

// exactGP computes the log-likelihood and the latent posterior mean and
// standard deviation with the full covariance matrix.
func exactGP(t *testing.T, x mat.Matrix, y []float64, ker kernel.Kerneler, noise float64) (ll float64, mean, std []float64) {
	sigma, err := kernel.SymMatrix(nil, x, ker)
	require.NoError(t, err)
	return denseGP(t, sigma, y, noise)
}

// denseGP conditions a zero-mean process with latent covariance sigma on the
// non-NaN entries of y observed with iid noise.
func denseGP(t *testing.T, sigma mat.Symmetric, y []float64, noise float64) (ll float64, mean, std []float64) {
	var obsRows []int
	var yObs []float64
	for i, v := range y {
		if !math.IsNaN(v) {
			obsRows = append(obsRows, i)
			yObs = append(yObs, v)
		}
	}
	n := sigma.SymmetricDim()
	var so mat.SymDense
	so.SubsetSym(sigma, obsRows)
	for i := range obsRows {
		so.SetSym(i, i, so.At(i, i)+noise)
	}
	normal, ok := distmv.NewNormal(make([]float64, len(yObs)), &so, nil)
	require.True(t, ok)
	ll = normal.LogProb(yObs)

	var chol mat.Cholesky
	require.True(t, chol.Factorize(&so))
	kso := mat.NewDense(n, len(obsRows), nil)
	for i := 0; i < n; i++ {
		for j, r := range obsRows {
			kso.Set(i, j, sigma.At(i, r))
		}
	}
	var alpha mat.VecDense
	require.NoError(t, chol.SolveVecTo(&alpha, mat.NewVecDense(len(yObs), yObs)))
	var m mat.VecDense
	m.MulVec(kso, &alpha)
	var tmp mat.Dense
	require.NoError(t, chol.SolveTo(&tmp, kso.T()))

	mean = make([]float64, n)
	std = make([]float64, n)
	for i := 0; i < n; i++ {
		v := sigma.At(i, i) - mat.Dot(kso.RowView(i), tmp.ColView(i))
		mean[i] = m.AtVec(i)
		std[i] = math.Sqrt(math.Max(v, 0))
	}
	return ll, mean, std
}

// impliedCovariance assembles the dense latent covariance the tree stands
// for: at locations s and u, the sum over the knotted ancestors they share of
// C_l(s, Q_l) W_l^-1 C_l(Q_l, u), plus the exact remainder when both lie in
// the same attached node.
func impliedCovariance(tree *Tree) *mat.SymDense {
	n, _ := tree.x.Dims()
	type site struct {
		nd  *node
		pos int
	}
	sites := make([]site, n)
	for m := range tree.levels {
		for i := range tree.levels[m] {
			nd := &tree.levels[m][i]
			if !nd.carrier {
				continue
			}
			for p, r := range nd.locs {
				sites[r] = site{nd, p}
			}
		}
	}
	sigma := mat.NewSymDense(n, nil)
	for s := 0; s < n; s++ {
		for u := s; u < n; u++ {
			a, b := sites[s], sites[u]
			pa, pb := tree.path(a.nd.id), tree.path(b.nd.id)
			var v float64
			for l := 0; l <= a.nd.top() && l <= b.nd.top(); l++ {
				if pa[l] != pb[l] || !pa[l].hasWeights() {
					continue
				}
				ra := a.nd.locCross[l].RawRowView(a.pos)
				rb := mat.NewVecDense(len(ra), b.nd.locCross[l].RawRowView(b.pos))
				v += mat.Dot(mat.NewVecDense(len(ra), ra), cholSolveVec(pa[l].chol, rb))
			}
			if a.nd == b.nd && a.nd.role == Attached {
				v += a.nd.w.At(a.pos, b.pos)
			}
			sigma.SetSym(s, u, v)
		}
	}
	return sigma
}

func TestBuildErrors(t *testing.T) {
	x := randomLocations(10, 2, 1)
	y := make([]float64, 10)
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.3}
	good := Config{Levels: 1, Branching: 4, Knots: 2, CritDepth: 2}

	for _, test := range []struct {
		name  string
		cfg   Config
		x     mat.Matrix
		y     []float64
		noise Noise
		want  error
	}{
		{"levels", Config{Levels: -1, Branching: 2, Knots: 2}, x, y, ScalarNoise(0.1), ErrLevels},
		{"branching", Config{Levels: 2, Branching: 1, Knots: 2}, x, y, ScalarNoise(0.1), ErrBranching},
		{"knots", Config{Levels: 1, Branching: 2, Knots: 0}, x, y, ScalarNoise(0.1), ErrKnots},
		{"critDepthHigh", Config{Levels: 1, Branching: 2, Knots: 2, CritDepth: 3}, x, y, ScalarNoise(0.1), ErrCritDepth},
		{"critDepthLow", Config{Levels: 1, Branching: 2, Knots: 2, CritDepth: -1}, x, y, ScalarNoise(0.1), ErrCritDepth},
		{"treeSize", Config{Levels: 40, Branching: 2, Knots: 2}, x, y, ScalarNoise(0.1), ErrTreeSize},
		{"length", good, x, y[:9], ScalarNoise(0.1), ErrLengthMismatch},
		{"noiseScalar", good, x, y, ScalarNoise(0), ErrNoise},
		{"noiseDiag", good, x, y, DiagNoise{1, 2}, ErrNoise},
		{"noiseMatrix", good, x, y, MatrixNoise{mat.NewSymDense(3, nil)}, ErrNoise},
		{"nanLocation", good, mat.NewDense(2, 1, []float64{0, math.NaN()}), y[:2], ScalarNoise(0.1), ErrNonFiniteLocation},
	} {
		t.Run(test.name, func(t *testing.T) {
			tree, err := Build(test.x, test.y, test.noise, ker, test.cfg)
			assert.Nil(t, tree)
			assert.True(t, errors.Is(err, test.want), "got %v, want %v", err, test.want)
		})
	}
}

func TestExactLimit(t *testing.T) {
	const n = 15
	x := randomLocations(n, 2, 3)
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1.3, Length: 0.4}
	noise := 0.05
	_, y, err := Simulate(x, ker, noise, 11)
	require.NoError(t, err)
	y[3], y[7], y[11] = math.NaN(), math.NaN(), math.NaN()

	wantLL, wantMean, wantStd := exactGP(t, x, y, ker, noise)

	for _, cfg := range []Config{
		{Levels: 0, Branching: 1, Knots: n, CritDepth: 1},
		{Levels: 0, Branching: 1, Knots: 3, CritDepth: 0},
		{Levels: 2, Branching: 2, Knots: 2, CritDepth: 0},
		{Levels: 1, Branching: 4, Knots: n, CritDepth: 1},
	} {
		t.Run(fmt.Sprintf("M=%d,J=%d,r=%d,c=%d", cfg.Levels, cfg.Branching, cfg.Knots, cfg.CritDepth), func(t *testing.T) {
			tree, err := Build(x, y, ScalarNoise(noise), ker, cfg)
			require.NoError(t, err)
			assert.InDelta(t, wantLL, tree.LogLikelihood(), 1e-6)
			mean, std := tree.Predict()
			assert.True(t, floats.EqualApprox(wantMean, mean, 1e-6), "mean mismatch\nwant %v\ngot  %v", wantMean, mean)
			assert.True(t, floats.EqualApprox(wantStd, std, 1e-6), "std mismatch\nwant %v\ngot  %v", wantStd, std)
		})
	}
}

func TestDeterminism(t *testing.T) {
	x := randomLocations(120, 2, 5)
	ker := kernel.Isotropic{Shape: kernel.Matern32, Variance: 1, Length: 0.2}
	_, y, err := Simulate(x, ker, 0.01, 2)
	require.NoError(t, err)
	cfg := Config{Levels: 2, Branching: 4, Knots: 5, CritDepth: 2}

	t1, err := Build(x, y, ScalarNoise(0.01), ker, cfg)
	require.NoError(t, err)
	t2, err := Build(x, y, ScalarNoise(0.01), ker, cfg)
	require.NoError(t, err)
	assert.Equal(t, t1.LogLikelihood(), t2.LogLikelihood())
	m1, s1 := t1.Predict()
	m2, s2 := t2.Predict()
	assert.Equal(t, m1, m2)
	assert.Equal(t, s1, s2)

	// The passes can be rerun in isolation.
	require.NoError(t, t1.priorPass())
	require.NoError(t, t1.posteriorPass())
	assert.Equal(t, t2.LogLikelihood(), t1.LogLikelihood())
}

func TestGridDeterminism(t *testing.T) {
	// Grid locations are often equidistant from the Halton points.
	x := gridLocations(10)
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.3}
	_, y, err := Simulate(x, ker, 0.01, 21)
	require.NoError(t, err)
	cfg := Config{Levels: 2, Branching: 4, Knots: 4, CritDepth: 2}

	first, err := Build(x, y, ScalarNoise(0.01), ker, cfg)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		tree, err := Build(x, y, ScalarNoise(0.01), ker, cfg)
		require.NoError(t, err)
		assert.Equal(t, first.LogLikelihood(), tree.LogLikelihood())
		assert.Equal(t, first.Nodes(), tree.Nodes())
	}
}

func TestImpliedCovariance(t *testing.T) {
	x := randomLocations(40, 2, 17)
	ker := kernel.Isotropic{Shape: kernel.Matern32, Variance: 1.2, Length: 0.25}
	noise := 0.02
	_, y, err := Simulate(x, ker, noise, 23)
	require.NoError(t, err)
	for i := 0; i < len(y); i += 3 {
		y[i] = math.NaN()
	}

	for _, cfg := range []Config{
		{Levels: 2, Branching: 4, Knots: 3, CritDepth: 2},
		{Levels: 2, Branching: 2, Knots: 2, CritDepth: 3},
		{Levels: 1, Branching: 4, Knots: 4, CritDepth: 1},
		{Levels: 3, Branching: 2, Knots: 2, CritDepth: 2},
	} {
		t.Run(fmt.Sprintf("M=%d,J=%d,r=%d,c=%d", cfg.Levels, cfg.Branching, cfg.Knots, cfg.CritDepth), func(t *testing.T) {
			tree, err := Build(x, y, ScalarNoise(noise), ker, cfg)
			require.NoError(t, err)
			wantLL, wantMean, wantStd := denseGP(t, impliedCovariance(tree), y, noise)
			assert.InDelta(t, wantLL, tree.LogLikelihood(), 1e-8)
			mean, std := tree.Predict()
			assert.True(t, floats.EqualApprox(wantMean, mean, 1e-8), "mean mismatch\nwant %v\ngot  %v", wantMean, mean)
			assert.True(t, floats.EqualApprox(wantStd, std, 1e-6), "std mismatch\nwant %v\ngot  %v", wantStd, std)
		})
	}
}

func TestDuplicatedSites(t *testing.T) {
	sites := randomLocations(6, 2, 19)
	x := mat.NewDense(12, 2, nil)
	for i := 0; i < 12; i++ {
		x.SetRow(i, sites.RawRowView(i/2))
	}
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.4}
	_, y, err := Simulate(x, ker, 0.05, 2)
	require.NoError(t, err)

	for _, cfg := range []Config{
		{Levels: 1, Branching: 2, Knots: 3, CritDepth: 2},
		{Levels: 1, Branching: 2, Knots: 3, CritDepth: 1},
		{Levels: 2, Branching: 2, Knots: 2, CritDepth: 3},
	} {
		tree, err := Build(x, y, ScalarNoise(0.05), ker, cfg)
		require.NoError(t, err, "%+v", cfg)
		for m, level := range tree.levels {
			for i := range level {
				nd := &level[i]
				if nd.role != Knotted {
					continue
				}
				for _, k := range nd.knots {
					for _, a := range tree.path(nd.id)[:m] {
						for _, ak := range a.knots {
							assert.NotEqual(t, x.RawRowView(ak), x.RawRowView(k), "knot %d of %v repeats a site of %v", k, nd.id, a.id)
						}
					}
				}
			}
		}
		_, std := tree.Predict()
		for _, v := range std {
			assert.False(t, math.IsNaN(v))
		}
	}
}

func TestTreeStructure(t *testing.T) {
	x := randomLocations(200, 2, 9)
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.3}
	y := make([]float64, 200)
	cfg := Config{Levels: 3, Branching: 4, Knots: 4, CritDepth: 2}
	tree, err := Build(x, y, ScalarNoise(0.1), ker, cfg)
	require.NoError(t, err)

	nodes := tree.Nodes()
	require.Len(t, nodes, 1+4+16+64)
	for m, level := range tree.levels {
		for i := range level {
			nd := &level[i]
			switch {
			case m < cfg.CritDepth:
				assert.Equal(t, Knotted, nd.role)
				assert.LessOrEqual(t, nd.numKnots(), cfg.Knots)
			case m == cfg.CritDepth:
				assert.Equal(t, Attached, nd.role)
				assert.Equal(t, nd.locs, nd.knots)
				assert.True(t, nd.carrier)
			default:
				assert.Equal(t, Inert, nd.role)
				assert.Empty(t, nd.knots)
			}
			for _, r := range nd.locs {
				assert.True(t, nd.box.Contains(x.RawRowView(r)))
			}
			if nd.role == Knotted {
				inNode := map[int]bool{}
				for _, r := range nd.locs {
					inNode[r] = true
				}
				path := tree.path(nd.id)
				for _, k := range nd.knots {
					assert.True(t, inNode[k], "knot %d outside node %v", k, nd.id)
					for _, a := range path[:m] {
						assert.NotContains(t, a.knots, k, "knot %d repeated from ancestor %v", k, a.id)
					}
				}
			}

			children := tree.children(nd)
			if m == cfg.Levels {
				assert.Nil(t, children)
				continue
			}
			var union []int
			for _, ch := range children {
				union = append(union, ch.locs...)
			}
			sort.Ints(union)
			want := append([]int(nil), nd.locs...)
			sort.Ints(want)
			if len(want) == 0 {
				assert.Empty(t, union)
			} else {
				assert.Equal(t, want, union, "children of %v must partition its locations", nd.id)
			}
		}
	}

	info, ok := tree.Node(NodeID{1, 2})
	require.True(t, ok)
	assert.Equal(t, Knotted, info.Role)
	_, ok = tree.Node(NodeID{4, 0})
	assert.False(t, ok)
	assert.NotNil(t, tree.RemainderCov(NodeID{0, 0}))
	assert.Nil(t, tree.RemainderCov(NodeID{3, 0}))
}

func TestEmptyRegions(t *testing.T) {
	// All locations in one corner, leaving most nodes empty.
	x := randomLocations(30, 2, 4)
	x.Scale(0.1, x)
	x.Set(0, 0, 1)
	x.Set(0, 1, 1)
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.05}
	_, y, err := Simulate(x, ker, 0.01, 4)
	require.NoError(t, err)

	for _, c := range []int{1, 2, 3} {
		tree, err := Build(x, y, ScalarNoise(0.01), ker, Config{Levels: 2, Branching: 4, Knots: 3, CritDepth: c})
		require.NoError(t, err)
		var empty int
		for _, info := range tree.Nodes() {
			if len(info.Locations) == 0 {
				empty++
				assert.Empty(t, info.Knots)
				assert.Zero(t, info.LogLikelihood)
			}
		}
		assert.Greater(t, empty, 0)
		mean, std := tree.Predict()
		for i := range mean {
			assert.False(t, math.IsNaN(mean[i]) || math.IsNaN(std[i]))
		}
		assert.False(t, math.IsNaN(tree.LogLikelihood()))
	}
}

func TestRoundTripOrdering(t *testing.T) {
	x := gridLocations(8)
	n, _ := x.Dims()
	// Shuffle the rows so the input order is unrelated to the tree.
	perm := rand.New(rand.NewPCG(3, 3)).Perm(n)
	xs := mat.NewDense(n, 2, nil)
	for i, p := range perm {
		xs.SetRow(i, x.RawRowView(p))
	}
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.5}
	_, y, err := Simulate(xs, ker, 1e-6, 8)
	require.NoError(t, err)
	for i := 1; i < n; i += 2 {
		y[i] = math.NaN()
	}

	tree, err := Build(xs, y, ScalarNoise(1e-6), ker, Config{Levels: 2, Branching: 4, Knots: 3, CritDepth: 2})
	require.NoError(t, err)
	assert.Equal(t, n/2, tree.NumObserved())
	mean, std := tree.Predict()
	require.Len(t, mean, n)
	require.Len(t, std, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(y[i]) {
			assert.Greater(t, std[i], 1e-3, "unobserved location %d", i)
			continue
		}
		assert.InDelta(t, y[i], mean[i], 1e-2, "observed location %d", i)
		assert.Less(t, std[i], 1e-2, "observed location %d", i)
	}
}

func TestNumericalErrors(t *testing.T) {
	x := randomLocations(20, 1, 6)
	y := make([]float64, 20)
	cfg := Config{Levels: 1, Branching: 2, Knots: 3, CritDepth: 2}

	nan := kernel.Func(func(a, b []float64) float64 { return math.NaN() })
	_, err := Build(x, y, ScalarNoise(0.1), nan, cfg)
	var numErr *NumericalError
	require.True(t, errors.As(err, &numErr))
	assert.Equal(t, NodeID{0, 0}, numErr.Node)
	assert.True(t, errors.Is(err, kernel.ErrNonFinite))

	negative := kernel.Func(func(a, b []float64) float64 { return -1 })
	_, err = Build(x, y, ScalarNoise(0.1), negative, cfg)
	require.True(t, errors.As(err, &numErr))
	assert.True(t, errors.Is(err, ErrNotPositiveDefinite))
	assert.Equal(t, "prior remainder", numErr.Stage)
}

func TestMatrixNoiseMatchesScalar(t *testing.T) {
	x := randomLocations(40, 2, 12)
	ker := kernel.Isotropic{Shape: kernel.Matern52, Variance: 1, Length: 0.3}
	_, y, err := Simulate(x, ker, 0.05, 13)
	require.NoError(t, err)
	cfg := Config{Levels: 1, Branching: 4, Knots: 4, CritDepth: 1}

	scalar, err := Build(x, y, ScalarNoise(0.05), ker, cfg)
	require.NoError(t, err)
	diag := make(DiagNoise, 40)
	sym := mat.NewSymDense(40, nil)
	for i := range diag {
		diag[i] = 0.05
		sym.SetSym(i, i, 0.05)
	}
	d, err := Build(x, y, diag, ker, cfg)
	require.NoError(t, err)
	m, err := Build(x, y, MatrixNoise{sym}, ker, cfg)
	require.NoError(t, err)
	assert.InDelta(t, scalar.LogLikelihood(), d.LogLikelihood(), 1e-10)
	assert.InDelta(t, scalar.LogLikelihood(), m.LogLikelihood(), 1e-10)
}

func TestMoreKnotsFitBetter(t *testing.T) {
	x := gridLocations(8)
	ker := kernel.Isotropic{Shape: kernel.Exponential, Variance: 1, Length: 0.3}
	var few, many float64
	for seed := uint64(0); seed < 5; seed++ {
		_, y, err := Simulate(x, ker, 0.01, seed)
		require.NoError(t, err)
		for _, r := range []int{1, 8} {
			tree, err := Build(x, y, ScalarNoise(0.01), ker, Config{Levels: 2, Branching: 4, Knots: r, CritDepth: 3})
			require.NoError(t, err)
			if r == 1 {
				few += tree.LogLikelihood()
			} else {
				many += tree.LogLikelihood()
			}
		}
	}
	assert.Greater(t, many, few)
}
