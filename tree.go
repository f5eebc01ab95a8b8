// Package mra implements the multi-resolution approximation (MRA) to
// Gaussian-process inference for large spatial data sets.
//
// The spatial domain is recursively split into a tree of boxes. Every node
// above the critical depth summarizes the covariance left unexplained by its
// ancestors through a small set of knots; at the critical depth the
// observations enter with their exact remainder covariance. Likelihood and
// prediction then need only small dense operations at each node, so the cost
// grows close to linearly in the number of locations.
//
// A Tree is built once for a set of locations, observations and a kernel,
// and is immutable afterwards. Changing the kernel requires a new Build.
package mra

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/btracey/mra/kernel"
	"github.com/btracey/mra/region"
)

// Tree is a fully conditioned multi-resolution approximation.
type Tree struct {
	cfg    Config
	kernel kernel.Kerneler
	noise  Noise
	logger *slog.Logger

	x *mat.Dense // locations, one per row
	y []float64  // observations, NaN if unobserved

	levels [][]node
	nObs   int
}

// Build constructs the tree for the locations in the rows of x and the
// observations y, with NaN marking unobserved locations, and conditions it
// on the observations. Invalid configuration or data is reported before any
// kernel evaluation. A numerical failure is returned as a *NumericalError.
func Build(x mat.Matrix, y []float64, noise Noise, ker kernel.Kerneler, cfg Config) (*Tree, error) {
	if ker == nil {
		panic(nilKernel)
	}
	if noise == nil {
		panic(nilNoise)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, c := x.Dims()
	if r != len(y) {
		return nil, fmt.Errorf("%w: %d locations, %d observations", ErrLengthMismatch, r, len(y))
	}
	if r == 0 || c == 0 {
		return nil, ErrNoLocations
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := x.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d", ErrNonFiniteLocation, i)
			}
		}
	}
	if err := noise.Validate(r); err != nil {
		return nil, err
	}

	t := &Tree{
		cfg:    cfg,
		kernel: ker,
		noise:  noise,
		logger: cfg.logger(),
		x:      mat.DenseCopyOf(x),
		y:      append([]float64(nil), y...),
	}
	for _, v := range y {
		if !math.IsNaN(v) {
			t.nObs++
		}
	}
	t.buildSkeleton()
	if err := t.priorPass(); err != nil {
		return nil, err
	}
	if err := t.posteriorPass(); err != nil {
		return nil, err
	}
	t.logger.Info("mra tree built",
		"locations", r,
		"observed", t.nObs,
		"levels", cfg.Levels,
		"branching", cfg.Branching,
		"knots", cfg.Knots,
		"critDepth", cfg.CritDepth,
		"logLikelihood", t.LogLikelihood(),
	)
	return t, nil
}

// LogLikelihood returns the log-likelihood log p(y) of the observed entries
// under the approximated covariance, including the -n/2 log(2π) constant.
// Larger is better; minimizers should use its negation (see Likelihood).
func (t *Tree) LogLikelihood() float64 {
	var ll float64
	for m := range t.levels {
		for i := range t.levels[m] {
			ll += t.levels[m][i].logLike
		}
	}
	return ll
}

// Predict returns the posterior mean and standard deviation of the latent
// process at every location, in the order of the rows given to Build. The
// measurement error is not included in the standard deviation.
func (t *Tree) Predict() (mean, std []float64) {
	mean, variance := t.predictPass()
	return mean, stdDevs(variance)
}

// NumObserved returns the number of non-NaN observations.
func (t *Tree) NumObserved() int {
	return t.nObs
}

// Config returns the tree shape the tree was built with.
func (t *Tree) Config() Config {
	return t.cfg
}

// NodeInfo describes a node for diagnostics and visualization.
type NodeInfo struct {
	ID        NodeID     `yaml:"id"`
	Role      Role       `yaml:"role"`
	Region    region.Box `yaml:"region"`
	Locations []int      `yaml:"locations,flow"`
	Knots     []int      `yaml:"knots,flow"`
	// Carrier is true if the node's observations enter the likelihood.
	Carrier bool `yaml:"carrier"`
	// LogLikelihood is the node's term of the total log-likelihood.
	LogLikelihood float64 `yaml:"logLikelihood"`
}

// Nodes returns a description of every node, level by level.
func (t *Tree) Nodes() []NodeInfo {
	var info []NodeInfo
	for m := range t.levels {
		for i := range t.levels[m] {
			info = append(info, t.info(&t.levels[m][i]))
		}
	}
	return info
}

// Node returns the description of the node with the given id.
func (t *Tree) Node(id NodeID) (NodeInfo, bool) {
	if id.Level < 0 || id.Level >= len(t.levels) || id.Index < 0 || id.Index >= len(t.levels[id.Level]) {
		return NodeInfo{}, false
	}
	return t.info(t.node(id)), true
}

func (t *Tree) info(nd *node) NodeInfo {
	return NodeInfo{
		ID:            nd.id,
		Role:          nd.role,
		Region:        region.NewBox(nd.box.Min, nd.box.Max),
		Locations:     append([]int(nil), nd.locs...),
		Knots:         append([]int(nil), nd.knots...),
		Carrier:       nd.carrier,
		LogLikelihood: nd.logLike,
	}
}

// RemainderCov returns a copy of the prior remainder covariance at the
// node's knots (at all of its locations for an attached node), or nil if the
// node has none.
func (t *Tree) RemainderCov(id NodeID) *mat.SymDense {
	nd := t.node(id)
	if nd.w == nil {
		return nil
	}
	s := mat.NewSymDense(nd.w.SymmetricDim(), nil)
	s.CopySym(nd.w)
	return s
}
