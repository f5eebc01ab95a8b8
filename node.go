package mra

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/btracey/mra/region"
)

// NodeID identifies a node by its resolution level and its index within the
// level. Level m holds J^m nodes; node (m, i) has parent (m-1, i/J) and
// children (m+1, i*J) ... (m+1, i*J+J-1).
type NodeID struct {
	Level int `yaml:"level"`
	Index int `yaml:"index"`
}

func (id NodeID) String() string {
	return fmt.Sprintf("(%d,%d)", id.Level, id.Index)
}

// Role is the part a node plays in the approximation.
type Role int

const (
	// Knotted nodes summarize their region by a set of knots with latent
	// weights. Knotted leaves also carry their observations.
	Knotted Role = iota
	// Attached nodes are at the critical depth. Their observations enter
	// with the exact remainder covariance at all of their locations.
	Attached
	// Inert nodes lie below the critical depth and contribute nothing.
	Inert
)

func (r Role) String() string {
	switch r {
	case Knotted:
		return "knotted"
	case Attached:
		return "attached"
	case Inert:
		return "inert"
	}
	return "unknown"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// node is one region of the tree. Nodes live in the tree's arena and refer
// to each other only through their ids.
type node struct {
	id    NodeID
	role  Role
	box   region.Box
	locs  []int // input rows inside the region
	knots []int // knot rows; all of locs for attached nodes
	q     *mat.Dense

	// Prior state.
	cross []*mat.Dense  // cross[l] = C_l(Q, Q_{a_l}) for l < level
	proj  []*mat.Dense  // proj[l] = W_{a_l}^-1 cross[l]^T
	w     *mat.SymDense // remainder covariance C_level(Q, Q)
	chol  *mat.Cholesky // of w, knotted nodes only

	// Observation-carrying nodes.
	carrier  bool
	obs      []int         // positions in locs with an observation
	locCross []*mat.Dense  // C_l(S, Q_{a_l}) at all locations
	vChol    *mat.Cholesky // observation covariance at obs
	vInvY    *mat.VecDense // V^-1 y_O

	// Posterior state. The tilde terms are the information about the
	// latent weights at levels 0..level from the subtree's data; the plain
	// terms have the node's own weights integrated out.
	omegaT   []*mat.VecDense
	lambdaT  [][]*mat.Dense
	omega    []*mat.VecDense
	lambda   [][]*mat.Dense
	post     *mat.Cholesky // of W + lambdaT[level][level]
	postMean *mat.VecDense // (W + Λ)^-1 omegaT[level]
	gain     []*mat.Dense  // (W + Λ)^-1 lambdaT[level][l] for l < level
	logLike  float64
}

// numKnots returns the number of knots of the node.
func (n *node) numKnots() int {
	return len(n.knots)
}

// hasWeights reports whether the node has latent knot weights.
func (n *node) hasWeights() bool {
	return n.role == Knotted && n.numKnots() > 0
}

// top returns the deepest level whose weights the node's observations load
// on, or -1 if the node carries no observations.
func (n *node) top() int {
	switch {
	case !n.carrier:
		return -1
	case n.role == Attached:
		return n.id.Level - 1
	default:
		return n.id.Level
	}
}

// buildSkeleton allocates the arena and fills in regions, locations and
// knots. It does not evaluate the kernel.
func (t *Tree) buildSkeleton() {
	cfg := t.cfg
	sel := cfg.selector()
	n, _ := t.x.Dims()
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	t.levels = make([][]node, cfg.Levels+1)
	width := 1
	for m := range t.levels {
		t.levels[m] = make([]node, width)
		width *= cfg.Branching
	}
	t.levels[0][0] = node{
		id:   NodeID{0, 0},
		box:  region.Bounding(t.x),
		locs: all,
	}

	for m := 0; m <= cfg.Levels; m++ {
		for i := range t.levels[m] {
			nd := &t.levels[m][i]
			switch {
			case m < cfg.CritDepth:
				nd.role = Knotted
				nd.knots = sel.SelectKnots(nd.box, cfg.Knots, t.x, t.candidates(nd))
				nd.carrier = m == cfg.Levels
			case m == cfg.CritDepth:
				nd.role = Attached
				nd.knots = nd.locs
				nd.carrier = true
			default:
				nd.role = Inert
			}
			nd.q = rows(t.x, nd.knots)
			if nd.carrier {
				nd.obs = observed(t.y, nd.locs)
			}
			if m == cfg.Levels {
				continue
			}
			boxes, members := region.Partition(nd.box, cfg.Branching, t.x, nd.locs)
			for c := range boxes {
				t.levels[m+1][i*cfg.Branching+c] = node{
					id:   NodeID{m + 1, i*cfg.Branching + c},
					box:  boxes[c],
					locs: members[c],
				}
			}
		}
	}
}

// candidates returns the node's locations that are not knots of an ancestor
// and do not share coordinates with one. Either would leave a zero row in the
// remainder covariance.
func (t *Tree) candidates(nd *node) []int {
	taken := make(map[int]bool)
	takenAt := make(map[string]bool)
	path := t.path(nd.id)
	for _, a := range path[:len(path)-1] {
		for _, k := range a.knots {
			taken[k] = true
			takenAt[region.CoordKey(t.x.RawRowView(k))] = true
		}
	}
	cand := make([]int, 0, len(nd.locs))
	for _, i := range nd.locs {
		if taken[i] || takenAt[region.CoordKey(t.x.RawRowView(i))] {
			continue
		}
		cand = append(cand, i)
	}
	return cand
}

// node returns the node with the given id.
func (t *Tree) node(id NodeID) *node {
	if id.Level < 0 || id.Level >= len(t.levels) || id.Index < 0 || id.Index >= len(t.levels[id.Level]) {
		panic(badNodeID)
	}
	return &t.levels[id.Level][id.Index]
}

// path returns the ancestors of id from the root down to the node itself.
func (t *Tree) path(id NodeID) []*node {
	path := make([]*node, id.Level+1)
	idx := id.Index
	for l := id.Level; l >= 0; l-- {
		path[l] = t.node(NodeID{l, idx})
		idx /= t.cfg.Branching
	}
	return path
}

// children returns the children of the node, or nil for a leaf.
func (t *Tree) children(nd *node) []*node {
	if nd.id.Level == t.cfg.Levels {
		return nil
	}
	ch := make([]*node, t.cfg.Branching)
	for c := range ch {
		ch[c] = t.node(NodeID{nd.id.Level + 1, nd.id.Index*t.cfg.Branching + c})
	}
	return ch
}
