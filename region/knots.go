package region

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// KnotSelector chooses at most r knots for a box from the candidate
// locations, given as row indices into x. Implementations must be
// deterministic: the same inputs always give the same knots, so that repeated
// tree builds during hyperparameter fitting share a spatial layout.
type KnotSelector interface {
	SelectKnots(b Box, r int, x mat.Matrix, candidates []int) []int
}

// Halton selects knots by walking the Halton low-discrepancy sequence scaled
// into the box and snapping each point to the nearest unused candidate.
// Any shortfall is filled with the remaining candidates in order.
type Halton struct{}

var _ KnotSelector = Halton{}

func (Halton) SelectKnots(b Box, r int, x mat.Matrix, candidates []int) []int {
	if r <= 0 || len(candidates) == 0 {
		return nil
	}
	if len(candidates) <= r {
		return distinct(x, candidates, r)
	}
	_, dim := x.Dims()
	pts := make(places, len(candidates))
	for i, idx := range candidates {
		pts[i] = place{p: mat.Row(nil, idx, x), idx: idx}
	}
	tree := kdtree.New(pts, false)

	used := make(map[int]bool, r)
	seen := make(map[string]bool, r)
	knots := make([]int, 0, r)
	bases := primes(dim)
	q := place{p: make([]float64, dim)}
	for i := 1; len(knots) < r && i <= 8*r; i++ {
		for d := range q.p {
			q.p[d] = b.Min[d] + b.Width(d)*halton(i, bases[d])
		}
		p, ok := nearest(tree, q, used)
		if !ok {
			continue
		}
		key := CoordKey(p.p)
		if seen[key] {
			continue
		}
		used[p.idx] = true
		seen[key] = true
		knots = append(knots, p.idx)
	}
	for _, idx := range candidates {
		if len(knots) == r {
			break
		}
		key := CoordKey(mat.Row(nil, idx, x))
		if used[idx] || seen[key] {
			continue
		}
		used[idx] = true
		seen[key] = true
		knots = append(knots, idx)
	}
	return knots
}

// Random selects a uniformly random subset of the candidates. The stream is
// seeded from Seed and the box corners, so a given box always receives the
// same knots.
type Random struct {
	Seed uint64
}

var _ KnotSelector = Random{}

func (s Random) SelectKnots(b Box, r int, x mat.Matrix, candidates []int) []int {
	if r <= 0 || len(candidates) == 0 {
		return nil
	}
	rnd := rand.New(rand.NewPCG(s.Seed, boxHash(b)))
	perm := rnd.Perm(len(candidates))
	shuffled := make([]int, len(candidates))
	for i, p := range perm {
		shuffled[i] = candidates[p]
	}
	knots := distinct(x, shuffled, r)
	sort.Ints(knots)
	return knots
}

// distinct returns up to r indices from idx whose locations are pairwise
// distinct. Coincident knots make the remainder covariance singular.
func distinct(x mat.Matrix, idx []int, r int) []int {
	seen := make(map[string]bool, len(idx))
	out := make([]int, 0, r)
	for _, i := range idx {
		if len(out) == r {
			break
		}
		key := CoordKey(mat.Row(nil, i, x))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, i)
	}
	return out
}

// CoordKey returns a map key identifying the coordinates p exactly.
func CoordKey(p []float64) string {
	buf := make([]byte, 8*len(p))
	for i, v := range p {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return string(buf)
}

func boxHash(b Box) uint64 {
	h := fnv.New64a()
	buf := make([]byte, 8)
	for _, s := range [][]float64{b.Min, b.Max} {
		for _, v := range s {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
	}
	return h.Sum64()
}

// nearest returns the unused location closest to q. Locations at the same
// distance are resolved by the lowest row index, so the choice does not
// depend on the traversal order of the tree.
func nearest(tree *kdtree.Tree, q place, used map[int]bool) (place, bool) {
	near, dist := tree.Nearest(q)
	if near == nil {
		return place{}, false
	}
	keep := kdtree.NewDistKeeper(dist)
	tree.NearestSet(keep, q)
	var best place
	found := false
	for _, c := range keep.Heap {
		if c.Comparable == nil {
			continue
		}
		p := c.Comparable.(place)
		if used[p.idx] {
			continue
		}
		if !found || p.idx < best.idx {
			best = p
			found = true
		}
	}
	return best, found
}

// halton returns the i'th element of the van der Corput sequence in base b.
func halton(i, b int) float64 {
	var v float64
	f := 1.0
	for i > 0 {
		f /= float64(b)
		v += f * float64(i%b)
		i /= b
	}
	return v
}

// primes returns the first n primes.
func primes(n int) []int {
	ps := make([]int, 0, n)
	for c := 2; len(ps) < n; c++ {
		prime := true
		for _, p := range ps {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			ps = append(ps, c)
		}
	}
	return ps
}

// place is a location with its row index, stored in a k-d tree.
type place struct {
	p   []float64
	idx int
}

func (p place) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(place)
	return p.p[d] - q.p[d]
}

func (p place) Dims() int { return len(p.p) }

func (p place) Distance(c kdtree.Comparable) float64 {
	q := c.(place)
	var sum float64
	for d, v := range p.p {
		diff := v - q.p[d]
		sum += diff * diff
	}
	return sum
}

type places []place

func (p places) Index(i int) kdtree.Comparable         { return p[i] }
func (p places) Len() int                              { return len(p) }
func (p places) Pivot(d kdtree.Dim) int                { return plane{Dim: d, places: p}.Pivot() }
func (p places) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts places along a single dimension, ties broken by row index.
type plane struct {
	kdtree.Dim
	places
}

func (p plane) Less(i, j int) bool {
	a, b := p.places[i], p.places[j]
	if a.p[p.Dim] != b.p[p.Dim] {
		return a.p[p.Dim] < b.p[p.Dim]
	}
	return a.idx < b.idx
}

// Pivot sorts the places and returns the median. A sort keeps the tree
// shape a function of the input alone.
func (p plane) Pivot() int {
	sort.Sort(p)
	return p.Len() / 2
}

func (p plane) Swap(i, j int) { p.places[i], p.places[j] = p.places[j], p.places[i] }
