// Package region partitions a spatial domain into axis-aligned boxes and
// selects representative knot locations within them.
package region

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	badDim       = "region: dimension mismatch"
	badBranching = "region: non-positive branching factor"
	badBox       = "region: box min exceeds max"
)

// Box is a closed axis-aligned bounding box. A Box must not be modified once
// it has been handed to a tree.
type Box struct {
	Min []float64
	Max []float64
}

// NewBox returns the box with the given corners.
func NewBox(min, max []float64) Box {
	if len(min) != len(max) {
		panic(badDim)
	}
	for i := range min {
		if min[i] > max[i] {
			panic(badBox)
		}
	}
	return Box{
		Min: append([]float64(nil), min...),
		Max: append([]float64(nil), max...),
	}
}

// Bounding returns the smallest box containing the rows of x.
func Bounding(x mat.Matrix) Box {
	r, c := x.Dims()
	min := make([]float64, c)
	max := make([]float64, c)
	for j := range min {
		min[j] = math.Inf(1)
		max[j] = math.Inf(-1)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := x.At(i, j)
			min[j] = math.Min(min[j], v)
			max[j] = math.Max(max[j], v)
		}
	}
	return Box{Min: min, Max: max}
}

// Dim returns the dimension of the box.
func (b Box) Dim() int {
	return len(b.Min)
}

// Width returns the extent of the box along axis d.
func (b Box) Width(d int) float64 {
	return b.Max[d] - b.Min[d]
}

// Contains reports whether p lies in the closed box.
func (b Box) Contains(p []float64) bool {
	if len(p) != b.Dim() {
		panic(badDim)
	}
	for d, v := range p {
		if v < b.Min[d] || v > b.Max[d] {
			return false
		}
	}
	return true
}

func (b Box) String() string {
	return fmt.Sprintf("%v-%v", b.Min, b.Max)
}

// cuts returns the number of equal-width cells along each axis for a split
// into j children. Prime factors of j are assigned largest first to the axis
// with the widest cell, ties going to the lowest axis.
func (b Box) cuts(j int) []int {
	cuts := make([]int, b.Dim())
	for d := range cuts {
		cuts[d] = 1
	}
	factors := primeFactors(j)
	sort.Sort(sort.Reverse(sort.IntSlice(factors)))
	for _, f := range factors {
		best := 0
		for d := 1; d < len(cuts); d++ {
			if b.Width(d)/float64(cuts[d]) > b.Width(best)/float64(cuts[best]) {
				best = d
			}
		}
		cuts[best] *= f
	}
	return cuts
}

func primeFactors(n int) []int {
	var f []int
	for p := 2; p*p <= n; p++ {
		for n%p == 0 {
			f = append(f, p)
			n /= p
		}
	}
	if n > 1 {
		f = append(f, n)
	}
	return f
}

// edges returns the cell boundaries along axis d for n cells. The last edge
// is exactly Max[d].
func (b Box) edges(d, n int) []float64 {
	e := make([]float64, n+1)
	for k := 0; k < n; k++ {
		e[k] = b.Min[d] + b.Width(d)*float64(k)/float64(n)
	}
	e[n] = b.Max[d]
	return e
}

// Split divides the box into j equal-width children that cover it exactly
// and overlap only on shared faces. Children are ordered row-major over the
// per-axis cell indices, axis 0 varying slowest.
func (b Box) Split(j int) []Box {
	if j <= 0 {
		panic(badBranching)
	}
	cuts := b.cuts(j)
	edges := make([][]float64, len(cuts))
	for d, n := range cuts {
		edges[d] = b.edges(d, n)
	}
	children := make([]Box, j)
	cell := make([]int, len(cuts))
	for c := range children {
		rem := c
		for d := len(cuts) - 1; d >= 0; d-- {
			cell[d] = rem % cuts[d]
			rem /= cuts[d]
		}
		min := make([]float64, len(cuts))
		max := make([]float64, len(cuts))
		for d, k := range cell {
			min[d] = edges[d][k]
			max[d] = edges[d][k+1]
		}
		children[c] = Box{Min: min, Max: max}
	}
	return children
}
