package region

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Partition splits b into j children and assigns each location in idx (row
// indices into x) to exactly one of them. A location on an interior boundary
// goes to the lower-index child; locations outside b are clamped to the
// nearest cell. The order of idx is preserved within each child. Children
// with no locations are returned with empty member lists.
func Partition(b Box, j int, x mat.Matrix, idx []int) ([]Box, [][]int) {
	_, c := x.Dims()
	if c != b.Dim() {
		panic(badDim)
	}
	children := b.Split(j)
	cuts := b.cuts(j)
	edges := make([][]float64, len(cuts))
	for d, n := range cuts {
		edges[d] = b.edges(d, n)
	}
	members := make([][]int, j)
	for _, i := range idx {
		child := 0
		for d := range cuts {
			child = child*cuts[d] + cell(edges[d], x.At(i, d))
		}
		members[child] = append(members[child], i)
	}
	return children, members
}

// cell returns the lowest cell k with v <= edges[k+1], clamped to the last
// cell.
func cell(edges []float64, v float64) int {
	n := len(edges) - 1
	k := sort.Search(n, func(k int) bool { return v <= edges[k+1] })
	if k == n {
		k = n - 1
	}
	return k
}
