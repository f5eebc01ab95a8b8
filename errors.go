package mra

import (
	"errors"
	"fmt"
)

const (
	nilKernel = "mra: nil kernel"
	nilNoise  = "mra: nil noise"
	badNodeID = "mra: node id out of range"
	badHyper  = "mra: hyperparameter length mismatch"
)

// Configuration errors.
var (
	ErrLevels    = errors.New("mra: negative number of levels")
	ErrBranching = errors.New("mra: bad branching factor")
	ErrKnots     = errors.New("mra: non-positive knot budget")
	ErrCritDepth = errors.New("mra: critical depth out of range")
	ErrTreeSize  = errors.New("mra: tree too large")
	ErrNoise     = errors.New("mra: bad measurement error")
)

// Data errors.
var (
	ErrLengthMismatch    = errors.New("mra: locations and observations length mismatch")
	ErrNoLocations       = errors.New("mra: no locations")
	ErrNonFiniteLocation = errors.New("mra: non-finite location")
)

// ErrNotPositiveDefinite is wrapped by a NumericalError when a covariance
// block fails its Cholesky factorization.
var ErrNotPositiveDefinite = errors.New("mra: matrix not positive definite")

// NumericalError reports a fatal numerical failure at a node of the tree.
type NumericalError struct {
	Node  NodeID
	Stage string
	Err   error
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("mra: node %v: %s: %v", e.Node, e.Stage, e.Err)
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}
