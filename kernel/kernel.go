// Package kernel provides stationary covariance functions for spatial
// Gaussian processes and helpers for evaluating them over sets of locations.
package kernel

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Kerneler is a covariance function between two locations. It must be
// symmetric in its arguments and positive semi-definite.
type Kerneler interface {
	Kernel(x, y []float64) float64
}

// Func adapts an ordinary function to the Kerneler interface.
type Func func(x, y []float64) float64

func (f Func) Kernel(x, y []float64) float64 { return f(x, y) }

// Bound is a closed interval on a (log) hyperparameter.
type Bound struct {
	Min float64
	Max float64
}

// Shape is the correlation shape of an isotropic kernel, as a function of the
// scaled distance r = |x-y| / length.
type Shape int

const (
	Exponential Shape = iota // Matérn ν=1/2
	Matern32
	Matern52
	SqExp
)

var shapeNames = map[Shape]string{
	Exponential: "exponential",
	Matern32:    "matern32",
	Matern52:    "matern52",
	SqExp:       "sqexp",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseShape returns the Shape with the given name.
func ParseShape(name string) (Shape, bool) {
	for s, n := range shapeNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Corr returns the correlation at scaled distance r.
func (s Shape) Corr(r float64) float64 {
	switch s {
	case Exponential:
		return math.Exp(-r)
	case Matern32:
		a := math.Sqrt(3) * r
		return (1 + a) * math.Exp(-a)
	case Matern52:
		a := math.Sqrt(5) * r
		return (1 + a + a*a/3) * math.Exp(-a)
	case SqExp:
		return math.Exp(-0.5 * r * r)
	}
	panic(badShape)
}

// Isotropic is a stationary isotropic kernel
//  k(x, y) = Variance * Shape.Corr(|x-y| / Length)
type Isotropic struct {
	Shape    Shape
	Variance float64
	Length   float64
}

var _ Kerneler = Isotropic{}

func (k Isotropic) Kernel(x, y []float64) float64 {
	if len(x) != len(y) {
		panic(badInputDim)
	}
	if k.Length <= 0 {
		// A zero length scale makes every distinct pair uncorrelated.
		if floats.Equal(x, y) {
			return k.Variance
		}
		return 0
	}
	r := floats.Distance(x, y, 2) / k.Length
	return k.Variance * k.Shape.Corr(r)
}

// NumHyper returns the number of hyperparameters of an isotropic kernel in
// log space: log variance and log length.
func (s Shape) NumHyper() int {
	return 2
}

// FromLog constructs an isotropic kernel from log hyperparameters
// [log variance, log length].
func (s Shape) FromLog(hyper []float64) Isotropic {
	if len(hyper) != s.NumHyper() {
		panic(badHyperLength)
	}
	return Isotropic{
		Shape:    s,
		Variance: math.Exp(hyper[0]),
		Length:   math.Exp(hyper[1]),
	}
}

// Hyper returns the log hyperparameters of k, storing in-place into dst if
// dst is non-nil.
func (k Isotropic) Hyper(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, k.Shape.NumHyper())
	}
	if len(dst) != k.Shape.NumHyper() {
		panic(badHyperLength)
	}
	dst[0] = math.Log(k.Variance)
	dst[1] = math.Log(k.Length)
	return dst
}

// Bounds returns the bounds on the log hyperparameters. Locations are
// expected to be normalized to the unit box.
func (s Shape) Bounds() []Bound {
	return []Bound{
		{math.Log(1e-3), math.Log(1e3)},
		{math.Log(1e-3), math.Log(10)},
	}
}
