package mra

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/btracey/mra/kernel"
)

// barrierPow is the power of the penalty for leaving the hyperparameter
// bounds.
const barrierPow = 4

// minLogNoise and maxLogNoise bound the log measurement-error variance when
// it is fitted.
var (
	minLogNoise = math.Log(1e-8)
	maxLogNoise = math.Log(10)
)

// Likelihood is the MRA log-likelihood of a data set as a function of the
// kernel hyperparameters. Each evaluation builds a new tree over the same
// locations, so the knots, and hence the likelihood surface, do not change
// between evaluations.
type Likelihood struct {
	Shape kernel.Shape
	// Noise is the measurement-error variance. If OptNoise is true the last
	// hyperparameter is its log, and Noise is ignored.
	Noise    float64
	OptNoise bool

	X      mat.Matrix
	Y      []float64
	Config Config
}

// NumHyper returns the number of hyperparameters.
func (l *Likelihood) NumHyper() int {
	n := l.Shape.NumHyper()
	if l.OptNoise {
		n++
	}
	return n
}

// Bounds returns the bounds on the hyperparameters.
func (l *Likelihood) Bounds() []kernel.Bound {
	b := l.Shape.Bounds()
	if l.OptNoise {
		b = append(b, kernel.Bound{Min: minLogNoise, Max: maxLogNoise})
	}
	return b
}

// Split returns the kernel and the measurement-error variance encoded by
// hyper.
func (l *Likelihood) Split(hyper []float64) (kernel.Isotropic, float64) {
	if len(hyper) != l.NumHyper() {
		panic(badHyper)
	}
	nk := l.Shape.NumHyper()
	noise := l.Noise
	if l.OptNoise {
		noise = math.Exp(hyper[nk])
	}
	return l.Shape.FromLog(hyper[:nk]), noise
}

// LogLikelihood builds the tree for the hyperparameters and returns its
// log-likelihood.
func (l *Likelihood) LogLikelihood(hyper []float64) (float64, error) {
	ker, noise := l.Split(hyper)
	cfg := l.Config
	cfg.Logger = nil
	t, err := Build(l.X, l.Y, ScalarNoise(noise), ker, cfg)
	if err != nil {
		return math.Inf(-1), err
	}
	return t.LogLikelihood(), nil
}

// NegativeLikelihood returns the negative log-likelihood for the
// hyperparameters, so the best value is the minimum of the function. A
// hyperparameter choice that makes the tree numerically singular returns
// +Inf.
func (l *Likelihood) NegativeLikelihood(hyper []float64) float64 {
	ll, err := l.LogLikelihood(hyper)
	if err != nil {
		l.Config.logger().Debug("likelihood evaluation failed", "hyper", hyper, "err", err)
		return math.Inf(1)
	}
	return -ll
}

// barrier returns the penalty for hyper lying outside the bounds.
func (l *Likelihood) barrier(hyper []float64) float64 {
	var b float64
	for i, bound := range l.Bounds() {
		v := hyper[i]
		if v < bound.Min {
			b += math.Pow(bound.Min-v, barrierPow)
		}
		if v > bound.Max {
			b += math.Pow(v-bound.Max, barrierPow)
		}
	}
	return b
}

// Train maximizes the likelihood with the Nelder-Mead method starting from
// init, and returns the best hyperparameters with their negative
// log-likelihood. Leaving the bounds is penalized by a quartic barrier. If
// settings is nil the optimize defaults are used.
func (l *Likelihood) Train(init []float64, settings *optimize.Settings) (hyper []float64, negLogLike float64, err error) {
	if len(init) != l.NumHyper() {
		panic(badHyper)
	}
	logger := l.Config.logger()
	n := 0
	for _, v := range l.Y {
		if !math.IsNaN(v) {
			n++
		}
	}
	scale := math.Max(float64(n), 1)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			obj := l.NegativeLikelihood(x) + scale*l.barrier(x)
			logger.Debug("likelihood evaluation", "hyper", x, "objective", obj)
			return obj
		},
	}
	result, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
	if result == nil {
		return nil, math.Inf(1), err
	}
	logger.Info("training finished", "status", result.Status, "hyper", result.X, "objective", result.F)
	return result.X, l.NegativeLikelihood(result.X), err
}
