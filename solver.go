package gopeakcore

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kacperjurak/gopeakcore/internal/lsq"
)

const (
	// MaxEvaluations and MaxIterations bound every fit. Running out is an
	// ordinary failure of the model, not an error of the caller.
	MaxEvaluations = 100
	MaxIterations  = 100

	unitWeightTolerance = 1e-9
)

var ErrTooFewPoints = errors.New("gopeakcore: fewer points than model parameters")

// Result is a converged fit of one model.
type Result struct {
	Params      []float64
	Cost        float64 // 0.5*sum(w*(y-f)^2)
	Iterations  int
	Evaluations int
}

// Solver fits a single PeakModel to a fixed set of observed points.
type Solver struct {
	Model    PeakModel
	Observed []ObservedPoint
}

func NewSolver(model PeakModel, observed []ObservedPoint) *Solver {
	return &Solver{Model: model, Observed: observed}
}

func (s *Solver) problem(init []float64) lsq.Problem {
	n, dim := len(s.Observed), s.Model.NumParams()
	target := make([]float64, n)
	for i, o := range s.Observed {
		target[i] = o.Y
	}

	return lsq.Problem{
		Dim:  dim,
		Size: n,
		Func: func(dst, x []float64) {
			for i, o := range s.Observed {
				dst[i] = s.Model.Value(o.X, x)
			}
		},
		Jac: func(dst *mat.Dense, x []float64) {
			for i, o := range s.Observed {
				dst.SetRow(i, s.Model.Gradient(o.X, x))
			}
		},
		Validate:   s.Model.ValidateAndClamp,
		Target:     target,
		Weights:    s.weights(),
		InitParams: init,
	}
}

// weights returns nil when every weight is 1 so the problem is solved unweighted.
func (s *Solver) weights() []float64 {
	unit := true
	for _, o := range s.Observed {
		if math.Abs(o.Weight-1) > unitWeightTolerance {
			unit = false
			break
		}
	}
	if unit {
		return nil
	}
	w := make([]float64, len(s.Observed))
	for i, o := range s.Observed {
		w[i] = o.Weight
	}
	return w
}

// Solve runs Levenberg-Marquardt from init with the fixed evaluation and
// iteration limits.
func (s *Solver) Solve(init []float64) (*Result, error) {
	if len(s.Observed) < s.Model.NumParams() {
		return nil, fmt.Errorf("%w: %d points for %s", ErrTooFewPoints, len(s.Observed), s.Model.Name())
	}
	if len(init) != s.Model.NumParams() {
		panic(fmt.Sprintf("gopeakcore: %s expects %d initial parameters, got %d", s.Model.Name(), s.Model.NumParams(), len(init)))
	}

	settings := lsq.DefaultSettings()
	settings.MaxEvaluations = MaxEvaluations
	settings.MaxIterations = MaxIterations

	res, err := lsq.Solve(s.problem(init), &settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Model.Name(), err)
	}
	return &Result{
		Params:      res.X,
		Cost:        res.Cost,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
	}, nil
}
