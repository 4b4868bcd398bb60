// Package lsq implements a weighted Levenberg-Marquardt solver for small
// nonlinear least-squares problems.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrBadProblem     = errors.New("lsq: invalid problem")
	ErrMaxEvaluations = errors.New("lsq: maximum evaluation count exceeded")
	ErrMaxIterations  = errors.New("lsq: maximum iteration count exceeded")
	ErrSingular       = errors.New("lsq: normal equations are singular")
	ErrNotFinite      = errors.New("lsq: objective is not finite")
	ErrPanic          = errors.New("lsq: solver panicked")
)

// maxDamping bounds the damping parameter; beyond it the step is numerically zero.
const maxDamping = 1e100

// Problem describes min 0.5*sum(w_i*(Target_i - f_i(x))^2).
type Problem struct {
	Dim  int // number of parameters
	Size int // number of observations

	// Func writes the model values f(x) into dst (len Size).
	Func func(dst, x []float64)
	// Jac writes the Size x Dim Jacobian of Func into dst. When nil the
	// Jacobian is computed numerically.
	Jac func(dst *mat.Dense, x []float64)
	// Validate, if set, is applied to every trial point before the
	// objective is evaluated there. It must return a vector of length Dim.
	Validate func(x []float64) []float64

	Target  []float64
	Weights []float64 // nil means unweighted

	InitParams []float64
}

// Settings holds the stopping rules of the solver.
type Settings struct {
	MaxEvaluations int
	MaxIterations  int

	CostTol  float64 // relative reduction of the cost
	ParamTol float64 // relative size of the step
	OrthoTol float64 // cosine between residuals and Jacobian columns

	// InitialDamping scales the largest diagonal entry of J^T W J to give
	// the starting damping parameter.
	InitialDamping float64
}

// DefaultSettings returns the limits used for peak fitting.
func DefaultSettings() Settings {
	return Settings{
		MaxEvaluations: 100,
		MaxIterations:  100,
		CostTol:        1e-10,
		ParamTol:       1e-10,
		OrthoTol:       1e-10,
		InitialDamping: 1e-3,
	}
}

// Result is the outcome of a converged run.
type Result struct {
	X           []float64
	Cost        float64
	Iterations  int
	Evaluations int
}

func (p *Problem) check() error {
	switch {
	case p.Dim <= 0 || p.Size <= 0:
		return fmt.Errorf("%w: dim=%d size=%d", ErrBadProblem, p.Dim, p.Size)
	case p.Func == nil:
		return fmt.Errorf("%w: nil Func", ErrBadProblem)
	case len(p.InitParams) != p.Dim:
		return fmt.Errorf("%w: %d initial parameters for dim %d", ErrBadProblem, len(p.InitParams), p.Dim)
	case len(p.Target) != p.Size:
		return fmt.Errorf("%w: %d targets for size %d", ErrBadProblem, len(p.Target), p.Size)
	case p.Weights != nil && len(p.Weights) != p.Size:
		return fmt.Errorf("%w: %d weights for size %d", ErrBadProblem, len(p.Weights), p.Size)
	}
	return nil
}

func (p *Problem) weight(i int) float64 {
	if p.Weights == nil {
		return 1
	}
	return p.Weights[i]
}

func (p *Problem) validate(x []float64) ([]float64, error) {
	if p.Validate == nil {
		return x, nil
	}
	v := p.Validate(x)
	if len(v) != p.Dim {
		return nil, fmt.Errorf("%w: validator returned %d parameters for dim %d", ErrBadProblem, len(v), p.Dim)
	}
	return v, nil
}

// residuals fills r with Target-f and returns the weighted half sum of squares.
func (p *Problem) residuals(r, f []float64) float64 {
	var c float64
	for i, t := range p.Target {
		r[i] = t - f[i]
		c += p.weight(i) * r[i] * r[i]
	}
	return 0.5 * c
}

// normal builds a = J^T W J and g = J^T W r.
func (p *Problem) normal(a *mat.SymDense, g *mat.VecDense, jac *mat.Dense, r []float64) {
	for j := 0; j < p.Dim; j++ {
		var gj float64
		for i := 0; i < p.Size; i++ {
			gj += p.weight(i) * jac.At(i, j) * r[i]
		}
		g.SetVec(j, gj)
		for k := j; k < p.Dim; k++ {
			var s float64
			for i := 0; i < p.Size; i++ {
				s += p.weight(i) * jac.At(i, j) * jac.At(i, k)
			}
			a.SetSym(j, k, s)
		}
	}
}

// Solve runs Levenberg-Marquardt from p.InitParams. Exhausting the evaluation
// or iteration budget is reported as an error, as is any panic raised while
// evaluating the problem.
func Solve(p Problem, settings *Settings) (res *Result, err error) {
	if settings == nil {
		s := DefaultSettings()
		settings = &s
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	jacobian := p.Jac
	if jacobian == nil {
		nj := lm.NumJac{Func: p.Func}
		jacobian = nj.Jac
	}

	n, m := p.Size, p.Dim
	var (
		f      = make([]float64, n)
		r      = make([]float64, n)
		fTrial = make([]float64, n)
		rTrial = make([]float64, n)
		jac    = mat.NewDense(n, m, nil)
		a      = mat.NewSymDense(m, nil)
		g      = mat.NewVecDense(m, nil)
		damped = mat.NewSymDense(m, nil)
		delta  = mat.NewVecDense(m, nil)
		diag   = make([]float64, m)
		trial  = make([]float64, m)
		step   = make([]float64, m)
		chol   mat.Cholesky
	)

	evaluations := 0
	evaluate := func(dst, res, x []float64) (float64, error) {
		if evaluations >= settings.MaxEvaluations {
			return 0, ErrMaxEvaluations
		}
		evaluations++
		p.Func(dst, x)
		return p.residuals(res, dst), nil
	}

	x, err := p.validate(append([]float64(nil), p.InitParams...))
	if err != nil {
		return nil, err
	}
	cost, err := evaluate(f, r, x)
	if err != nil {
		return nil, err
	}
	if !isFinite(cost) {
		return nil, fmt.Errorf("%w: initial cost %v", ErrNotFinite, cost)
	}
	jacobian(jac, x)
	p.normal(a, g, jac, r)

	lambda := settings.InitialDamping * maxDiag(a)
	if lambda <= 0 {
		lambda = settings.InitialDamping
	}
	nu := 2.0

	result := func(iterations int) *Result {
		return &Result{X: x, Cost: cost, Iterations: iterations, Evaluations: evaluations}
	}

	for iter := 1; ; iter++ {
		if cost == 0 || orthogonality(a, g, cost) <= settings.OrthoTol {
			return result(iter - 1), nil
		}
		if iter > settings.MaxIterations {
			return nil, ErrMaxIterations
		}

		scaleFloor := 1e-12 * math.Max(maxDiag(a), 1)
		for j := 0; j < m; j++ {
			diag[j] = math.Max(a.At(j, j), scaleFloor)
		}

		for {
			if lambda > maxDamping || math.IsNaN(lambda) {
				return nil, ErrSingular
			}
			damped.CopySym(a)
			for j := 0; j < m; j++ {
				damped.SetSym(j, j, a.At(j, j)+lambda*diag[j])
			}
			if !chol.Factorize(damped) || chol.SolveVecTo(delta, g) != nil {
				lambda *= nu
				nu *= 2
				continue
			}

			for j := 0; j < m; j++ {
				trial[j] = x[j] + delta.AtVec(j)
			}
			candidate, err := p.validate(append([]float64(nil), trial...))
			if err != nil {
				return nil, err
			}
			floats.SubTo(step, candidate, x)
			if floats.Norm(step, 2) <= settings.ParamTol*(floats.Norm(x, 2)+settings.ParamTol) {
				return result(iter), nil
			}

			trialCost, err := evaluate(fTrial, rTrial, candidate)
			if err != nil {
				return nil, err
			}

			if isFinite(trialCost) && trialCost < cost {
				var predicted float64
				for j := 0; j < m; j++ {
					dj := delta.AtVec(j)
					predicted += dj * (lambda*diag[j]*dj + g.AtVec(j))
				}
				predicted *= 0.5
				rho := 0.5
				if predicted > 0 {
					rho = (cost - trialCost) / predicted
				}

				reduction := (cost - trialCost) / cost
				x = candidate
				cost = trialCost
				f, fTrial = fTrial, f
				r, rTrial = rTrial, r

				jacobian(jac, x)
				p.normal(a, g, jac, r)
				lambda *= math.Max(1.0/3.0, 1-math.Pow(2*rho-1, 3))
				nu = 2

				if reduction <= settings.CostTol {
					return result(iter), nil
				}
				break
			}

			lambda *= nu
			nu *= 2
		}
	}
}

// orthogonality is the largest cosine between the weighted residual vector
// and a weighted Jacobian column.
func orthogonality(a *mat.SymDense, g *mat.VecDense, cost float64) float64 {
	rNorm := math.Sqrt(2 * cost)
	var worst float64
	for j := 0; j < g.Len(); j++ {
		colNorm := math.Sqrt(a.At(j, j))
		if colNorm == 0 {
			continue
		}
		worst = math.Max(worst, math.Abs(g.AtVec(j))/(colNorm*rNorm))
	}
	return worst
}

func maxDiag(a *mat.SymDense) float64 {
	var d float64
	for j := 0; j < a.SymmetricDim(); j++ {
		d = math.Max(d, a.At(j, j))
	}
	return d
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
