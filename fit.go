package gopeakcore

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/stat"

	"github.com/kacperjurak/gopeakcore/internal/logging"
)

// MinFitPoints is the smallest profile any model is fitted to.
const MinFitPoints = 5

var (
	ErrNoFit            = errors.New("gopeakcore: no model produced a fit")
	ErrInsufficientData = fmt.Errorf("%w: insufficient data", ErrNoFit)
	ErrLengthMismatch   = errors.New("gopeakcore: x and y lengths differ")
	ErrUndefinedQuality = errors.New("gopeakcore: correlation undefined for fitted curve")
)

// FitQuality describes the winning fit of a profile.
type FitQuality struct {
	Model          string         `json:"model" yaml:"model"`
	Classification Classification `json:"classification" yaml:"classification"`
	Parameters     []float64      `json:"parameters" yaml:"parameters"`

	// RSquared is the Pearson correlation between observed and fitted
	// intensities. It is not clamped and may be negative.
	RSquared float64 `json:"r_squared" yaml:"r_squared"`
	// FitScore is RSquared discounted by the classification penalty.
	FitScore float64 `json:"fit_score" yaml:"fit_score"`

	NumPoints        int     `json:"num_points" yaml:"num_points"`
	NumParameters    int     `json:"num_parameters" yaml:"num_parameters"`
	DegreesOfFreedom int     `json:"degrees_of_freedom" yaml:"degrees_of_freedom"`
	ReducedChiSquare float64 `json:"reduced_chi_square" yaml:"reduced_chi_square"`
	RMSE             float64 `json:"rmse" yaml:"rmse"`

	FittedY []float64 `json:"fitted_y" yaml:"fitted_y"`

	Iterations  int `json:"iterations" yaml:"iterations"`
	Evaluations int `json:"evaluations" yaml:"evaluations"`
}

// ComputeFitQuality evaluates params of model on points.
func ComputeFitQuality(points []ObservedPoint, model PeakModel, params []float64) (*FitQuality, error) {
	n, k := len(points), model.NumParams()
	observed := make([]float64, n)
	fitted := make([]float64, n)
	var chiSq, ssRes float64
	for i, p := range points {
		observed[i] = p.Y
		fitted[i] = model.Value(p.X, params)
		d := p.Y - fitted[i]
		chiSq += p.Weight * d * d
		ssRes += d * d
	}

	r := stat.Correlation(observed, fitted, nil)
	if math.IsNaN(r) {
		return nil, fmt.Errorf("%s: %w", model.Name(), ErrUndefinedQuality)
	}

	class := model.Classify(params)
	dof := max(1, n-k)
	return &FitQuality{
		Model:            model.Name(),
		Classification:   class,
		Parameters:       append([]float64(nil), params...),
		RSquared:         r,
		FitScore:         r * class.PenaltyFactor(),
		NumPoints:        n,
		NumParameters:    k,
		DegreesOfFreedom: dof,
		ReducedChiSquare: chiSq / float64(dof),
		RMSE:             math.Sqrt(ssRes / float64(n)),
		FittedY:          fitted,
	}, nil
}

// Fitter selects the best of several peak models for a profile. The zero
// value is ready to use and logs nothing.
type Fitter struct {
	Log logr.Logger
}

// NewFitter returns a Fitter reporting per-model outcomes to log.
func NewFitter(log logr.Logger) *Fitter {
	return &Fitter{Log: log}
}

// FitPeakModels fits a profile with unit weights using a silent Fitter.
func FitPeakModels(x, y []float64, candidates []PeakModel) (*FitQuality, error) {
	return (&Fitter{}).FitPeakModels(x, y, candidates)
}

// FitPeakModels fits x, y with unit weights. See FitPoints.
func (f *Fitter) FitPeakModels(x, y []float64, candidates []PeakModel) (*FitQuality, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	return f.FitPoints(Points(x, y, nil), candidates)
}

// FitPoints tries each candidate in order and returns the fit with the
// highest RSquared; on ties the earlier candidate wins. Models without a
// seed, models the solver rejects and models whose quality is undefined are
// skipped. ErrNoFit is returned when nothing fits.
func (f *Fitter) FitPoints(points []ObservedPoint, candidates []PeakModel) (*FitQuality, error) {
	log := f.logger()
	if len(points) < MinFitPoints {
		return nil, fmt.Errorf("%w: %d points, need %d", ErrInsufficientData, len(points), MinFitPoints)
	}

	var best *FitQuality
	for _, model := range candidates {
		q, err := f.fitModel(points, model)
		if err != nil {
			log.V(logging.DEBUG).Info("Model rejected", "model", model.Name(), "reason", err.Error())
			continue
		}
		log.V(logging.DEBUG).Info("Model fitted", "model", q.Model, "rSquared", q.RSquared,
			"classification", q.Classification.String(), "evaluations", q.Evaluations)
		if best == nil || q.RSquared > best.RSquared {
			best = q
		}
	}
	if best == nil {
		return nil, ErrNoFit
	}
	return best, nil
}

var errNoSeed = errors.New("no initial guess")

func (f *Fitter) fitModel(points []ObservedPoint, model PeakModel) (*FitQuality, error) {
	init, ok := model.GuessInitialParameters(points)
	if !ok {
		return nil, errNoSeed
	}
	res, err := NewSolver(model, points).Solve(init)
	if err != nil {
		return nil, err
	}
	q, err := ComputeFitQuality(points, model, res.Params)
	if err != nil {
		return nil, err
	}
	q.Iterations = res.Iterations
	q.Evaluations = res.Evaluations
	return q, nil
}

func (f *Fitter) logger() logr.Logger {
	if f == nil || f.Log.GetSink() == nil {
		return logr.Discard()
	}
	return f.Log
}
