package gopeakcore

import (
	"errors"
	"fmt"
	"strings"
)

// ObservedPoint is a single sample of a peak profile.
type ObservedPoint struct {
	X      float64
	Y      float64
	Weight float64
}

// NewPoint returns an unweighted sample.
func NewPoint(x, y float64) ObservedPoint {
	return ObservedPoint{X: x, Y: y, Weight: 1}
}

// Points zips x, y and w into observed points. A nil w gives every point
// weight 1. The slices must have equal length.
func Points(x, y, w []float64) []ObservedPoint {
	if len(x) != len(y) || (w != nil && len(w) != len(x)) {
		panic("gopeakcore: slice length mismatch")
	}
	points := make([]ObservedPoint, len(x))
	for i := range x {
		points[i] = NewPoint(x[i], y[i])
		if w != nil {
			points[i].Weight = w[i]
		}
	}
	return points
}

// Classification is the qualitative shape assigned to a fitted peak.
type Classification int

const (
	Gaussian Classification = iota
	FrontingGaussian
	TailingGaussian
	DoubleGaussian
)

var classificationNames = [...]string{
	Gaussian:         "GAUSSIAN",
	FrontingGaussian: "FRONTING_GAUSSIAN",
	TailingGaussian:  "TAILING_GAUSSIAN",
	DoubleGaussian:   "DOUBLE_GAUSSIAN",
}

// PenaltyFactor discounts the score of more flexible models.
func (c Classification) PenaltyFactor() float64 {
	switch c {
	case FrontingGaussian, TailingGaussian:
		return 0.98
	case DoubleGaussian:
		return 0.965
	default:
		return 1.0
	}
}

func (c Classification) String() string {
	if c < 0 || int(c) >= len(classificationNames) {
		return fmt.Sprintf("Classification(%d)", int(c))
	}
	return classificationNames[c]
}

func (c Classification) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(classificationNames) {
		return nil, fmt.Errorf("gopeakcore: unknown classification %d", int(c))
	}
	return []byte(classificationNames[c]), nil
}

func (c *Classification) UnmarshalText(text []byte) error {
	for i, name := range classificationNames {
		if strings.EqualFold(name, string(text)) {
			*c = Classification(i)
			return nil
		}
	}
	return fmt.Errorf("gopeakcore: unknown classification %q", text)
}

// PeakModel is an analytic peak shape that can be fitted to observed points.
//
// Value and Gradient panic if params does not have NumParams elements.
type PeakModel interface {
	Name() string
	NumParams() int

	// Value returns the model intensity at x.
	Value(x float64, params []float64) float64
	// Gradient returns the partial derivatives of Value with respect to
	// each parameter, in parameter order.
	Gradient(x float64, params []float64) []float64
	// ValidateAndClamp returns a corrected copy of params that satisfies the
	// model's feasibility constraints.
	ValidateAndClamp(params []float64) []float64
	// GuessInitialParameters seeds the solver. It reports false when no
	// sensible seed can be derived from points.
	GuessInitialParameters(points []ObservedPoint) ([]float64, bool)
	// Classify returns the shape tag for a fitted parameter vector.
	Classify(params []float64) Classification
}

var ErrUnknownModel = errors.New("gopeakcore: unknown peak model")

// ModelByName resolves a model from its registry name.
func ModelByName(name string) (PeakModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gaussian":
		return GaussianModel{}, nil
	case "asymmetric-gaussian", "bigaussian", "bi-gaussian":
		return AsymmetricGaussianModel{}, nil
	case "double-gaussian":
		return DoubleGaussianModel{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// ModelsByName resolves a list of names, preserving order.
func ModelsByName(names []string) ([]PeakModel, error) {
	models := make([]PeakModel, 0, len(names))
	for _, n := range names {
		m, err := ModelByName(n)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// DefaultModels returns every supported model, simplest first.
func DefaultModels() []PeakModel {
	return []PeakModel{GaussianModel{}, AsymmetricGaussianModel{}, DoubleGaussianModel{}}
}

func checkArity(m PeakModel, params []float64) {
	if len(params) != m.NumParams() {
		panic(fmt.Sprintf("gopeakcore: %s expects %d parameters, got %d", m.Name(), m.NumParams(), len(params)))
	}
}

const sigmaFloor = 1e-9
