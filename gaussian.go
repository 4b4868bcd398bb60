package gopeakcore

import "math"

// gaussianTerm evaluates a*exp(-(x-mu)^2/(2*sigma^2)). A zero sigma is the
// delta-function limit: a at x == mu and 0 elsewhere.
func gaussianTerm(x, a, mu, sigma float64) float64 {
	if sigma == 0 {
		if x == mu {
			return a
		}
		return 0
	}
	d := x - mu
	return a * math.Exp(-d*d/(2*sigma*sigma))
}

// gaussianTermGradient writes d/da, d/dmu and d/dsigma into dst[0:3].
// All three are zero for sigma == 0.
func gaussianTermGradient(dst []float64, x, a, mu, sigma float64) {
	if sigma == 0 {
		dst[0], dst[1], dst[2] = 0, 0, 0
		return
	}
	d := x - mu
	s2 := sigma * sigma
	e := math.Exp(-d * d / (2 * s2))
	dst[0] = e
	dst[1] = a * e * d / s2
	dst[2] = a * e * d * d / (s2 * sigma)
}

// GaussianModel is a symmetric peak with parameters [A, mu, sigma].
type GaussianModel struct{}

func (GaussianModel) Name() string   { return "gaussian" }
func (GaussianModel) NumParams() int { return 3 }

func (m GaussianModel) Value(x float64, params []float64) float64 {
	checkArity(m, params)
	return gaussianTerm(x, params[0], params[1], params[2])
}

func (m GaussianModel) Gradient(x float64, params []float64) []float64 {
	checkArity(m, params)
	g := make([]float64, 3)
	gaussianTermGradient(g, x, params[0], params[1], params[2])
	return g
}

// ValidateAndClamp returns an unchanged copy; a plain Gaussian has no constraints.
func (GaussianModel) ValidateAndClamp(params []float64) []float64 {
	return append([]float64(nil), params...)
}

func (m GaussianModel) GuessInitialParameters(points []ObservedPoint) ([]float64, bool) {
	if len(points) < m.NumParams() {
		return nil, false
	}
	return GuessGaussian(points)
}

func (GaussianModel) Classify([]float64) Classification { return Gaussian }
