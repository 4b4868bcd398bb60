package gopeakcore

// asymmetryRatio is how much wider one side must be before a bi-Gaussian
// fit is reported as fronting or tailing.
const asymmetryRatio = 1.05

// AsymmetricGaussianModel is a bi-Gaussian peak with parameters
// [A, mu, sigmaLeft, sigmaRight]. sigmaLeft applies for x <= mu.
type AsymmetricGaussianModel struct{}

func (AsymmetricGaussianModel) Name() string   { return "asymmetric-gaussian" }
func (AsymmetricGaussianModel) NumParams() int { return 4 }

func (m AsymmetricGaussianModel) Value(x float64, params []float64) float64 {
	checkArity(m, params)
	a, mu := params[0], params[1]
	if x <= mu {
		return gaussianTerm(x, a, mu, params[2])
	}
	return gaussianTerm(x, a, mu, params[3])
}

// Gradient fills only the sigma column of the active half; the other sigma
// has no influence on the sample.
func (m AsymmetricGaussianModel) Gradient(x float64, params []float64) []float64 {
	checkArity(m, params)
	a, mu := params[0], params[1]
	var half [3]float64
	g := make([]float64, 4)
	if x <= mu {
		gaussianTermGradient(half[:], x, a, mu, params[2])
		g[2] = half[2]
	} else {
		gaussianTermGradient(half[:], x, a, mu, params[3])
		g[3] = half[2]
	}
	g[0], g[1] = half[0], half[1]
	return g
}

func (AsymmetricGaussianModel) ValidateAndClamp(params []float64) []float64 {
	out := append([]float64(nil), params...)
	for _, i := range []int{2, 3} {
		if i < len(out) && out[i] <= sigmaFloor {
			out[i] = sigmaFloor
		}
	}
	return out
}

func (m AsymmetricGaussianModel) GuessInitialParameters(points []ObservedPoint) ([]float64, bool) {
	if len(points) < m.NumParams() {
		return nil, false
	}
	return GuessAsymmetricGaussian(points)
}

// Classify derives the shape from the fitted side widths.
func (m AsymmetricGaussianModel) Classify(params []float64) Classification {
	if len(params) != m.NumParams() {
		return Gaussian
	}
	left, right := params[2], params[3]
	switch {
	case right > asymmetryRatio*left:
		return TailingGaussian
	case left > asymmetryRatio*right:
		return FrontingGaussian
	}
	return Gaussian
}
