package gopeakcore

// DoubleGaussianModel is the sum of two independent Gaussian peaks with
// parameters [A1, mu1, sigma1, A2, mu2, sigma2].
type DoubleGaussianModel struct{}

func (DoubleGaussianModel) Name() string   { return "double-gaussian" }
func (DoubleGaussianModel) NumParams() int { return 6 }

func (m DoubleGaussianModel) Value(x float64, params []float64) float64 {
	checkArity(m, params)
	return gaussianTerm(x, params[0], params[1], params[2]) +
		gaussianTerm(x, params[3], params[4], params[5])
}

// Gradient is block diagonal: columns 0-2 belong to the first peak and
// columns 3-5 to the second.
func (m DoubleGaussianModel) Gradient(x float64, params []float64) []float64 {
	checkArity(m, params)
	g := make([]float64, 6)
	gaussianTermGradient(g[0:3], x, params[0], params[1], params[2])
	gaussianTermGradient(g[3:6], x, params[3], params[4], params[5])
	return g
}

func (DoubleGaussianModel) ValidateAndClamp(params []float64) []float64 {
	out := append([]float64(nil), params...)
	if len(out) != 6 {
		return out
	}
	for _, i := range []int{0, 3} {
		if out[i] < 0 {
			out[i] = sigmaFloor
		}
	}
	for _, i := range []int{2, 5} {
		if out[i] <= sigmaFloor {
			out[i] = sigmaFloor
		}
	}
	return out
}

func (DoubleGaussianModel) GuessInitialParameters(points []ObservedPoint) ([]float64, bool) {
	return GuessDoubleGaussian(points)
}

func (DoubleGaussianModel) Classify([]float64) Classification { return DoubleGaussian }
