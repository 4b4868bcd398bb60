package gopeakcore

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shapeModel is a one-parameter test model p0*shape(x) with a fixed class.
type shapeModel struct {
	name   string
	shape  func(x float64) float64
	class  Classification
	guess  bool
	seeded int
}

func (m *shapeModel) Name() string   { return m.name }
func (m *shapeModel) NumParams() int { return 1 }
func (m *shapeModel) Value(x float64, p []float64) float64 {
	checkArity(m, p)
	return p[0] * m.shape(x)
}
func (m *shapeModel) Gradient(x float64, p []float64) []float64 {
	checkArity(m, p)
	return []float64{m.shape(x)}
}
func (m *shapeModel) ValidateAndClamp(p []float64) []float64 { return append([]float64(nil), p...) }
func (m *shapeModel) GuessInitialParameters([]ObservedPoint) ([]float64, bool) {
	m.seeded++
	if !m.guess {
		return nil, false
	}
	return []float64{1}, true
}
func (m *shapeModel) Classify([]float64) Classification { return m.class }

// renamed gives an existing model a different name.
type renamed struct {
	PeakModel
	name string
}

func (r renamed) Name() string { return r.name }

func relErr(got, want float64) float64 {
	return math.Abs(got-want) / math.Abs(want)
}

func TestFitPeakModels_GaussianRoundTrip(t *testing.T) {
	truth := []float64{100, 10, 2}
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, truth, xs)

	q, err := FitPeakModels(xs, ys, []PeakModel{GaussianModel{}})
	require.NoError(t, err)

	for i, want := range truth {
		assert.Less(t, relErr(q.Parameters[i], want), 1e-3, "parameter %d", i)
	}
	assert.InDelta(t, 1.0, q.RSquared, 1e-9)
	assert.Equal(t, q.RSquared, q.FitScore)
	assert.Equal(t, Gaussian, q.Classification)
	assert.Equal(t, "gaussian", q.Model)
	assert.Equal(t, 41, q.NumPoints)
	assert.Equal(t, 3, q.NumParameters)
	assert.Equal(t, 38, q.DegreesOfFreedom)
	assert.Len(t, q.FittedY, q.NumPoints)
	assert.LessOrEqual(t, q.Evaluations, MaxEvaluations)
	assert.Less(t, q.RMSE, 1e-3)
}

func TestFitPeakModels_NoisyGaussian(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	xs := Linspace(0, 20, 61)
	ys := SampleModelNoisy(GaussianModel{}, []float64{100, 10, 2}, xs, 0.02, rng)

	q, err := FitPeakModels(xs, ys, []PeakModel{GaussianModel{}})
	require.NoError(t, err)
	assert.InDelta(t, 100, q.Parameters[0], 3)
	assert.InDelta(t, 10, q.Parameters[1], 0.1)
	assert.InDelta(t, 2, q.Parameters[2], 0.1)
	assert.Greater(t, q.RSquared, 0.99)
}

func TestFitPeakModels_TailingDiscrimination(t *testing.T) {
	truth := []float64{100, 10, 1, 1.5}
	xs := Linspace(0, 20, 81)
	ys := SampleModel(AsymmetricGaussianModel{}, truth, xs)

	gauss, err := FitPeakModels(xs, ys, []PeakModel{GaussianModel{}})
	require.NoError(t, err)
	asym, err := FitPeakModels(xs, ys, []PeakModel{AsymmetricGaussianModel{}})
	require.NoError(t, err)

	assert.Greater(t, asym.RSquared, gauss.RSquared)
	assert.Equal(t, TailingGaussian, asym.Classification)
	assert.InDelta(t, asym.RSquared*0.98, asym.FitScore, 1e-15)

	best, err := FitPeakModels(xs, ys, []PeakModel{GaussianModel{}, AsymmetricGaussianModel{}})
	require.NoError(t, err)
	assert.Equal(t, "asymmetric-gaussian", best.Model)
}

func TestFitPeakModels_Fronting(t *testing.T) {
	xs := Linspace(0, 20, 81)
	ys := SampleModel(AsymmetricGaussianModel{}, []float64{80, 11, 1.8, 1}, xs)

	q, err := FitPeakModels(xs, ys, []PeakModel{AsymmetricGaussianModel{}})
	require.NoError(t, err)
	assert.Equal(t, FrontingGaussian, q.Classification)
	assert.InDelta(t, 1.8, q.Parameters[2], 1e-3)
	assert.InDelta(t, 1, q.Parameters[3], 1e-3)
}

func TestFitPeakModels_DoublePeak(t *testing.T) {
	truth := []float64{100, 8, 1, 60, 14, 1.5}
	xs := Linspace(0, 22, 111)
	ys := SampleModel(DoubleGaussianModel{}, truth, xs)

	q, err := FitPeakModels(xs, ys, DefaultModels())
	require.NoError(t, err)
	assert.Equal(t, "double-gaussian", q.Model)
	assert.Equal(t, DoubleGaussian, q.Classification)
	assert.InDelta(t, 1.0, q.RSquared, 1e-6)
	assert.Equal(t, 105, q.DegreesOfFreedom)
	for i, want := range truth {
		assert.Less(t, relErr(q.Parameters[i], want), 1e-3, "parameter %d", i)
	}
}

func TestFitPeakModels_InsufficientData(t *testing.T) {
	spy := &shapeModel{name: "spy", shape: func(float64) float64 { return 1 }, guess: true}
	xs := []float64{1, 2, 3, 4}
	ys := []float64{1, 4, 4, 1}

	q, err := FitPeakModels(xs, ys, []PeakModel{spy, GaussianModel{}})
	assert.Nil(t, q)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.ErrorIs(t, err, ErrNoFit)
	assert.Zero(t, spy.seeded, "no model may be seeded below the minimum point count")
}

func TestFitPeakModels_LengthMismatch(t *testing.T) {
	_, err := FitPeakModels([]float64{1, 2, 3}, []float64{1, 2}, DefaultModels())
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestFitPeakModels_NoCandidateFits(t *testing.T) {
	xs := Linspace(0, 10, 11)
	ys := SampleModel(GaussianModel{}, []float64{10, 5, 1}, xs)

	_, err := FitPeakModels(xs, ys, nil)
	assert.ErrorIs(t, err, ErrNoFit)

	noSeed := &shapeModel{name: "noseed", shape: math.Sin}
	_, err = FitPeakModels(xs, ys, []PeakModel{noSeed})
	assert.ErrorIs(t, err, ErrNoFit)
	assert.Equal(t, 1, noSeed.seeded)

	// single resolvable maximum: the double model has no seed and is skipped
	q, err := FitPeakModels(xs, ys, []PeakModel{DoubleGaussianModel{}, GaussianModel{}})
	require.NoError(t, err)
	assert.Equal(t, "gaussian", q.Model)
}

func TestFitPeakModels_UndefinedCorrelationSkipped(t *testing.T) {
	xs := Linspace(0, 10, 11)
	ys := SampleModel(GaussianModel{}, []float64{10, 5, 1}, xs)
	flat := &shapeModel{name: "flat", shape: func(float64) float64 { return 1 }, guess: true}

	_, err := FitPeakModels(xs, ys, []PeakModel{flat})
	assert.ErrorIs(t, err, ErrNoFit)

	q, err := FitPeakModels(xs, ys, []PeakModel{flat, GaussianModel{}})
	require.NoError(t, err)
	assert.Equal(t, "gaussian", q.Model)
}

func TestFitPeakModels_TieKeepsEarlierModel(t *testing.T) {
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, []float64{100, 10, 2}, xs)

	first := renamed{GaussianModel{}, "first"}
	second := renamed{GaussianModel{}, "second"}
	q, err := FitPeakModels(xs, ys, []PeakModel{first, second})
	require.NoError(t, err)
	assert.Equal(t, "first", q.Model)
}

func TestFitPeakModels_SelectsByRSquaredNotScore(t *testing.T) {
	xs := Linspace(-5, 5, 21)
	exact := func(x float64) float64 { return math.Exp(-x * x / 2) }
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 50 * exact(x)
	}

	// perfect shape, heavy penalty
	double := &shapeModel{name: "exact", shape: exact, class: DoubleGaussian, guess: true}
	// slightly wrong shape, no penalty
	plain := &shapeModel{name: "wide", shape: func(x float64) float64 { return math.Exp(-x * x / 2.2) }, class: Gaussian, guess: true}

	q, err := FitPeakModels(xs, ys, []PeakModel{plain, double})
	require.NoError(t, err)
	assert.Equal(t, "exact", q.Model)

	other, err := FitPeakModels(xs, ys, []PeakModel{plain})
	require.NoError(t, err)
	assert.Greater(t, other.FitScore, q.FitScore, "the winner is chosen by correlation even with a lower score")
}

func TestFitPeakModels_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	xs := Linspace(0, 20, 61)
	ys := SampleModelNoisy(AsymmetricGaussianModel{}, []float64{100, 10, 1.2, 2}, xs, 0.03, rng)

	a, errA := FitPeakModels(xs, ys, DefaultModels())
	b, errB := FitPeakModels(xs, ys, DefaultModels())
	assert.Equal(t, errA, errB)
	assert.Equal(t, a, b)
}

func TestFitPoints_Weighted(t *testing.T) {
	truth := []float64{100, 10, 2}
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, truth, xs)
	w := make([]float64, len(xs))
	for i := range w {
		w[i] = 1 + float64(i%3)
	}

	q, err := (&Fitter{}).FitPoints(Points(xs, ys, w), []PeakModel{GaussianModel{}})
	require.NoError(t, err)
	for i, want := range truth {
		assert.Less(t, relErr(q.Parameters[i], want), 1e-3)
	}
}

func TestComputeFitQuality(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{1, 3, 7, 3, 1}
	pts := Points(xs, ys, nil)

	q, err := ComputeFitQuality(pts, GaussianModel{}, []float64{7, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, 5, q.NumPoints)
	assert.Equal(t, 2, q.DegreesOfFreedom)
	assert.Len(t, q.FittedY, 5)
	assert.InDelta(t, 7.0, q.FittedY[2], 1e-12)
	assert.Greater(t, q.RSquared, 0.9)

	// more parameters than points still leaves one degree of freedom
	q, err = ComputeFitQuality(pts[:5], DoubleGaussianModel{}, []float64{7, 2, 1, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, q.DegreesOfFreedom)
}

func TestComputeFitQuality_NegativeCorrelationNotClamped(t *testing.T) {
	xs := Linspace(0, 10, 11)
	ys := SampleModel(GaussianModel{}, []float64{10, 5, 1}, xs)
	pts := Points(xs, ys, nil)

	q, err := ComputeFitQuality(pts, GaussianModel{}, []float64{-10, 5, 1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, q.RSquared, 1e-12)
	assert.Less(t, q.FitScore, 0.0)
}

func TestComputeFitQuality_PearsonIgnoresScale(t *testing.T) {
	xs := Linspace(0, 10, 21)
	ys := SampleModel(GaussianModel{}, []float64{10, 5, 1}, xs)

	q, err := ComputeFitQuality(Points(xs, ys, nil), GaussianModel{}, []float64{3, 5, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, q.RSquared, 1e-12)
	assert.Greater(t, q.RMSE, 1.0)
}

func TestPenaltyOrdering(t *testing.T) {
	xs := Linspace(0, 10, 21)
	ys := SampleModel(GaussianModel{}, []float64{10, 5, 1}, xs)
	pts := Points(xs, ys, nil)

	exact := func(x float64) float64 { return GaussianModel{}.Value(x, []float64{1, 5, 1}) }
	g, err := ComputeFitQuality(pts, &shapeModel{name: "g", shape: exact, class: Gaussian}, []float64{10})
	require.NoError(t, err)
	d, err := ComputeFitQuality(pts, &shapeModel{name: "d", shape: exact, class: DoubleGaussian}, []float64{10})
	require.NoError(t, err)
	tail, err := ComputeFitQuality(pts, &shapeModel{name: "t", shape: exact, class: TailingGaussian}, []float64{10})
	require.NoError(t, err)

	assert.Equal(t, g.RSquared, d.RSquared)
	assert.Greater(t, g.FitScore, tail.FitScore)
	assert.Greater(t, tail.FitScore, d.FitScore)
}

func TestFitter_LogsWithoutSink(t *testing.T) {
	var f *Fitter
	assert.NotPanics(t, func() { _ = f.logger().V(1).Enabled() })
}
