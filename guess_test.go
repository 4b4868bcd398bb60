package gopeakcore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsFrom(xs, ys []float64) []ObservedPoint {
	return Points(xs, ys, nil)
}

func TestLocalMaxima(t *testing.T) {
	tests := []struct {
		name string
		ys   []float64
		want []int
	}{
		{"strict and plateau", []float64{0, 1, 0, 2, 2, 2, 1, 3, 3}, []int{1, 4}},
		{"even plateau rounds down", []float64{0, 5, 5, 5, 5, 0}, []int{2}},
		{"plateau followed by rise", []float64{0, 2, 2, 3, 0}, []int{3}},
		{"edges never count", []float64{5, 1, 5}, nil},
		{"monotonic", []float64{1, 2, 3, 4}, nil},
		{"too short", []float64{1, 2}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LocalMaxima(tc.ys))
		})
	}
}

func TestEstimateFWHM_Gaussian(t *testing.T) {
	xs := Linspace(0, 20, 201)
	ys := SampleModel(GaussianModel{}, []float64{100, 10, 2}, xs)
	fwhm := EstimateFWHM(pointsFrom(xs, ys), 10, 100)
	assert.InDelta(t, 2*math.Sqrt(2*math.Ln2)*2, fwhm, 0.02)
}

func TestEstimateFWHM_Fallbacks(t *testing.T) {
	// no crossing on the right: a fifth of the x range
	xs := Linspace(0, 10, 11)
	assert.InDelta(t, 2.0, EstimateFWHM(pointsFrom(xs, xs), 10, 10), 1e-12)

	// degenerate x range
	same := []float64{3, 3, 3, 3, 3}
	assert.Equal(t, 1.0, EstimateFWHM(pointsFrom(same, []float64{1, 2, 3, 2, 1}), 3, 3))

	assert.Equal(t, 1.0, EstimateFWHM(nil, 0, 0))
}

func TestEstimateFWHM_Interpolates(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{0, 4, 10, 4, 0}
	// half max 5 is crossed at 1 + 1/6 and 3 - 1/6
	assert.InDelta(t, 2-2.0/6, EstimateFWHM(pointsFrom(xs, ys), 2, 10), 1e-12)
}

func TestGuessGaussian(t *testing.T) {
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, []float64{100, 10, 2}, xs)
	g, ok := GuessGaussian(pointsFrom(xs, ys))
	require.True(t, ok)
	assert.Equal(t, 100.0, g[0])
	assert.Equal(t, 10.0, g[1])
	assert.InDelta(t, 2, g[2], 0.05)

	_, ok = GuessGaussian(nil)
	assert.False(t, ok)

	_, ok = GaussianModel{}.GuessInitialParameters(pointsFrom([]float64{1, 2}, []float64{1, 2}))
	assert.False(t, ok)
}

func TestGuessGaussian_UnsortedInput(t *testing.T) {
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, []float64{50, 7, 3}, xs)
	pts := pointsFrom(xs, ys)
	want, ok := GuessGaussian(pts)
	require.True(t, ok)

	reversed := make([]ObservedPoint, len(pts))
	for i, p := range pts {
		reversed[len(pts)-1-i] = p
	}
	got, ok := GuessGaussian(reversed)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, 0.0, reversed[0].X-20, "input must not be reordered")
}

func TestGuessGaussian_FlatProfileKeepsPositiveSigma(t *testing.T) {
	xs := []float64{1, 1, 1, 1, 1}
	ys := []float64{0, 0, 0, 0, 0}
	g, ok := GuessGaussian(pointsFrom(xs, ys))
	require.True(t, ok)
	assert.Greater(t, g[2], 0.0)
}

func TestGuessAsymmetricGaussian(t *testing.T) {
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, []float64{100, 10, 2}, xs)
	g, ok := GuessAsymmetricGaussian(pointsFrom(xs, ys))
	require.True(t, ok)
	require.Len(t, g, 4)
	assert.Equal(t, g[2], g[3])
}

func TestGuessDoubleGaussian_TooFewPoints(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4}
	ys := []float64{0, 5, 0, 5, 0}
	_, ok := GuessDoubleGaussian(pointsFrom(xs, ys))
	assert.False(t, ok)
}

func TestGuessDoubleGaussian_MinimalBimodal(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := []float64{0, 5, 1, 1, 5, 0}
	g, ok := GuessDoubleGaussian(pointsFrom(xs, ys))
	require.True(t, ok)
	assert.Equal(t, 5.0, g[0])
	assert.Equal(t, 1.0, g[1])
	assert.Equal(t, 5.0, g[3])
	assert.Equal(t, 4.0, g[4])
	assert.Greater(t, g[2], 0.0)
	assert.Greater(t, g[5], 0.0)
}

func TestGuessDoubleGaussian_SingleMaximum(t *testing.T) {
	xs := Linspace(0, 20, 41)
	ys := SampleModel(GaussianModel{}, []float64{100, 10, 2}, xs)
	_, ok := GuessDoubleGaussian(pointsFrom(xs, ys))
	assert.False(t, ok)
}

func TestGuessDoubleGaussian_Unresolved(t *testing.T) {
	xs := Linspace(0, 100, 101)
	ys := make([]float64, len(xs))
	for i := range ys {
		ys[i] = 100 - math.Abs(float64(i)-51)
	}
	ys[51] = 98.5 // maxima at 50 and 52, closer than 5% of the range
	_, ok := GuessDoubleGaussian(pointsFrom(xs, ys))
	assert.False(t, ok)
}

func TestGuessDoubleGaussian_AmplitudeFloor(t *testing.T) {
	xs := []float64{0, 1, 2, 3, 4, 5}

	g, ok := GuessDoubleGaussian(pointsFrom(xs, []float64{-10, -1, -10, -10, -2, -10}))
	require.True(t, ok)
	assert.Equal(t, 1.0, g[0])
	assert.Equal(t, 2.0, g[3])

	g, ok = GuessDoubleGaussian(pointsFrom(xs, []float64{-5, 0, -5, -5, 0, -5}))
	require.True(t, ok)
	assert.Equal(t, 1e-3, g[0])
	assert.Equal(t, 1e-3, g[3])
}

func TestGuessDoubleGaussian_TwoPeaks(t *testing.T) {
	truth := []float64{100, 8, 1, 60, 14, 1.5}
	xs := Linspace(0, 22, 111)
	ys := SampleModel(DoubleGaussianModel{}, truth, xs)

	g, ok := GuessDoubleGaussian(pointsFrom(xs, ys))
	require.True(t, ok)
	assert.InDelta(t, 100, g[0], 1)
	assert.InDelta(t, 8, g[1], 0.2)
	assert.InDelta(t, 1, g[2], 0.1)
	assert.InDelta(t, 60, g[3], 1)
	assert.InDelta(t, 14, g[4], 0.2)
	assert.InDelta(t, 1.5, g[5], 0.15)
}
