package gopeakcore

import "math/rand/v2"

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	xs := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range xs {
		xs[i] = start + float64(i)*step
	}
	xs[n-1] = stop
	return xs
}

// SampleModel evaluates model at every x.
func SampleModel(model PeakModel, params []float64, xs []float64) []float64 {
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = model.Value(x, params)
	}
	return ys
}

// SampleModelNoisy evaluates model at every x and perturbs each value by a
// uniform relative error of at most noiseLevel.
func SampleModelNoisy(model PeakModel, params []float64, xs []float64, noiseLevel float64, rng *rand.Rand) []float64 {
	ys := SampleModel(model, params, xs)
	for i, v := range ys {
		ys[i] = noise(v, noiseLevel, rng)
	}
	return ys
}

func noise(v, nl float64, rng *rand.Rand) float64 {
	maxNoise := v * nl
	if maxNoise < 0 {
		maxNoise = -maxNoise
	}
	lo, hi := v-maxNoise, v+maxNoise
	return rng.Float64()*(hi-lo) + lo
}
