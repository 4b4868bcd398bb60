package gopeakcore

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	// fwhmToSigma converts a full width at half maximum into a Gaussian sigma.
	fwhmToSigma = 2.3548200450309493 // 2*sqrt(2*ln 2)

	minDoublePoints   = 6
	minPeakSeparation = 0.05 // fraction of the x range
	minSeedAmplitude  = 1e-3
)

// GuessGaussian seeds [A, mu, sigma] from the highest sample and the
// estimated half-maximum width.
func GuessGaussian(points []ObservedPoint) ([]float64, bool) {
	if len(points) == 0 {
		return nil, false
	}
	sorted := sortedByX(points)
	xs, ys := coords(sorted)
	top := floats.MaxIdx(ys)
	fwhm := EstimateFWHM(sorted, xs[top], ys[top])
	return []float64{ys[top], xs[top], sigmaFromFWHM(fwhm)}, true
}

// GuessAsymmetricGaussian starts a bi-Gaussian from the symmetric guess.
func GuessAsymmetricGaussian(points []ObservedPoint) ([]float64, bool) {
	g, ok := GuessGaussian(points)
	if !ok {
		return nil, false
	}
	return []float64{g[0], g[1], g[2], g[2]}, true
}

// GuessDoubleGaussian seeds two peaks at the outermost local maxima. It
// reports false for fewer than six points or when two resolvable maxima
// cannot be found.
func GuessDoubleGaussian(points []ObservedPoint) ([]float64, bool) {
	if len(points) < minDoublePoints {
		return nil, false
	}
	sorted := sortedByX(points)
	xs, ys := coords(sorted)

	maxima := LocalMaxima(ys)
	if len(maxima) < 2 {
		return nil, false
	}
	i1, i2 := maxima[0], maxima[len(maxima)-1]
	span := xs[len(xs)-1] - xs[0]
	if i1 == i2 || span <= 0 || xs[i2]-xs[i1] < minPeakSeparation*span {
		return nil, false
	}

	// Split halfway between the peaks, keeping each peak inside its own half.
	mid := (xs[i1] + xs[i2]) / 2
	split := sort.Search(len(xs), func(i int) bool { return xs[i] > mid })
	leftEnd := max(split, i1+1)
	rightStart := min(split, i2)

	fwhm1 := EstimateFWHM(sorted[:leftEnd], xs[i1], ys[i1])
	fwhm2 := EstimateFWHM(sorted[rightStart:], xs[i2], ys[i2])

	return []float64{
		seedAmplitude(ys[i1]), xs[i1], sigmaFromFWHM(fwhm1),
		seedAmplitude(ys[i2]), xs[i2], sigmaFromFWHM(fwhm2),
	}, true
}

// LocalMaxima returns the indices of strict local maxima of ys. A flat run
// entered by a rise and left by a fall counts once, at its middle index.
func LocalMaxima(ys []float64) []int {
	var maxima []int
	for i := 1; i < len(ys)-1; i++ {
		if ys[i] <= ys[i-1] {
			continue
		}
		j := i
		for j+1 < len(ys) && ys[j+1] == ys[i] {
			j++
		}
		if j+1 < len(ys) && ys[j+1] < ys[i] {
			maxima = append(maxima, (i+j)/2)
		}
		i = j
	}
	return maxima
}

// EstimateFWHM measures the width of the peak at (peakX, peakY) by walking
// out from the sample nearest peakX until the intensity drops to half of
// peakY on each side. When either crossing is missing the width falls back
// to a fifth of the x range, or 1 for a degenerate range.
func EstimateFWHM(points []ObservedPoint, peakX, peakY float64) float64 {
	if len(points) == 0 {
		return 1
	}
	sorted := sortedByX(points)
	xs, ys := coords(sorted)

	if w := interpolatedFWHM(xs, ys, peakX, peakY); w > 0 {
		return w
	}
	if span := xs[len(xs)-1] - xs[0]; span > 0 {
		return span / 5
	}
	return 1
}

func interpolatedFWHM(xs, ys []float64, peakX, peakY float64) float64 {
	half := peakY / 2
	top := findClosest(xs, peakX)

	left, right := math.NaN(), math.NaN()
	for i := top; i > 0; i-- {
		if ys[i-1] <= half {
			left = crossing(xs[i-1], ys[i-1], xs[i], ys[i], half)
			break
		}
	}
	for i := top; i < len(xs)-1; i++ {
		if ys[i+1] <= half {
			right = crossing(xs[i], ys[i], xs[i+1], ys[i+1], half)
			break
		}
	}
	if math.IsNaN(left) || math.IsNaN(right) {
		return 0
	}
	return right - left
}

// crossing interpolates the x at which the segment (x0,y0)-(x1,y1) reaches level.
func crossing(x0, y0, x1, y1, level float64) float64 {
	if y1 == y0 {
		return x0
	}
	return x0 + (level-y0)*(x1-x0)/(y1-y0)
}

func sigmaFromFWHM(fwhm float64) float64 {
	s := fwhm / fwhmToSigma
	if !(s > 0) {
		return 1
	}
	return s
}

func seedAmplitude(y float64) float64 {
	if y > 0 {
		return y
	}
	return math.Max(math.Abs(y), minSeedAmplitude)
}

func findClosest(a []float64, x float64) int {
	abs := math.Inf(1)
	index := 0
	for i, n := range a {
		if d := math.Abs(n - x); d < abs {
			abs = d
			index = i
		}
	}
	return index
}

func sortedByX(points []ObservedPoint) []ObservedPoint {
	sorted := slices.Clone(points)
	slices.SortStableFunc(sorted, func(a, b ObservedPoint) int {
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		}
		return 0
	})
	return sorted
}

func coords(points []ObservedPoint) (xs, ys []float64) {
	xs = make([]float64, len(points))
	ys = make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}
