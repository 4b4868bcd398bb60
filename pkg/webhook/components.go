package webhook

import (
	"math"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/pkg/models"
)

// Calculator splits a fitted peak into its Gaussian components
type Calculator struct{}

// NewCalculator creates a new component calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Components evaluates each component of q on x. Single-peak models yield one
// component; the double Gaussian yields one per peak. Unknown models yield none.
func (c *Calculator) Components(q *gopeakcore.FitQuality, x []float64) []models.ComponentCurve {
	if q == nil {
		return nil
	}
	model, err := gopeakcore.ModelByName(q.Model)
	if err != nil || len(q.Parameters) != model.NumParams() {
		return nil
	}

	switch m := model.(type) {
	case gopeakcore.DoubleGaussianModel:
		return []models.ComponentCurve{
			c.curve("peak1", gopeakcore.GaussianModel{}, q.Parameters[:3], x),
			c.curve("peak2", gopeakcore.GaussianModel{}, q.Parameters[3:], x),
		}
	default:
		return []models.ComponentCurve{c.curve(m.Name(), m, q.Parameters, x)}
	}
}

func (c *Calculator) curve(name string, model gopeakcore.PeakModel, params, x []float64) models.ComponentCurve {
	y := gopeakcore.SampleModel(model, params, x)
	for i := range y {
		y[i] = sanitizeFloat(y[i])
	}
	return models.ComponentCurve{
		Name:       name,
		Parameters: append([]float64(nil), params...),
		Y:          y,
	}
}

// sanitizeFloat cleans float64 values for JSON compatibility
func sanitizeFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0.0
	}
	return value
}
