package processing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/internal/logging"
	"github.com/kacperjurak/gopeakcore/pkg/metrics"
)

var (
	ErrEmptyProfile = errors.New("no data points provided")
	ErrNotFinite    = errors.New("non-finite value in profile")
)

// PeakProcessor validates incoming profiles and runs model selection on them
type PeakProcessor struct {
	fitter   *gopeakcore.Fitter
	defaults []gopeakcore.PeakModel
	log      logr.Logger
	metrics  *metrics.Metrics
}

// Options holds configuration for creating a new processor
type Options struct {
	Log logr.Logger
	// Defaults are the candidates used when a request names none.
	Defaults []gopeakcore.PeakModel
	Metrics  *metrics.Metrics
}

// NewPeakProcessor creates a new peak processor
func NewPeakProcessor(opts Options) *PeakProcessor {
	if len(opts.Defaults) == 0 {
		opts.Defaults = gopeakcore.DefaultModels()
	}
	if opts.Log.GetSink() == nil {
		opts.Log = logr.Discard()
	}
	return &PeakProcessor{
		fitter:   gopeakcore.NewFitter(opts.Log.WithName("fitter")),
		defaults: opts.Defaults,
		log:      opts.Log,
		metrics:  opts.Metrics,
	}
}

// Resolve maps requested model names to models, falling back to the defaults.
func (p *PeakProcessor) Resolve(names []string) ([]gopeakcore.PeakModel, error) {
	if len(names) == 0 {
		return p.defaults, nil
	}
	return gopeakcore.ModelsByName(names)
}

// Validate checks that a profile can be handed to the fitter.
func Validate(profile gopeakcore.Profile) error {
	if len(profile.X) == 0 {
		return ErrEmptyProfile
	}
	if len(profile.X) != len(profile.Y) {
		return fmt.Errorf("%w: %d vs %d", gopeakcore.ErrLengthMismatch, len(profile.X), len(profile.Y))
	}
	if len(profile.Weights) > 0 && len(profile.Weights) != len(profile.X) {
		return fmt.Errorf("%w: %d weights for %d points", gopeakcore.ErrLengthMismatch, len(profile.Weights), len(profile.X))
	}
	for _, vs := range [][]float64{profile.X, profile.Y, profile.Weights} {
		for i, v := range vs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w at index %d", ErrNotFinite, i)
			}
		}
	}
	return nil
}

// Process fits one profile against candidates and returns the winning fit
func (p *PeakProcessor) Process(profile gopeakcore.Profile, candidates []gopeakcore.PeakModel) (*gopeakcore.FitQuality, error) {
	if err := Validate(profile); err != nil {
		p.metrics.ObserveFit(nil, err, 0)
		return nil, err
	}

	log := p.log.WithValues("profile", profile.ID, "points", len(profile.X))
	log.V(logging.DEBUG).Info("Fitting profile", "candidates", len(candidates))

	start := time.Now()
	q, err := p.fitter.FitProfile(profile, candidates)
	duration := time.Since(start)
	p.metrics.ObserveFit(q, err, duration)

	if err != nil {
		log.Info("Profile fit failed", "error", err.Error(), "duration", duration)
		return nil, err
	}
	log.V(logging.DEBUG).Info("Profile fitted", "model", q.Model, "classification", q.Classification.String(),
		"rSquared", q.RSquared, "fitScore", q.FitScore, "duration", duration)
	return q, nil
}

// ProcessorFunc creates a function compatible with the worker pool
func (p *PeakProcessor) ProcessorFunc() func(gopeakcore.Profile, []gopeakcore.PeakModel) (*gopeakcore.FitQuality, error) {
	return p.Process
}
