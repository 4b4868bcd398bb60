package gopeakcore

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Profile is one peak profile awaiting a fit.
type Profile struct {
	ID      string
	X       []float64
	Y       []float64
	Weights []float64 // optional
}

// Outcome pairs a profile with its fit. Err is non-nil when no model fitted
// or when the context was cancelled before the profile was scheduled.
type Outcome struct {
	ID      string
	Quality *FitQuality
	Err     error
}

// FitMany fits independent profiles on up to workers goroutines (GOMAXPROCS
// when workers <= 0). Outcomes are returned in input order. Cancelling ctx
// stops new fits from starting; a running fit is bounded by the solver limits.
func (f *Fitter) FitMany(ctx context.Context, profiles []Profile, candidates []PeakModel, workers int) []Outcome {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	outcomes := make([]Outcome, len(profiles))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range profiles {
		outcomes[i].ID = p.ID
		if err := ctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Quality, outcomes[i].Err = f.FitProfile(p, candidates)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// FitProfile fits a single profile, honouring its weights when present.
func (f *Fitter) FitProfile(p Profile, candidates []PeakModel) (*FitQuality, error) {
	if len(p.Weights) == 0 {
		return f.FitPeakModels(p.X, p.Y, candidates)
	}
	if len(p.X) != len(p.Y) || len(p.Weights) != len(p.X) {
		return nil, ErrLengthMismatch
	}
	return f.FitPoints(Points(p.X, p.Y, p.Weights), candidates)
}
