package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/internal/logging"
	"github.com/kacperjurak/gopeakcore/pkg/config"
)

// report is the outcome for one input profile.
type report struct {
	Source string                 `json:"source" yaml:"source"`
	Fit    *gopeakcore.FitQuality `json:"fit,omitempty" yaml:"fit,omitempty"`
	Error  string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

var errSomeFailed = errors.New("some profiles could not be fitted")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "peakfit:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("peakfit", pflag.ContinueOnError)
	config.RegisterFitFlags(fs)
	configPath := fs.StringP("config", "c", "", "YAML configuration file")
	cutLow := fs.UintP("cut-low", "b", 0, "Drop this many points from the start of each profile")
	cutHigh := fs.UintP("cut-high", "e", 0, "Drop this many points from the end of each profile")
	demo := fs.String("demo", "", "Fit a synthetic profile instead of files: gaussian, tailing, fronting or double")
	noise := fs.Float64("noise", 0.01, "Relative noise of the demo profile")
	seed := fs.Uint64("seed", 1, "Random seed of the demo profile")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	candidates, err := cfg.Candidates()
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if cfg.Quiet {
		level = "error"
	}
	log, err := logging.NewLogger(level, cfg.Development)
	if err != nil {
		return err
	}

	profiles, err := loadProfiles(fs.Args(), cfg.File, *demo, *noise, *seed, *cutLow, *cutHigh)
	if err != nil {
		return err
	}
	log.V(logging.DEBUG).Info("Fitting profiles", "count", len(profiles), "models", cfg.Models, "workers", cfg.Workers)

	fitter := gopeakcore.NewFitter(log.WithName("fitter"))
	outcomes := fitter.FitMany(ctx, profiles, candidates, cfg.Workers)

	reports := make([]report, len(outcomes))
	failed := false
	for i, o := range outcomes {
		reports[i] = report{Source: o.ID, Fit: o.Quality}
		if o.Err != nil {
			failed = true
			reports[i].Error = o.Err.Error()
			log.Info("Profile not fitted", "source", o.ID, "error", o.Err.Error())
		}
	}

	if err := write(stdout, cfg.Output, reports); err != nil {
		return err
	}
	if failed {
		return errSomeFailed
	}
	return nil
}

func loadProfiles(args []string, file, demo string, noise float64, seed uint64, cutLow, cutHigh uint) ([]gopeakcore.Profile, error) {
	if demo != "" {
		d, err := demoProfile(demo, noise, seed)
		if err != nil {
			return nil, err
		}
		return []gopeakcore.Profile{d}, nil
	}

	paths := args
	if file != "" {
		paths = append([]string{file}, paths...)
	}
	if len(paths) == 0 {
		return nil, errors.New("no input: pass data files, --file or --demo")
	}

	profiles := make([]gopeakcore.Profile, 0, len(paths))
	for _, path := range paths {
		d, err := parseFile(path)
		if err != nil {
			return nil, err
		}
		if d, err = d.cut(cutLow, cutHigh); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		profiles = append(profiles, gopeakcore.Profile{ID: path, X: d.X, Y: d.Y, Weights: d.W})
	}
	return profiles, nil
}

var demoShapes = map[string]struct {
	model  gopeakcore.PeakModel
	params []float64
}{
	"gaussian": {gopeakcore.GaussianModel{}, []float64{100, 10, 2}},
	"tailing":  {gopeakcore.AsymmetricGaussianModel{}, []float64{100, 9, 1, 2.5}},
	"fronting": {gopeakcore.AsymmetricGaussianModel{}, []float64{100, 11, 2.5, 1}},
	"double":   {gopeakcore.DoubleGaussianModel{}, []float64{100, 8, 1, 60, 14, 1.5}},
}

func demoProfile(name string, noise float64, seed uint64) (gopeakcore.Profile, error) {
	shape, ok := demoShapes[name]
	if !ok {
		return gopeakcore.Profile{}, fmt.Errorf("unknown demo %q", name)
	}
	xs := gopeakcore.Linspace(0, 22, 111)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return gopeakcore.Profile{
		ID: "demo:" + name,
		X:  xs,
		Y:  gopeakcore.SampleModelNoisy(shape.model, shape.params, xs, noise, rng),
	}, nil
}

func write(w io.Writer, format string, reports []report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(reports)
	default:
		return writeText(w, reports)
	}
}

func writeText(w io.Writer, reports []report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tMODEL\tCLASS\tR\tSCORE\tPARAMETERS")
	for _, r := range reports {
		if r.Fit == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%s\n", r.Source, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6f\t%.6f\t%.6g\n", r.Source, r.Fit.Model, r.Fit.Classification,
			r.Fit.RSquared, r.Fit.FitScore, r.Fit.Parameters)
	}
	return tw.Flush()
}
