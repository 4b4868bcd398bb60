package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/kacperjurak/gopeakcore/internal/processing"
	"github.com/kacperjurak/gopeakcore/pkg/config"
	"github.com/kacperjurak/gopeakcore/pkg/handlers"
	"github.com/kacperjurak/gopeakcore/pkg/metrics"
	"github.com/kacperjurak/gopeakcore/pkg/profiling"
	"github.com/kacperjurak/gopeakcore/pkg/webhook"
	"github.com/kacperjurak/gopeakcore/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config     *config.Config
	log        logr.Logger
	processor  *processing.PeakProcessor
	workerPool *worker.Pool
	metrics    *metrics.Metrics
	profiler   *profiling.Profiler
	httpServer *http.Server
	started    time.Time
}

// Options holds configuration for creating a new server
type Options struct {
	Config *config.Config
	Log    logr.Logger
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Log.GetSink() == nil {
		opts.Log = logr.Discard()
	}
	cfg := opts.Config

	candidates, err := cfg.Candidates()
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Server.EnableMetrics {
		m = metrics.New()
	}

	processor := processing.NewPeakProcessor(processing.Options{
		Log:      opts.Log.WithName("processor"),
		Defaults: candidates,
		Metrics:  m,
	})

	var sender worker.Sender
	if cfg.Server.WebhookURL != "" {
		sender = webhook.NewClient(cfg.Server.WebhookURL, opts.Log.WithName("webhook"))
	}

	s := &Server{
		config:    cfg,
		log:       opts.Log,
		processor: processor,
		metrics:   m,
		workerPool: worker.New(worker.Options{
			Workers:   cfg.Server.WorkerCount,
			Processor: processor.ProcessorFunc(),
			Webhook:   sender,
			Log:       opts.Log.WithName("pool"),
			Metrics:   m,
		}),
		profiler: profiling.New(cfg.Server.EnableProfiling, cfg.Server.ProfilingPort, opts.Log.WithName("profiler")),
		started:  time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      s.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// routes configures HTTP routes and handlers
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	fitHandler := handlers.NewFitHandler(s.processor, s.log.WithName("fit"))
	batchHandler := handlers.NewBatchHandler(s.processor, s.workerPool, s.log.WithName("batch"))

	mux.Handle("/fit", s.metrics.InstrumentHandler("fit", fitHandler))
	mux.Handle("/fit/batch", s.metrics.InstrumentHandler("batch", batchHandler))
	mux.HandleFunc("/health", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s","uptime_seconds":%.0f}`,
		time.Now().Format(time.RFC3339), time.Since(s.started).Seconds())
}

// Start serves HTTP until the server is shut down
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves HTTP on ln until the server is shut down
func (s *Server) Serve(ln net.Listener) error {
	if err := s.profiler.Start(); err != nil {
		s.log.Error(err, "Failed to start profiler")
	}

	s.log.Info("Starting HTTP server", "addr", ln.Addr().String(), "models", s.config.Models,
		"workers", s.config.Server.WorkerCount, "metrics", s.metrics != nil)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains the worker pool and stops the profiler
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")

	err := s.httpServer.Shutdown(ctx)
	s.workerPool.Shutdown()
	if perr := s.profiler.Stop(ctx); perr != nil {
		err = errors.Join(err, perr)
	}

	s.log.Info("Server shutdown complete")
	return err
}
