package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/internal/logging"
	"github.com/kacperjurak/gopeakcore/internal/processing"
	"github.com/kacperjurak/gopeakcore/internal/utils"
	"github.com/kacperjurak/gopeakcore/pkg/models"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 32 << 20

// Processor resolves candidate models and fits profiles
type Processor interface {
	Resolve(names []string) ([]gopeakcore.PeakModel, error)
	Process(profile gopeakcore.Profile, candidates []gopeakcore.PeakModel) (*gopeakcore.FitQuality, error)
}

// FitHandler fits a single profile synchronously
type FitHandler struct {
	processor Processor
	log       logr.Logger
}

// NewFitHandler creates a new single profile handler
func NewFitHandler(processor Processor, log logr.Logger) *FitHandler {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &FitHandler{processor: processor, log: log}
}

// ServeHTTP implements the http.Handler interface
func (h *FitHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setupCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.FitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}

	candidates, err := h.processor.Resolve(req.Models)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	requestID := utils.GenerateID()
	profile := gopeakcore.Profile{ID: requestID, X: req.X, Y: req.Y, Weights: req.Weights}
	if err := processing.Validate(profile); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	q, err := h.processor.Process(profile, candidates)
	resp := models.FitResponse{
		RequestID:        requestID,
		Success:          err == nil,
		Fit:              q,
		ProcessingTimeMs: float64(time.Since(start).Nanoseconds()) / 1e6,
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = statusFor(err)
	}

	h.log.V(logging.DEBUG).Info("Fit request served", "id", requestID, "points", len(req.X), "status", status)
	writeJSON(w, resp, status)
}

// statusFor maps fit errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, gopeakcore.ErrNoFit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gopeakcore.ErrLengthMismatch), errors.Is(err, processing.ErrEmptyProfile), errors.Is(err, processing.ErrNotFinite):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// setupCORS sets up CORS headers
func setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any, statusCode int) {
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
