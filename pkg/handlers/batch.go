package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/internal/utils"
	"github.com/kacperjurak/gopeakcore/pkg/models"
)

// BatchRunner fits work items and delivers webhooks
type BatchRunner interface {
	RunBatch(ctx context.Context, items []models.WorkItem) ([]models.WorkResult, error)
	QueueWebhook(item models.WebhookItem) bool
}

// BatchHandler handles batch profile fitting requests
type BatchHandler struct {
	processor Processor
	pool      BatchRunner
	log       logr.Logger
	// OnComplete, when set, receives the summary of every finished batch.
	OnComplete func(models.BatchSummary)
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(processor Processor, pool BatchRunner, log logr.Logger) *BatchHandler {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &BatchHandler{processor: processor, pool: pool, log: log}
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setupCORS(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var batch models.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&batch); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if len(batch.Profiles) == 0 {
		writeError(w, "No profiles provided in batch", http.StatusBadRequest)
		return
	}

	candidates, err := h.processor.Resolve(batch.Models)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = utils.GenerateID()
	}

	h.log.Info("Batch processing started", "batch", batch.BatchID, "profiles", len(batch.Profiles))

	// the batch outlives the request
	go h.processBatchAsync(context.WithoutCancel(r.Context()), batch, candidates)

	writeJSON(w, models.BatchAccepted{
		Success:  true,
		BatchID:  batch.BatchID,
		Profiles: len(batch.Profiles),
		Message:  "Batch processing started with worker pool",
	}, http.StatusAccepted)
}

// processBatchAsync fits every profile of batch and queues one webhook per result
func (h *BatchHandler) processBatchAsync(ctx context.Context, batch models.BatchRequest, candidates []gopeakcore.PeakModel) {
	start := time.Now()

	items := make([]models.WorkItem, len(batch.Profiles))
	for i, p := range batch.Profiles {
		items[i] = h.createWorkItem(p, batch.BatchID, candidates)
	}

	results, err := h.pool.RunBatch(ctx, items)
	if err != nil {
		h.log.Error(err, "Batch interrupted", "batch", batch.BatchID, "completed", len(results), "profiles", len(items))
	}

	timings := make([]models.ProfileTiming, len(results))
	for i, result := range results {
		timings[i] = h.processResult(result)
	}

	summary := Summarize(batch.BatchID, time.Since(start), timings)
	h.log.Info("Batch processing completed", "batch", summary.BatchID, "profiles", summary.Profiles,
		"succeeded", summary.Succeeded, "totalTime", summary.TotalTime, "profilesPerSecond", summary.ProfilesPerSec)

	if h.OnComplete != nil {
		h.OnComplete(summary)
	}
}

// createWorkItem converts a batch item to a work item
func (h *BatchHandler) createWorkItem(item models.BatchItem, batchID string, candidates []gopeakcore.PeakModel) models.WorkItem {
	requestID := utils.IterationID(batchID, item.Iteration)
	return models.WorkItem{
		RequestID: requestID,
		BatchID:   batchID,
		Iteration: item.Iteration,
		Profile: gopeakcore.Profile{
			ID:      requestID,
			X:       item.Profile.X,
			Y:       item.Profile.Y,
			Weights: item.Profile.Weights,
		},
		Models:    candidates,
		StartTime: time.Now(),
	}
}

// processResult queues the webhook for result and returns its timing
func (h *BatchHandler) processResult(result models.WorkResult) models.ProfileTiming {
	timing := models.ProfileTiming{
		Iteration:      result.Iteration,
		ProcessingTime: result.ProcessingTime,
		Success:        result.Success,
	}
	webhook := models.WebhookItem{
		RequestID:      result.RequestID,
		BatchID:        result.BatchID,
		Iteration:      result.Iteration,
		X:              result.X,
		Y:              result.Y,
		Quality:        result.Quality,
		ProcessingTime: result.ProcessingTime,
	}
	if result.Success {
		timing.RSquared = result.Quality.RSquared
		timing.Model = result.Quality.Model
	} else if result.Err != nil {
		webhook.Error = result.Err.Error()
	}

	h.pool.QueueWebhook(webhook)
	return timing
}

// Summarize aggregates the timings of one batch
func Summarize(batchID string, totalTime time.Duration, timings []models.ProfileTiming) models.BatchSummary {
	s := models.BatchSummary{
		BatchID:   batchID,
		Profiles:  len(timings),
		TotalTime: totalTime,
		ModelWins: make(map[string]int),
	}
	if len(timings) == 0 {
		return s
	}

	var total time.Duration
	var rSum float64
	s.MinProfileTime = timings[0].ProcessingTime
	for _, t := range timings {
		total += t.ProcessingTime
		s.MinProfileTime = min(s.MinProfileTime, t.ProcessingTime)
		s.MaxProfileTime = max(s.MaxProfileTime, t.ProcessingTime)
		if t.Success {
			s.Succeeded++
			rSum += t.RSquared
			s.ModelWins[t.Model]++
		}
	}

	s.AvgProfileTime = total / time.Duration(len(timings))
	if s.Succeeded > 0 {
		s.AvgRSquared = rSum / float64(s.Succeeded)
	}
	if totalTime > 0 {
		s.ProfilesPerSec = float64(len(timings)) / totalTime.Seconds()
	}
	return s
}
