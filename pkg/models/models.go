package models

import (
	"time"

	"github.com/kacperjurak/gopeakcore"
)

// ProfileData is one peak profile as sent by clients
type ProfileData struct {
	X       []float64 `json:"x"`
	Y       []float64 `json:"y"`
	Weights []float64 `json:"weights,omitempty"`
}

// FitRequest asks for a single profile to be fitted
type FitRequest struct {
	ProfileData
	Models []string `json:"models,omitempty"`
}

// BatchItem represents a single profile with its position in a batch
type BatchItem struct {
	Profile   ProfileData `json:"profile"`
	Iteration int         `json:"iteration"`
}

// BatchRequest represents a batch of profiles fitted with the same models
type BatchRequest struct {
	BatchID   string      `json:"batch_id"`
	Timestamp time.Time   `json:"timestamp"`
	Models    []string    `json:"models,omitempty"`
	Profiles  []BatchItem `json:"profiles"`
}

// FitResponse is returned by the synchronous fit endpoint
type FitResponse struct {
	RequestID        string                 `json:"request_id"`
	Success          bool                   `json:"success"`
	Error            string                 `json:"error,omitempty"`
	Fit              *gopeakcore.FitQuality `json:"fit,omitempty"`
	ProcessingTimeMs float64                `json:"processing_time_ms"`
}

// BatchAccepted acknowledges an asynchronous batch
type BatchAccepted struct {
	Success  bool   `json:"success"`
	BatchID  string `json:"batch_id"`
	Profiles int    `json:"profiles"`
	Message  string `json:"message"`
}

// WorkItem represents a single profile fitting task
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Iteration int
	Profile   gopeakcore.Profile
	Models    []gopeakcore.PeakModel
	StartTime time.Time
}

// WorkResult contains the result of fitting one profile
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Iteration      int
	Quality        *gopeakcore.FitQuality
	Err            error
	ProcessingTime time.Duration
	Success        bool
	X              []float64
	Y              []float64
}

// WebhookItem represents a webhook task
type WebhookItem struct {
	RequestID      string
	BatchID        string
	Iteration      int
	X              []float64
	Y              []float64
	Quality        *gopeakcore.FitQuality
	Error          string
	ProcessingTime time.Duration
}

// WebhookPayload represents the webhook payload structure
type WebhookPayload struct {
	ID               string           `json:"id"`
	BatchID          string           `json:"batch_id,omitempty"`
	Iteration        int              `json:"iteration"`
	Time             string           `json:"time"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	Model            string           `json:"model,omitempty"`
	Classification   string           `json:"classification,omitempty"`
	Parameters       []float64        `json:"parameters,omitempty"`
	RSquared         float64          `json:"r_squared"`
	FitScore         float64          `json:"fit_score"`
	ReducedChiSquare float64          `json:"reduced_chi_square"`
	X                []float64        `json:"x"`
	Y                []float64        `json:"y"`
	FittedY          []float64        `json:"fitted_y,omitempty"`
	Components       []ComponentCurve `json:"components,omitempty"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
}

// ComponentCurve is the contribution of one Gaussian component of a fit
type ComponentCurve struct {
	Name       string    `json:"name"`
	Parameters []float64 `json:"parameters"`
	Y          []float64 `json:"y"`
}

// ProfileTiming tracks performance metrics for individual profile fits
type ProfileTiming struct {
	Iteration      int           `json:"iteration"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	RSquared       float64       `json:"r_squared"`
	Success        bool          `json:"success"`
	Model          string        `json:"model"`
}

// BatchSummary aggregates the timings of a finished batch
type BatchSummary struct {
	BatchID        string         `json:"batch_id"`
	Profiles       int            `json:"profiles"`
	Succeeded      int            `json:"succeeded"`
	TotalTime      time.Duration  `json:"total_time"`
	AvgProfileTime time.Duration  `json:"avg_profile_time"`
	MinProfileTime time.Duration  `json:"min_profile_time"`
	MaxProfileTime time.Duration  `json:"max_profile_time"`
	AvgRSquared    float64        `json:"avg_r_squared"`
	ProfilesPerSec float64        `json:"profiles_per_second"`
	ModelWins      map[string]int `json:"model_wins"`
}
