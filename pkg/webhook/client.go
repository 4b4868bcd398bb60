package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kacperjurak/gopeakcore/internal/logging"
	"github.com/kacperjurak/gopeakcore/pkg/models"
)

// Client posts fit results to a webhook URL over a pooled connection
type Client struct {
	url        string
	httpClient *http.Client
	calculator *Calculator
	log        logr.Logger
	bufferPool sync.Pool
}

// NewClient creates a new webhook client with connection pooling
func NewClient(url string, log logr.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		// payloads are small
		DisableCompression: true,
	}
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Client{
		url:        url,
		calculator: NewCalculator(),
		log:        log,
		httpClient: &http.Client{
			Timeout:   45 * time.Second,
			Transport: transport,
		},
		bufferPool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
}

// Payload builds the JSON body for item
func (c *Client) Payload(item models.WebhookItem) models.WebhookPayload {
	payload := models.WebhookPayload{
		ID:               item.RequestID,
		BatchID:          item.BatchID,
		Iteration:        item.Iteration,
		Time:             time.Now().Format(time.RFC3339Nano),
		Success:          item.Quality != nil,
		Error:            item.Error,
		X:                item.X,
		Y:                item.Y,
		ProcessingTimeMs: float64(item.ProcessingTime.Nanoseconds()) / 1e6,
	}
	if q := item.Quality; q != nil {
		payload.Model = q.Model
		payload.Classification = q.Classification.String()
		payload.Parameters = q.Parameters
		payload.RSquared = sanitizeFloat(q.RSquared)
		payload.FitScore = sanitizeFloat(q.FitScore)
		payload.ReducedChiSquare = sanitizeFloat(q.ReducedChiSquare)
		payload.FittedY = q.FittedY
		payload.Components = c.calculator.Components(q, item.X)
	}
	return payload
}

// Send posts item to the webhook URL
func (c *Client) Send(ctx context.Context, item models.WebhookItem) error {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(c.Payload(item)); err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.V(logging.DEBUG).Info("Webhook sent", "id", item.RequestID, "status", resp.StatusCode)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return nil
}
