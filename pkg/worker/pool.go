package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kacperjurak/gopeakcore"
	"github.com/kacperjurak/gopeakcore/internal/logging"
	"github.com/kacperjurak/gopeakcore/pkg/metrics"
	"github.com/kacperjurak/gopeakcore/pkg/models"
)

var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool manages concurrent profile fitting workers
type Pool struct {
	jobs         chan job
	webhookQueue chan models.WebhookItem
	workers      int
	shutdown     chan struct{}
	mu           sync.RWMutex
	closed       bool
	wg           sync.WaitGroup
	webhooks     sync.WaitGroup
	processor    ProcessorFunc
	sender       Sender
	log          logr.Logger
	metrics      *metrics.Metrics
}

// ProcessorFunc fits one profile against the given candidates
type ProcessorFunc func(profile gopeakcore.Profile, candidates []gopeakcore.PeakModel) (*gopeakcore.FitQuality, error)

// Sender delivers a webhook
type Sender interface {
	Send(ctx context.Context, item models.WebhookItem) error
}

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	Processor ProcessorFunc
	// Webhook may be nil, in which case queued webhooks are discarded.
	Webhook        Sender
	WebhookTimeout time.Duration
	Log            logr.Logger
	Metrics        *metrics.Metrics
}

type job struct {
	item  models.WorkItem
	reply chan<- models.WorkResult
}

// New creates a new worker pool with specified configuration
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Log.GetSink() == nil {
		opts.Log = logr.Discard()
	}

	// do not block queueing new jobs even if the workers are already busy
	pool := &Pool{
		jobs:         make(chan job, opts.Workers*2),
		webhookQueue: make(chan models.WebhookItem, opts.Workers*4),
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		sender:       opts.Webhook,
		log:          opts.Log,
		metrics:      opts.Metrics,
	}

	pool.start(opts.WebhookTimeout)
	return pool
}

// start initializes and starts all workers
func (p *Pool) start(webhookTimeout time.Duration) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	if webhookTimeout <= 0 {
		webhookTimeout = 30 * time.Second
	}
	p.wg.Add(1)
	go p.webhookProcessor(webhookTimeout)

	p.log.Info("Worker pool started", "workers", p.workers)
}

// worker processes fit jobs from the jobs channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			j.reply <- p.processJob(id, j.item)
		case <-p.shutdown:
			// finish what was accepted before the pool closed
			for {
				select {
				case j := <-p.jobs:
					j.reply <- p.processJob(id, j.item)
				default:
					return
				}
			}
		}
	}
}

// processJob runs the processor on one work item
func (p *Pool) processJob(workerID int, item models.WorkItem) models.WorkResult {
	start := time.Now()
	q, err := p.processor(item.Profile, item.Models)
	elapsed := time.Since(start)

	p.log.V(logging.TRACE).Info("Job processed", "worker", workerID, "batch", item.BatchID,
		"iteration", item.Iteration, "duration", elapsed, "success", err == nil)

	return models.WorkResult{
		ID:             item.ID,
		RequestID:      item.RequestID,
		BatchID:        item.BatchID,
		Iteration:      item.Iteration,
		Quality:        q,
		Err:            err,
		ProcessingTime: elapsed,
		Success:        err == nil,
		X:              item.Profile.X,
		Y:              item.Profile.Y,
	}
}

// RunBatch submits items and waits for all of their results. Results are
// returned in the order of items. If ctx ends or the pool shuts down before
// every item is submitted, the items already submitted are still awaited and
// the error is returned alongside them.
func (p *Pool) RunBatch(ctx context.Context, items []models.WorkItem) ([]models.WorkResult, error) {
	reply := make(chan models.WorkResult, len(items))

	var submitErr error
	submitted := 0
	for i, item := range items {
		item.ID = i
		if err := p.submit(ctx, job{item: item, reply: reply}); err != nil {
			submitErr = err
			break
		}
		submitted++
	}

	results := make([]models.WorkResult, submitted)
	for n := 0; n < submitted; n++ {
		r := <-reply
		results[r.ID] = r
	}
	return results, submitErr
}

// submit queues a job, blocking while the queue is full
func (p *Pool) submit(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- j:
		return nil
	default:
	}

	p.log.V(logging.DEBUG).Info("Jobs channel full, job delayed", "batch", j.item.BatchID)
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// webhookProcessor delivers queued webhooks until shutdown, then flushes
// whatever is still queued.
func (p *Pool) webhookProcessor(timeout time.Duration) {
	defer p.wg.Done()

	for {
		select {
		case item := <-p.webhookQueue:
			p.dispatchWebhook(item, timeout)
		case <-p.shutdown:
			for {
				select {
				case item := <-p.webhookQueue:
					p.dispatchWebhook(item, timeout)
				default:
					p.webhooks.Wait()
					return
				}
			}
		}
	}
}

// dispatchWebhook sends asynchronously without blocking the queue
func (p *Pool) dispatchWebhook(item models.WebhookItem, timeout time.Duration) {
	p.metrics.SetQueueDepth(len(p.webhookQueue))
	if p.sender == nil {
		return
	}
	p.webhooks.Add(1)
	go func() {
		defer p.webhooks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		err := p.sender.Send(ctx, item)
		p.metrics.ObserveWebhook(err)
		if err != nil {
			p.log.Error(err, "Webhook delivery failed", "id", item.RequestID)
		}
	}()
}

// QueueWebhook queues a webhook for async processing
func (p *Pool) QueueWebhook(item models.WebhookItem) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.WebhookDropped()
		return false
	}

	select {
	case p.webhookQueue <- item:
		p.metrics.SetQueueDepth(len(p.webhookQueue))
		return true
	default:
		p.metrics.WebhookDropped()
		p.log.Info("Webhook queue full, dropping webhook", "id", item.RequestID)
		return false
	}
}

// Shutdown stops the workers and waits for queued webhooks to be delivered
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.shutdown)
	p.mu.Unlock()

	p.log.Info("Shutting down worker pool")
	p.wg.Wait()
	p.log.Info("Worker pool shutdown complete")
}
