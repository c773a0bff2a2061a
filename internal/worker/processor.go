package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/melbournemould/leadboard/internal/client"
	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/queue"
	"github.com/melbournemould/leadboard/internal/repository"
)

// Delivery results recorded on the metrics
const (
	resultSuccess = "success"
	resultRetry   = "retry"
	resultFailed  = "failed"
)

// Notifier delivers status-change events
type Notifier interface {
	NotifyStatusChange(ctx context.Context, event client.StatusChangeEvent) (*client.DeliveryResponse, error)
}

// Processor handles background notification jobs
type Processor struct {
	queue         queue.Queue
	leadRepo      repository.LeadRepository
	attemptRepo   repository.NotificationAttemptRepository
	notifier      Notifier
	metrics       *metrics.ServiceMetrics
	pollInterval  time.Duration
	concurrency   int
	maxAttempts   int
	backoffDelays []time.Duration
	shutdownChan  chan struct{}
}

// ProcessorConfig holds configuration for the worker processor
type ProcessorConfig struct {
	Queue         queue.Queue
	LeadRepo      repository.LeadRepository
	AttemptRepo   repository.NotificationAttemptRepository
	Notifier      Notifier
	Metrics       *metrics.ServiceMetrics
	PollInterval  time.Duration
	Concurrency   int
	MaxAttempts   int
	BackoffDelays []time.Duration
}

// DefaultBackoffDelays are the waits before the 2nd through 6th attempts
var DefaultBackoffDelays = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	480 * time.Second,
}

// BackoffSchedule returns n exponential delays starting at base: base, 2*base, 4*base...
func BackoffSchedule(base time.Duration, n int) []time.Duration {
	delays := make([]time.Duration, n)
	for i := range delays {
		delays[i] = base * time.Duration(1<<uint(i))
	}
	return delays
}

// NewProcessor creates a new worker processor
func NewProcessor(config ProcessorConfig) *Processor {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if len(config.BackoffDelays) == 0 {
		config.BackoffDelays = DefaultBackoffDelays
	}

	return &Processor{
		queue:         config.Queue,
		leadRepo:      config.LeadRepo,
		attemptRepo:   config.AttemptRepo,
		notifier:      config.Notifier,
		metrics:       config.Metrics,
		pollInterval:  config.PollInterval,
		concurrency:   config.Concurrency,
		maxAttempts:   config.MaxAttempts,
		backoffDelays: config.BackoffDelays,
		shutdownChan:  make(chan struct{}),
	}
}

// Start begins the worker polling loop with graceful shutdown
func (p *Processor) Start(ctx context.Context) error {
	logger.Info(ctx, "Starting worker processor",
		"poll_interval", p.pollInterval,
		"concurrency", p.concurrency,
		"max_attempts", p.maxAttempts,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context cancelled, shutting down gracefully")
			return ctx.Err()

		case <-sigChan:
			logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
			return nil

		case <-p.shutdownChan:
			logger.Info(ctx, "Shutdown requested, shutting down gracefully")
			return nil

		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				logger.LogError(ctx, "Error polling and processing jobs", err)
			}
		}
	}
}

// Shutdown signals the worker to stop gracefully
func (p *Processor) Shutdown() {
	close(p.shutdownChan)
}

// PollOnce dequeues up to the concurrency limit of due jobs and processes them
// in parallel. It returns how many jobs were picked up and the first processing error.
func (p *Processor) PollOnce(ctx context.Context) (int, error) {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	picked := 0
	for picked < p.concurrency {
		job, err := p.queue.Dequeue(ctx, queue.JobTypeNotifyStatusChange)
		if err != nil {
			if waitErr := g.Wait(); waitErr != nil {
				logger.LogError(ctx, "Job failed", waitErr)
			}
			return picked, fmt.Errorf("failed to dequeue job: %w", err)
		}
		if job == nil {
			break
		}
		picked++

		g.Go(func() error {
			return p.ProcessJob(ctx, job)
		})
	}

	return picked, g.Wait()
}

// ProcessJob runs one job and settles it on the queue (complete, retry or fail)
func (p *Processor) ProcessJob(ctx context.Context, job *queue.Job) error {
	logger.Info(ctx, "Processing job", "job_id", job.ID, "job_type", job.Type)

	switch job.Type {
	case queue.JobTypeNotifyStatusChange:
		return p.processStatusChange(ctx, job)
	default:
		err := fmt.Errorf("unknown job type: %s", job.Type)
		p.fail(ctx, job, err.Error())
		return err
	}
}

// processStatusChange delivers the notification for one recorded status change.
// Every delivery is recorded as a notification attempt before the job is settled.
func (p *Processor) processStatusChange(ctx context.Context, job *queue.Job) error {
	startTime := time.Now()
	defer func() {
		logger.LogSlowOperation(ctx, "notify_status_change", time.Since(startTime))
	}()

	leadID, ok := queue.GetLeadID(job.Payload)
	if !ok {
		p.fail(ctx, job, "invalid job payload: missing lead_id")
		return errors.New("invalid job payload: missing lead_id")
	}
	changeID, ok := queue.GetChangeID(job.Payload)
	if !ok {
		p.fail(ctx, job, "invalid job payload: missing change_id")
		return errors.New("invalid job payload: missing change_id")
	}
	ctx = logger.WithLeadID(ctx, leadID)

	change, err := p.leadRepo.GetStatusChange(ctx, changeID)
	if err != nil {
		return p.settleLoadError(ctx, job, "status change", err)
	}
	lead, err := p.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return p.settleLoadError(ctx, job, "lead", err)
	}

	previous, err := p.attemptRepo.CountNotificationAttempts(ctx, changeID)
	if err != nil {
		p.retry(ctx, job, p.backoff(1), false)
		return fmt.Errorf("failed to count notification attempts: %w", err)
	}
	if previous >= p.maxAttempts {
		logger.Info(ctx, "Notification attempts exhausted", "change_id", changeID, "attempts", previous)
		p.fail(ctx, job, "notification attempts exhausted")
		p.metrics.ObserveDelivery(resultFailed)
		return nil
	}
	attemptNo := previous + 1

	logger.Info(ctx, "Attempting notification",
		"change_id", changeID,
		"attempt_no", attemptNo,
		"max_attempts", p.maxAttempts,
	)

	attempt := models.NewNotificationAttempt(leadID, changeID, attemptNo)
	response, deliveryErr := p.notifier.NotifyStatusChange(ctx, client.NewStatusChangeEvent(lead, change))
	retriable := recordOutcome(attempt, response, deliveryErr)

	if err := p.attemptRepo.CreateNotificationAttempt(ctx, attempt); err != nil {
		logger.LogError(ctx, "Failed to record notification attempt", err, "change_id", changeID, "attempt_no", attemptNo)
	}

	switch {
	case attempt.Success:
		logger.Info(ctx, "Notification delivered", "change_id", changeID, "status_code", response.StatusCode)
		p.complete(ctx, job)
		p.metrics.ObserveDelivery(resultSuccess)
	case retriable && attemptNo < p.maxAttempts:
		delay := p.backoff(attemptNo)
		logger.Info(ctx, "Notification failed, scheduling retry",
			"change_id", changeID,
			"attempt_no", attemptNo,
			"delay", delay,
			"error", *attempt.ErrorMessage,
		)
		p.retry(ctx, job, delay, true)
	default:
		logger.Info(ctx, "Notification failed permanently",
			"change_id", changeID,
			"attempt_no", attemptNo,
			"retriable", retriable,
			"error", *attempt.ErrorMessage,
		)
		p.fail(ctx, job, *attempt.ErrorMessage)
		p.metrics.ObserveDelivery(resultFailed)
	}
	return nil
}

// recordOutcome fills in attempt from the delivery result and reports whether a
// failure is worth retrying. Errors that are not DeliveryErrors are retried.
func recordOutcome(attempt *models.NotificationAttempt, response *client.DeliveryResponse, err error) bool {
	if err == nil && response != nil && response.Success {
		attempt.MarkSuccess(response.StatusCode, response.Body)
		return false
	}

	if err == nil {
		attempt.MarkFailure(nil, fmt.Sprintf("unexpected response: %v", response))
		return true
	}

	var deliveryErr *models.DeliveryError
	if !errors.As(err, &deliveryErr) {
		attempt.MarkFailure(nil, err.Error())
		return true
	}

	if deliveryErr.StatusCode == 0 {
		attempt.MarkFailure(nil, deliveryErr.Message)
	} else {
		code := deliveryErr.StatusCode
		attempt.MarkFailure(&code, deliveryErr.Message)
	}
	return deliveryErr.Retriable
}

// settleLoadError fails the job when the record is gone and retries otherwise
func (p *Processor) settleLoadError(ctx context.Context, job *queue.Job, what string, err error) error {
	if models.IsNotFound(err) {
		p.fail(ctx, job, what+" not found")
		p.metrics.ObserveDelivery(resultFailed)
		return fmt.Errorf("failed to load %s: %w", what, err)
	}
	p.retry(ctx, job, p.backoff(1), false)
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// backoff returns the delay after the given attempt, holding at the last configured delay
func (p *Processor) backoff(attemptNo int) time.Duration {
	i := attemptNo - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.backoffDelays) {
		i = len(p.backoffDelays) - 1
	}
	return p.backoffDelays[i]
}

func (p *Processor) complete(ctx context.Context, job *queue.Job) {
	if err := p.queue.Complete(ctx, job.ID); err != nil {
		logger.LogError(ctx, "Failed to mark job as completed", err, "job_id", job.ID)
		return
	}
	logger.Info(ctx, "Job completed successfully", "job_id", job.ID)
}

func (p *Processor) retry(ctx context.Context, job *queue.Job, delay time.Duration, delivered bool) {
	if err := p.queue.Retry(ctx, job.ID, delay); err != nil {
		logger.LogError(ctx, "Failed to reschedule job", err, "job_id", job.ID)
		return
	}
	if delivered {
		p.metrics.ObserveDelivery(resultRetry)
	}
}

func (p *Processor) fail(ctx context.Context, job *queue.Job, msg string) {
	if err := p.queue.Fail(ctx, job.ID, msg); err != nil {
		logger.LogError(ctx, "Failed to mark job as failed", err, "job_id", job.ID)
	}
}
