package worker

import (
	"context"
	"sync"
	"time"

	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/queue"
	"github.com/melbournemould/leadboard/internal/repository"
)

// memQueue is an in-memory queue.Queue that records how jobs were settled
type memQueue struct {
	mu      sync.Mutex
	nextID  int64
	pending []*queue.Job
	jobs    map[int64]*queue.Job
	state   map[int64]string
	delays  map[int64][]time.Duration
	errors  map[int64]string
}

func newMemQueue() *memQueue {
	return &memQueue{
		jobs:   make(map[int64]*queue.Job),
		state:  make(map[int64]string),
		delays: make(map[int64][]time.Duration),
		errors: make(map[int64]string),
	}
}

func (q *memQueue) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	return q.EnqueueWithDelay(ctx, jobType, payload, 0)
}

func (q *memQueue) EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	job := &queue.Job{ID: q.nextID, Type: jobType, Payload: payload, CreatedAt: time.Now()}
	q.jobs[job.ID] = job
	q.pending = append(q.pending, job)
	q.state[q.nextID] = "pending"
	return nil
}

// Dequeue ignores delays so retries are immediately due
func (q *memQueue) Dequeue(ctx context.Context, jobTypes ...string) (*queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.pending {
		if len(jobTypes) > 0 && !contains(jobTypes, job.Type) {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		q.state[job.ID] = "processing"
		job.Attempts++
		return job, nil
	}
	return nil, nil
}

func (q *memQueue) Complete(ctx context.Context, jobID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state[jobID] = "completed"
	return nil
}

func (q *memQueue) Retry(ctx context.Context, jobID int64, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state[jobID] = "pending"
	q.delays[jobID] = append(q.delays[jobID], delay)
	q.pending = append(q.pending, q.jobs[jobID])
	return nil
}

func (q *memQueue) Fail(ctx context.Context, jobID int64, errorMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state[jobID] = "failed"
	q.errors[jobID] = errorMsg
	return nil
}

func (q *memQueue) HealthCheck(ctx context.Context) error { return nil }
func (q *memQueue) Close() error                          { return nil }

func (q *memQueue) status(jobID int64) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state[jobID]
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// memLeadRepo serves leads and status changes for the processor
type memLeadRepo struct {
	repository.LeadRepository

	mu      sync.Mutex
	leads   map[string]models.Lead
	changes map[int64]models.StatusChange
	loadErr error
}

func newMemLeadRepo() *memLeadRepo {
	return &memLeadRepo{
		leads:   make(map[string]models.Lead),
		changes: make(map[int64]models.StatusChange),
	}
}

func (r *memLeadRepo) add(lead models.Lead, change models.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = lead
	r.changes[change.ID] = change
}

func (r *memLeadRepo) GetLeadByID(ctx context.Context, id string) (*models.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	lead, ok := r.leads[id]
	if !ok {
		return nil, models.NewStoreError(models.ErrorKindNotFound, "get_lead", id, "Lead not found", nil)
	}
	return &lead, nil
}

func (r *memLeadRepo) GetStatusChange(ctx context.Context, id int64) (*models.StatusChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	change, ok := r.changes[id]
	if !ok {
		return nil, models.NewStoreError(models.ErrorKindNotFound, "get_status_change", "", "status change not found", nil)
	}
	return &change, nil
}

// memAttemptRepo stores notification attempts in memory
type memAttemptRepo struct {
	mu       sync.Mutex
	attempts []models.NotificationAttempt
}

func (r *memAttemptRepo) CreateNotificationAttempt(ctx context.Context, attempt *models.NotificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt.ID = int64(len(r.attempts) + 1)
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *memAttemptRepo) GetNotificationAttemptsByLeadID(ctx context.Context, leadID string) ([]models.NotificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.NotificationAttempt
	for _, a := range r.attempts {
		if a.LeadID == leadID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *memAttemptRepo) GetLatestNotificationAttempt(ctx context.Context, changeID int64) (*models.NotificationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].ChangeID == changeID {
			a := r.attempts[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memAttemptRepo) CountNotificationAttempts(ctx context.Context, changeID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a.ChangeID == changeID {
			n++
		}
	}
	return n, nil
}

func (r *memAttemptRepo) forChange(changeID int64) []models.NotificationAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.NotificationAttempt
	for _, a := range r.attempts {
		if a.ChangeID == changeID {
			result = append(result, a)
		}
	}
	return result
}
