package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job types
const (
	// JobTypeNotifyStatusChange delivers a lead status-change event to the webhook
	JobTypeNotifyStatusChange = "notify_status_change"

	// JobTypeBulkStatusChange records a board request to move several leads at once
	JobTypeBulkStatusChange = "bulk_status_change"

	// JobTypeBulkArchive records a board request to archive several leads
	JobTypeBulkArchive = "bulk_archive"
)

// Job represents a background job to be processed
type Job struct {
	ID        int64                  `json:"id"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
	NextRunAt time.Time              `json:"next_run_at"`
	Attempts  int                    `json:"attempts"`
}

// Queue defines the interface for job queue operations
type Queue interface {
	// Enqueue adds a new job to the queue
	Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error

	// EnqueueWithDelay adds a job to be processed after a delay
	EnqueueWithDelay(ctx context.Context, jobType string, payload map[string]interface{}, delay time.Duration) error

	// Dequeue retrieves the next due job of one of jobTypes (any type when none are given).
	// Returns nil if no jobs are available
	Dequeue(ctx context.Context, jobTypes ...string) (*Job, error)

	// Complete marks a job as successfully completed and removes it from the queue
	Complete(ctx context.Context, jobID int64) error

	// Retry reschedules a job for retry with a delay
	Retry(ctx context.Context, jobID int64, delay time.Duration) error

	// Fail marks a job as permanently failed
	Fail(ctx context.Context, jobID int64, errorMsg string) error

	// HealthCheck verifies the queue is operational
	HealthCheck(ctx context.Context) error

	// Close closes the queue connection
	Close() error
}

// NewStatusChangePayload builds the payload of a notify_status_change job
func NewStatusChangePayload(leadID string, changeID int64) map[string]interface{} {
	return map[string]interface{}{
		"lead_id":   leadID,
		"change_id": changeID,
	}
}

// NewBulkPayload builds the payload of a bulk board job
func NewBulkPayload(leadIDs []string, extra map[string]interface{}) map[string]interface{} {
	ids := make([]interface{}, len(leadIDs))
	for i, id := range leadIDs {
		ids[i] = id
	}
	payload := map[string]interface{}{"lead_ids": ids}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// GetLeadID extracts lead_id from job payload
func GetLeadID(payload map[string]interface{}) (string, bool) {
	leadID, ok := payload["lead_id"].(string)
	if !ok || leadID == "" {
		return "", false
	}
	return leadID, true
}

// GetChangeID extracts change_id from job payload
func GetChangeID(payload map[string]interface{}) (int64, bool) {
	changeID, ok := payload["change_id"]
	if !ok {
		return 0, false
	}

	// Handle different numeric types
	switch v := changeID.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
	}

	return 0, false
}

// GetLeadIDs extracts lead_ids from a bulk job payload
func GetLeadIDs(payload map[string]interface{}) ([]string, bool) {
	raw, ok := payload["lead_ids"].([]interface{})
	if !ok {
		if ids, ok := payload["lead_ids"].([]string); ok {
			return ids, true
		}
		return nil, false
	}

	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		id, ok := v.(string)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
