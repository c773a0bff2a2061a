package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/melbournemould/leadboard/internal/models"
)

// EventStatusChanged is the event name carried by status-change notifications
const EventStatusChanged = "lead.status_changed"

// StatusChangeEvent is the body POSTed to the notification webhook
type StatusChangeEvent struct {
	Event     string             `json:"event"`
	ChangeID  int64              `json:"changeId"`
	LeadID    string             `json:"leadId"`
	OldStatus *models.LeadStatus `json:"oldStatus,omitempty"`
	NewStatus models.LeadStatus  `json:"newStatus"`
	ChangedAt time.Time          `json:"changedAt"`
	Lead      LeadSummary        `json:"lead"`
}

// LeadSummary is the part of a lead included in notifications
type LeadSummary struct {
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	Phone        string             `json:"phone"`
	Suburb       string             `json:"suburb"`
	ServiceType  models.ServiceType `json:"serviceType"`
	Urgency      models.Urgency     `json:"urgency"`
	AssignedToID *string            `json:"assignedToId,omitempty"`
}

// NewStatusChangeEvent builds the notification for change on lead
func NewStatusChangeEvent(lead *models.Lead, change *models.StatusChange) StatusChangeEvent {
	return StatusChangeEvent{
		Event:     EventStatusChanged,
		ChangeID:  change.ID,
		LeadID:    lead.ID,
		OldStatus: change.OldStatus,
		NewStatus: change.NewStatus,
		ChangedAt: change.ChangedAt,
		Lead: LeadSummary{
			Name:         lead.FullName(),
			Email:        lead.Email,
			Phone:        lead.Phone,
			Suburb:       lead.Suburb,
			ServiceType:  lead.ServiceType,
			Urgency:      lead.Urgency,
			AssignedToID: lead.AssignedToID,
		},
	}
}

// WebhookNotifier delivers lead events to the configured webhook
type WebhookNotifier struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url, token string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DeliveryResponse represents the response from the webhook
type DeliveryResponse struct {
	StatusCode   int
	Body         string
	Success      bool
	ErrorMessage string
}

// NotifyStatusChange sends a status-change event.
// The error will be a *models.DeliveryError with Retriable flag set appropriately
func (n *WebhookNotifier) NotifyStatusChange(ctx context.Context, event StatusChangeEvent) (*DeliveryResponse, error) {
	return n.post(ctx, event)
}

func (n *WebhookNotifier) post(ctx context.Context, payload interface{}) (*DeliveryResponse, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, models.NewDeliveryError(0, "failed to marshal payload", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, models.NewDeliveryError(0, "failed to create request", false, err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", n.token))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		// Network errors are retriable
		return nil, models.NewDeliveryError(0, "network error", true, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewDeliveryError(resp.StatusCode, "failed to read response body", true, err)
	}

	bodyString := string(bodyBytes)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &DeliveryResponse{
			StatusCode: resp.StatusCode,
			Body:       bodyString,
			Success:    true,
		}, nil
	}

	retriable := isRetriableStatusCode(resp.StatusCode)
	errorMessage := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, bodyString)

	return &DeliveryResponse{
		StatusCode:   resp.StatusCode,
		Body:         bodyString,
		Success:      false,
		ErrorMessage: errorMessage,
	}, models.NewDeliveryError(resp.StatusCode, errorMessage, retriable, nil)
}

// isRetriableStatusCode determines if an HTTP status code should trigger a retry
func isRetriableStatusCode(statusCode int) bool {
	// 5xx errors are retriable (server errors)
	if statusCode >= 500 && statusCode < 600 {
		return true
	}

	// 429 Too Many Requests is retriable
	return statusCode == http.StatusTooManyRequests
}
