package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
)

// maxErrorBody caps how much of an error response is kept in messages
const maxErrorBody = 512

// LeadStoreClient talks to the Lead Store API over HTTP.
// It satisfies pipeline.LeadStore and the board's assignment and technician lookups.
type LeadStoreClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.BoardMetrics
}

// LeadStoreOption configures a LeadStoreClient
type LeadStoreOption func(*LeadStoreClient)

// WithRateLimit caps outgoing requests at rps with the given burst
func WithRateLimit(rps float64, burst int) LeadStoreOption {
	return func(c *LeadStoreClient) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithStoreMetrics records request latency on m
func WithStoreMetrics(m *metrics.BoardMetrics) LeadStoreOption {
	return func(c *LeadStoreClient) {
		c.metrics = m
	}
}

// NewLeadStoreClient creates a client for the Lead Store at baseURL
func NewLeadStoreClient(baseURL, token string, timeout time.Duration, opts ...LeadStoreOption) *LeadStoreClient {
	c := &LeadStoreClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAllLeads fetches every lead. Enum fields are decoded as sent so the
// pipeline can quarantine values it does not recognize.
func (c *LeadStoreClient) GetAllLeads(ctx context.Context) ([]models.Lead, error) {
	var leads []models.Lead
	if err := c.do(ctx, "get_all_leads", "", http.MethodGet, "/api/leads", nil, &leads); err != nil {
		return nil, err
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	return leads, nil
}

// UpdateLead applies a partial update and returns the stored lead
func (c *LeadStoreClient) UpdateLead(ctx context.Context, id string, update models.LeadUpdate) (models.Lead, error) {
	var lead models.Lead
	path := "/api/leads/" + url.PathEscape(id)
	if err := c.do(ctx, "update_lead", id, http.MethodPut, path, update, &lead); err != nil {
		return models.Lead{}, err
	}
	return lead, nil
}

// AssignRequest is the body of a bulk technician assignment
type AssignRequest struct {
	LeadIDs      []string `json:"leadIds"`
	TechnicianID string   `json:"technicianId"`
}

// AssignTechnician assigns every lead in leadIDs to the technician in one request
func (c *LeadStoreClient) AssignTechnician(ctx context.Context, leadIDs []string, technicianID string) error {
	body := AssignRequest{LeadIDs: leadIDs, TechnicianID: technicianID}
	return c.do(ctx, "assign_technician", "", http.MethodPut, "/api/leads/assign", body, nil)
}

// ListTechnicians returns the technicians leads can be assigned to
func (c *LeadStoreClient) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	var technicians []models.Technician
	if err := c.do(ctx, "list_technicians", "", http.MethodGet, "/api/technicians", nil, &technicians); err != nil {
		return nil, err
	}
	return technicians, nil
}

func (c *LeadStoreClient) do(ctx context.Context, op, leadID, method, path string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		c.metrics.ObserveStoreRequest(op, err == nil, elapsed.Seconds())
		logger.LogSlowOperation(ctx, op, elapsed)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return models.NewStoreError(models.ErrorKindStoreUnavailable, op, leadID, "rate limiter wait aborted", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return models.NewStoreError(models.ErrorKindValidation, op, leadID, "failed to marshal request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return models.NewStoreError(models.ErrorKindStoreUnavailable, op, leadID, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	if id := logger.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewStoreError(models.ErrorKindStoreUnavailable, op, leadID, "network error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, leadID, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return models.NewStoreError(models.ErrorKindStoreUnavailable, op, leadID, "failed to decode response", err)
	}
	return nil
}

// apiError is the error body returned by the Lead Store API
type apiError struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// statusError maps an unsuccessful response to a store error kind.
// 404 is NotFound, 400 and 422 are ValidationError, everything else is StoreUnavailable.
func statusError(op, leadID string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	var body apiError
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body.Error)
	} else if len(raw) > 0 {
		message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return models.NewStoreError(models.ErrorKindNotFound, op, leadID, message, nil)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		var cause error
		if body.Field != "" {
			cause = models.NewValidationError(body.Field, body.Error, body.Detail)
		}
		return models.NewStoreError(models.ErrorKindValidation, op, leadID, message, cause)
	default:
		return models.NewStoreError(models.ErrorKindStoreUnavailable, op, leadID, message, nil)
	}
}
