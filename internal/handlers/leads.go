package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/queue"
	"github.com/melbournemould/leadboard/internal/repository"
	"github.com/melbournemould/leadboard/internal/services"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 500
)

// JobEnqueuer publishes background jobs
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error
}

// LeadHandler serves the Lead Store REST API
type LeadHandler struct {
	leadRepo    repository.LeadRepository
	attemptRepo repository.NotificationAttemptRepository
	validator   *services.Validator
	normalizer  *services.Normalizer
	jobs        JobEnqueuer
	metrics     *metrics.ServiceMetrics
}

// LeadHandlerConfig holds the collaborators of a LeadHandler.
// Jobs may be nil, in which case status changes are not announced.
type LeadHandlerConfig struct {
	LeadRepo    repository.LeadRepository
	AttemptRepo repository.NotificationAttemptRepository
	Jobs        JobEnqueuer
	Metrics     *metrics.ServiceMetrics
}

// NewLeadHandler creates a new LeadHandler
func NewLeadHandler(cfg LeadHandlerConfig) *LeadHandler {
	return &LeadHandler{
		leadRepo:    cfg.LeadRepo,
		attemptRepo: cfg.AttemptRepo,
		validator:   services.NewValidator(),
		normalizer:  services.NewNormalizer(),
		jobs:        cfg.Jobs,
		metrics:     cfg.Metrics,
	}
}

// Register mounts the lead routes. Fixed paths are registered before {id}.
func (h *LeadHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/leads", h.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/api/leads", h.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/leads/assign", h.HandleAssign).Methods(http.MethodPut)
	r.HandleFunc("/api/leads/recent/{limit}", h.HandleRecent).Methods(http.MethodGet)
	r.HandleFunc("/api/leads/{id}/history", h.HandleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/leads/{id}", h.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/leads/{id}", h.HandleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/api/technicians", h.HandleTechnicians).Methods(http.MethodGet)
}

// HandleList handles GET /api/leads
func (h *LeadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leads, err := h.leadRepo.GetAllLeads(ctx)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get leads", err)
		return
	}

	respondJSON(w, ctx, http.StatusOK, leads)
}

// HandleRecent handles GET /api/leads/recent/{limit}.
// A limit that is not a positive number falls back to 10.
func (h *LeadHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := strconv.Atoi(mux.Vars(r)["limit"])
	if err != nil || limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	leads, err := h.leadRepo.GetRecentLeads(ctx, limit)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get recent leads", err)
		return
	}

	respondJSON(w, ctx, http.StatusOK, leads)
}

// HandleGet handles GET /api/leads/{id}
func (h *LeadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := logger.WithLeadID(r.Context(), id)

	lead, err := h.leadRepo.GetLeadByID(ctx, id)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get lead", err)
		return
	}

	respondJSON(w, ctx, http.StatusOK, lead)
}

// HandleCreate handles POST /api/leads
func (h *LeadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.IntakeRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	if err := h.validator.ValidateIntake(&req); err != nil {
		respondStoreError(w, ctx, "Failed to validate lead", err)
		return
	}

	lead, err := h.normalizer.NormalizeIntake(&req)
	if err != nil {
		respondStoreError(w, ctx, "Failed to normalize lead", err)
		return
	}

	if err := h.leadRepo.CreateLead(ctx, lead); err != nil {
		respondStoreError(w, ctx, "Failed to create lead", err)
		return
	}

	ctx = logger.WithLeadID(ctx, lead.ID)
	logger.Info(ctx, "Created lead", "service_type", lead.ServiceType, "source", lead.Source)

	respondJSON(w, ctx, http.StatusCreated, lead)
}

// HandleUpdate handles PUT /api/leads/{id}
func (h *LeadHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	id := mux.Vars(r)["id"]
	ctx := logger.WithLeadID(r.Context(), id)

	var req services.UpdateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	if err := h.validator.ValidateUpdate(&req); err != nil {
		respondStoreError(w, ctx, "Failed to validate update", err)
		return
	}

	update, err := h.normalizer.NormalizeUpdate(&req)
	if err != nil {
		respondStoreError(w, ctx, "Failed to normalize update", err)
		return
	}

	lead, change, err := h.leadRepo.UpdateLead(ctx, id, update)
	if err != nil {
		respondStoreError(w, ctx, "Failed to update lead", err)
		return
	}

	if change != nil {
		old := ""
		if change.OldStatus != nil {
			old = string(*change.OldStatus)
		}
		logger.LogStatusTransition(ctx, id, old, string(change.NewStatus))
		h.metrics.ObserveStatusChange(string(change.NewStatus))
		h.announce(ctx, change)
	}

	logger.LogSlowOperation(ctx, "update_lead", time.Since(startTime))
	respondJSON(w, ctx, http.StatusOK, lead)
}

// announce enqueues the notification for a committed status change.
// The update has already been stored, so a queue failure is logged and not returned.
func (h *LeadHandler) announce(ctx context.Context, change *models.StatusChange) {
	if h.jobs == nil {
		return
	}
	payload := queue.NewStatusChangePayload(change.LeadID, change.ID)
	if err := h.jobs.Enqueue(ctx, queue.JobTypeNotifyStatusChange, payload); err != nil {
		logger.LogError(ctx, "Failed to enqueue status change notification", err, "change_id", change.ID)
		return
	}
	logger.Info(ctx, "Enqueued status change notification", "change_id", change.ID)
}

// AssignResponse reports a bulk assignment
type AssignResponse struct {
	Updated int64 `json:"updated"`
}

// HandleAssign handles PUT /api/leads/assign
func (h *LeadHandler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.AssignRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	if err := h.validator.ValidateAssign(&req); err != nil {
		respondStoreError(w, ctx, "Failed to validate assignment", err)
		return
	}

	n, err := h.leadRepo.AssignTechnician(ctx, req.LeadIDs, req.TechnicianID)
	if err != nil {
		respondStoreError(w, ctx, "Failed to assign technician", err)
		return
	}

	logger.Info(ctx, "Assigned technician", "technician_id", req.TechnicianID, "requested", len(req.LeadIDs), "updated", n)
	respondJSON(w, ctx, http.StatusOK, AssignResponse{Updated: n})
}

// NotificationAttemptSummary represents a summary of a notification attempt
type NotificationAttemptSummary struct {
	ChangeID     int64   `json:"changeId"`
	AttemptNo    int     `json:"attemptNo"`
	AttemptedAt  string  `json:"attemptedAt"`
	Success      bool    `json:"success"`
	StatusCode   *int    `json:"statusCode,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

// LeadHistoryResponse represents the full history of a lead
type LeadHistoryResponse struct {
	Lead          *models.Lead                 `json:"lead"`
	StatusHistory []models.StatusChange        `json:"statusHistory"`
	Notifications []NotificationAttemptSummary `json:"notifications"`
}

// HandleHistory handles GET /api/leads/{id}/history
func (h *LeadHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := logger.WithLeadID(r.Context(), id)

	lead, err := h.leadRepo.GetLeadByID(ctx, id)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get lead", err)
		return
	}

	history, err := h.leadRepo.GetStatusHistory(ctx, id)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get status history", err)
		return
	}

	summaries := make([]NotificationAttemptSummary, 0)
	if h.attemptRepo != nil {
		attempts, err := h.attemptRepo.GetNotificationAttemptsByLeadID(ctx, id)
		if err != nil {
			respondStoreError(w, ctx, "Failed to get notification attempts", err)
			return
		}
		for _, attempt := range attempts {
			summaries = append(summaries, NotificationAttemptSummary{
				ChangeID:     attempt.ChangeID,
				AttemptNo:    attempt.AttemptNo,
				AttemptedAt:  attempt.RequestedAt.Format(time.RFC3339),
				Success:      attempt.Success,
				StatusCode:   attempt.ResponseStatus,
				ErrorMessage: attempt.ErrorMessage,
			})
		}
	}

	respondJSON(w, ctx, http.StatusOK, LeadHistoryResponse{
		Lead:          lead,
		StatusHistory: history,
		Notifications: summaries,
	})
}

// HandleTechnicians handles GET /api/technicians
func (h *LeadHandler) HandleTechnicians(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	technicians, err := h.leadRepo.ListTechnicians(ctx)
	if err != nil {
		respondStoreError(w, ctx, "Failed to list technicians", err)
		return
	}

	respondJSON(w, ctx, http.StatusOK, technicians)
}
