package handlers

import (
	"math"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/repository"
)

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	leadRepo repository.LeadRepository
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(leadRepo repository.LeadRepository) *StatsHandler {
	return &StatsHandler{leadRepo: leadRepo}
}

// Register mounts the stats routes
func (h *StatsHandler) Register(r *mux.Router) {
	r.HandleFunc("/stats/leads/counts", h.HandleLeadCountsByStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/dashboard/stats", h.HandleDashboard).Methods(http.MethodGet)
}

// LeadCounts represents lead counts grouped by stage.
// Every stage is present, and rows whose status is not a stage are counted in Other.
type LeadCounts struct {
	ByStatus map[models.LeadStatus]int `json:"byStatus"`
	Other    int                       `json:"other"`
	Total    int                       `json:"total"`
}

func (h *StatsHandler) countLeads(r *http.Request) (LeadCounts, error) {
	counts, err := h.leadRepo.GetLeadCountsByStatus(r.Context())
	if err != nil {
		return LeadCounts{}, err
	}

	result := LeadCounts{ByStatus: make(map[models.LeadStatus]int, len(models.Stages()))}
	for _, stage := range models.Stages() {
		result.ByStatus[stage] = 0
	}
	for status, n := range counts {
		stage := models.LeadStatus(status)
		if stage.IsValid() {
			result.ByStatus[stage] = n
		} else {
			result.Other += n
		}
		result.Total += n
	}
	return result, nil
}

// HandleLeadCountsByStatus handles GET /stats/leads/counts
func (h *StatsHandler) HandleLeadCountsByStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.countLeads(r)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get lead counts", err)
		return
	}

	logger.Debug(ctx, "Counted leads by status", "total", counts.Total)
	respondJSON(w, ctx, http.StatusOK, counts)
}

// DashboardStats summarizes the pipeline for the admin dashboard
type DashboardStats struct {
	TotalLeads      int                       `json:"totalLeads"`
	NewLeads        int                       `json:"newLeads"`
	ActiveLeads     int                       `json:"activeLeads"`
	ConvertedLeads  int                       `json:"convertedLeads"`
	ConversionRate  float64                   `json:"conversionRate"`
	StatusBreakdown map[models.LeadStatus]int `json:"statusBreakdown"`
}

// HandleDashboard handles GET /api/dashboard/stats.
// Conversion rate is the percentage of all leads that reached CONVERTED, to one decimal.
func (h *StatsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.countLeads(r)
	if err != nil {
		respondStoreError(w, ctx, "Failed to get dashboard stats", err)
		return
	}

	stats := DashboardStats{
		TotalLeads:      counts.Total,
		NewLeads:        counts.ByStatus[models.LeadStatusNew],
		ConvertedLeads:  counts.ByStatus[models.LeadStatusConverted],
		StatusBreakdown: counts.ByStatus,
	}
	for stage, n := range counts.ByStatus {
		if stage != models.LeadStatusConverted && stage != models.LeadStatusClosedLost {
			stats.ActiveLeads += n
		}
	}
	if counts.Total > 0 {
		rate := float64(stats.ConvertedLeads) / float64(counts.Total) * 100
		stats.ConversionRate = math.Round(rate*10) / 10
	}

	respondJSON(w, ctx, http.StatusOK, stats)
}
