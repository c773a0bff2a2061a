// Package pipelinetest provides an in-memory lead store for board tests.
package pipelinetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/melbournemould/leadboard/internal/models"
)

// MemoryStore is an in-process lead store satisfying pipeline.LeadStore and the
// board's assignment and technician lookups. Failures can be injected per operation.
type MemoryStore struct {
	mu          sync.Mutex
	leads       []models.Lead
	technicians []models.Technician

	GetAllErr error
	UpdateErr error
	AssignErr error

	getAllCalls int
	updateCalls []StoreUpdateCall
	assignCalls int
}

// StoreUpdateCall records one UpdateLead invocation
type StoreUpdateCall struct {
	ID     string
	Update models.LeadUpdate
}

// NewMemoryStore creates a store seeded with leads (copied)
func NewMemoryStore(leads ...models.Lead) *MemoryStore {
	seeded := make([]models.Lead, len(leads))
	copy(seeded, leads)
	return &MemoryStore{leads: seeded}
}

// SetTechnicians replaces the technician list returned by ListTechnicians
func (s *MemoryStore) SetTechnicians(technicians ...models.Technician) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.technicians = append([]models.Technician(nil), technicians...)
}

// GetAllLeads returns every stored lead in insertion order
func (s *MemoryStore) GetAllLeads(ctx context.Context) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getAllCalls++

	if err := ctx.Err(); err != nil {
		return nil, models.NewStoreError(models.ErrorKindStoreUnavailable, "get_all_leads", "", "context done", err)
	}
	if s.GetAllErr != nil {
		return nil, s.GetAllErr
	}

	leads := make([]models.Lead, len(s.leads))
	copy(leads, s.leads)
	return leads, nil
}

// UpdateLead applies the non-nil fields of update to the lead
func (s *MemoryStore) UpdateLead(ctx context.Context, id string, update models.LeadUpdate) (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls = append(s.updateCalls, StoreUpdateCall{ID: id, Update: update})

	if s.UpdateErr != nil {
		return models.Lead{}, s.UpdateErr
	}

	for i := range s.leads {
		if s.leads[i].ID != id {
			continue
		}
		if update.Status != nil && !update.Status.IsValid() {
			return models.Lead{}, models.NewStoreError(models.ErrorKindValidation, "update_lead", id,
				fmt.Sprintf("invalid status '%s'", *update.Status), nil)
		}
		applyUpdate(&s.leads[i], update)
		return s.leads[i], nil
	}

	return models.Lead{}, models.NewStoreError(models.ErrorKindNotFound, "update_lead", id, "lead not found", nil)
}

// AssignTechnician points every listed lead at the technician
func (s *MemoryStore) AssignTechnician(ctx context.Context, leadIDs []string, technicianID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignCalls++

	if s.AssignErr != nil {
		return s.AssignErr
	}

	wanted := make(map[string]struct{}, len(leadIDs))
	for _, id := range leadIDs {
		wanted[id] = struct{}{}
	}
	for i := range s.leads {
		if _, ok := wanted[s.leads[i].ID]; ok {
			tech := technicianID
			s.leads[i].AssignedToID = &tech
		}
	}
	return nil
}

// ListTechnicians returns the configured technicians
func (s *MemoryStore) ListTechnicians(ctx context.Context) ([]models.Technician, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Technician(nil), s.technicians...), nil
}

// GetAllCalls returns how many times GetAllLeads was called
func (s *MemoryStore) GetAllCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAllCalls
}

// UpdateCalls returns a copy of every recorded UpdateLead call
func (s *MemoryStore) UpdateCalls() []StoreUpdateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoreUpdateCall(nil), s.updateCalls...)
}

// AssignCalls returns how many times AssignTechnician was called
func (s *MemoryStore) AssignCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignCalls
}

func applyUpdate(lead *models.Lead, u models.LeadUpdate) {
	if u.FirstName != nil {
		lead.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		lead.LastName = *u.LastName
	}
	if u.Email != nil {
		lead.Email = *u.Email
	}
	if u.Phone != nil {
		lead.Phone = *u.Phone
	}
	if u.Suburb != nil {
		lead.Suburb = *u.Suburb
	}
	if u.Address != nil {
		lead.Address = u.Address
	}
	if u.Postcode != nil {
		lead.Postcode = u.Postcode
	}
	if u.ServiceType != nil {
		lead.ServiceType = *u.ServiceType
	}
	if u.Urgency != nil {
		lead.Urgency = *u.Urgency
	}
	if u.Source != nil {
		lead.Source = *u.Source
	}
	if u.Status != nil {
		lead.Status = *u.Status
	}
	if u.Notes != nil {
		lead.Notes = u.Notes
	}
	if u.EstimatedValue != nil {
		lead.EstimatedValue = u.EstimatedValue
	}
	if u.BookingDates != nil {
		lead.BookingDates = u.BookingDates
	}
	if u.AssignedToID != nil {
		lead.AssignedToID = u.AssignedToID
	}
}
