package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
)

// QuarantinedLead is a lead excluded from the board because one of its
// enumerated fields holds an unknown value
type QuarantinedLead struct {
	Lead   models.Lead
	Reason *models.InvalidEnumerationError
}

// Snapshot is an immutable view of the model between reloads.
// Its slices are private copies owned by the caller.
type Snapshot struct {
	Leads       []models.Lead
	Quarantined []QuarantinedLead
	Loaded      bool
	Loading     bool
	LoadedAt    time.Time
	Version     uint64
	LastError   error
}

// Lead looks up a lead by id in the snapshot
func (s Snapshot) Lead(id string) (models.Lead, bool) {
	for _, lead := range s.Leads {
		if lead.ID == id {
			return lead, true
		}
	}
	return models.Lead{}, false
}

// Model holds the authoritative in-memory lead list for a board session.
// The list is only ever replaced wholesale by a successful Load.
type Model struct {
	store   LeadStore
	metrics *metrics.BoardMetrics
	now     func() time.Time

	mu          sync.RWMutex
	leads       []models.Lead
	quarantined []QuarantinedLead
	loaded      bool
	inFlight    int
	loadedAt    time.Time
	version     uint64
	lastErr     error
	issued      uint64 // sequence of the most recently started load
	applied     uint64 // sequence of the load whose result is visible
}

// Option configures a Model
type Option func(*Model)

// WithMetrics records load results on m
func WithMetrics(m *metrics.BoardMetrics) Option {
	return func(model *Model) {
		model.metrics = m
	}
}

// WithClock overrides the time source used for LoadedAt
func WithClock(now func() time.Time) Option {
	return func(model *Model) {
		model.now = now
	}
}

// NewModel creates an empty model backed by store
func NewModel(store LeadStore, opts ...Option) *Model {
	m := &Model{
		store: store,
		now:   time.Now,
		leads: []models.Lead{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load fetches every lead from the store and replaces the list.
//
// On failure the previous list stays visible, LastError is set to a *models.LoadError
// and the same error is returned. Leads with unknown enum values are quarantined.
// When loads overlap, the result of the most recently started load wins.
func (m *Model) Load(ctx context.Context) error {
	m.mu.Lock()
	m.issued++
	seq := m.issued
	m.inFlight++
	m.mu.Unlock()

	start := time.Now()
	leads, err := m.store.GetAllLeads(ctx)
	logger.LogSlowOperation(ctx, "get_all_leads", time.Since(start))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--

	if err != nil {
		loadErr := &models.LoadError{Err: err}
		if seq > m.applied {
			m.lastErr = loadErr
		}
		m.metrics.ObserveLoad(false, 0)
		logger.LogError(ctx, "Failed to load leads, keeping previous list", err,
			"previous_count", len(m.leads),
		)
		return loadErr
	}

	if seq < m.applied {
		logger.Debug(ctx, "Discarding out-of-order load result", "sequence", seq, "applied", m.applied)
		return nil
	}

	valid, quarantined := partitionValid(leads)
	for _, q := range quarantined {
		logger.Warn(ctx, "Quarantined lead with unrecognized value",
			"lead_id", q.Lead.ID,
			"field", q.Reason.Field,
			"value", q.Reason.Value,
		)
	}

	m.leads = valid
	m.quarantined = quarantined
	m.loaded = true
	m.loadedAt = m.now()
	m.version++
	m.applied = seq
	m.lastErr = nil
	m.metrics.ObserveLoad(true, len(quarantined))

	logger.Info(ctx, "Leads loaded",
		"count", len(valid),
		"quarantined", len(quarantined),
		"version", m.version,
	)
	return nil
}

// Snapshot returns a copy of the current state
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	leads := make([]models.Lead, len(m.leads))
	copy(leads, m.leads)
	quarantined := make([]QuarantinedLead, len(m.quarantined))
	copy(quarantined, m.quarantined)

	return Snapshot{
		Leads:       leads,
		Quarantined: quarantined,
		Loaded:      m.loaded,
		Loading:     m.inFlight > 0,
		LoadedAt:    m.loadedAt,
		Version:     m.version,
		LastError:   m.lastErr,
	}
}

// Lead returns the current copy of a lead by id
func (m *Model) Lead(id string) (models.Lead, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, lead := range m.leads {
		if lead.ID == id {
			return lead, true
		}
	}
	return models.Lead{}, false
}

// LastError returns the error of the last failed load, or nil after a successful one
func (m *Model) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// ClearError dismisses the last load error
func (m *Model) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = nil
}

func partitionValid(leads []models.Lead) ([]models.Lead, []QuarantinedLead) {
	valid := make([]models.Lead, 0, len(leads))
	var quarantined []QuarantinedLead

	for _, lead := range leads {
		err := lead.Validate()
		if err == nil {
			valid = append(valid, lead)
			continue
		}

		var enumErr *models.InvalidEnumerationError
		if !errors.As(err, &enumErr) {
			enumErr = models.NewInvalidEnumerationError(lead.ID, "unknown", err.Error())
		}
		quarantined = append(quarantined, QuarantinedLead{Lead: lead, Reason: enumErr})
	}

	return valid, quarantined
}
