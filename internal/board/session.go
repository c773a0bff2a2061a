package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/melbournemould/leadboard/internal/filter"
	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/pipeline"
	"github.com/melbournemould/leadboard/internal/selection"
)

// ErrTechniciansUnavailable indicates the lead store cannot list technicians
var ErrTechniciansUnavailable = errors.New("technician list is not available")

// TechnicianLister lists the technicians leads can be assigned to
type TechnicianLister interface {
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
}

// SessionConfig wires a Session to its collaborators
type SessionConfig struct {
	Store    pipeline.LeadStore
	Metrics  *metrics.BoardMetrics
	Location *time.Location
	Clock    func() time.Time

	// Jobs receives bulk status and archive requests. When nil those actions have no handler.
	Jobs selection.JobEnqueuer
}

// Session is the state of one board: the pipeline model, the filters, the
// selection and the drag controller. Each container has a single writer.
type Session struct {
	id          string
	store       pipeline.LeadStore
	model       *pipeline.Model
	controller  *Controller
	selection   *selection.Set
	coordinator *selection.Coordinator
	now         func() time.Time
	loc         *time.Location

	mu       sync.RWMutex
	search   string
	criteria filter.Criteria
}

// NewSession builds an empty board. Call Load to fetch the leads.
func NewSession(cfg SessionConfig) *Session {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	model := pipeline.NewModel(cfg.Store, pipeline.WithMetrics(cfg.Metrics), pipeline.WithClock(now))
	set := selection.NewSet()
	coordinator := selection.NewCoordinator(set, model, cfg.Metrics)

	if assigner, ok := cfg.Store.(selection.Assigner); ok {
		coordinator.Register(selection.ActionAssign, selection.NewAssignHandler(assigner))
	}
	if cfg.Jobs != nil {
		jobs := selection.NewQueueHandler(cfg.Jobs)
		coordinator.Register(selection.ActionStatus, jobs)
		coordinator.Register(selection.ActionArchive, jobs)
	}

	return &Session{
		id:          uuid.New().String(),
		store:       cfg.Store,
		model:       model,
		controller:  NewController(model, cfg.Store, cfg.Metrics),
		selection:   set,
		coordinator: coordinator,
		now:         now,
		loc:         loc,
	}
}

// ID returns the session id attached to every log line of the session
func (s *Session) ID() string { return s.id }

// Context tags ctx with the session id
func (s *Session) Context(ctx context.Context) context.Context {
	return logger.WithSessionID(ctx, s.id)
}

// Model returns the board's lead collection and stage counts
func (s *Session) Model() *pipeline.Model { return s.model }

// Controller returns the drag and status-change controller bound to the model
func (s *Session) Controller() *Controller { return s.controller }

// Selection returns the set of leads picked for bulk actions
func (s *Session) Selection() *selection.Set { return s.selection }

// Coordinator returns the bulk action runner over the selection
func (s *Session) Coordinator() *selection.Coordinator { return s.coordinator }

// Technicians lists the technicians available for bulk assignment
func (s *Session) Technicians(ctx context.Context) ([]models.Technician, error) {
	lister, ok := s.store.(TechnicianLister)
	if !ok {
		return nil, ErrTechniciansUnavailable
	}
	return lister.ListTechnicians(s.Context(ctx))
}

// Load refreshes the pipeline model
func (s *Session) Load(ctx context.Context) error {
	return s.model.Load(s.Context(ctx))
}

// SetFilters replaces the search text and criteria.
// Invalid criteria are rejected and the previous filters stay in place.
func (s *Session) SetFilters(search string, criteria filter.Criteria) error {
	resolved, err := criteria.Resolve(s.now(), s.loc)
	if err != nil {
		return err
	}
	resolved.Created = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = search
	s.criteria = resolved
	return nil
}

// ResetFilters clears the search text and every criterion
func (s *Session) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = ""
	s.criteria = filter.Criteria{}
}

// Filters returns the current search text and criteria
func (s *Session) Filters() (string, filter.Criteria) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search, s.criteria
}

// ColumnView is one stage column of the rendered board
type ColumnView struct {
	ID    models.LeadStatus `json:"id"`
	Title string            `json:"title"`
	Leads []models.Lead     `json:"leads"`
	Count int               `json:"count"`
}

// View is everything needed to draw the board at one instant
type View struct {
	Columns         []ColumnView    `json:"columns"`
	Visible         int             `json:"visible"`
	Total           int             `json:"total"`
	Search          string          `json:"search"`
	Filters         filter.Criteria `json:"filters"`
	Drag            DragState       `json:"drag"`
	Loaded          bool            `json:"loaded"`
	Loading         bool            `json:"loading"`
	LoadedAt        time.Time       `json:"loadedAt"`
	Version         uint64          `json:"version"`
	Quarantined     int             `json:"quarantined"`
	Selected        []string        `json:"selected"`
	LoadError       string          `json:"loadError,omitempty"`
	TransitionError string          `json:"transitionError,omitempty"`
}

// View filters the current snapshot and groups it into columns.
// The date range is resolved against the clock at call time.
func (s *Session) View() View {
	snapshot := s.model.Snapshot()
	search, criteria := s.Filters()

	resolved, err := criteria.Resolve(s.now(), s.loc)
	if err != nil {
		// SetFilters only stores criteria that resolve
		resolved = filter.Criteria{}
	}

	visible := filter.Apply(snapshot.Leads, search, resolved)
	grouping := pipeline.GroupByStatus(visible, models.Stages())

	columns := make([]ColumnView, 0, len(grouping.Order))
	for _, stage := range grouping.Order {
		leads := grouping.Buckets[stage]
		columns = append(columns, ColumnView{
			ID:    stage,
			Title: stage.Title(),
			Leads: leads,
			Count: len(leads),
		})
	}

	view := View{
		Columns:     columns,
		Visible:     grouping.Count(),
		Total:       len(snapshot.Leads),
		Search:      search,
		Filters:     resolved,
		Drag:        s.controller.State(),
		Loaded:      snapshot.Loaded,
		Loading:     snapshot.Loading,
		LoadedAt:    snapshot.LoadedAt,
		Version:     snapshot.Version,
		Quarantined: len(snapshot.Quarantined),
		Selected:    s.selection.IDs(),
	}
	if snapshot.LastError != nil {
		view.LoadError = snapshot.LastError.Error()
	}
	if err := s.controller.LastError(); err != nil {
		view.TransitionError = err.Error()
	}
	return view
}

// DismissErrors clears the load and transition error banners
func (s *Session) DismissErrors() {
	s.model.ClearError()
	s.controller.ClearError()
}
