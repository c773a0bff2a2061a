package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/pipeline"
	"github.com/melbournemould/leadboard/internal/queue"
)

var (
	// ErrEmptySelection indicates no selected lead is on the board
	ErrEmptySelection = errors.New("no leads selected")

	// ErrUnknownAction indicates a bulk action outside assign, status and archive
	ErrUnknownAction = errors.New("unknown bulk action")

	// ErrNoHandler indicates nothing is registered to carry out the action
	ErrNoHandler = errors.New("no handler registered for bulk action")
)

// Action names a bulk operation on the selected leads
type Action string

const (
	ActionAssign  Action = "assign"
	ActionStatus  Action = "status"
	ActionArchive Action = "archive"
)

// IsValid checks if the action is one the board offers
func (a Action) IsValid() bool {
	switch a {
	case ActionAssign, ActionStatus, ActionArchive:
		return true
	default:
		return false
	}
}

// Request is a bulk action resolved against the board.
// LeadIDs is filled in by the coordinator from the selection.
type Request struct {
	Action       Action            `json:"action"`
	LeadIDs      []string          `json:"leadIds"`
	TechnicianID string            `json:"technicianId,omitempty"`
	Status       models.LeadStatus `json:"status,omitempty"`
}

// Handler carries out a bulk action. Returning nil reports completion.
type Handler interface {
	Handle(ctx context.Context, req Request) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req Request) error

func (f HandlerFunc) Handle(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Result reports a completed bulk action
type Result struct {
	Action  Action   `json:"action"`
	LeadIDs []string `json:"leadIds"`
	// Skipped lists selected ids that were no longer on the board
	Skipped []string `json:"skipped,omitempty"`
	// ReloadErr is set when the reload after an assignment failed
	ReloadErr error `json:"-"`
}

// Coordinator dispatches bulk actions against the selection
type Coordinator struct {
	set     *Set
	model   *pipeline.Model
	metrics *metrics.BoardMetrics

	mu       sync.RWMutex
	handlers map[Action]Handler
}

// NewCoordinator creates a coordinator with no handlers registered
func NewCoordinator(set *Set, model *pipeline.Model, m *metrics.BoardMetrics) *Coordinator {
	return &Coordinator{
		set:      set,
		model:    model,
		metrics:  m,
		handlers: make(map[Action]Handler),
	}
}

// Register installs the handler for action, replacing any previous one
func (c *Coordinator) Register(action Action, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[action] = h
}

// Dispatch hands the selected leads to the handler registered for req.Action.
//
// Selected ids that are not in the current snapshot are skipped. When the handler
// succeeds the selection is cleared; on failure it is kept so the user can retry.
// A successful assignment is followed by a reload of the model.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) (Result, error) {
	if !req.Action.IsValid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	c.mu.RLock()
	h, ok := c.handlers[req.Action]
	c.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoHandler, req.Action)
	}

	snapshot := c.model.Snapshot()
	result := Result{Action: req.Action, LeadIDs: []string{}}
	for _, id := range c.set.IDs() {
		if _, onBoard := snapshot.Lead(id); onBoard {
			result.LeadIDs = append(result.LeadIDs, id)
		} else {
			result.Skipped = append(result.Skipped, id)
		}
	}
	if len(result.LeadIDs) == 0 {
		return result, ErrEmptySelection
	}

	req.LeadIDs = result.LeadIDs
	if err := h.Handle(ctx, req); err != nil {
		c.metrics.ObserveBulk(string(req.Action), false)
		logger.LogError(ctx, "Bulk action failed", err,
			"action", req.Action,
			"lead_count", len(req.LeadIDs),
		)
		return result, fmt.Errorf("failed to run bulk %s: %w", req.Action, err)
	}

	c.metrics.ObserveBulk(string(req.Action), true)
	c.set.Clear()
	logger.Info(ctx, "Bulk action completed",
		"action", req.Action,
		"lead_count", len(req.LeadIDs),
		"skipped", len(result.Skipped),
	)

	if req.Action == ActionAssign {
		result.ReloadErr = c.model.Load(ctx)
	}
	return result, nil
}

// Assigner points leads at a technician
type Assigner interface {
	AssignTechnician(ctx context.Context, leadIDs []string, technicianID string) error
}

// AssignHandler delegates assignment to the lead store
type AssignHandler struct {
	assigner Assigner
}

// NewAssignHandler creates an assign handler backed by a
func NewAssignHandler(a Assigner) *AssignHandler {
	return &AssignHandler{assigner: a}
}

// Handle assigns every lead in req to req.TechnicianID
func (h *AssignHandler) Handle(ctx context.Context, req Request) error {
	if req.TechnicianID == "" {
		return models.NewValidationError("technicianId", "required", "")
	}
	return h.assigner.AssignTechnician(ctx, req.LeadIDs, req.TechnicianID)
}

// JobEnqueuer is the part of the job queue the board publishes to
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error
}

// QueueHandler records status and archive requests on the job queue for an
// external consumer. It gives the actions no behaviour of its own.
type QueueHandler struct {
	queue JobEnqueuer
}

// NewQueueHandler creates a handler publishing to q
func NewQueueHandler(q JobEnqueuer) *QueueHandler {
	return &QueueHandler{queue: q}
}

// Handle enqueues a bulk_status_change or bulk_archive job
func (h *QueueHandler) Handle(ctx context.Context, req Request) error {
	var (
		jobType string
		extra   map[string]interface{}
	)

	switch req.Action {
	case ActionStatus:
		jobType = queue.JobTypeBulkStatusChange
		if req.Status != "" {
			extra = map[string]interface{}{"status": string(req.Status)}
		}
	case ActionArchive:
		jobType = queue.JobTypeBulkArchive
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	logger.Info(ctx, "Bulk action requested",
		"action", req.Action,
		"lead_ids", req.LeadIDs,
	)

	if err := h.queue.Enqueue(ctx, jobType, queue.NewBulkPayload(req.LeadIDs, extra)); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return nil
}
