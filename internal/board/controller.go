package board

import (
	"context"
	"errors"
	"sync"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/pipeline"
)

var (
	// ErrDragInProgress indicates a drag or commit is already active
	ErrDragInProgress = errors.New("a drag is already in progress")

	// ErrNotDragging indicates a drag end or cancel arrived with no active drag
	ErrNotDragging = errors.New("no drag in progress")

	// ErrDragMismatch indicates the drag ended for a different lead than it started with
	ErrDragMismatch = errors.New("drag ended for a different lead")

	// ErrLeadNotOnBoard indicates the lead is not in the current pipeline snapshot
	ErrLeadNotOnBoard = errors.New("lead is not on the board")

	// ErrUnknownStage indicates a status change to a value outside the stage set
	ErrUnknownStage = errors.New("unknown pipeline stage")
)

// State is the phase of the drag gesture
type State string

const (
	StateIdle       State = "idle"
	StateDragging   State = "dragging"
	StateCommitting State = "committing"
)

// Outcome describes how a drag or status change resolved
type Outcome string

const (
	// OutcomeMoved means the store accepted the new stage
	OutcomeMoved Outcome = "moved"
	// OutcomeUnchanged means the target was the lead's current stage
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeNoTarget means the card was dropped outside any column
	OutcomeNoTarget Outcome = "no_target"
	// OutcomeCancelled means the gesture was abandoned
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeRejected means the request was refused before reaching the store
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the store rejected or could not apply the change
	OutcomeFailed Outcome = "failed"
)

// Result reports the resolution of a drag or status change.
// Err is set for OutcomeFailed and OutcomeRejected, and for OutcomeMoved when the follow-up reload failed.
type Result struct {
	Outcome Outcome           `json:"outcome"`
	LeadID  string            `json:"leadId,omitempty"`
	From    models.LeadStatus `json:"from,omitempty"`
	To      models.LeadStatus `json:"to,omitempty"`
	Err     error             `json:"-"`
}

// DragState is the observable controller state
type DragState struct {
	State  State  `json:"state"`
	LeadID string `json:"leadId,omitempty"`
}

// Controller turns drag gestures into validated stage transitions.
// The model is never patched locally; a confirmed transition is followed by a full reload.
type Controller struct {
	model   *pipeline.Model
	store   pipeline.LeadStore
	metrics *metrics.BoardMetrics

	mu       sync.Mutex
	state    State
	activeID string
	lastErr  error
}

// NewController creates an idle controller
func NewController(model *pipeline.Model, store pipeline.LeadStore, m *metrics.BoardMetrics) *Controller {
	return &Controller{
		model:   model,
		store:   store,
		metrics: m,
		state:   StateIdle,
	}
}

// State returns the current drag state
func (c *Controller) State() DragState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DragState{State: c.state, LeadID: c.activeID}
}

// LastError returns the error of the last failed transition
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError dismisses the last transition error
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

// StartDrag picks up a card. Only one drag may be active at a time.
func (c *Controller) StartDrag(ctx context.Context, leadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		logger.Debug(ctx, "Rejected drag start", "lead_id", leadID, "state", c.state, "active_lead_id", c.activeID)
		return ErrDragInProgress
	}
	if _, ok := c.model.Lead(leadID); !ok {
		return ErrLeadNotOnBoard
	}

	c.state = StateDragging
	c.activeID = leadID
	logger.Debug(ctx, "Drag started", "lead_id", leadID)
	return nil
}

// CancelDrag abandons the active drag without touching the store
func (c *Controller) CancelDrag(ctx context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDragging:
		id := c.activeID
		c.resetLocked()
		c.metrics.ObserveTransition(string(OutcomeCancelled))
		logger.Debug(ctx, "Drag cancelled", "lead_id", id)
		return Result{Outcome: OutcomeCancelled, LeadID: id}
	case StateCommitting:
		return Result{Outcome: OutcomeRejected, LeadID: c.activeID, Err: ErrDragInProgress}
	default:
		return Result{Outcome: OutcomeRejected, Err: ErrNotDragging}
	}
}

// CompleteDrag drops the active card onto target.
//
// The gesture always returns to Idle. The store is called only when target is a
// known stage that differs from the lead's current stage; otherwise nothing happens.
// An empty target means the card was dropped outside every column.
func (c *Controller) CompleteDrag(ctx context.Context, leadID string, target models.LeadStatus) Result {
	c.mu.Lock()

	if c.state != StateDragging {
		state, active := c.state, c.activeID
		c.mu.Unlock()
		if state == StateCommitting {
			return Result{Outcome: OutcomeRejected, LeadID: active, Err: ErrDragInProgress}
		}
		return Result{Outcome: OutcomeRejected, LeadID: leadID, Err: ErrNotDragging}
	}

	if leadID != c.activeID {
		active := c.activeID
		c.resetLocked()
		c.mu.Unlock()
		logger.Warn(ctx, "Drag ended for a different lead", "lead_id", leadID, "active_lead_id", active)
		c.metrics.ObserveTransition(string(OutcomeRejected))
		return Result{Outcome: OutcomeRejected, LeadID: leadID, Err: ErrDragMismatch}
	}

	if target == "" {
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.ObserveTransition(string(OutcomeNoTarget))
		return Result{Outcome: OutcomeNoTarget, LeadID: leadID}
	}

	return c.beginCommitLocked(ctx, leadID, target)
}

// ChangeStatus moves a lead without a drag gesture. It shares the commit guard with drags.
func (c *Controller) ChangeStatus(ctx context.Context, leadID string, target models.LeadStatus) Result {
	c.mu.Lock()

	if c.state != StateIdle {
		c.mu.Unlock()
		return Result{Outcome: OutcomeRejected, LeadID: leadID, To: target, Err: ErrDragInProgress}
	}
	if !target.IsValid() {
		c.mu.Unlock()
		return Result{Outcome: OutcomeRejected, LeadID: leadID, To: target, Err: ErrUnknownStage}
	}

	c.activeID = leadID
	return c.beginCommitLocked(ctx, leadID, target)
}

// beginCommitLocked is entered with c.mu held and releases it.
// The lock is not held while the store or the reload is in flight.
func (c *Controller) beginCommitLocked(ctx context.Context, leadID string, target models.LeadStatus) Result {
	lead, onBoard := c.model.Lead(leadID)

	switch {
	case !onBoard:
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.ObserveTransition(string(OutcomeRejected))
		return Result{Outcome: OutcomeRejected, LeadID: leadID, To: target, Err: ErrLeadNotOnBoard}
	case !target.IsValid():
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.ObserveTransition(string(OutcomeNoTarget))
		return Result{Outcome: OutcomeNoTarget, LeadID: leadID, From: lead.Status}
	case !lead.CanTransitionTo(target):
		c.resetLocked()
		c.mu.Unlock()
		c.metrics.ObserveTransition(string(OutcomeUnchanged))
		return Result{Outcome: OutcomeUnchanged, LeadID: leadID, From: lead.Status, To: target}
	}

	c.state = StateCommitting
	c.mu.Unlock()

	result := c.commit(ctx, lead, target)

	c.mu.Lock()
	c.resetLocked()
	if result.Outcome == OutcomeFailed {
		c.lastErr = result.Err
	} else {
		c.lastErr = nil
	}
	c.mu.Unlock()

	c.metrics.ObserveTransition(string(result.Outcome))
	return result
}

func (c *Controller) commit(ctx context.Context, lead models.Lead, target models.LeadStatus) Result {
	ctx = logger.WithLeadID(ctx, lead.ID)
	result := Result{LeadID: lead.ID, From: lead.Status, To: target}

	if _, err := c.store.UpdateLead(ctx, lead.ID, models.StatusUpdate(target)); err != nil {
		result.Outcome = OutcomeFailed
		result.Err = &models.TransitionError{LeadID: lead.ID, From: lead.Status, To: target, Err: err}
		logger.LogError(ctx, "Lead store rejected status change", err,
			"old_status", lead.Status,
			"new_status", target,
			"error_kind", models.ErrorKindOf(err),
		)
		return result
	}

	logger.LogStatusTransition(ctx, lead.ID, string(lead.Status), string(target))
	result.Outcome = OutcomeMoved

	if err := c.model.Load(ctx); err != nil {
		// The transition stands; the board shows the previous list until the next reload
		result.Err = err
	}
	return result
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.activeID = ""
}
