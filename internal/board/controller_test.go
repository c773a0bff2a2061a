package board

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/pipeline"
	"github.com/melbournemould/leadboard/internal/pipeline/pipelinetest"
)

func boardLead(id string, status models.LeadStatus) models.Lead {
	return models.Lead{
		ID:          id,
		FirstName:   "Priya",
		LastName:    "Shah",
		Email:       "priya@example.com",
		Phone:       "03 9000 0000",
		Suburb:      "Richmond",
		ServiceType: models.ServiceTypeSubfloorRemediation,
		Urgency:     models.UrgencyMedium,
		Source:      models.LeadSourceReferral,
		Status:      status,
		CreatedAt:   time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
}

func setupController(t *testing.T, leads ...models.Lead) (*Controller, *pipelinetest.MemoryStore, *pipeline.Model) {
	t.Helper()

	store := pipelinetest.NewMemoryStore(leads...)
	model := pipeline.NewModel(store)
	require.NoError(t, model.Load(context.Background()))
	return NewController(model, store, nil), store, model
}

func TestCompleteDrag_SameColumnIsNoOp(t *testing.T) {
	c, store, model := setupController(t, boardLead("1", models.LeadStatusNew))
	ctx := context.Background()
	before := model.Snapshot()

	require.NoError(t, c.StartDrag(ctx, "1"))
	result := c.CompleteDrag(ctx, "1", models.LeadStatusNew)

	assert.Equal(t, OutcomeUnchanged, result.Outcome)
	assert.NoError(t, result.Err)
	assert.Empty(t, store.UpdateCalls())
	assert.Equal(t, before.Version, model.Snapshot().Version, "model must not reload")
	assert.Equal(t, StateIdle, c.State().State)
}

func TestCompleteDrag_StoreFailureLeavesLeadInPlace(t *testing.T) {
	c, store, model := setupController(t, boardLead("1", models.LeadStatusNew))
	ctx := context.Background()
	store.UpdateErr = models.NewStoreError(models.ErrorKindValidation, "update_lead", "1", "status rule rejected", nil)

	require.NoError(t, c.StartDrag(ctx, "1"))
	result := c.CompleteDrag(ctx, "1", models.LeadStatusQualified)

	assert.Equal(t, OutcomeFailed, result.Outcome)
	var transitionErr *models.TransitionError
	require.ErrorAs(t, result.Err, &transitionErr)
	assert.Equal(t, models.LeadStatusNew, transitionErr.From)
	assert.Equal(t, models.LeadStatusQualified, transitionErr.To)
	assert.True(t, models.IsValidationError(result.Err))

	lead, ok := model.Lead("1")
	require.True(t, ok)
	assert.Equal(t, models.LeadStatusNew, lead.Status)
	assert.Len(t, store.UpdateCalls(), 1)
	assert.Equal(t, StateIdle, c.State().State)
	assert.ErrorAs(t, c.LastError(), &transitionErr)

	c.ClearError()
	assert.NoError(t, c.LastError())
}

func TestCompleteDrag_MovesAndReloads(t *testing.T) {
	c, store, model := setupController(t, boardLead("1", models.LeadStatusNew), boardLead("2", models.LeadStatusQuoted))
	ctx := context.Background()

	require.NoError(t, c.StartDrag(ctx, "1"))
	assert.Equal(t, DragState{State: StateDragging, LeadID: "1"}, c.State())

	result := c.CompleteDrag(ctx, "1", models.LeadStatusQualified)
	assert.Equal(t, OutcomeMoved, result.Outcome)
	assert.Equal(t, models.LeadStatusNew, result.From)
	assert.Equal(t, models.LeadStatusQualified, result.To)
	assert.NoError(t, result.Err)

	calls := store.UpdateCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "1", calls[0].ID)
	require.NotNil(t, calls[0].Update.Status)
	assert.Equal(t, models.LeadStatusQualified, *calls[0].Update.Status)
	assert.Nil(t, calls[0].Update.AssignedToID, "only the status is sent")

	lead, _ := model.Lead("1")
	assert.Equal(t, models.LeadStatusQualified, lead.Status)
	assert.Equal(t, uint64(2), model.Snapshot().Version)
}

func TestCompleteDrag_ReloadFailureAfterMove(t *testing.T) {
	c, store, model := setupController(t, boardLead("1", models.LeadStatusNew))
	ctx := context.Background()

	require.NoError(t, c.StartDrag(ctx, "1"))
	store.GetAllErr = errors.New("connection reset")
	result := c.CompleteDrag(ctx, "1", models.LeadStatusContacted)

	assert.Equal(t, OutcomeMoved, result.Outcome)
	var loadErr *models.LoadError
	assert.ErrorAs(t, result.Err, &loadErr)
	assert.NoError(t, c.LastError(), "the transition itself succeeded")

	// The stale list stays until the next successful reload
	lead, _ := model.Lead("1")
	assert.Equal(t, models.LeadStatusNew, lead.Status)
}

func TestCompleteDrag_DroppedOutside(t *testing.T) {
	c, store, _ := setupController(t, boardLead("1", models.LeadStatusNew))
	ctx := context.Background()

	require.NoError(t, c.HandleDragStart(ctx, Card("1")))
	result := c.HandleDragEnd(ctx, Card("1"), nil)

	assert.Equal(t, OutcomeNoTarget, result.Outcome)
	assert.Empty(t, store.UpdateCalls())
	assert.Equal(t, StateIdle, c.State().State)
}

func TestCompleteDrag_UnknownColumn(t *testing.T) {
	c, store, _ := setupController(t, boardLead("1", models.LeadStatusNew))
	ctx := context.Background()

	require.NoError(t, c.StartDrag(ctx, "1"))
	result := c.HandleDragEnd(ctx, Card("1"), Column("ARCHIVED"))

	assert.Equal(t, OutcomeNoTarget, result.Outcome)
	assert.Empty(t, store.UpdateCalls())
	assert.Equal(t, StateIdle, c.State().State)
}

func TestCompleteDrag_MismatchedLead(t *testing.T) {
	c, store, _ := setupController(t, boardLead("1", models.LeadStatusNew), boardLead("2", models.LeadStatusNew))
	ctx := context.Background()

	require.NoError(t, c.StartDrag(ctx, "1"))
	result := c.CompleteDrag(ctx, "2", models.LeadStatusQuoted)

	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrDragMismatch)
	assert.Empty(t, store.UpdateCalls())
	assert.Equal(t, StateIdle, c.State().State)
}

func TestStartDrag_Rejections(t *testing.T) {
	c, _, _ := setupController(t, boardLead("1", models.LeadStatusNew), boardLead("2", models.LeadStatusNew))
	ctx := context.Background()

	assert.ErrorIs(t, c.StartDrag(ctx, "missing"), ErrLeadNotOnBoard)
	assert.Equal(t, StateIdle, c.State().State)

	require.NoError(t, c.StartDrag(ctx, "1"))
	assert.ErrorIs(t, c.StartDrag(ctx, "2"), ErrDragInProgress)
	assert.Equal(t, "1", c.State().LeadID)
}

func TestCancelDrag(t *testing.T) {
	c, store, _ := setupController(t, boardLead("1", models.LeadStatusNew))
	ctx := context.Background()

	idle := c.CancelDrag(ctx)
	assert.Equal(t, OutcomeRejected, idle.Outcome)
	assert.ErrorIs(t, idle.Err, ErrNotDragging)

	require.NoError(t, c.StartDrag(ctx, "1"))
	result := c.CancelDrag(ctx)
	assert.Equal(t, OutcomeCancelled, result.Outcome)
	assert.Equal(t, "1", result.LeadID)
	assert.Empty(t, store.UpdateCalls())
	assert.Equal(t, StateIdle, c.State().State)

	// Completing after a cancel is an orphaned drop
	late := c.CompleteDrag(ctx, "1", models.LeadStatusQuoted)
	assert.ErrorIs(t, late.Err, ErrNotDragging)
}

func TestChangeStatus(t *testing.T) {
	c, store, model := setupController(t, boardLead("1", models.LeadStatusQuoted))
	ctx := context.Background()

	result := c.ChangeStatus(ctx, "1", models.LeadStatusConverted)
	assert.Equal(t, OutcomeMoved, result.Outcome)
	lead, _ := model.Lead("1")
	assert.Equal(t, models.LeadStatusConverted, lead.Status)

	result = c.ChangeStatus(ctx, "1", models.LeadStatusConverted)
	assert.Equal(t, OutcomeUnchanged, result.Outcome)

	result = c.ChangeStatus(ctx, "1", "WON")
	assert.ErrorIs(t, result.Err, ErrUnknownStage)

	result = c.ChangeStatus(ctx, "nope", models.LeadStatusNew)
	assert.ErrorIs(t, result.Err, ErrLeadNotOnBoard)

	assert.Len(t, store.UpdateCalls(), 1)

	require.NoError(t, c.StartDrag(ctx, "1"))
	result = c.ChangeStatus(ctx, "1", models.LeadStatusFollowUp)
	assert.ErrorIs(t, result.Err, ErrDragInProgress)
}

// gatedStore holds UpdateLead until release is closed
type gatedStore struct {
	*pipelinetest.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) UpdateLead(ctx context.Context, id string, update models.LeadUpdate) (models.Lead, error) {
	close(s.entered)
	<-s.release
	return s.MemoryStore.UpdateLead(ctx, id, update)
}

func TestController_NoDragWhileCommitting(t *testing.T) {
	store := &gatedStore{
		MemoryStore: pipelinetest.NewMemoryStore(boardLead("1", models.LeadStatusNew), boardLead("2", models.LeadStatusNew)),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	model := pipeline.NewModel(store)
	require.NoError(t, model.Load(context.Background()))
	c := NewController(model, store, nil)
	ctx := context.Background()

	require.NoError(t, c.StartDrag(ctx, "1"))

	done := make(chan Result, 1)
	go func() {
		done <- c.CompleteDrag(ctx, "1", models.LeadStatusContacted)
	}()

	<-store.entered
	assert.Equal(t, DragState{State: StateCommitting, LeadID: "1"}, c.State())
	assert.ErrorIs(t, c.StartDrag(ctx, "2"), ErrDragInProgress)
	assert.ErrorIs(t, c.CancelDrag(ctx).Err, ErrDragInProgress)

	close(store.release)
	result := <-done
	assert.Equal(t, OutcomeMoved, result.Outcome)
	assert.Equal(t, StateIdle, c.State().State)
}

func TestController_RecordsOutcomeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBoardMetrics(reg, "test")

	store := pipelinetest.NewMemoryStore(boardLead("1", models.LeadStatusNew))
	model := pipeline.NewModel(store)
	require.NoError(t, model.Load(context.Background()))
	c := NewController(model, store, m)
	ctx := context.Background()

	require.NoError(t, c.StartDrag(ctx, "1"))
	c.CompleteDrag(ctx, "1", models.LeadStatusNew)
	require.NoError(t, c.StartDrag(ctx, "1"))
	c.CompleteDrag(ctx, "1", models.LeadStatusQuoted)

	expected := `
# HELP test_board_transitions_total Total drag and status-change resolutions by outcome
# TYPE test_board_transitions_total counter
test_board_transitions_total{outcome="moved"} 1
test_board_transitions_total{outcome="unchanged"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_board_transitions_total"))
}

var dropTargets = append(models.Stages(), "", "ARCHIVED")

// Property: every started drag returns to Idle exactly once, whatever the drop,
// and the store is called only for a real stage change
func TestProperty_DragAlwaysResolves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("drag resolves to idle", prop.ForAll(
		func(action int, targetIdx int, startIdx int, storeFails bool) bool {
			start := models.Stages()[startIdx]
			store := pipelinetest.NewMemoryStore(boardLead("1", start), boardLead("2", models.LeadStatusNew))
			model := pipeline.NewModel(store)
			if err := model.Load(context.Background()); err != nil {
				return false
			}
			if storeFails {
				store.UpdateErr = models.NewStoreError(models.ErrorKindStoreUnavailable, "update_lead", "1", "down", nil)
			}
			c := NewController(model, store, nil)
			ctx := context.Background()

			if err := c.StartDrag(ctx, "1"); err != nil {
				return false
			}

			target := dropTargets[targetIdx]
			var result Result
			switch action {
			case 0:
				result = c.CancelDrag(ctx)
			case 1:
				result = c.CompleteDrag(ctx, "2", target)
			default:
				result = c.CompleteDrag(ctx, "1", target)
			}

			if c.State() != (DragState{State: StateIdle}) {
				return false
			}

			wantCall := action >= 2 && target.IsValid() && target != start
			if gotCall := len(store.UpdateCalls()) == 1; gotCall != wantCall {
				return false
			}

			lead, _ := model.Lead("1")
			if wantCall && !storeFails {
				return result.Outcome == OutcomeMoved && lead.Status == target
			}
			return lead.Status == start && result.Outcome != OutcomeMoved
		},
		gen.IntRange(0, 3),
		gen.IntRange(0, len(dropTargets)-1),
		gen.IntRange(0, len(models.Stages())-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
