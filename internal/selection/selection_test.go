package selection

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melbournemould/leadboard/internal/filter"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/pipeline"
	"github.com/melbournemould/leadboard/internal/pipeline/pipelinetest"
	"github.com/melbournemould/leadboard/internal/queue"
)

func lead(id string, status models.LeadStatus) models.Lead {
	return models.Lead{
		ID:          id,
		FirstName:   "Sam",
		LastName:    "Nguyen",
		Email:       id + "@example.com",
		Phone:       "0412 345 678",
		Suburb:      "Footscray",
		ServiceType: models.ServiceTypeMouldRemoval,
		Urgency:     models.UrgencyHigh,
		Source:      models.LeadSourcePhone,
		Status:      status,
		CreatedAt:   time.Date(2026, 10, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestSet_Operations(t *testing.T) {
	s := NewSet()

	s.Select("b")
	s.Select("a")
	s.Select("b")
	s.Select("")
	assert.Equal(t, []string{"b", "a"}, s.IDs())
	assert.Equal(t, 2, s.Len())

	assert.False(t, s.Toggle("b"))
	assert.False(t, s.Contains("b"))
	assert.True(t, s.Toggle("c"))
	assert.Equal(t, []string{"a", "c"}, s.IDs())

	s.Deselect("missing")
	s.Deselect("a")
	assert.Equal(t, []string{"c"}, s.IDs())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []string{}, s.IDs())
}

type fakeEnqueuer struct {
	jobType string
	payload map[string]interface{}
	err     error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobType string, payload map[string]interface{}) error {
	f.jobType = jobType
	f.payload = payload
	return f.err
}

func setupCoordinator(t *testing.T, leads ...models.Lead) (*Coordinator, *Set, *pipelinetest.MemoryStore, *pipeline.Model) {
	t.Helper()

	store := pipelinetest.NewMemoryStore(leads...)
	model := pipeline.NewModel(store)
	require.NoError(t, model.Load(context.Background()))

	set := NewSet()
	return NewCoordinator(set, model, nil), set, store, model
}

func TestCoordinator_AssignClearsSelectionAndReloads(t *testing.T) {
	c, set, store, model := setupCoordinator(t,
		lead("1", models.LeadStatusNew), lead("2", models.LeadStatusQuoted), lead("3", models.LeadStatusNew))
	c.Register(ActionAssign, NewAssignHandler(store))

	set.Select("3")
	set.Select("1")
	set.Select("gone")

	loadsBefore := store.GetAllCalls()
	result, err := c.Dispatch(context.Background(), Request{Action: ActionAssign, TechnicianID: "tech-7"})
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "1"}, result.LeadIDs)
	assert.Equal(t, []string{"gone"}, result.Skipped)
	assert.NoError(t, result.ReloadErr)
	assert.Equal(t, 0, set.Len(), "selection is cleared once the assignment completes")
	assert.Equal(t, loadsBefore+1, store.GetAllCalls())

	assigned, ok := model.Lead("1")
	require.True(t, ok)
	assert.True(t, assigned.IsAssigned())
	other, _ := model.Lead("2")
	assert.False(t, other.IsAssigned())
}

func TestCoordinator_FailureKeepsSelection(t *testing.T) {
	c, set, store, _ := setupCoordinator(t, lead("1", models.LeadStatusNew))
	c.Register(ActionAssign, NewAssignHandler(store))
	store.AssignErr = models.NewStoreError(models.ErrorKindStoreUnavailable, "assign_technician", "", "timeout", nil)

	set.Select("1")
	_, err := c.Dispatch(context.Background(), Request{Action: ActionAssign, TechnicianID: "tech-1"})
	require.Error(t, err)
	assert.True(t, models.IsStoreUnavailable(err))
	assert.Equal(t, []string{"1"}, set.IDs())
}

func TestCoordinator_AssignRequiresTechnician(t *testing.T) {
	c, set, store, _ := setupCoordinator(t, lead("1", models.LeadStatusNew))
	c.Register(ActionAssign, NewAssignHandler(store))
	set.Select("1")

	_, err := c.Dispatch(context.Background(), Request{Action: ActionAssign})
	assert.True(t, models.IsValidationError(err))
	assert.Equal(t, 0, store.AssignCalls())
}

func TestCoordinator_Rejections(t *testing.T) {
	c, set, _, _ := setupCoordinator(t, lead("1", models.LeadStatusNew))

	_, err := c.Dispatch(context.Background(), Request{Action: "delete"})
	assert.True(t, errors.Is(err, ErrUnknownAction))

	_, err = c.Dispatch(context.Background(), Request{Action: ActionArchive})
	assert.True(t, errors.Is(err, ErrNoHandler))

	called := false
	c.Register(ActionArchive, HandlerFunc(func(ctx context.Context, req Request) error {
		called = true
		return nil
	}))
	_, err = c.Dispatch(context.Background(), Request{Action: ActionArchive})
	assert.True(t, errors.Is(err, ErrEmptySelection))

	set.Select("not-on-board")
	_, err = c.Dispatch(context.Background(), Request{Action: ActionArchive})
	assert.True(t, errors.Is(err, ErrEmptySelection))
	assert.False(t, called)
}

func TestQueueHandler_PublishesBulkJobs(t *testing.T) {
	c, set, store, _ := setupCoordinator(t, lead("1", models.LeadStatusNew), lead("2", models.LeadStatusNew))
	enq := &fakeEnqueuer{}
	c.Register(ActionStatus, NewQueueHandler(enq))
	c.Register(ActionArchive, NewQueueHandler(enq))

	set.Select("2")
	set.Select("1")
	_, err := c.Dispatch(context.Background(), Request{Action: ActionStatus, Status: models.LeadStatusClosedLost})
	require.NoError(t, err)
	assert.Equal(t, queue.JobTypeBulkStatusChange, enq.jobType)
	assert.Equal(t, "CLOSED_LOST", enq.payload["status"])
	ids, ok := queue.GetLeadIDs(enq.payload)
	require.True(t, ok)
	assert.Equal(t, []string{"2", "1"}, ids)
	assert.Equal(t, 0, set.Len())

	// Status and archive never touch the lead store directly
	assert.Empty(t, store.UpdateCalls())

	set.Select("1")
	_, err = c.Dispatch(context.Background(), Request{Action: ActionArchive})
	require.NoError(t, err)
	assert.Equal(t, queue.JobTypeBulkArchive, enq.jobType)
}

func TestQueueHandler_EnqueueFailure(t *testing.T) {
	c, set, _, _ := setupCoordinator(t, lead("1", models.LeadStatusNew))
	c.Register(ActionArchive, NewQueueHandler(&fakeEnqueuer{err: queue.ErrQueueUnavailable}))

	set.Select("1")
	_, err := c.Dispatch(context.Background(), Request{Action: ActionArchive})
	assert.True(t, queue.IsUnavailableError(err))
	assert.Equal(t, 1, set.Len())
}

var selectionStatuses = models.Stages()

// Property: toggling selection membership never changes grouping or filter output
func TestProperty_SelectionIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("selection does not affect grouping or filtering", prop.ForAll(
		func(statusIdx []int, toggles []int) bool {
			leads := make([]models.Lead, len(statusIdx))
			for i, n := range statusIdx {
				leads[i] = lead(fmt.Sprintf("lead-%d", i), selectionStatuses[n])
			}
			criteria := filter.Criteria{Urgency: models.UrgencyHigh}

			beforeGroups := pipeline.GroupByStatus(leads, models.Stages())
			beforeFilter := filter.Apply(leads, "foot", criteria)

			set := NewSet()
			for _, n := range toggles {
				set.Toggle(fmt.Sprintf("lead-%d", n))
			}

			afterGroups := pipeline.GroupByStatus(leads, models.Stages())
			afterFilter := filter.Apply(leads, "foot", criteria)

			return reflect.DeepEqual(beforeGroups, afterGroups) && reflect.DeepEqual(beforeFilter, afterFilter)
		},
		gen.SliceOf(gen.IntRange(0, len(selectionStatuses)-1)),
		gen.SliceOf(gen.IntRange(0, 20)),
	))

	properties.TestingRun(t)
}
