package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/melbournemould/leadboard/internal/board"
	"github.com/melbournemould/leadboard/internal/client"
	"github.com/melbournemould/leadboard/internal/handlers"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/queue"
	"github.com/melbournemould/leadboard/internal/repository"
)

// TestDatabaseUnavailability checks the API reports a closed database as a server error
func TestDatabaseUnavailability(t *testing.T) {
	env := setupTestEnvironment(t)

	// Close a second pool so cleanup can still use the first
	db, err := sql.Open("postgres", env.cfg.Database.DSN())
	if err != nil {
		t.Fatalf("Failed to open database connection: %v", err)
	}
	db.Close()

	leadHandler := handlers.NewLeadHandler(handlers.LeadHandlerConfig{LeadRepo: repository.NewLeadRepository(db)})
	router := handlers.NewRouter(handlers.RouterConfig{}, leadHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/leads", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}

	var response handlers.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Error == "" {
		t.Error("Expected error field in response")
	}
	if response.CorrelationID == "" {
		t.Error("Expected correlation id in error response")
	}
}

// TestQueueUnavailability checks a committed status change survives a failed enqueue
func TestQueueUnavailability(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnvironment(t)

	queueDB, err := sql.Open("postgres", env.cfg.Database.DSN())
	if err != nil {
		t.Fatalf("Failed to open queue database connection: %v", err)
	}
	jobQueue, err := queue.NewDBQueue(queueDB)
	if err != nil {
		t.Fatalf("Failed to initialize queue: %v", err)
	}
	queueDB.Close()

	leadHandler := handlers.NewLeadHandler(handlers.LeadHandlerConfig{
		LeadRepo:    env.leadRepo,
		AttemptRepo: env.attemptRepo,
		Jobs:        jobQueue,
	})
	env.server.Config.Handler = handlers.NewRouter(handlers.RouterConfig{}, leadHandler)

	leadID := createAndMove(t, env, models.LeadStatusQualified)

	lead, err := env.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		t.Fatalf("Failed to get lead: %v", err)
	}
	if lead.Status != models.LeadStatusQualified {
		t.Errorf("Expected status QUALIFIED, got %s", lead.Status)
	}

	var pending int
	if err := env.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM background_jobs").Scan(&pending); err != nil {
		t.Fatalf("Failed to count jobs: %v", err)
	}
	if pending != 0 {
		t.Errorf("Expected no job to be enqueued, got %d", pending)
	}
}

// TestBoardAgainstUnreachableStore checks a failed reload keeps the last good leads
func TestBoardAgainstUnreachableStore(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnvironment(t)

	leadID := createAndMove(t, env, models.LeadStatusContacted)

	store := client.NewLeadStoreClient(env.server.URL, "", 2*time.Second)
	session := board.NewSession(board.SessionConfig{Store: store})
	if err := session.Load(ctx); err != nil {
		t.Fatalf("Failed to load board: %v", err)
	}

	env.server.Close()

	err := session.Load(ctx)
	if !models.IsStoreUnavailable(err) {
		t.Fatalf("Expected StoreUnavailable, got %v", err)
	}

	view := session.View()
	if view.LoadError == "" {
		t.Error("Expected load error in view")
	}
	if view.Total != 1 {
		t.Errorf("Expected the stale lead to stay visible, got %d", view.Total)
	}

	result := session.Controller().ChangeStatus(ctx, leadID, models.LeadStatusQuoted)
	if result.Outcome != board.OutcomeFailed {
		t.Errorf("Expected outcome failed, got %s", result.Outcome)
	}
	if lead, _ := session.Model().Lead(leadID); lead.Status != models.LeadStatusContacted {
		t.Errorf("Expected the board to keep CONTACTED, got %s", lead.Status)
	}
}

// TestUnknownStageRejectedByStore checks the API refuses stages outside the pipeline
func TestUnknownStageRejectedByStore(t *testing.T) {
	env := setupTestEnvironment(t)
	leadID := createAndMove(t, env, models.LeadStatusContacted)

	rr := env.request(t, http.MethodPut, "/api/leads/"+leadID, map[string]interface{}{"status": "WON"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", rr.Code)
	}

	var response handlers.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Field != "status" {
		t.Errorf("Expected field status, got %q", response.Field)
	}

	rr = env.request(t, http.MethodPut, "/api/leads/does-not-exist", map[string]interface{}{"status": "QUOTED"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}
