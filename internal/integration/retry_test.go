package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/melbournemould/leadboard/internal/models"
)

// TestNotificationRetryThenSuccess checks that a retriable failure reschedules the job
// and the next run delivers it
func TestNotificationRetryThenSuccess(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnvironment(t)

	var hits int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"maintenance"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	leadID := createAndMove(t, env, models.LeadStatusQuoted)
	processor := env.processor(webhook.URL, 5)

	// First attempt fails with 503 and is rescheduled
	if _, err := processor.PollOnce(ctx); err != nil {
		t.Fatalf("Failed to poll: %v", err)
	}
	if n, _ := processor.PollOnce(ctx); n != 0 {
		t.Fatalf("Expected rescheduled job to wait for its backoff, got %d processed", n)
	}

	// Second attempt succeeds once the backoff has elapsed
	makeJobsDue(t, env)
	if n, err := processor.PollOnce(ctx); err != nil || n != 1 {
		t.Fatalf("Expected 1 job processed, got %d (%v)", n, err)
	}

	attempts, err := env.attemptRepo.GetNotificationAttemptsByLeadID(ctx, leadID)
	if err != nil {
		t.Fatalf("Failed to get notification attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("Expected 2 attempts, got %d", len(attempts))
	}

	successes := 0
	for _, attempt := range attempts {
		if attempt.Success {
			successes++
			continue
		}
		if attempt.ResponseStatus == nil || *attempt.ResponseStatus != http.StatusServiceUnavailable {
			t.Errorf("Expected failed attempt to record 503, got %v", attempt.ResponseStatus)
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly 1 successful attempt, got %d", successes)
	}

	var status string
	err = env.db.QueryRowContext(ctx, "SELECT status FROM background_jobs ORDER BY id DESC LIMIT 1").Scan(&status)
	if err != nil {
		t.Fatalf("Failed to read job status: %v", err)
	}
	if status != "completed" {
		t.Errorf("Expected job completed, got %s", status)
	}
}

// TestNotificationMaxAttemptsExceeded checks that the job fails after the last allowed attempt
func TestNotificationMaxAttemptsExceeded(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnvironment(t)

	var hits int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer webhook.Close()

	leadID := createAndMove(t, env, models.LeadStatusContacted)
	processor := env.processor(webhook.URL, 3)

	for i := 0; i < 3; i++ {
		makeJobsDue(t, env)
		if _, err := processor.PollOnce(ctx); err != nil {
			t.Fatalf("Failed to poll: %v", err)
		}
	}

	makeJobsDue(t, env)
	if n, _ := processor.PollOnce(ctx); n != 0 {
		t.Errorf("Expected no job left after the last attempt, got %d", n)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("Expected 3 deliveries, got %d", hits)
	}

	attempts, err := env.attemptRepo.GetNotificationAttemptsByLeadID(ctx, leadID)
	if err != nil {
		t.Fatalf("Failed to get notification attempts: %v", err)
	}
	if len(attempts) != 3 {
		t.Errorf("Expected 3 recorded attempts, got %d", len(attempts))
	}

	var status string
	var lastError *string
	err = env.db.QueryRowContext(ctx, "SELECT status, error_message FROM background_jobs ORDER BY id DESC LIMIT 1").Scan(&status, &lastError)
	if err != nil {
		t.Fatalf("Failed to read job status: %v", err)
	}
	if status != "failed" {
		t.Errorf("Expected job failed, got %s", status)
	}
	if lastError == nil || *lastError == "" {
		t.Error("Expected error_message to be recorded")
	}
}

// createAndMove creates a lead through the API and moves it to target, which enqueues one notification
func createAndMove(t *testing.T, env *testEnvironment, target models.LeadStatus) string {
	t.Helper()

	rr := env.request(t, http.MethodPost, "/api/leads", map[string]interface{}{
		"firstName":   "Sam",
		"lastName":    "Taylor",
		"email":       "sam@example.com",
		"phone":       "0400 111 222",
		"serviceType": "MOULD_REMOVAL",
		"urgency":     "HIGH",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var lead models.Lead
	if err := json.NewDecoder(rr.Body).Decode(&lead); err != nil {
		t.Fatalf("Failed to decode created lead: %v", err)
	}

	rr = env.request(t, http.MethodPut, "/api/leads/"+lead.ID, map[string]interface{}{"status": target})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	return lead.ID
}
