package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/melbournemould/leadboard/internal/metrics"
	"github.com/melbournemould/leadboard/internal/models"
)

func TestGetAllLeads_DecodesRawEnums(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/leads" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer board-token" {
			t.Errorf("Expected bearer token, got %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"a","firstName":"Jo","lastName":"Bloggs","status":"NEW","serviceType":"MOULD_INSPECTION","urgency":"LOW","source":"WEBSITE","createdAt":"2026-10-14T01:00:00Z"},
			{"id":"b","firstName":"Al","lastName":"Ng","status":"FORM_COMPLETED","serviceType":"PEST_CONTROL","urgency":"LOW","source":"WEBSITE","createdAt":"2026-10-14T02:00:00Z"}
		]`))
	}))
	defer server.Close()

	store := NewLeadStoreClient(server.URL+"/", "board-token", 5*time.Second)
	leads, err := store.GetAllLeads(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("Expected 2 leads, got %d", len(leads))
	}
	if leads[1].Status != "FORM_COMPLETED" || leads[1].ServiceType != "PEST_CONTROL" {
		t.Errorf("Expected unknown enum values to be kept verbatim, got %s/%s", leads[1].Status, leads[1].ServiceType)
	}
	if leads[0].FullName() != "Jo Bloggs" {
		t.Errorf("Expected 'Jo Bloggs', got %s", leads[0].FullName())
	}
}

func TestUpdateLead_SendsOnlyStatus(t *testing.T) {
	var body map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/leads/lead-1" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.Write([]byte(`{"id":"lead-1","status":"QUOTED"}`))
	}))
	defer server.Close()

	store := NewLeadStoreClient(server.URL, "", 5*time.Second)
	lead, err := store.UpdateLead(context.Background(), "lead-1", models.StatusUpdate(models.LeadStatusQuoted))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if lead.Status != models.LeadStatusQuoted {
		t.Errorf("Expected QUOTED, got %s", lead.Status)
	}
	if len(body) != 1 || body["status"] != "QUOTED" {
		t.Errorf("Expected body with only status, got %v", body)
	}
}

func TestLeadStore_ErrorKinds(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		body       string
		kind       models.ErrorKind
	}{
		{"404 Not Found", http.StatusNotFound, `{"error":"Lead not found"}`, models.ErrorKindNotFound},
		{"422 Unprocessable Entity", http.StatusUnprocessableEntity, `{"error":"invalid status","field":"status"}`, models.ErrorKindValidation},
		{"400 Bad Request", http.StatusBadRequest, `not json`, models.ErrorKindValidation},
		{"429 Too Many Requests", http.StatusTooManyRequests, ``, models.ErrorKindStoreUnavailable},
		{"500 Internal Server Error", http.StatusInternalServerError, `{"error":"Internal server error"}`, models.ErrorKindStoreUnavailable},
		{"503 Service Unavailable", http.StatusServiceUnavailable, ``, models.ErrorKindStoreUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			store := NewLeadStoreClient(server.URL, "", 5*time.Second)
			_, err := store.UpdateLead(context.Background(), "x", models.StatusUpdate(models.LeadStatusNew))
			if err == nil {
				t.Fatalf("Expected error for %d response", tc.statusCode)
			}
			if kind := models.ErrorKindOf(err); kind != tc.kind {
				t.Errorf("Expected kind %s, got %s (%v)", tc.kind, kind, err)
			}
		})
	}
}

func TestLeadStore_ValidationCarriesField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"unknown stage","field":"status","detail":"WON"}`))
	}))
	defer server.Close()

	store := NewLeadStoreClient(server.URL, "", 5*time.Second)
	_, err := store.UpdateLead(context.Background(), "x", models.StatusUpdate("WON"))

	var validationErr *models.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError cause, got %v", err)
	}
	if validationErr.Field != "status" || validationErr.Detail != "WON" {
		t.Errorf("Unexpected validation error: %+v", validationErr)
	}
}

func TestLeadStore_NetworkErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	store := NewLeadStoreClient(url, "", time.Second)
	_, err := store.GetAllLeads(context.Background())
	if !models.IsStoreUnavailable(err) {
		t.Errorf("Expected StoreUnavailable, got %v", err)
	}
}

func TestAssignTechnician_SendsIDs(t *testing.T) {
	var received AssignRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/leads/assign" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"updated":2}`))
	}))
	defer server.Close()

	store := NewLeadStoreClient(server.URL, "", 5*time.Second)
	if err := store.AssignTechnician(context.Background(), []string{"a", "b"}, "tech-3"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if strings.Join(received.LeadIDs, ",") != "a,b" || received.TechnicianID != "tech-3" {
		t.Errorf("Unexpected request body: %+v", received)
	}
}

func TestListTechnicians(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"t1","name":"Alex"},{"id":"t2","name":"Sam"}]`))
	}))
	defer server.Close()

	store := NewLeadStoreClient(server.URL, "", 5*time.Second)
	technicians, err := store.ListTechnicians(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(technicians) != 2 || technicians[1].Name != "Sam" {
		t.Errorf("Unexpected technicians: %+v", technicians)
	}
}

func TestLeadStore_RateLimitAndMetrics(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewBoardMetrics(reg, "test")
	store := NewLeadStoreClient(server.URL, "", 5*time.Second, WithRateLimit(1, 1), WithStoreMetrics(m))

	if _, err := store.GetAllLeads(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// The burst is spent, so a second call has to wait longer than this deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := store.GetAllLeads(ctx)
	if !models.IsStoreUnavailable(err) {
		t.Errorf("Expected rate-limited call to fail as unavailable, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected 1 request to reach the server, got %d", hits)
	}

	n, err := testutil.GatherAndCount(reg, "test_lead_store_request_duration_seconds")
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected success and error series, got %d", n)
	}
}
