package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/models"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error         string `json:"error"`
	Field         string `json:"field,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, ctx context.Context, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.LogError(ctx, "Failed to encode response", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, ctx context.Context, statusCode int, message string) {
	respondJSON(w, ctx, statusCode, ErrorResponse{
		Error:         message,
		CorrelationID: logger.CorrelationID(ctx),
	})
}

// respondValidation sends a 422 naming the rejected field
func respondValidation(w http.ResponseWriter, ctx context.Context, err *models.ValidationError) {
	respondJSON(w, ctx, http.StatusUnprocessableEntity, ErrorResponse{
		Error:         err.Field + " " + err.Reason,
		Field:         err.Field,
		Detail:        err.Detail,
		CorrelationID: logger.CorrelationID(ctx),
	})
}

// respondStoreError maps repository and service errors onto status codes:
// validation failures are 422, unknown records 404, everything else 500
func respondStoreError(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		respondValidation(w, ctx, validationErr)
	case models.IsValidationError(err):
		respondError(w, ctx, http.StatusUnprocessableEntity, err.Error())
	case models.IsNotFound(err):
		var storeErr *models.StoreError
		message := "not found"
		if errors.As(err, &storeErr) {
			message = storeErr.Message
		}
		respondError(w, ctx, http.StatusNotFound, message)
	default:
		logger.LogError(ctx, msg, err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into dst. An empty body is accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	err := json.NewDecoder(body).Decode(dst)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	if err != nil {
		return fmt.Errorf("malformed JSON payload: %w", err)
	}
	return nil
}
