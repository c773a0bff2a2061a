package pipeline

import (
	"context"

	"github.com/melbournemould/leadboard/internal/models"
)

// LeadStore is the durable owner of lead records.
//
// GetAllLeads fails with a *models.StoreError of kind ErrorKindStoreUnavailable on
// network or service errors. UpdateLead fails with ErrorKindNotFound for an unknown
// id and ErrorKindValidation when the store rejects a field.
type LeadStore interface {
	GetAllLeads(ctx context.Context) ([]models.Lead, error)
	UpdateLead(ctx context.Context, id string, update models.LeadUpdate) (models.Lead, error)
}
