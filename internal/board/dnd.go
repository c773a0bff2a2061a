package board

import (
	"context"

	"github.com/melbournemould/leadboard/internal/models"
)

// DragSource is anything the gesture layer can pick up as a lead card
type DragSource interface {
	LeadID() string
}

// DropTarget is anything the gesture layer can drop a card onto
type DropTarget interface {
	StageID() string
}

// Card is a DragSource for a lead id
type Card string

func (c Card) LeadID() string { return string(c) }

// Column is a DropTarget for a pipeline stage
type Column models.LeadStatus

func (c Column) StageID() string { return string(c) }

// HandleDragStart forwards a pick-up event to the controller
func (c *Controller) HandleDragStart(ctx context.Context, source DragSource) error {
	return c.StartDrag(ctx, source.LeadID())
}

// HandleDragEnd forwards a drop event to the controller.
// A nil target means the card was released outside every column.
func (c *Controller) HandleDragEnd(ctx context.Context, source DragSource, over DropTarget) Result {
	if over == nil {
		return c.CompleteDrag(ctx, source.LeadID(), "")
	}
	return c.CompleteDrag(ctx, source.LeadID(), models.LeadStatus(over.StageID()))
}
