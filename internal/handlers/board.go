package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/melbournemould/leadboard/internal/board"
	"github.com/melbournemould/leadboard/internal/filter"
	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/models"
	"github.com/melbournemould/leadboard/internal/selection"
)

// BoardHandler exposes a board session as a JSON API
type BoardHandler struct {
	session *board.Session
}

// NewBoardHandler creates a new BoardHandler
func NewBoardHandler(session *board.Session) *BoardHandler {
	return &BoardHandler{session: session}
}

// Register mounts the board routes
func (h *BoardHandler) Register(r *mux.Router) {
	r.HandleFunc("/board", h.HandleView).Methods(http.MethodGet)
	r.HandleFunc("/board/reload", h.HandleReload).Methods(http.MethodPost)
	r.HandleFunc("/board/filters", h.HandleSetFilters).Methods(http.MethodPut)
	r.HandleFunc("/board/filters", h.HandleResetFilters).Methods(http.MethodDelete)
	r.HandleFunc("/board/errors", h.HandleDismissErrors).Methods(http.MethodDelete)
	r.HandleFunc("/board/drag/start", h.HandleDragStart).Methods(http.MethodPost)
	r.HandleFunc("/board/drag/end", h.HandleDragEnd).Methods(http.MethodPost)
	r.HandleFunc("/board/drag/cancel", h.HandleDragCancel).Methods(http.MethodPost)
	r.HandleFunc("/board/leads/{id}/status", h.HandleChangeStatus).Methods(http.MethodPost)
	r.HandleFunc("/board/selection/{id}", h.HandleToggleSelection).Methods(http.MethodPost)
	r.HandleFunc("/board/selection", h.HandleClearSelection).Methods(http.MethodDelete)
	r.HandleFunc("/board/bulk/{action}", h.HandleBulk).Methods(http.MethodPost)
	r.HandleFunc("/board/technicians", h.HandleTechnicians).Methods(http.MethodGet)
}

// HandleView handles GET /board
func (h *BoardHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r.Context(), http.StatusOK, h.session.View())
}

// HandleReload handles POST /board/reload.
// A failed reload keeps the previous leads, so the view is still returned with 502.
func (h *BoardHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())

	if err := h.session.Load(ctx); err != nil {
		logger.LogError(ctx, "Failed to reload board", err)
		respondJSON(w, ctx, http.StatusBadGateway, h.session.View())
		return
	}

	respondJSON(w, ctx, http.StatusOK, h.session.View())
}

// FiltersRequest is the body of PUT /board/filters
type FiltersRequest struct {
	Search  string          `json:"search"`
	Filters filter.Criteria `json:"filters"`
}

// HandleSetFilters handles PUT /board/filters
func (h *BoardHandler) HandleSetFilters(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())

	var req FiltersRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	if err := h.session.SetFilters(req.Search, req.Filters); err != nil {
		respondStoreError(w, ctx, "Failed to set filters", err)
		return
	}

	respondJSON(w, ctx, http.StatusOK, h.session.View())
}

// HandleResetFilters handles DELETE /board/filters
func (h *BoardHandler) HandleResetFilters(w http.ResponseWriter, r *http.Request) {
	h.session.ResetFilters()
	respondJSON(w, r.Context(), http.StatusOK, h.session.View())
}

// HandleDismissErrors handles DELETE /board/errors
func (h *BoardHandler) HandleDismissErrors(w http.ResponseWriter, r *http.Request) {
	h.session.DismissErrors()
	respondJSON(w, r.Context(), http.StatusOK, h.session.View())
}

// DragRequest is the body of the drag endpoints. An empty Target on drag end
// means the card was released outside every column.
type DragRequest struct {
	LeadID string            `json:"leadId"`
	Target models.LeadStatus `json:"target,omitempty"`
}

// TransitionResponse reports a drag or status change
type TransitionResponse struct {
	board.Result
	Error string          `json:"error,omitempty"`
	Drag  board.DragState `json:"drag"`
}

// HandleDragStart handles POST /board/drag/start
func (h *BoardHandler) HandleDragStart(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())

	var req DragRequest
	if err := decodeJSON(w, r, &req, false); err != nil || req.LeadID == "" {
		respondError(w, ctx, http.StatusBadRequest, "leadId is required")
		return
	}

	if err := h.session.Controller().StartDrag(ctx, req.LeadID); err != nil {
		respondError(w, ctx, transitionStatus(err), err.Error())
		return
	}

	respondJSON(w, ctx, http.StatusOK, h.session.Controller().State())
}

// HandleDragEnd handles POST /board/drag/end
func (h *BoardHandler) HandleDragEnd(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())

	var req DragRequest
	if err := decodeJSON(w, r, &req, false); err != nil || req.LeadID == "" {
		respondError(w, ctx, http.StatusBadRequest, "leadId is required")
		return
	}

	var over board.DropTarget
	if req.Target != "" {
		over = board.Column(req.Target)
	}
	result := h.session.Controller().HandleDragEnd(ctx, board.Card(req.LeadID), over)
	h.respondTransition(w, r, result)
}

// HandleDragCancel handles POST /board/drag/cancel
func (h *BoardHandler) HandleDragCancel(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())
	h.respondTransition(w, r.WithContext(ctx), h.session.Controller().CancelDrag(ctx))
}

// StatusRequest is the body of POST /board/leads/{id}/status
type StatusRequest struct {
	Status models.LeadStatus `json:"status"`
}

// HandleChangeStatus handles POST /board/leads/{id}/status
func (h *BoardHandler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := logger.WithLeadID(h.session.Context(r.Context()), id)

	var req StatusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	result := h.session.Controller().ChangeStatus(ctx, id, req.Status)
	h.respondTransition(w, r.WithContext(ctx), result)
}

func (h *BoardHandler) respondTransition(w http.ResponseWriter, r *http.Request, result board.Result) {
	resp := TransitionResponse{Result: result, Drag: h.session.Controller().State()}

	code := http.StatusOK
	switch result.Outcome {
	case board.OutcomeRejected, board.OutcomeFailed:
		code = transitionStatus(result.Err)
		resp.Error = result.Err.Error()
	case board.OutcomeMoved:
		if result.Err != nil {
			// The move was stored; only the reload behind it failed
			resp.Error = result.Err.Error()
		}
	}

	respondJSON(w, r.Context(), code, resp)
}

// transitionStatus maps controller errors to HTTP status codes
func transitionStatus(err error) int {
	switch {
	case errors.Is(err, board.ErrDragInProgress),
		errors.Is(err, board.ErrNotDragging),
		errors.Is(err, board.ErrDragMismatch):
		return http.StatusConflict
	case errors.Is(err, board.ErrLeadNotOnBoard):
		return http.StatusNotFound
	case errors.Is(err, board.ErrUnknownStage):
		return http.StatusUnprocessableEntity
	case models.IsNotFound(err):
		return http.StatusNotFound
	case models.IsValidationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// SelectionResponse reports the selection after a change
type SelectionResponse struct {
	Selected []string `json:"selected"`
	Toggled  string   `json:"toggled,omitempty"`
	Checked  bool     `json:"checked"`
}

// HandleToggleSelection handles POST /board/selection/{id}
func (h *BoardHandler) HandleToggleSelection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	checked := h.session.Selection().Toggle(id)

	respondJSON(w, r.Context(), http.StatusOK, SelectionResponse{
		Selected: h.session.Selection().IDs(),
		Toggled:  id,
		Checked:  checked,
	})
}

// HandleClearSelection handles DELETE /board/selection
func (h *BoardHandler) HandleClearSelection(w http.ResponseWriter, r *http.Request) {
	h.session.Selection().Clear()
	respondJSON(w, r.Context(), http.StatusOK, SelectionResponse{Selected: []string{}})
}

// BulkRequest is the body of POST /board/bulk/{action}
type BulkRequest struct {
	TechnicianID string            `json:"technicianId,omitempty"`
	Status       models.LeadStatus `json:"status,omitempty"`
}

// BulkResponse reports a bulk action
type BulkResponse struct {
	selection.Result
	Error string `json:"error,omitempty"`
}

// HandleBulk handles POST /board/bulk/{action}
func (h *BoardHandler) HandleBulk(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())
	action := selection.Action(mux.Vars(r)["action"])

	var req BulkRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	if action == selection.ActionAssign && req.TechnicianID == "" {
		respondValidation(w, ctx, models.NewValidationError("technicianId", "is required", ""))
		return
	}
	if action == selection.ActionStatus && !req.Status.IsValid() {
		respondValidation(w, ctx, models.NewValidationError("status", "must be a pipeline stage", string(req.Status)))
		return
	}

	result, err := h.session.Coordinator().Dispatch(ctx, selection.Request{
		Action:       action,
		TechnicianID: req.TechnicianID,
		Status:       req.Status,
	})
	if err != nil {
		respondError(w, ctx, bulkStatus(err), err.Error())
		return
	}

	resp := BulkResponse{Result: result}
	if result.ReloadErr != nil {
		resp.Error = result.ReloadErr.Error()
	}
	respondJSON(w, ctx, http.StatusOK, resp)
}

// bulkStatus maps coordinator errors to HTTP status codes
func bulkStatus(err error) int {
	switch {
	case errors.Is(err, selection.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, selection.ErrEmptySelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, selection.ErrNoHandler):
		return http.StatusNotImplemented
	case models.IsNotFound(err):
		return http.StatusNotFound
	case models.IsValidationError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

// HandleTechnicians handles GET /board/technicians
func (h *BoardHandler) HandleTechnicians(w http.ResponseWriter, r *http.Request) {
	ctx := h.session.Context(r.Context())

	technicians, err := h.session.Technicians(ctx)
	if errors.Is(err, board.ErrTechniciansUnavailable) {
		respondError(w, ctx, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		logger.LogError(ctx, "Failed to list technicians", err)
		respondError(w, ctx, http.StatusBadGateway, "failed to list technicians")
		return
	}

	respondJSON(w, ctx, http.StatusOK, technicians)
}
