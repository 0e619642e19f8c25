package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"reservation-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type ReservationHandler struct {
	app       *pocketbase.PocketBase
	admission *services.AdmissionService
	ledger    *services.LedgerService
}

func NewReservationHandler(app *pocketbase.PocketBase, admission *services.AdmissionService, ledger *services.LedgerService) *ReservationHandler {
	return &ReservationHandler{
		app:       app,
		admission: admission,
		ledger:    ledger,
	}
}

// CreateReservation - Run one reservation request through admission
func (h *ReservationHandler) CreateReservation(e *core.RequestEvent) error {
	var req struct {
		UserID  string `json:"user_id"`
		EventID string `json:"event_id"`
		Spots   int    `json:"spots"`
	}

	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.UserID == "" || req.EventID == "" {
		return apis.NewBadRequestError("user_id and event_id are required", nil)
	}

	record, err := h.admission.Admit(e.Request.Context(), req.UserID, req.EventID, req.Spots)
	if err != nil {
		return mapAdmissionError(err)
	}

	return e.JSON(http.StatusCreated, record)
}

// CancelReservation - Cancel a reservation and return its seats
func (h *ReservationHandler) CancelReservation(e *core.RequestEvent) error {
	reservationID := e.Request.PathValue("reservationId")
	if reservationID == "" {
		return apis.NewBadRequestError("reservationId is required", nil)
	}

	record, err := h.admission.Cancel(e.Request.Context(), reservationID)
	if err != nil {
		if errors.Is(err, services.ErrReservationNotFound) {
			return apis.NewNotFoundError("Reservation not found", err)
		}
		return mapAdmissionError(err)
	}

	return e.JSON(http.StatusOK, record)
}

// GetUserReservations - Paginated listing of a user's reservations
func (h *ReservationHandler) GetUserReservations(e *core.RequestEvent) error {
	userID := e.Request.PathValue("userId")
	if userID == "" {
		return apis.NewBadRequestError("userId is required", nil)
	}

	query := e.Request.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	sort := query.Get("sort")

	result, err := h.ledger.UserReservations(e.Request.Context(), userID, page, limit, sort)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list reservations", err)
	}

	return e.JSON(http.StatusOK, result)
}

// mapAdmissionError translates admission outcomes into API responses.
// Capacity rejections are unprocessable-entity results, not faults.
func mapAdmissionError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidSpotCount):
		return apis.NewBadRequestError("Spot count out of range", err)
	case errors.Is(err, services.ErrEventNotFound):
		return apis.NewNotFoundError("Event not found", err)
	case errors.Is(err, services.ErrSeatsUnavailable):
		return apis.NewApiError(http.StatusUnprocessableEntity, "Not enough available seats for this event", nil)
	case errors.Is(err, services.ErrGlobalCapacityExceeded):
		return apis.NewApiError(http.StatusUnprocessableEntity, "User can't reserve more spots across all events", nil)
	case errors.Is(err, services.ErrEventCapacityExceeded):
		return apis.NewApiError(http.StatusUnprocessableEntity, "User can't reserve more spots for the same event", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apis.NewApiError(http.StatusServiceUnavailable, "Reservation timed out, please retry", err)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Transient failure, please retry", err)
	}
}
