package handlers

import (
	"errors"
	"net/http"

	"reservation-system/models"
	"reservation-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// EventHandler serves the thin browse surface over the event catalog.
// Availability comes from the inventory, never from the stored record.
type EventHandler struct {
	app       *pocketbase.PocketBase
	inventory *services.InventoryService
}

func NewEventHandler(app *pocketbase.PocketBase, inventory *services.InventoryService) *EventHandler {
	return &EventHandler{
		app:       app,
		inventory: inventory,
	}
}

// GetEvent - Get one event with live seat availability
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	record, err := h.app.FindRecordById("events", eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", err)
	}

	available, err := h.inventory.Availability(e.Request.Context(), eventID)
	if err != nil && !errors.Is(err, services.ErrEventNotFound) {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to get availability", err)
	}

	return e.JSON(http.StatusOK, eventFromRecord(record, available))
}

// GetEventAvailability - Just the live seat count, for polling clients
func (h *EventHandler) GetEventAvailability(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	available, err := h.inventory.Availability(e.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, services.ErrEventNotFound) {
			return apis.NewNotFoundError("Event not found", err)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to get availability", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"event_id":        eventID,
		"available_seats": available,
	})
}

func eventFromRecord(record *core.Record, available int) *models.Event {
	return &models.Event{
		ID:             record.Id,
		Date:           record.GetDateTime("date").Time(),
		Country:        record.GetString("country"),
		HomeTeam:       record.GetString("home_team"),
		AwayTeam:       record.GetString("away_team"),
		League:         record.GetString("league"),
		Price:          decimal.NewFromFloat(record.GetFloat("price")),
		TotalSeats:     record.GetInt("total_seats"),
		AvailableSeats: available,
	}
}
