package handlers

import (
	"errors"
	"net/http"

	"reservation-system/config"
	"reservation-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

// AdminHandler exposes the reconciliation queue: tasks left behind
// when a compensating seat release failed and the inventory is known
// to under-count.
type AdminHandler struct {
	app       *pocketbase.PocketBase
	inventory *services.InventoryService
	queue     *services.ReconciliationQueue
	cfg       *config.Config
}

func NewAdminHandler(app *pocketbase.PocketBase, inventory *services.InventoryService, queue *services.ReconciliationQueue, cfg *config.Config) *AdminHandler {
	return &AdminHandler{
		app:       app,
		inventory: inventory,
		queue:     queue,
		cfg:       cfg,
	}
}

func (h *AdminHandler) authorize(e *core.RequestEvent) error {
	if h.cfg.AdminAPIKeyHash == "" {
		return apis.NewForbiddenError("Admin API is disabled", nil)
	}
	key := e.Request.Header.Get("X-Admin-Key")
	if key == "" {
		return apis.NewUnauthorizedError("Missing admin key", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminAPIKeyHash), []byte(key)); err != nil {
		return apis.NewForbiddenError("Invalid admin key", nil)
	}
	return nil
}

// GetReconciliationQueue - List pending reconciliation tasks
func (h *AdminHandler) GetReconciliationQueue(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	ctx := e.Request.Context()
	tasks, err := h.queue.Pending(ctx)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to list reconciliation tasks", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"pending": len(tasks),
		"tasks":   tasks,
	})
}

// ResolveReconciliationTask - Retry the seat release and drop the task
func (h *AdminHandler) ResolveReconciliationTask(e *core.RequestEvent) error {
	if err := h.authorize(e); err != nil {
		return err
	}

	var task services.ReconciliationTask
	if err := e.BindBody(&task); err != nil {
		return apis.NewBadRequestError("Invalid task payload", err)
	}
	if task.EventID == "" || task.Spots < 1 {
		return apis.NewBadRequestError("event_id and spots are required", nil)
	}

	ctx := e.Request.Context()
	if err := h.inventory.Release(ctx, task.EventID, task.Spots); err != nil && !errors.Is(err, services.ErrCapacityOverflow) {
		return apis.NewApiError(http.StatusInternalServerError, "Seat release failed again", err)
	}

	if err := h.queue.Resolve(ctx, task); err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to remove reconciliation task", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"resolved": true,
		"event_id": task.EventID,
		"spots":    task.Spots,
	})
}
