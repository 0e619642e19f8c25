package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"reservation-system/config"
	"reservation-system/handlers"
	"reservation-system/monitoring"
	"reservation-system/security"
	"reservation-system/services"
	"reservation-system/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	inventoryService := services.NewInventoryService(redisClient)
	ledgerService := services.NewLedgerService(app)
	reconciliationQueue := services.NewReconciliationQueue(redisClient)
	monitor := monitoring.NewMonitor(redisClient)
	admissionService := services.NewAdmissionService(
		inventoryService,
		ledgerService,
		reconciliationQueue,
		monitor,
		cfg,
	)

	// Initialize handlers
	reservationHandler := handlers.NewReservationHandler(app, admissionService, ledgerService)
	eventHandler := handlers.NewEventHandler(app, inventoryService)
	adminHandler := handlers.NewAdminHandler(app, inventoryService, reconciliationQueue, cfg)
	rateLimiter := security.NewRateLimiter(redisClient, cfg)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncEventCapacity(app, inventoryService, ledgerService)
		monitor.Start(ctx)

		if cfg.EnableMetrics {
			monitoring.StartMetricsServer(ctx, cfg.MetricsPort, redisClient)
		}

		api := e.Router.Group("/api/v1")
		api.BindFunc(rateLimiter.AntiBotMiddleware())
		api.BindFunc(rateLimiter.Middleware())

		// Reservation endpoints
		api.POST("/reservations", reservationHandler.CreateReservation)
		api.POST("/reservations/{reservationId}/cancel", reservationHandler.CancelReservation)
		api.GET("/reservations/user/{userId}", reservationHandler.GetUserReservations)

		// Event browse endpoints
		api.GET("/events/{eventId}", eventHandler.GetEvent)
		api.GET("/events/{eventId}/availability", eventHandler.GetEventAvailability)

		// Admin endpoints
		api.GET("/admin/reconciliation", adminHandler.GetReconciliationQueue)
		api.POST("/admin/reconciliation/resolve", adminHandler.ResolveReconciliationTask)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupEventHooks(app, inventoryService, ledgerService)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// syncEventCapacity rebuilds the seat counters from the catalog and
// the ledger on boot: available = total − committed active spots.
// Committed reservations only ever decrement the Redis side, so a
// restart must derive the counters instead of resetting them.
func syncEventCapacity(app *pocketbase.PocketBase, inventory *services.InventoryService, ledger *services.LedgerService) {
	ctx := context.Background()

	events, err := app.FindAllRecords("events")
	if err != nil {
		log.Printf("Error fetching events for capacity sync: %v", err)
		return
	}

	for _, event := range events {
		total := event.GetInt("total_seats")
		committed, err := ledger.ActiveSpotsForEvent(ctx, event.Id)
		if err != nil {
			slog.Error("failed to compute committed spots", "event_id", event.Id, "error", err)
			continue
		}

		if err := inventory.SetCapacity(ctx, event.Id, total, total-committed); err != nil {
			slog.Error("failed to sync event capacity", "event_id", event.Id, "error", err)
		}
	}

	log.Printf("Synced seat capacity for %d events", len(events))
}

// setupEventHooks keeps the seat counters in step with catalog writes.
func setupEventHooks(app *pocketbase.PocketBase, inventory *services.InventoryService, ledger *services.LedgerService) {
	app.OnRecordAfterCreateSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		total := e.Record.GetInt("total_seats")
		if err := inventory.SetCapacity(ctx, e.Record.Id, total, total); err != nil {
			slog.Error("failed to install seat counters for new event",
				"event_id", e.Record.Id,
				"error", err,
			)
			// The catalog write already happened; the boot sync will
			// repair the counters on next start.
			return e.Next()
		}
		slog.Info("installed seat counters", "event_id", e.Record.Id, "total_seats", total)
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		total := e.Record.GetInt("total_seats")
		committed, err := ledger.ActiveSpotsForEvent(ctx, e.Record.Id)
		if err != nil {
			slog.Error("failed to compute committed spots", "event_id", e.Record.Id, "error", err)
			return e.Next()
		}

		if err := inventory.SetCapacity(ctx, e.Record.Id, total, total-committed); err != nil {
			slog.Error("failed to resync seat counters", "event_id", e.Record.Id, "error", err)
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("events").BindFunc(func(e *core.RecordEvent) error {
		ctx := context.Background()

		if err := inventory.RemoveEvent(ctx, e.Record.Id); err != nil {
			slog.Error("failed to drop seat counters", "event_id", e.Record.Id, "error", err)
		}
		return e.Next()
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
