package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reservation-system/config"
	"reservation-system/models"
	"reservation-system/monitoring"
)

// SeatInventory is the only mutator of per-event seat counts. Both
// operations are atomic with respect to all other callers on the same
// event.
type SeatInventory interface {
	TryReserve(ctx context.Context, eventID string, spots int) error
	Release(ctx context.Context, eventID string, spots int) error
}

// ReservationLedger owns reservation records and the per-user spot
// aggregates derived from them.
type ReservationLedger interface {
	ActiveSpotsForUser(ctx context.Context, userID string) (int, error)
	ActiveSpotsForUserEvent(ctx context.Context, userID, eventID string) (int, error)
	Append(ctx context.Context, userID, eventID string, spots int) (*models.Reservation, error)
	Remove(ctx context.Context, reservationID string) error
	Find(ctx context.Context, reservationID string) (*models.Reservation, error)
	Cancel(ctx context.Context, reservationID string) (*models.Reservation, bool, error)
}

// Reconciler receives the tasks left behind when a compensating seat
// release itself fails.
type Reconciler interface {
	Enqueue(ctx context.Context, task ReconciliationTask) error
}

// AdmissionService decides whether a reservation request may commit.
// It owns neither store, but it owns the cross-store invariants:
// a user holds at most MaxSpotsPerUser active spots overall, at most
// MaxSpotsPerEvent on one event, and an event never hands out more
// seats than it has. Admissions for the same user are serialized
// through a per-user lock so two concurrent requests can never both
// act on the same stale aggregate; everything per-event is serialized
// inside the inventory instead, so no request ever holds two locks.
type AdmissionService struct {
	inventory SeatInventory
	ledger    ReservationLedger
	reconcile Reconciler
	locks     *UserLockTable
	monitor   *monitoring.Monitor

	maxSpotsPerUser  int
	maxSpotsPerEvent int
	admissionTimeout time.Duration
}

func NewAdmissionService(
	inventory SeatInventory,
	ledger ReservationLedger,
	reconcile Reconciler,
	monitor *monitoring.Monitor,
	cfg *config.Config,
) *AdmissionService {
	return &AdmissionService{
		inventory:        inventory,
		ledger:           ledger,
		reconcile:        reconcile,
		locks:            NewUserLockTable(),
		monitor:          monitor,
		maxSpotsPerUser:  cfg.MaxSpotsPerUser,
		maxSpotsPerEvent: cfg.MaxSpotsPerEvent,
		admissionTimeout: cfg.AdmissionTimeout,
	}
}

// Admit runs one reservation attempt to a terminal state. Capacity
// rejections come back as the sentinel errors in errors.go; only
// ErrPersistenceFailure (and context errors) are retryable. Admit may
// block on the user's lock and on both stores, so callers should not
// hold unrelated resources across it.
func (s *AdmissionService) Admit(ctx context.Context, userID, eventID string, spots int) (*models.Reservation, error) {
	started := time.Now()

	record, err := s.admit(ctx, userID, eventID, spots)
	s.track(err, time.Since(started))
	return record, err
}

func (s *AdmissionService) admit(ctx context.Context, userID, eventID string, spots int) (*models.Reservation, error) {
	// Pure input validation, before any I/O.
	if spots < 1 || spots > s.maxSpotsPerEvent {
		return nil, ErrInvalidSpotCount
	}

	if s.admissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.admissionTimeout)
		defer cancel()
	}

	if err := s.locks.Acquire(ctx, userID); err != nil {
		return nil, err
	}
	defer s.locks.Release(userID)

	// Aggregates must be read fresh under the lock; a cached value
	// could have been decided on by a request that already committed.
	userSpots, err := s.ledger.ActiveSpotsForUser(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrPersistenceFailure, err)
	}
	if userSpots+spots > s.maxSpotsPerUser {
		return nil, ErrGlobalCapacityExceeded
	}

	eventSpots, err := s.ledger.ActiveSpotsForUserEvent(ctx, userID, eventID)
	if err != nil {
		return nil, errors.Join(ErrPersistenceFailure, err)
	}
	if eventSpots+spots > s.maxSpotsPerEvent {
		return nil, ErrEventCapacityExceeded
	}

	// Seats first: the event counter is the contended resource, so the
	// narrow check runs before the user's own ledger append and keeps
	// the compensation window small.
	if err := s.inventory.TryReserve(ctx, eventID, spots); err != nil {
		switch {
		case errors.Is(err, ErrEventNotFound):
			return nil, ErrEventNotFound
		case errors.Is(err, ErrInsufficientSeats):
			return nil, ErrSeatsUnavailable
		}
		return nil, errors.Join(ErrPersistenceFailure, err)
	}

	record, err := s.ledger.Append(ctx, userID, eventID, spots)
	if err != nil {
		s.compensate(userID, eventID, spots, err)
		return nil, errors.Join(ErrPersistenceFailure, err)
	}

	slog.Info("reservation committed",
		"reservation_id", record.ID,
		"user_id", userID,
		"event_id", eventID,
		"spots", spots,
	)
	return record, nil
}

// Cancel transitions a reservation to cancelled and returns its seats
// to the event pool. It takes the same per-user lock as Admit so a
// cancellation cannot interleave with an admission decision for the
// same user.
func (s *AdmissionService) Cancel(ctx context.Context, reservationID string) (*models.Reservation, error) {
	existing, err := s.ledger.Find(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if err := s.locks.Acquire(ctx, existing.UserID); err != nil {
		return nil, err
	}
	defer s.locks.Release(existing.UserID)

	record, transitioned, err := s.ledger.Cancel(ctx, reservationID)
	if err != nil {
		return nil, errors.Join(ErrPersistenceFailure, err)
	}
	if !transitioned {
		// Already cancelled; seats were returned by the call that won.
		return record, nil
	}

	releaseErr := s.inventory.Release(ctx, record.EventID, record.Spots)
	if releaseErr != nil && !errors.Is(releaseErr, ErrCapacityOverflow) && !errors.Is(releaseErr, ErrEventNotFound) {
		// The record is cancelled but the seats never came back; hand
		// the drift to reconciliation rather than failing the cancel.
		s.trackCompensation("failed")
		if s.reconcile != nil {
			task := ReconciliationTask{
				EventID: record.EventID,
				UserID:  record.UserID,
				Spots:   record.Spots,
				Reason:  "cancellation release failed: " + releaseErr.Error(),
			}
			if err := s.reconcile.Enqueue(ctx, task); err != nil {
				slog.Error("failed to record reconciliation task", "error", err)
			}
		}
	}

	return record, nil
}

// compensate returns seats reserved for an admission whose ledger
// append failed. It runs on a fresh context: the admission's own
// context may already be cancelled, and an un-compensated reservation
// is worse than a slightly late release.
func (s *AdmissionService) compensate(userID, eventID string, spots int, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Warn("ledger append failed, releasing reserved seats",
		"user_id", userID,
		"event_id", eventID,
		"spots", spots,
		"error", cause,
	)

	err := s.inventory.Release(ctx, eventID, spots)
	if err == nil || errors.Is(err, ErrCapacityOverflow) {
		// Overflow means the counter was clipped back to the original
		// allocation; the seats are accounted for either way.
		s.trackCompensation("released")
		return
	}

	s.trackCompensation("failed")
	slog.Error("seat release compensation failed, inventory is under-counting",
		"user_id", userID,
		"event_id", eventID,
		"spots", spots,
		"error", err,
	)

	if s.reconcile == nil {
		return
	}
	task := ReconciliationTask{
		EventID: eventID,
		UserID:  userID,
		Spots:   spots,
		Reason:  cause.Error(),
	}
	if err := s.reconcile.Enqueue(ctx, task); err != nil {
		slog.Error("failed to record reconciliation task", "error", err)
	}
}

func (s *AdmissionService) track(err error, duration time.Duration) {
	if s.monitor == nil {
		return
	}
	s.monitor.TrackAdmission(outcomeLabel(err), duration)
}

func (s *AdmissionService) trackCompensation(status string) {
	if s.monitor == nil {
		return
	}
	s.monitor.TrackCompensation(status)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrInvalidSpotCount):
		return "invalid_spot_count"
	case errors.Is(err, ErrGlobalCapacityExceeded):
		return "global_cap_exceeded"
	case errors.Is(err, ErrEventCapacityExceeded):
		return "event_cap_exceeded"
	case errors.Is(err, ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, ErrSeatsUnavailable):
		return "seats_unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "persistence_failure"
	}
}
