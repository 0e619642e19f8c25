package services

import "errors"

// Admission outcomes and store failures. Capacity rejections are
// ordinary results, not faults; handlers translate them to 4xx
// responses while ErrPersistenceFailure is the only retryable 5xx.
var (
	ErrInvalidSpotCount       = errors.New("spot count must be 1 or 2")
	ErrEventNotFound          = errors.New("event not found")
	ErrInsufficientSeats      = errors.New("not enough available seats")
	ErrSeatsUnavailable       = errors.New("not enough available seats for this event")
	ErrGlobalCapacityExceeded = errors.New("user can't reserve more than the global spot cap across all events")
	ErrEventCapacityExceeded  = errors.New("user can't reserve more than the per-event spot cap")
	ErrPersistenceFailure     = errors.New("reservation could not be persisted")
	ErrReservationNotFound    = errors.New("reservation not found")

	// ErrCapacityOverflow means a release would have pushed an event's
	// available count above its original allocation. The counter is
	// clipped to the allocation before this is returned.
	ErrCapacityOverflow = errors.New("seat release exceeds original allocation")
)
