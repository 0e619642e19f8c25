package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"reservation-system/models"
	"reservation-system/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const reservationsCollection = "reservations"

const (
	maxPageLimit     = 100
	defaultPageLimit = 10
)

// LedgerService is the append-mostly store of reservation records and
// the source of truth for how many spots a user currently holds.
// Appends are not deduplicated here; the admission path serializes
// per-user submissions instead.
type LedgerService struct {
	app core.App
}

func NewLedgerService(app core.App) *LedgerService {
	return &LedgerService{app: app}
}

// ActiveSpotsForUser sums spots over the user's active reservations.
// Callers deciding an admission must hold the user's lock so the value
// cannot go stale between read and write.
func (s *LedgerService) ActiveSpotsForUser(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.app.DB().NewQuery(
		"SELECT COALESCE(SUM(spots), 0) FROM reservations WHERE user_id = {:userId} AND status != {:cancelled}",
	).Bind(dbx.Params{
		"userId":    userID,
		"cancelled": models.ReservationStatusCancelled,
	}).WithContext(ctx).Row(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active spots for user %s: %w", userID, err)
	}
	return total, nil
}

// ActiveSpotsForUserEvent is ActiveSpotsForUser scoped to one event.
func (s *LedgerService) ActiveSpotsForUserEvent(ctx context.Context, userID, eventID string) (int, error) {
	var total int
	err := s.app.DB().NewQuery(
		"SELECT COALESCE(SUM(spots), 0) FROM reservations WHERE user_id = {:userId} AND event_id = {:eventId} AND status != {:cancelled}",
	).Bind(dbx.Params{
		"userId":    userID,
		"eventId":   eventID,
		"cancelled": models.ReservationStatusCancelled,
	}).WithContext(ctx).Row(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active spots for user %s event %s: %w", userID, eventID, err)
	}
	return total, nil
}

// ActiveSpotsForEvent sums committed spots across all users of one
// event, used to rebuild seat counters on startup.
func (s *LedgerService) ActiveSpotsForEvent(ctx context.Context, eventID string) (int, error) {
	var total int
	err := s.app.DB().NewQuery(
		"SELECT COALESCE(SUM(spots), 0) FROM reservations WHERE event_id = {:eventId} AND status != {:cancelled}",
	).Bind(dbx.Params{
		"eventId":   eventID,
		"cancelled": models.ReservationStatusCancelled,
	}).WithContext(ctx).Row(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active spots for event %s: %w", eventID, err)
	}
	return total, nil
}

// Append creates a new active reservation record. Existing records are
// never mutated here.
func (s *LedgerService) Append(ctx context.Context, userID, eventID string, spots int) (*models.Reservation, error) {
	collection, err := s.app.FindCollectionByNameOrId(reservationsCollection)
	if err != nil {
		return nil, fmt.Errorf("find reservations collection: %w", err)
	}

	reference, err := utils.GenerateCode(4)
	if err != nil {
		return nil, fmt.Errorf("generate reservation reference: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("user_id", userID)
	record.Set("event_id", eventID)
	record.Set("spots", spots)
	record.Set("status", models.ReservationStatusActive)
	record.Set("reference", reference)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("save reservation: %w", err)
	}

	return recordToReservation(record), nil
}

// Remove deletes a reservation outright. Only the compensation path
// uses this, to undo an append whose surrounding admission failed.
func (s *LedgerService) Remove(ctx context.Context, reservationID string) error {
	record, err := s.app.FindRecordById(reservationsCollection, reservationID)
	if err != nil {
		return ErrReservationNotFound
	}
	if err := s.app.Delete(record); err != nil {
		return fmt.Errorf("delete reservation %s: %w", reservationID, err)
	}
	return nil
}

// Find loads a single reservation by id.
func (s *LedgerService) Find(ctx context.Context, reservationID string) (*models.Reservation, error) {
	record, err := s.app.FindRecordById(reservationsCollection, reservationID)
	if err != nil {
		return nil, ErrReservationNotFound
	}
	return recordToReservation(record), nil
}

// Cancel flips a reservation to cancelled so its spots stop counting
// toward the user's totals. The second return value reports whether
// this call performed the transition; seats go back through the
// inventory only in that case.
func (s *LedgerService) Cancel(ctx context.Context, reservationID string) (*models.Reservation, bool, error) {
	record, err := s.app.FindRecordById(reservationsCollection, reservationID)
	if err != nil {
		return nil, false, ErrReservationNotFound
	}

	if record.GetString("status") == models.ReservationStatusCancelled {
		return recordToReservation(record), false, nil
	}

	record.Set("status", models.ReservationStatusCancelled)
	if err := s.app.Save(record); err != nil {
		return nil, false, fmt.Errorf("cancel reservation %s: %w", reservationID, err)
	}

	slog.Info("reservation cancelled",
		"reservation_id", reservationID,
		"user_id", record.GetString("user_id"),
		"event_id", record.GetString("event_id"),
		"spots", record.GetInt("spots"),
	)
	return recordToReservation(record), true, nil
}

// UserReservations returns one page of the user's reservations, newest
// first by default. Carries no invariant logic.
func (s *LedgerService) UserReservations(ctx context.Context, userID string, page, limit int, sort string) (*models.ReservationPage, error) {
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit)
	sort = normalizeSort(sort)

	records, err := s.app.FindRecordsByFilter(
		reservationsCollection,
		"user_id = {:userId}",
		sort,
		limit,
		(page-1)*limit,
		dbx.Params{"userId": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations for user %s: %w", userID, err)
	}

	var total int
	err = s.app.DB().NewQuery(
		"SELECT COUNT(*) FROM reservations WHERE user_id = {:userId}",
	).Bind(dbx.Params{"userId": userID}).WithContext(ctx).Row(&total)
	if err != nil {
		return nil, fmt.Errorf("count reservations for user %s: %w", userID, err)
	}

	items := make([]*models.Reservation, len(records))
	for i, record := range records {
		items[i] = recordToReservation(record)
	}

	return &models.ReservationPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

// normalizeSort whitelists sortable fields; anything else falls back
// to newest first.
func normalizeSort(sort string) string {
	switch sort {
	case "created", "-created", "spots", "-spots", "event_id", "-event_id":
		return sort
	default:
		return "-created"
	}
}

func recordToReservation(record *core.Record) *models.Reservation {
	return &models.Reservation{
		ID:        record.Id,
		UserID:    record.GetString("user_id"),
		EventID:   record.GetString("event_id"),
		Spots:     record.GetInt("spots"),
		Status:    record.GetString("status"),
		Reference: record.GetString("reference"),
		CreatedAt: record.GetDateTime("created").Time(),
	}
}
