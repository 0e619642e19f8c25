package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reservation-system/config"
	"reservation-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInventory struct {
	mu         sync.Mutex
	available  map[string]int
	total      map[string]int
	releaseErr error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		available: make(map[string]int),
		total:     make(map[string]int),
	}
}

func (f *fakeInventory) setCapacity(eventID string, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[eventID] = total
	f.total[eventID] = total
}

func (f *fakeInventory) availability(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available[eventID]
}

func (f *fakeInventory) TryReserve(ctx context.Context, eventID string, spots int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	avail, ok := f.available[eventID]
	if !ok {
		return ErrEventNotFound
	}
	if avail < spots {
		return ErrInsufficientSeats
	}
	f.available[eventID] = avail - spots
	return nil
}

func (f *fakeInventory) Release(ctx context.Context, eventID string, spots int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.releaseErr != nil {
		return f.releaseErr
	}
	if _, ok := f.available[eventID]; !ok {
		return ErrEventNotFound
	}
	f.available[eventID] += spots
	if f.available[eventID] > f.total[eventID] {
		f.available[eventID] = f.total[eventID]
		return ErrCapacityOverflow
	}
	return nil
}

type fakeLedger struct {
	mu        sync.Mutex
	records   map[string]*models.Reservation
	nextID    int
	appendErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*models.Reservation)}
}

func (f *fakeLedger) seed(userID, eventID string, spots int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("resv-%d", f.nextID)
	f.records[id] = &models.Reservation{
		ID: id, UserID: userID, EventID: eventID, Spots: spots,
		Status: models.ReservationStatusActive, CreatedAt: time.Now(),
	}
}

func (f *fakeLedger) ActiveSpotsForUser(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.records {
		if r.UserID == userID && r.Active() {
			total += r.Spots
		}
	}
	return total, nil
}

func (f *fakeLedger) ActiveSpotsForUserEvent(ctx context.Context, userID, eventID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.records {
		if r.UserID == userID && r.EventID == eventID && r.Active() {
			total += r.Spots
		}
	}
	return total, nil
}

func (f *fakeLedger) Append(ctx context.Context, userID, eventID string, spots int) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	f.nextID++
	id := fmt.Sprintf("resv-%d", f.nextID)
	record := &models.Reservation{
		ID: id, UserID: userID, EventID: eventID, Spots: spots,
		Status: models.ReservationStatusActive, CreatedAt: time.Now(),
	}
	f.records[id] = record
	return record, nil
}

func (f *fakeLedger) Remove(ctx context.Context, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[reservationID]; !ok {
		return ErrReservationNotFound
	}
	delete(f.records, reservationID)
	return nil
}

func (f *fakeLedger) Find(ctx context.Context, reservationID string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[reservationID]
	if !ok {
		return nil, ErrReservationNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeLedger) Cancel(ctx context.Context, reservationID string) (*models.Reservation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[reservationID]
	if !ok {
		return nil, false, ErrReservationNotFound
	}
	if record.Status == models.ReservationStatusCancelled {
		clone := *record
		return &clone, false, nil
	}
	record.Status = models.ReservationStatusCancelled
	clone := *record
	return &clone, true, nil
}

func (f *fakeLedger) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeReconciler struct {
	mu    sync.Mutex
	tasks []ReconciliationTask
}

func (f *fakeReconciler) Enqueue(ctx context.Context, task ReconciliationTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func setupAdmissionService() (*AdmissionService, *fakeInventory, *fakeLedger, *fakeReconciler) {
	inventory := newFakeInventory()
	ledger := newFakeLedger()
	reconciler := &fakeReconciler{}
	cfg := &config.Config{
		MaxSpotsPerUser:  5,
		MaxSpotsPerEvent: 2,
		AdmissionTimeout: 5 * time.Second,
	}
	service := NewAdmissionService(inventory, ledger, reconciler, nil, cfg)
	return service, inventory, ledger, reconciler
}

func TestAdmit_Success(t *testing.T) {
	service, inventory, _, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 10)

	record, err := service.Admit(context.Background(), "user-1", "event-1", 2)

	require.NoError(t, err)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "event-1", record.EventID)
	assert.Equal(t, 2, record.Spots)
	assert.Equal(t, models.ReservationStatusActive, record.Status)
	assert.Equal(t, 8, inventory.availability("event-1"))
}

func TestAdmit_InvalidSpotCount(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 10)

	for _, spots := range []int{0, -1, 3, 100} {
		_, err := service.Admit(context.Background(), "user-1", "event-1", spots)
		assert.ErrorIs(t, err, ErrInvalidSpotCount, "spots=%d", spots)
	}

	assert.Equal(t, 10, inventory.availability("event-1"))
	assert.Equal(t, 0, ledger.recordCount())
}

func TestAdmit_EventNotFound_NoStateMutation(t *testing.T) {
	service, _, ledger, _ := setupAdmissionService()

	_, err := service.Admit(context.Background(), "user-1", "nonexistent-event", 1)

	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Equal(t, 0, ledger.recordCount())
}

func TestAdmit_EventCapExceeded(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	inventory.setCapacity("event-2", 100)
	ledger.seed("user-1", "event-2", 2)

	_, err := service.Admit(context.Background(), "user-1", "event-2", 1)

	assert.ErrorIs(t, err, ErrEventCapacityExceeded)
	assert.Equal(t, 100, inventory.availability("event-2"))
}

func TestAdmit_GlobalCapBoundary(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	inventory.setCapacity("event-3", 100)
	ledger.seed("user-1", "event-a", 2)
	ledger.seed("user-1", "event-b", 2)

	// 4 active spots: two more would cross the 5-spot cap...
	_, err := service.Admit(context.Background(), "user-1", "event-3", 2)
	assert.ErrorIs(t, err, ErrGlobalCapacityExceeded)

	// ...one more exactly fills it.
	record, err := service.Admit(context.Background(), "user-1", "event-3", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, record.Spots)

	total, err := ledger.ActiveSpotsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestAdmit_SeatsUnavailable_RejectionIsRepeatable(t *testing.T) {
	service, inventory, _, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 1)

	_, err := service.Admit(context.Background(), "user-1", "event-1", 2)
	assert.ErrorIs(t, err, ErrSeatsUnavailable)

	// Same request, no intervening state change: same rejection.
	_, err = service.Admit(context.Background(), "user-1", "event-1", 2)
	assert.ErrorIs(t, err, ErrSeatsUnavailable)
	assert.Equal(t, 1, inventory.availability("event-1"))
}

func TestAdmit_CompensatesWhenAppendFails(t *testing.T) {
	service, inventory, ledger, reconciler := setupAdmissionService()
	inventory.setCapacity("event-1", 10)
	ledger.appendErr = errors.New("storage fault")

	_, err := service.Admit(context.Background(), "user-1", "event-1", 2)

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Equal(t, 10, inventory.availability("event-1"), "seats must return to pre-attempt value")
	assert.Empty(t, reconciler.tasks)
}

func TestAdmit_ReconciliationTaskWhenCompensationFails(t *testing.T) {
	service, inventory, ledger, reconciler := setupAdmissionService()
	inventory.setCapacity("event-1", 10)
	ledger.appendErr = errors.New("storage fault")
	inventory.releaseErr = errors.New("redis down")

	_, err := service.Admit(context.Background(), "user-1", "event-1", 2)

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	require.Len(t, reconciler.tasks, 1)
	assert.Equal(t, "event-1", reconciler.tasks[0].EventID)
	assert.Equal(t, "user-1", reconciler.tasks[0].UserID)
	assert.Equal(t, 2, reconciler.tasks[0].Spots)
}

func TestAdmit_ConcurrentSameUser_NeverExceedsGlobalCap(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	for i := 0; i < 10; i++ {
		inventory.setCapacity(fmt.Sprintf("event-%d", i), 100)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			eventID := fmt.Sprintf("event-%d", i)
			service.Admit(context.Background(), "user-1", eventID, 2)
		}(i)
	}
	wg.Wait()

	total, err := ledger.ActiveSpotsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, total, 5)
	assert.Equal(t, 4, total, "two 2-spot admissions fit under the cap, a third does not")
}

func TestAdmit_ConcurrentSameUserEvent_NeverExceedsEventCap(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			service.Admit(context.Background(), "user-1", "event-1", 1)
		}()
	}
	wg.Wait()

	total, err := ledger.ActiveSpotsForUserEvent(context.Background(), "user-1", "event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 98, inventory.availability("event-1"))
}

func TestAdmit_TwoUsersRaceForLastSeat(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 1)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, userID := range []string{"user-a", "user-b"} {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := service.Admit(context.Background(), userID, "event-1", 1)
			results <- err
		}(userID)
	}
	wg.Wait()
	close(results)

	committed, rejected := 0, 0
	for err := range results {
		if err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, ErrSeatsUnavailable)
			rejected++
		}
	}

	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 0, inventory.availability("event-1"))
	assert.Equal(t, 1, ledger.recordCount())
}

func TestAdmit_ConcurrentLoad_SeatAccountingBalances(t *testing.T) {
	service, inventory, ledger, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 20)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			service.Admit(context.Background(), userID, "event-1", 1)
		}(i)
	}
	wg.Wait()

	committed := 0
	ledger.mu.Lock()
	for _, r := range ledger.records {
		if r.Active() {
			committed += r.Spots
		}
	}
	ledger.mu.Unlock()

	assert.LessOrEqual(t, committed, 20)
	assert.Equal(t, 20-committed, inventory.availability("event-1"))
}

func TestCancel_ReturnsSeats(t *testing.T) {
	service, inventory, _, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 10)

	record, err := service.Admit(context.Background(), "user-1", "event-1", 2)
	require.NoError(t, err)
	require.Equal(t, 8, inventory.availability("event-1"))

	cancelled, err := service.Cancel(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, cancelled.Status)
	assert.Equal(t, 10, inventory.availability("event-1"))

	// Cancelled spots no longer count toward the caps.
	total, err := service.ledger.ActiveSpotsForUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCancel_IsIdempotentOnSeats(t *testing.T) {
	service, inventory, _, _ := setupAdmissionService()
	inventory.setCapacity("event-1", 10)

	record, err := service.Admit(context.Background(), "user-1", "event-1", 2)
	require.NoError(t, err)

	_, err = service.Cancel(context.Background(), record.ID)
	require.NoError(t, err)
	_, err = service.Cancel(context.Background(), record.ID)
	require.NoError(t, err)

	assert.Equal(t, 10, inventory.availability("event-1"), "second cancel must not release twice")
}

func TestCancel_NotFound(t *testing.T) {
	service, _, _, _ := setupAdmissionService()

	_, err := service.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrReservationNotFound)
}
