package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// InventoryService owns the authoritative available-seat count for
// each event. Counts live in a Redis hash per event so the check and
// the decrement happen in one script execution; callers on different
// events never contend on anything in-process.
type InventoryService struct {
	Redis *redis.Client
}

func NewInventoryService(redisClient *redis.Client) *InventoryService {
	return &InventoryService{Redis: redisClient}
}

func capacityKey(eventID string) string {
	return fmt.Sprintf("event:capacity:%s", eventID)
}

// Script results: new available count on success, -1 when there are
// not enough seats, -2 when the event key does not exist.
const reserveSeatsScript = `
local avail = redis.call('HGET', KEYS[1], 'available')
if avail == false then
	return -2
end
local spots = tonumber(ARGV[1])
if tonumber(avail) < spots then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'available', -spots)
`

// Script results: new available count on success, -2 when the event
// key does not exist, -3 when the increment would exceed the original
// allocation (the count is clipped to the allocation first).
const releaseSeatsScript = `
local data = redis.call('HMGET', KEYS[1], 'available', 'total')
if data[1] == false then
	return -2
end
local avail = tonumber(data[1])
local total = tonumber(data[2])
local spots = tonumber(ARGV[1])
if avail + spots > total then
	redis.call('HSET', KEYS[1], 'available', total)
	return -3
end
return redis.call('HINCRBY', KEYS[1], 'available', spots)
`

// TryReserve atomically checks and decrements the event's available
// seats. ErrInsufficientSeats is a normal negative outcome, not a
// fault.
func (s *InventoryService) TryReserve(ctx context.Context, eventID string, spots int) error {
	res, err := s.Redis.Eval(ctx, reserveSeatsScript, []string{capacityKey(eventID)}, spots).Int64()
	if err != nil {
		return fmt.Errorf("reserve seats for event %s: %w", eventID, err)
	}

	switch {
	case res == -2:
		return ErrEventNotFound
	case res == -1:
		return ErrInsufficientSeats
	}
	return nil
}

// Release returns spots to the event's pool, used for compensation and
// cancellation. The count never goes above the original allocation; if
// it would, the counter is clipped and ErrCapacityOverflow surfaced.
func (s *InventoryService) Release(ctx context.Context, eventID string, spots int) error {
	res, err := s.Redis.Eval(ctx, releaseSeatsScript, []string{capacityKey(eventID)}, spots).Int64()
	if err != nil {
		return fmt.Errorf("release seats for event %s: %w", eventID, err)
	}

	switch {
	case res == -2:
		return ErrEventNotFound
	case res == -3:
		slog.Error("seat release clipped to original allocation",
			"event_id", eventID,
			"spots", spots,
		)
		return ErrCapacityOverflow
	}
	return nil
}

// SetCapacity installs or resets an event's counters. Used by the boot
// sync and the event catalog hooks.
func (s *InventoryService) SetCapacity(ctx context.Context, eventID string, total, available int) error {
	if available < 0 {
		available = 0
	}
	if available > total {
		available = total
	}

	if err := s.Redis.HSet(ctx, capacityKey(eventID), "available", available, "total", total).Err(); err != nil {
		return fmt.Errorf("set capacity for event %s: %w", eventID, err)
	}
	return nil
}

// Availability reads the current available count for an event.
func (s *InventoryService) Availability(ctx context.Context, eventID string) (int, error) {
	avail, err := s.Redis.HGet(ctx, capacityKey(eventID), "available").Int()
	if err == redis.Nil {
		return 0, ErrEventNotFound
	} else if err != nil {
		return 0, fmt.Errorf("get availability for event %s: %w", eventID, err)
	}
	return avail, nil
}

// RemoveEvent drops an event's counters after catalog deletion.
func (s *InventoryService) RemoveEvent(ctx context.Context, eventID string) error {
	return s.Redis.Del(ctx, capacityKey(eventID)).Err()
}
