package monitoring

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	admissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_outcomes_total",
			Help: "Admission attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	admissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_duration_seconds",
			Help:    "Time from request receipt to terminal admission state",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_compensations_total",
			Help: "Seat releases performed to undo a failed admission",
		},
		[]string{"status"},
	)

	reconciliationPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciliation_pending_total",
			Help: "Reconciliation tasks awaiting manual repair",
		},
	)

	availableSeats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_available_seats",
			Help: "Current available seats per event",
		},
		[]string{"event_id"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{redis: redisClient}
}

// Start runs the background gauge collector until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.collectMetrics(ctx)
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectSeatMetrics(ctx)
			m.collectReconciliationMetrics(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) collectSeatMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "event:capacity:*").Result()
	for _, key := range keys {
		eventID := strings.TrimPrefix(key, "event:capacity:")
		avail, err := m.redis.HGet(ctx, key, "available").Int()
		if err != nil {
			continue
		}
		availableSeats.WithLabelValues(eventID).Set(float64(avail))
	}
}

func (m *Monitor) collectReconciliationMetrics(ctx context.Context) {
	pending, err := m.redis.LLen(ctx, "reconciliation:pending").Result()
	if err != nil {
		return
	}
	reconciliationPending.Set(float64(pending))
}

// TrackAdmission records a terminal admission outcome and its latency.
func (m *Monitor) TrackAdmission(outcome string, duration time.Duration) {
	admissionOutcomes.WithLabelValues(outcome).Inc()
	admissionDuration.Observe(duration.Seconds())
}

// TrackCompensation records a compensating seat release attempt.
func (m *Monitor) TrackCompensation(status string) {
	compensations.WithLabelValues(status).Inc()
}
