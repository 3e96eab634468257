// Package metrics exports engine and event stream counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NicolaBuomp/fantabid/go/internal/auction"
)

const namespace = "fantabid"

// PrometheusMetrics implements auction.Metrics and the stream publisher's
// collector on a caller-owned registry.
type PrometheusMetrics struct {
	bids            *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	resolutionTime  *prometheus.HistogramVec
	adminActions    *prometheus.CounterVec
	adminSilences   prometheus.Counter
	activeRooms     prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	publishAttempts *prometheus.CounterVec
}

var _ auction.Metrics = (*PrometheusMetrics)(nil)

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bids received, by result code.",
		}, []string{"code"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Expired items resolved, by outcome.",
		}, []string{"outcome"}),
		resolutionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "Time spent resolving an expired item.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		adminActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_actions_total",
			Help:      "Admin commands, by action and result code.",
		}, []string{"action", "code"}),
		adminSilences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_silence_pauses_total",
			Help:      "Auctions paused because the admin went silent.",
		}),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms currently held in memory.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Room events published to the stream, by type and status.",
		}, []string{"event_type", "status"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_publish_duration_seconds",
			Help:      "Time spent publishing a room event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_publish_attempts_total",
			Help:      "Publish attempts, by type, attempt number and status.",
		}, []string{"event_type", "attempt", "status"}),
	}

	reg.MustRegister(
		m.bids,
		m.resolutions,
		m.resolutionTime,
		m.adminActions,
		m.adminSilences,
		m.activeRooms,
		m.eventsPublished,
		m.publishDuration,
		m.publishAttempts,
	)
	return m
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *PrometheusMetrics) RecordBid(code string) {
	m.bids.WithLabelValues(code).Inc()
}

func (m *PrometheusMetrics) RecordResolution(outcome string, duration time.Duration) {
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolutionTime.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordAdminAction(action string, code string) {
	m.adminActions.WithLabelValues(action, code).Inc()
}

func (m *PrometheusMetrics) RecordAdminSilence() {
	m.adminSilences.Inc()
}

func (m *PrometheusMetrics) SetActiveRooms(n int) {
	m.activeRooms.Set(float64(n))
}

func (m *PrometheusMetrics) RecordEventPublished(eventType string, success bool, duration time.Duration) {
	m.eventsPublished.WithLabelValues(eventType, status(success)).Inc()
	m.publishDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	m.publishAttempts.WithLabelValues(eventType, strconv.Itoa(attempt), status(success)).Inc()
}
