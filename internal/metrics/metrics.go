// Package metrics exposes room and signaling counters to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "videorooms"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	rooms            prometheus.Gauge
	participants     prometheus.Gauge
	pipelines        prometheus.Counter
	streams          *prometheus.CounterVec
	queuedCandidates prometheus.Counter
	errors           *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms that currently hold a media pipeline.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "Participants joined across all rooms.",
		}),
		pipelines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_created_total",
			Help:      "Media pipelines created.",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_created_total",
			Help:      "Media streams created, by direction.",
		}, []string{"direction"}),
		queuedCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_queued_total",
			Help:      "ICE candidates buffered before their target stream existed.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_errors_total",
			Help:      "Signaling requests that failed, by request and error kind.",
		}, []string{"request", "kind"}),
	}
	reg.MustRegister(m.rooms, m.participants, m.pipelines, m.streams, m.queuedCandidates, m.errors)
	return m
}

func (m *Metrics) RoomOpened() {
	if m == nil {
		return
	}
	m.rooms.Inc()
	m.pipelines.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.rooms.Dec()
}

func (m *Metrics) ParticipantJoined() {
	if m == nil {
		return
	}
	m.participants.Inc()
}

func (m *Metrics) ParticipantLeft() {
	if m == nil {
		return
	}
	m.participants.Dec()
}

// StreamCreated counts a stream; direction is "outbound" or "inbound".
func (m *Metrics) StreamCreated(direction string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(direction).Inc()
}

func (m *Metrics) CandidateQueued() {
	if m == nil {
		return
	}
	m.queuedCandidates.Inc()
}

func (m *Metrics) RequestFailed(request, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(request, kind).Inc()
}
