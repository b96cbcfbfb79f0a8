package monitoring

import (
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var allStates = []domain.ConnectionState{
	domain.StateDisconnected,
	domain.StateConnecting,
	domain.StateAuthenticating,
	domain.StateLive,
	domain.StateReconnecting,
	domain.StateClosed,
}

type PrometheusCollector struct {
	// Counters
	stateTransitions *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	framesSent       *prometheus.CounterVec
	reconnectsTotal  prometheus.Counter

	// Histograms
	reconnectDelay prometheus.Histogram
	timeToLive     prometheus.Histogram

	// Session gauges
	connectionState *prometheus.GaugeVec
	rosterSize      prometheus.Gauge
	transcriptSize  prometheus.Gauge
}

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the session metrics with reg, or with the
// default registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	p := &PrometheusCollector{
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesession_state_transitions_total",
			Help: "Connection state transitions",
		}, []string{"from", "to"}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesession_frames_received_total",
			Help: "Inbound frames decoded, by type",
		}, []string{"type"}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesession_frames_dropped_total",
			Help: "Inbound frames dropped, by reason",
		}, []string{"reason"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livesession_frames_sent_total",
			Help: "Outbound command frames written, by type",
		}, []string{"type"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "livesession_reconnects_scheduled_total",
			Help: "Reconnection attempts scheduled after a lost transport",
		}),

		reconnectDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livesession_reconnect_delay_seconds",
			Help:    "Backoff delay before each reconnection attempt",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
		}),

		timeToLive: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "livesession_time_to_live_seconds",
			Help:    "Time from the start of a connection attempt to the Live state",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livesession_connection_state",
			Help: "1 for the current connection state, 0 otherwise",
		}, []string{"state"}),

		rosterSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesession_roster_size",
			Help: "Participants in the session roster",
		}),

		transcriptSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livesession_transcript_size",
			Help: "Chat messages kept in the transcript",
		}),
	}

	p.setState(domain.StateDisconnected)
	return p
}

func (p *PrometheusCollector) RecordStateTransition(from, to domain.ConnectionState) {
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	p.setState(to)
}

func (p *PrometheusCollector) setState(current domain.ConnectionState) {
	for _, s := range allStates {
		value := 0.0
		if s == current {
			value = 1
		}
		p.connectionState.WithLabelValues(s.String()).Set(value)
	}
}

func (p *PrometheusCollector) RecordFrameReceived(kind domain.EventKind) {
	p.framesReceived.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordFrameDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordFrameSent(frameType string) {
	p.framesSent.WithLabelValues(frameType).Inc()
}

func (p *PrometheusCollector) RecordReconnectScheduled(delay time.Duration) {
	p.reconnectsTotal.Inc()
	p.reconnectDelay.Observe(delay.Seconds())
}

func (p *PrometheusCollector) RecordTimeToLive(d time.Duration) {
	p.timeToLive.Observe(d.Seconds())
}

func (p *PrometheusCollector) SetRosterSize(n int) {
	p.rosterSize.Set(float64(n))
}

func (p *PrometheusCollector) SetTranscriptSize(n int) {
	p.transcriptSize.Set(float64(n))
}
