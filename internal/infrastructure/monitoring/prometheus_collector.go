package monitoring

import (
	"time"

	"avatarcast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector holds every metric the service exports. A nil collector is
// valid and records nothing, which keeps component tests free of registries.
type PrometheusCollector struct {
	// Transport
	sessionsActive    prometheus.Gauge
	negotiationsTotal *prometheus.CounterVec
	samplesSent       *prometheus.CounterVec
	samplesDropped    *prometheus.CounterVec
	encodeErrors      *prometheus.CounterVec
	pliReceived       prometheus.Counter

	// Broadcast hub
	hubConnections   prometheus.Gauge
	eventsBroadcast  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	connectionsEvict prometheus.Counter

	// Producer
	generationDuration  prometheus.Histogram
	generationsTotal    *prometheus.CounterVec
	preparationDuration prometheus.Histogram
	avatarCacheSize     prometheus.Gauge

	// Ingestion
	chatMessages *prometheus.CounterVec
}

// NewPrometheusCollector registers the metrics with reg, or with the default
// registerer when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "avatarcast_sessions_active",
			Help: "Number of realtime sessions with a live peer connection",
		}),

		negotiationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_negotiations_total",
			Help: "Offer/answer negotiations by result",
		}, []string{"result"}),

		samplesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_samples_sent_total",
			Help: "Encoded media samples written to tracks",
		}, []string{"kind"}),

		samplesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_samples_dropped_total",
			Help: "Media items dropped because a queue was full",
		}, []string{"kind"}),

		encodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_encode_errors_total",
			Help: "Media items that failed to encode",
		}, []string{"kind"}),

		pliReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "avatarcast_rtcp_pli_total",
			Help: "Picture loss indications received from viewers",
		}),

		hubConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "avatarcast_hub_connections",
			Help: "Registered event subscribers",
		}),

		eventsBroadcast: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_events_broadcast_total",
			Help: "Events fanned out to subscribers",
		}, []string{"type"}),

		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "avatarcast_events_dropped_total",
			Help: "Submitted events dropped because the hub was saturated",
		}),

		connectionsEvict: f.NewCounter(prometheus.CounterOpts{
			Name: "avatarcast_hub_evictions_total",
			Help: "Subscribers removed after a failed send",
		}),

		generationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "avatarcast_generation_duration_seconds",
			Help:    "Wall time of one producer run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		generationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_generations_total",
			Help: "Producer runs by result",
		}, []string{"result"}),

		preparationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "avatarcast_avatar_preparation_duration_seconds",
			Help:    "Duration of avatar preparation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		avatarCacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "avatarcast_avatar_cache_size",
			Help: "Prepared avatars held in memory",
		}),

		chatMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarcast_chat_messages_total",
			Help: "Chat messages ingested from external platforms",
		}, []string{"platform"}),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (p *PrometheusCollector) RecordSessionOpened() {
	if p == nil {
		return
	}
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) RecordSessionClosed() {
	if p == nil {
		return
	}
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) RecordNegotiation(err error) {
	if p == nil {
		return
	}
	p.negotiationsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (p *PrometheusCollector) RecordSampleSent(kind string) {
	if p == nil {
		return
	}
	p.samplesSent.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordSampleDropped(kind string) {
	if p == nil {
		return
	}
	p.samplesDropped.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordEncodeError(kind string) {
	if p == nil {
		return
	}
	p.encodeErrors.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordPLI() {
	if p == nil {
		return
	}
	p.pliReceived.Inc()
}

func (p *PrometheusCollector) SetHubConnections(n int) {
	if p == nil {
		return
	}
	p.hubConnections.Set(float64(n))
}

func (p *PrometheusCollector) RecordEventBroadcast(t domain.EventType) {
	if p == nil {
		return
	}
	p.eventsBroadcast.WithLabelValues(string(t)).Inc()
}

func (p *PrometheusCollector) RecordEventDropped() {
	if p == nil {
		return
	}
	p.eventsDropped.Inc()
}

func (p *PrometheusCollector) RecordConnectionEvicted() {
	if p == nil {
		return
	}
	p.connectionsEvict.Inc()
}

// ObserveGeneration records one finished producer run.
func (p *PrometheusCollector) ObserveGeneration(d time.Duration, err error) {
	if p == nil {
		return
	}
	p.generationDuration.Observe(d.Seconds())
	p.generationsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (p *PrometheusCollector) ObservePreparation(d time.Duration) {
	if p == nil {
		return
	}
	p.preparationDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) SetAvatarCacheSize(n int) {
	if p == nil {
		return
	}
	p.avatarCacheSize.Set(float64(n))
}

func (p *PrometheusCollector) IncChatMessages(platform domain.Platform, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.chatMessages.WithLabelValues(string(platform)).Add(float64(n))
}
