package main

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the monitor, registered
// on their own registry so the monitor can be instantiated repeatedly
// (tests, embedded use) without collector name collisions.
type Metrics struct {
	registry *prometheus.Registry

	framesProcessed  prometheus.Counter
	framesDropped    prometheus.Counter
	sdrBytesRead     prometheus.Counter
	sdrReconnects    prometheus.Counter
	processingTime   prometheus.Histogram
	detectionsByType *prometheus.CounterVec
	eventsByKind     *prometheus.CounterVec
	eventsBroadcast  prometheus.Counter

	activeSubscribers  prometheus.Gauge
	subscriberMessages prometheus.Counter
	queueDrops         prometheus.Counter

	historySize prometheus.Gauge
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		framesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_frames_processed_total",
			Help: "IQ frames run through the analysis pipeline",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_frames_dropped_total",
			Help: "IQ frames discarded at the transport boundary under overload",
		}),
		sdrBytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_sdr_bytes_read_total",
			Help: "Raw IQ bytes read from the SDR stream",
		}),
		sdrReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_sdr_reconnects_total",
			Help: "Reconnections to the SDR daemon",
		}),
		processingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfmon_frame_processing_seconds",
			Help:    "Per-frame pipeline processing time",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		detectionsByType: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rfmon_detections_total",
			Help: "Classified automotive signals by type",
		}, []string{"signal_type"}),
		eventsByKind: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rfmon_events_total",
			Help: "Detection events by event type",
		}, []string{"event_type"}),
		eventsBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_events_broadcast_total",
			Help: "Detection events broadcast to subscribers",
		}),
		activeSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfmon_active_subscribers",
			Help: "Currently connected edge devices",
		}),
		subscriberMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_subscriber_messages_total",
			Help: "Messages received from edge devices",
		}),
		queueDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfmon_subscriber_queue_drops_total",
			Help: "Subscribers dropped because their write queue overflowed",
		}),
		historySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfmon_signal_history_size",
			Help: "Detections currently retained in the signal history",
		}),
	}
}

// ServeMetrics exposes /metrics on the configured listen address. The
// endpoint is observability-only and disabled by default.
func ServeMetrics(cfg PrometheusConfig, metrics *Metrics) {
	if !cfg.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Prometheus metrics available on http://%s/metrics", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: metrics server failed: %v", err)
		}
	}()
}
