// ABOUTME: Prometheus metrics for encoder sessions and the stream server
// ABOUTME: All recording helpers are safe to call on a nil *Metrics
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcoder
type Metrics struct {
	// Encoder session metrics
	ChunksProduced prometheus.Counter
	BytesProduced  prometheus.Counter
	ChunkSize      prometheus.Histogram
	EncodeErrors   prometheus.Counter
	Segments       prometheus.Counter
	Purges         prometheus.Counter
	Flushes        prometheus.Counter
	AttachFailures *prometheus.CounterVec
	OutputQueue    prometheus.Gauge

	// Server metrics
	Listeners      *prometheus.GaugeVec
	DroppedChunks  prometheus.Counter
	BytesDelivered prometheus.Counter
}

// New creates the metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChunksProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_chunks_total",
			Help: "Total number of encoded chunks queued for consumers",
		}),
		BytesProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_bytes_total",
			Help: "Total number of encoded bytes queued for consumers",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcode_chunk_size_bytes",
			Help:    "Size of encoded chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(16, 2, 12), // 16B to 32KB
		}),
		EncodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_encode_errors_total",
			Help: "Total number of buffers or packets dropped after an encode or mux error",
		}),
		Segments: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_segments_total",
			Help: "Total number of completed stream segments",
		}),
		Purges: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_purges_total",
			Help: "Total number of item purges",
		}),
		Flushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_flushes_total",
			Help: "Total number of output flushes",
		}),
		AttachFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transcode_attach_failures_total",
			Help: "Total number of failed encoder attaches by stage",
		}, []string{"stage"}),
		OutputQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "transcode_output_queue_length",
			Help: "Current number of entries in the encoder output queue",
		}),
		Listeners: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transcode_listeners",
			Help: "Current number of connected listeners by transport",
		}, []string{"transport"}),
		DroppedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_dropped_chunks_total",
			Help: "Total number of chunks dropped for slow listeners",
		}),
		BytesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "transcode_delivered_bytes_total",
			Help: "Total number of bytes written to listeners",
		}),
	}
}

// RecordChunk records one chunk handed to the output queue
func (m *Metrics) RecordChunk(size int) {
	if m == nil {
		return
	}
	m.ChunksProduced.Inc()
	m.BytesProduced.Add(float64(size))
	m.ChunkSize.Observe(float64(size))
}

// RecordEncodeError records a dropped buffer or packet
func (m *Metrics) RecordEncodeError() {
	if m == nil {
		return
	}
	m.EncodeErrors.Inc()
}

// RecordSegment records a completed segment
func (m *Metrics) RecordSegment() {
	if m == nil {
		return
	}
	m.Segments.Inc()
}

// RecordPurge records an item purge
func (m *Metrics) RecordPurge() {
	if m == nil {
		return
	}
	m.Purges.Inc()
}

// RecordFlush records an output flush
func (m *Metrics) RecordFlush() {
	if m == nil {
		return
	}
	m.Flushes.Inc()
}

// RecordAttachFailure records a failed attach at stage
func (m *Metrics) RecordAttachFailure(stage string) {
	if m == nil {
		return
	}
	m.AttachFailures.WithLabelValues(stage).Inc()
}

// SetOutputQueue sets the output queue length
func (m *Metrics) SetOutputQueue(n int) {
	if m == nil {
		return
	}
	m.OutputQueue.Set(float64(n))
}

// ListenerConnected records a new listener on transport ("http" or "ws")
func (m *Metrics) ListenerConnected(transport string) {
	if m == nil {
		return
	}
	m.Listeners.WithLabelValues(transport).Inc()
}

// ListenerDisconnected records a listener leaving transport
func (m *Metrics) ListenerDisconnected(transport string) {
	if m == nil {
		return
	}
	m.Listeners.WithLabelValues(transport).Dec()
}

// RecordDropped records a chunk dropped for a slow listener
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.DroppedChunks.Inc()
}

// RecordDelivered records bytes written to a listener
func (m *Metrics) RecordDelivered(size int) {
	if m == nil {
		return
	}
	m.BytesDelivered.Add(float64(size))
}
