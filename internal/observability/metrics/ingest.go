package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics tracks pipeline outcomes: durable vs inline artifacts,
// rejections and hard failures, plus upload attempt volume.
type IngestMetrics struct {
	ingestTotal    *prometheus.CounterVec
	artifactBytes  *prometheus.HistogramVec
	uploadAttempts prometheus.Counter
}

func NewIngestMetrics(service string, registry *prometheus.Registry) *IngestMetrics {
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chantierdesk",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Ingestion outcomes: durable, inline, rejected, failed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"outcome"},
	)
	artifactBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chantierdesk",
			Subsystem: "ingest",
			Name:      "artifact_bytes",
			Help:      "Stored artifact size in bytes by outcome.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"outcome"},
	)
	uploadAttempts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chantierdesk",
			Subsystem: "ingest",
			Name:      "upload_attempts_total",
			Help:      "Durable store upload attempts, including retries.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(ingestTotal, artifactBytes, uploadAttempts)

	return &IngestMetrics{
		ingestTotal:    ingestTotal,
		artifactBytes:  artifactBytes,
		uploadAttempts: uploadAttempts,
	}
}

func (m *IngestMetrics) ObserveIngest(outcome string, sizeBytes int64) {
	m.ingestTotal.WithLabelValues(outcome).Inc()
	if sizeBytes > 0 {
		m.artifactBytes.WithLabelValues(outcome).Observe(float64(sizeBytes))
	}
}

func (m *IngestMetrics) ObserveUploadAttempt() {
	m.uploadAttempts.Inc()
}
