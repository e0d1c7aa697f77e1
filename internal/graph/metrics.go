package graph

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts Graph traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	retries       prometheus.Counter
	uploadedBytes prometheus.Counter
	chunks        prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onedrivefs",
			Subsystem: "graph",
			Name:      "requests_total",
			Help:      "Graph HTTP responses by method and status code.",
		}, []string{"method", "code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "onedrivefs",
			Subsystem: "graph",
			Name:      "retries_total",
			Help:      "Graph requests retried after a network error or retryable status.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "onedrivefs",
			Subsystem: "upload",
			Name:      "bytes_total",
			Help:      "Bytes accepted by upload session chunk PUTs.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "onedrivefs",
			Subsystem: "upload",
			Name:      "chunks_total",
			Help:      "Upload session chunks accepted.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.retries, m.uploadedBytes, m.chunks)
	}

	return m
}

func (m *Metrics) observeRequest(method string, code int) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}

	m.retries.Inc()
}

func (m *Metrics) observeChunk(length int64) {
	if m == nil {
		return
	}

	m.chunks.Inc()
	m.uploadedBytes.Add(float64(length))
}
