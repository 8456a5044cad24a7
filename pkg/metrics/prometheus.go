// Package metrics はgeology-engineのPrometheusメトリクスを提供する。
//
// Manager は専用のレジストリを持ち、複数のManagerを同一プロセス（テスト等）で
// 生成しても登録が衝突しない。nilのManagerに対する記録は何もしない。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace はメトリクス名の既定の名前空間。
const DefaultNamespace = "geology_engine"

// Manager はサービスのメトリクスを管理する。
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authFailures        *prometheus.CounterVec
	fits                *prometheus.CounterVec
	fitDuration         *prometheus.HistogramVec
	fitSamples          prometheus.Histogram
	tempFilesActive     prometheus.Gauge
	tempFileCleanupErrs prometheus.Counter
}

// NewManager は新しいメトリクスManagerを生成する。
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: DefaultNamespace,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})
	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	m.authFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "auth",
		Name:      "failures_total",
		Help:      "Rejected requests at the auth gate by reason.",
	}, []string{"reason"})
	m.fits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "rbf",
		Name:      "fits_total",
		Help:      "RBF fits by operation and outcome.",
	}, []string{"operation", "outcome"})
	m.fitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "rbf",
		Name:      "fit_duration_seconds",
		Help:      "Time spent fitting and evaluating RBF models.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	m.fitSamples = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "rbf",
		Name:      "fit_samples",
		Help:      "Number of training samples per fit.",
		Buckets:   prometheus.ExponentialBuckets(2, 4, 8),
	})
	m.tempFilesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "rbf",
		Name:      "temp_files_active",
		Help:      "Temporary model files currently on disk.",
	})
	m.tempFileCleanupErrs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "rbf",
		Name:      "temp_file_cleanup_failures_total",
		Help:      "Temporary model files that could not be removed.",
	})

	m.registry.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.authFailures,
		m.fits,
		m.fitDuration,
		m.fitSamples,
		m.tempFilesActive,
		m.tempFileCleanupErrs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry はメトリクスのレジストリを返す。
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest はHTTPリクエストの件数とレイテンシを記録する。
func (m *Manager) ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// RecordAuthFailure は認証ゲートでの拒否を理由ごとに記録する。
func (m *Manager) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// ObserveFit はフィットの結果と所要時間を記録する。
func (m *Manager) ObserveFit(operation, outcome string, samples int, d time.Duration) {
	if m == nil {
		return
	}
	m.fits.WithLabelValues(operation, outcome).Inc()
	m.fitDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.fitSamples.Observe(float64(samples))
}

// TempFileCreated は一時ファイルの作成を記録する。
func (m *Manager) TempFileCreated() {
	if m == nil {
		return
	}
	m.tempFilesActive.Inc()
}

// TempFileRemoved は一時ファイルの削除を記録する。
func (m *Manager) TempFileRemoved() {
	if m == nil {
		return
	}
	m.tempFilesActive.Dec()
}

// RecordTempFileCleanupFailure は一時ファイルの削除失敗を記録する。
func (m *Manager) RecordTempFileCleanupFailure() {
	if m == nil {
		return
	}
	m.tempFileCleanupErrs.Inc()
}
