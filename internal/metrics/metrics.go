package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Recorder is what the rest of the proxy records through.
type Recorder interface {
	RecordSessionRefresh(success bool)
	RecordTorrentAdded(success bool)
	RecordFileDownloaded(bytes int64)
	RecordTorrentImported()
	RecordTorrentDeleted()
	// InstrumentRoundTripper counts Real-Debrid API calls made through rt.
	InstrumentRoundTripper(rt http.RoundTripper) http.RoundTripper
}

var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Real-Debrid API
	APIRequestsTotal     *prometheus.CounterVec
	APIRequestDuration   *prometheus.HistogramVec
	SessionRefreshTotal  *prometheus.CounterVec
	TorrentsAddedTotal   *prometheus.CounterVec
	TorrentsDeletedTotal prometheus.Counter

	// Downloads
	FilesDownloadedTotal  prometheus.Counter
	BytesDownloadedTotal  prometheus.Counter
	TorrentsImportedTotal prometheus.Counter

	// HTTP (Transmission RPC) requests
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		APIRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "godebrid_realdebrid_requests_total",
				Help: "Total number of Real-Debrid API requests",
			},
			[]string{"code", "method"},
		),
		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "godebrid_realdebrid_request_duration_seconds",
				Help:    "Real-Debrid API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code", "method"},
		),
		SessionRefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "godebrid_session_refresh_total",
				Help: "Total number of OAuth2 session refreshes",
			},
			[]string{"result"}, // success, failure
		),
		TorrentsAddedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "godebrid_torrents_added_total",
				Help: "Total number of torrents submitted to Real-Debrid",
			},
			[]string{"result"},
		),
		TorrentsDeletedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "godebrid_torrents_deleted_total",
				Help: "Total number of torrents removed from Real-Debrid",
			},
		),
		FilesDownloadedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "godebrid_files_downloaded_total",
				Help: "Total number of files downloaded",
			},
		),
		BytesDownloadedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "godebrid_downloaded_bytes_total",
				Help: "Total number of bytes downloaded",
			},
		),
		TorrentsImportedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "godebrid_torrents_imported_total",
				Help: "Total number of torrents imported by an arr service",
			},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "godebrid_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "godebrid_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "godebrid_http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}

func result(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}

func (m *Metrics) RecordSessionRefresh(success bool) {
	m.SessionRefreshTotal.WithLabelValues(result(success)).Inc()
}

func (m *Metrics) RecordTorrentAdded(success bool) {
	m.TorrentsAddedTotal.WithLabelValues(result(success)).Inc()
}

func (m *Metrics) RecordFileDownloaded(bytes int64) {
	m.FilesDownloadedTotal.Inc()
	if bytes > 0 {
		m.BytesDownloadedTotal.Add(float64(bytes))
	}
}

func (m *Metrics) RecordTorrentImported() {
	m.TorrentsImportedTotal.Inc()
}

func (m *Metrics) RecordTorrentDeleted() {
	m.TorrentsDeletedTotal.Inc()
}

func (m *Metrics) InstrumentRoundTripper(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(m.APIRequestsTotal,
		promhttp.InstrumentRoundTripperDuration(m.APIRequestDuration, rt))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
