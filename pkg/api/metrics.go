package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uhyunpark/deeppool/pkg/storage"
)

// Metrics is the node's Prometheus collector set. Each server owns its own
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	events       *prometheus.CounterVec
	bookOrders   *prometheus.GaugeVec
	epoch        prometheus.Gauge
	wsClients    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deeppool_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deeppool_http_request_duration_seconds",
				Help:    "Histogram of response latency (seconds) for HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deeppool_signed_requests_total",
				Help: "Signed requests by type and outcome",
			},
			[]string{"type", "result"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deeppool_events_total",
				Help: "Committed pool events by kind",
			},
			[]string{"pool", "kind"},
		),
		bookOrders: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deeppool_book_orders",
				Help: "Resting orders per pool side",
			},
			[]string{"pool", "side"},
		),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeppool_epoch",
			Help: "Current epoch number",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deeppool_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.requests, m.events,
		m.bookOrders, m.epoch, m.wsClients,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(typ string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.requests.WithLabelValues(typ, result).Inc()
}

func (m *Metrics) observeEvents(records []storage.EventRecord) {
	for _, rec := range records {
		m.events.WithLabelValues(rec.Pool, rec.Kind).Inc()
	}
}

func (m *Metrics) setBook(pool string, bids, asks int) {
	m.bookOrders.WithLabelValues(pool, "bid").Set(float64(bids))
	m.bookOrders.WithLabelValues(pool, "ask").Set(float64(asks))
}

// middleware records count and latency per route template.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over wrapped connections.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
