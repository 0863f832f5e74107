package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/armon/go-metrics"
	prometheussink "github.com/armon/go-metrics/prometheus"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsContext struct {
	inmem    *metrics.InmemSink
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// newMetricsContext fans metrics out to an in-memory sink, a prometheus
// registry and, when an address is given, statsd
func newMetricsContext(service, statsd string) (*metricsContext, error) {
	inmem := metrics.NewInmemSink(10*time.Second, time.Minute)
	registry := prometheus.NewRegistry()
	promSink, err := prometheussink.NewPrometheusSinkFrom(prometheussink.PrometheusOpts{
		Expiration: time.Hour,
		Registerer: registry,
	})
	if err != nil {
		return nil, err
	}
	fanout := metrics.FanoutSink{inmem, promSink}

	if statsd != "" {
		ss, err := metrics.NewStatsdSink(statsd)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, ss)
	}
	conf := metrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.EnableRuntimeMetrics = false
	m, err := metrics.New(conf, fanout)
	if err != nil {
		return nil, err
	}

	return &metricsContext{
		inmem:    inmem,
		metrics:  m,
		registry: registry,
	}, nil
}

// HandlerFunc times fn and counts its responses under name
func (m *metricsContext) HandlerFunc(fn http.HandlerFunc, name string) http.Handler {
	return m.HandlerWrapper(name)(fn)
}

// HandlerWrapper is HandlerFunc as alice middleware
func (m *metricsContext) HandlerWrapper(name string) alice.Constructor {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			h.ServeHTTP(sw, r)
			m.metrics.MeasureSince([]string{name, "time"}, start)
			m.metrics.IncrCounter([]string{name, "status", strconv.Itoa(sw.status)}, 1)
		})
	}
}

// VMOpCounter is alice middleware counting VM operations by outcome. An
// empty op takes the operation from the action route variable; actions the
// API does not know are counted as "unknown".
func (m *metricsContext) VMOpCounter(op string) alice.Constructor {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			h.ServeHTTP(sw, r)

			name := op
			if name == "" {
				switch name = mux.Vars(r)["action"]; name {
				case "start", "stop", "suspend", "reload":
				default:
					name = "unknown"
				}
			}
			outcome := "ok"
			if sw.status >= http.StatusBadRequest {
				outcome = "error"
				if sw.status < http.StatusInternalServerError {
					outcome = "rejected"
				}
			}
			m.metrics.IncrCounter([]string{"vm_ops", name, outcome}, 1)
		})
	}
}

// PrometheusHandler serves the prometheus exposition of the registry
func (m *metricsContext) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
