package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsmono/agentproxy/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one agent. Each instance
// owns its registry so several can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	modelCalls     *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	artifacts      prometheus.Counter
}

// New registers the agent collectors plus Go runtime and process collectors
func New(agent string) *Metrics {
	labels := prometheus.Labels{"agent": agent}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "agent_http_requests_total",
			Help:        "HTTP requests served, by route and status.",
			ConstLabels: labels,
		}, []string{"route", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "agent_http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: labels,
			Buckets:     []float64{.005, .05, .25, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"route"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "agent_model_calls_total",
			Help:        "Calls to the model server, by task and outcome.",
			ConstLabels: labels,
		}, []string{"task", "model", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "agent_model_call_duration_seconds",
			Help:        "Model server call latency.",
			ConstLabels: labels,
			Buckets:     []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"task"}),
		artifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "agent_artifacts_saved_total",
			Help:        "Responses saved to the context directory.",
			ConstLabels: labels,
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestLatency,
		m.modelCalls,
		m.modelLatency,
		m.artifacts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware counts and times every request
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObserveModelCall records the outcome of one model server call
func (m *Metrics) ObserveModelCall(task models.TaskKind, res models.GenerationResult) {
	outcome := "success"
	if !res.Success {
		outcome = string(res.Failure)
		if outcome == "" {
			outcome = "failure"
		}
	}
	m.modelCalls.WithLabelValues(string(task), res.Model, outcome).Inc()
	m.modelLatency.WithLabelValues(string(task)).Observe(res.Latency.Seconds())
}

// ArtifactSaved counts one saved artifact
func (m *Metrics) ArtifactSaved() {
	m.artifacts.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
