package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsmono/agentproxy/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddleware_CountsByRouteAndStatus(t *testing.T) {
	m := New("code-assistant")
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.requests.WithLabelValues("/health", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "GET", "404")))
}

func TestObserveModelCall(t *testing.T) {
	m := New("tutor")

	m.ObserveModelCall(models.TaskExplain, models.GenerationResult{Success: true, Model: "qwen2.5:7b", Latency: time.Second})
	m.ObserveModelCall(models.TaskExplain, models.GenerationResult{Model: "qwen2.5:7b", Failure: models.FailureTimeout})
	m.ObserveModelCall(models.TaskExplain, models.GenerationResult{Model: "qwen2.5:7b"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelCalls.WithLabelValues("explain", "qwen2.5:7b", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelCalls.WithLabelValues("explain", "qwen2.5:7b", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelCalls.WithLabelValues("explain", "qwen2.5:7b", "failure")))
}

func TestHandler_ExposesAgentLabel(t *testing.T) {
	m := New("systemops")
	m.ArtifactSaved()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `agent_artifacts_saved_total{agent="systemops"} 1`)
}
