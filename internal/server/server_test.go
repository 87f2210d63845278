package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsmono/agentproxy/internal/config"
	"github.com/opsmono/agentproxy/internal/middleware"
	"github.com/opsmono/agentproxy/internal/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const tokenEnv = "SERVER_TEST_AGENT_TOKEN"

type modelStub struct {
	status int32
	hits   atomic.Int32
}

func (m *modelStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/version":
		w.Write([]byte(`{"version":"0.5.1"}`))
	case "/api/tags":
		w.Write([]byte(`{"models":[]}`))
	case "/api/generate":
		m.hits.Add(1)
		if s := atomic.LoadInt32(&m.status); s != http.StatusOK {
			w.WriteHeader(int(s))
			return
		}
		w.Write([]byte(`{"response":"done","done":true}`))
	}
}

func newTestServer(t *testing.T, stub *modelStub, mutate func(*config.Config)) *Server {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Port: "0",
		Agent: config.Profile{
			Name:         "systemops",
			DefaultModel: "llama3.1:8b",
			Tasks:        []string{"generate", "explain"},
		},
		TokenEnv:                tokenEnv,
		OllamaBaseURL:           srv.URL,
		ModelTimeout:            5 * time.Second,
		HealthTimeout:           time.Second,
		ListTimeout:             time.Second,
		MaxInputBytes:           4096,
		ContextDir:              t.TempDir(),
		CircuitFailureThreshold: 2,
		CircuitOpenTimeout:      time.Minute,
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := zaptest.NewLogger(t)
	client := ollama.NewClient(ollama.Options{BaseURL: cfg.OllamaBaseURL}, logger)
	return New(cfg, Deps{Logger: logger, Model: client})
}

func do(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthIsNeverGated(t *testing.T) {
	t.Setenv(tokenEnv, "secret")
	s := newTestServer(t, &modelStub{status: http.StatusOK}, nil)

	rec := do(s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestGatedRoutes(t *testing.T) {
	t.Setenv(tokenEnv, "secret")
	stub := &modelStub{status: http.StatusOK}
	s := newTestServer(t, stub, nil)

	for _, path := range []string{"/models", "/artifacts", "/metrics"} {
		assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, path, "", "").Code, path)
		assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, path, "wrong", "").Code, path)
		assert.Equal(t, http.StatusOK, do(s, http.MethodGet, path, "secret", "").Code, path)
	}

	rec := do(s, http.MethodPost, "/generate", "", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(0), stub.hits.Load(), "rejected before any model call")

	rec = do(s, http.MethodPost, "/generate", "secret", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"response":"done"`)
}

func TestNoSecretAdmitsEveryone(t *testing.T) {
	t.Setenv(tokenEnv, "")
	s := newTestServer(t, &modelStub{status: http.StatusOK}, nil)

	rec := do(s, http.MethodPost, "/explain", "", `{"code":"ls"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteUsesUniformBody(t *testing.T) {
	s := newTestServer(t, &modelStub{status: http.StatusOK}, nil)

	rec := do(s, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, middleware.ErrCodeNotFound, body.Code)
}

func TestCircuitOpensAfterUpstreamFailures(t *testing.T) {
	stub := &modelStub{status: http.StatusInternalServerError}
	s := newTestServer(t, stub, nil)

	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodPost, "/generate", "", `{"prompt":"x"}`).Code)
	assert.Equal(t, http.StatusBadGateway, do(s, http.MethodPost, "/generate", "", `{"prompt":"x"}`).Code)
	assert.Equal(t, middleware.CircuitOpen, s.Breaker().State())

	rec := do(s, http.MethodPost, "/generate", "", `{"prompt":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), middleware.ErrCodeCircuitOpen)
	assert.Equal(t, int32(2), stub.hits.Load())

	// health and listing still work while the circuit is open
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/models", "", "").Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &modelStub{status: http.StatusOK}, func(c *config.Config) {
		c.RateLimitPerMinute = 2
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/models", "", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/models", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/models", "", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "", "").Code, "health is not limited")
}

func TestMetricsExposeRequests(t *testing.T) {
	s := newTestServer(t, &modelStub{status: http.StatusOK}, nil)
	do(s, http.MethodPost, "/generate", "", `{"prompt":"x"}`)

	rec := do(s, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `agent_http_requests_total{agent="systemops",method="POST",route="/generate",status="200"} 1`)
	assert.True(t, strings.Contains(body, `agent_model_calls_total{agent="systemops",model="llama3.1:8b",outcome="success",task="generate"} 1`))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, &modelStub{status: http.StatusOK}, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestDocsArePublic(t *testing.T) {
	t.Setenv(tokenEnv, "secret")
	s := newTestServer(t, &modelStub{status: http.StatusOK}, nil)

	rec := do(s, http.MethodGet, "/docs/doc.json", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/generate"`)
}
