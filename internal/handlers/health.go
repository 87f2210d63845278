package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Version is reported by /health
var Version = "0.1.0"

// Prober checks the model server without generating anything
type Prober interface {
	Ping(ctx context.Context) (string, error)
	BaseURL() string
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	agent   string
	prober  Prober
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(agent string, prober Prober, timeout time.Duration, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		agent:   agent,
		prober:  prober,
		timeout: timeout,
		logger:  logger,
	}
}

// ModelServerStatus is the reachability part of the health response
type ModelServerStatus struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Agent       string            `json:"agent"`
	Version     string            `json:"version"`
	ModelServer ModelServerStatus `json:"model_server"`
}

// Health godoc
// @Summary      Agent health
// @Description  Reports whether the model server is reachable. Never gated, always 200.
// @Tags         health
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	ms := ModelServerStatus{URL: h.prober.BaseURL()}
	status := "healthy"

	version, err := h.prober.Ping(ctx)
	if err != nil {
		status = "degraded"
		ms.Error = err.Error()
		h.logger.Warn("model server unreachable", zap.String("url", ms.URL), zap.Error(err))
	} else {
		ms.Reachable = true
		ms.Version = version
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:      status,
		Agent:       h.agent,
		Version:     Version,
		ModelServer: ms,
	})
}
