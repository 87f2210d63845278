package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsmono/agentproxy/internal/artifacts"
	"github.com/opsmono/agentproxy/internal/config"
	"github.com/opsmono/agentproxy/internal/eventbus"
	"github.com/opsmono/agentproxy/internal/metrics"
	"github.com/opsmono/agentproxy/internal/middleware"
	"github.com/opsmono/agentproxy/internal/models"
	"github.com/opsmono/agentproxy/internal/ollama"
	"github.com/opsmono/agentproxy/internal/prompt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("agentproxy/handlers")

// StatusClientClosedRequest is reported when the caller went away before
// the model server answered
const StatusClientClosedRequest = 499

// ModelServer is what the task routes need from the model client
type ModelServer interface {
	Prober
	Generate(ctx context.Context, p ollama.GenerateParams) models.GenerationResult
	ListModels(ctx context.Context) models.ModelsResult
}

// AgentHandler serves the task routes of one agent
type AgentHandler struct {
	cfg      *config.Config
	composer *prompt.Composer
	model    ModelServer
	store    *artifacts.Store
	events   *eventbus.Emitter
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewAgentHandler creates a new agent handler. store, events and
// metrics may be nil.
func NewAgentHandler(
	cfg *config.Config,
	composer *prompt.Composer,
	model ModelServer,
	store *artifacts.Store,
	events *eventbus.Emitter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AgentHandler {
	return &AgentHandler{
		cfg:      cfg,
		composer: composer,
		model:    model,
		store:    store,
		events:   events,
		metrics:  m,
		logger:   logger,
	}
}

// RegisterTasks mounts every task route. Routes for tasks the profile
// disables still exist and answer 404 with the uniform body.
func (h *AgentHandler) RegisterTasks(rg gin.IRoutes) {
	rg.POST("/generate", h.Generate)
	rg.POST("/review", h.Code(models.TaskReview))
	rg.POST("/explain", h.Code(models.TaskExplain))
	rg.POST("/document", h.Code(models.TaskDocument))
	rg.POST("/test", h.Test)
	rg.POST("/refactor", h.Refactor)
	rg.POST("/improve", h.Refactor)
	rg.POST("/debug", h.Debug)
}

// ModelsResponse is the body of GET /models
type ModelsResponse struct {
	Success bool               `json:"success"`
	Models  []models.ModelInfo `json:"models"`
	Error   string             `json:"error,omitempty"`
}

// ListModels godoc
// @Summary      List installed models
// @Tags         models
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ModelsResponse
// @Failure      502  {object}  ModelsResponse
// @Router       /models [get]
func (h *AgentHandler) ListModels(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "agent.list_models")
	defer span.End()

	res := h.model.ListModels(ctx)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
		c.JSON(statusForFailure(res.Failure), ModelsResponse{Success: false, Models: res.Models, Error: res.Error})
		return
	}
	c.JSON(http.StatusOK, ModelsResponse{Success: true, Models: res.Models})
}

// ArtifactsResponse is the body of GET /artifacts
type ArtifactsResponse struct {
	Success   bool             `json:"success"`
	Agent     string           `json:"agent"`
	Artifacts []artifacts.Info `json:"artifacts"`
}

// ListArtifacts godoc
// @Summary      List saved artifacts
// @Description  Newest first.
// @Tags         artifacts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ArtifactsResponse
// @Failure      500  {object}  middleware.ErrorBody
// @Router       /artifacts [get]
func (h *AgentHandler) ListArtifacts(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, ArtifactsResponse{Success: true, Agent: h.cfg.Agent.Name, Artifacts: []artifacts.Info{}})
		return
	}
	list, err := h.store.List()
	if err != nil {
		h.logger.Error("failed to list artifacts", zap.Error(err))
		middleware.InternalError(c, "failed to list artifacts")
		return
	}
	c.JSON(http.StatusOK, ArtifactsResponse{Success: true, Agent: h.cfg.Agent.Name, Artifacts: list})
}

// Generate godoc
// @Summary      Generate code from a prompt or description
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      GenerateRequest  true  "Generation request"
// @Success      200      {object}  TaskResponse
// @Failure      400      {object}  middleware.ErrorBody
// @Failure      413      {object}  middleware.ErrorBody
// @Failure      502      {object}  TaskResponse
// @Failure      504      {object}  TaskResponse
// @Router       /generate [post]
func (h *AgentHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if !h.bind(c, models.TaskGenerate, &req) {
		return
	}
	h.run(c, req.toModel())
}

// Code returns the handler of a task that takes only a code snippet
// (review, explain, document).
// @Summary      Review, explain or document code
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CodeRequest  true  "Code request"
// @Success      200      {object}  TaskResponse
// @Failure      400      {object}  middleware.ErrorBody
// @Failure      502      {object}  TaskResponse
// @Router       /review [post]
// @Router       /explain [post]
// @Router       /document [post]
func (h *AgentHandler) Code(task models.TaskKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CodeRequest
		if !h.bind(c, task, &req) {
			return
		}
		h.run(c, req.toModel(task))
	}
}

// Test godoc
// @Summary      Write unit tests for code
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      TestRequest  true  "Test request"
// @Success      200      {object}  TaskResponse
// @Failure      400      {object}  middleware.ErrorBody
// @Failure      502      {object}  TaskResponse
// @Router       /test [post]
func (h *AgentHandler) Test(c *gin.Context) {
	var req TestRequest
	if !h.bind(c, models.TaskTest, &req) {
		return
	}
	h.run(c, req.toModel())
}

// Refactor godoc
// @Summary      Refactor code without changing behavior
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      RefactorRequest  true  "Refactor request"
// @Success      200      {object}  TaskResponse
// @Failure      400      {object}  middleware.ErrorBody
// @Failure      502      {object}  TaskResponse
// @Router       /refactor [post]
// @Router       /improve [post]
func (h *AgentHandler) Refactor(c *gin.Context) {
	var req RefactorRequest
	if !h.bind(c, models.TaskRefactor, &req) {
		return
	}
	h.run(c, req.toModel())
}

// Debug godoc
// @Summary      Find and fix a bug
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      DebugRequest  true  "Debug request"
// @Success      200      {object}  TaskResponse
// @Failure      400      {object}  middleware.ErrorBody
// @Failure      502      {object}  TaskResponse
// @Router       /debug [post]
func (h *AgentHandler) Debug(c *gin.Context) {
	var req DebugRequest
	if !h.bind(c, models.TaskDebug, &req) {
		return
	}
	h.run(c, req.toModel())
}

const (
	// maxTextFields is the most free-text fields any task request carries
	// (debug: code, error, expected, context).
	maxTextFields = 4
	// jsonEscapeGrowth is the worst-case encoded size per decoded byte:
	// a 4-byte rune escapes to a 12-byte surrogate pair.
	jsonEscapeGrowth = 6
)

// bindLimit bounds a request body: every free-text field may use the
// full input limit in its most escaped form, plus room for framing and
// options. Per-field limits are enforced on the decoded values.
func (h *AgentHandler) bindLimit() int64 {
	return int64(h.composer.MaxInputBytes())*jsonEscapeGrowth*maxTextFields + 64*1024
}

// bind checks the task is enabled and decodes the body. It writes the
// error response itself and returns false when the request must stop.
func (h *AgentHandler) bind(c *gin.Context, task models.TaskKind, dst interface{}) bool {
	middleware.SetTask(c, string(task))

	if !h.cfg.Agent.TaskEnabled(task) {
		middleware.NotFound(c, "task "+string(task)+" is not enabled for agent "+h.cfg.Agent.Name)
		return false
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.bindLimit())
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.RespondError(c, http.StatusRequestEntityTooLarge, middleware.ErrCodePayloadTooLarge,
				"request body exceeds the allowed size")
			return false
		}
		middleware.BadRequest(c, "invalid request: "+err.Error())
		return false
	}
	return true
}

// run composes the prompt, calls the model server and writes the
// uniform response
func (h *AgentHandler) run(c *gin.Context, req models.GenerationRequest) {
	profile := h.cfg.Agent
	requestID := middleware.GetRequestID(c)

	ctx, span := tracer.Start(c.Request.Context(), "agent."+string(req.Task), trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(
		attribute.String("agent", profile.Name),
		attribute.String("task", string(req.Task)),
		attribute.String("request_id", requestID),
	)

	text, err := h.composer.Compose(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, prompt.ErrInputTooLarge):
			middleware.RespondError(c, http.StatusRequestEntityTooLarge, middleware.ErrCodePayloadTooLarge, err.Error())
		case errors.Is(err, prompt.ErrMissingInput):
			middleware.BadRequest(c, err.Error())
		default:
			h.logger.Error("failed to compose prompt", zap.Error(err), zap.String("task", string(req.Task)))
			middleware.InternalError(c, "failed to compose prompt")
		}
		return
	}

	params := ollama.GenerateParams{
		Model:       req.Model,
		Prompt:      text,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Timeout:     h.cfg.TaskTimeout(string(req.Task)),
	}
	if params.Model == "" {
		params.Model = profile.DefaultModel
	}
	if params.Temperature == nil {
		params.Temperature = profile.Temperature
	}
	if params.MaxTokens == 0 {
		params.MaxTokens = profile.MaxTokens
	}
	span.SetAttributes(attribute.String("model", params.Model))

	result := h.model.Generate(ctx, params)

	if h.metrics != nil {
		h.metrics.ObserveModelCall(req.Task, result)
	}
	if h.events != nil {
		h.events.Emit(eventbus.KindGenerations, eventbus.GenerationCompleted{
			Agent:     profile.Name,
			Task:      string(req.Task),
			Model:     result.Model,
			Success:   result.Success,
			Failure:   string(result.Failure),
			LatencyMs: result.Latency.Milliseconds(),
			RequestID: requestID,
		})
	}

	if result.Success && (req.Save || profile.SaveArtifacts) && h.store != nil {
		// the response is already paid for; a failed save must not lose it
		path, err := h.store.Save(ctx, artifacts.Record{
			Agent:     profile.Name,
			Task:      req.Task,
			Model:     result.Model,
			Language:  req.Language,
			RequestID: requestID,
			Prompt:    text,
			Response:  result.Response,
			Usage:     result.Usage,
			CreatedAt: time.Now(),
		})
		if err != nil {
			h.logger.Error("failed to save artifact", zap.Error(err), zap.String("request_id", requestID))
		} else {
			result.ArtifactPath = path
			if h.metrics != nil {
				h.metrics.ArtifactSaved()
			}
		}
	}

	status := http.StatusOK
	resp := TaskResponse{
		Success:      result.Success,
		Response:     result.Response,
		Error:        result.Error,
		Model:        result.Model,
		Agent:        profile.Name,
		Task:         string(req.Task),
		Usage:        result.Usage,
		ArtifactPath: result.ArtifactPath,
		RequestID:    requestID,
	}
	if !result.Success {
		status = statusForFailure(result.Failure)
		resp.Code = codeForFailure(result.Failure)
		span.SetStatus(codes.Error, result.Error)
	}
	c.JSON(status, resp)
}

func statusForFailure(kind models.FailureKind) int {
	switch kind {
	case models.FailureTimeout:
		return http.StatusGatewayTimeout
	case models.FailureCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

func codeForFailure(kind models.FailureKind) string {
	switch kind {
	case models.FailureTimeout:
		return middleware.ErrCodeModelTimeout
	case models.FailureCanceled:
		return middleware.ErrCodeClientClosedRequest
	case models.FailureUnreachable:
		return middleware.ErrCodeModelUnavailable
	default:
		return middleware.ErrCodeModelError
	}
}
