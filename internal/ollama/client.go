package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/opsmono/agentproxy/internal/models"
	"go.uber.org/zap"
)

// Options configures a Client
type Options struct {
	BaseURL string

	// RetryCount bounds extra attempts after a connection failure. Zero
	// disables retries. Timeouts and HTTP error statuses are never retried.
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration

	ProbeTimeout time.Duration
	ListTimeout  time.Duration
}

// GenerateParams is one completion call
type GenerateParams struct {
	Model       string
	Prompt      string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to an Ollama-compatible model server. None of its
// methods return errors: every failure becomes a result with
// Success=false, which is what every handler relies on.
type Client struct {
	baseURL string
	http    *resty.Client
	probe   *resty.Client
	opts    Options
	logger  *zap.Logger
}

// NewClient creates a model server client
func NewClient(opts Options, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = 10 * time.Second
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 100 * time.Millisecond
	}
	if opts.RetryMaxWait < opts.RetryWait {
		opts.RetryMaxWait = 2 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar()).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return isConnectionFailure(err)
		}).
		AddRetryHook(func(_ *resty.Response, err error) {
			logger.Warn("model server connection failed, retrying", zap.Error(err))
		})

	probe := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		probe:   probe,
		opts:    opts,
		logger:  logger,
	}
}

// BaseURL returns the model server address the client targets
func (c *Client) BaseURL() string {
	return c.baseURL
}

type generateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Model           string  `json:"model"`
	Response        *string `json:"response"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	TotalDuration   int64   `json:"total_duration"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generate sends a non-streaming completion request
func (c *Client) Generate(ctx context.Context, p GenerateParams) models.GenerationResult {
	start := time.Now()
	result := c.generate(ctx, p)
	result.Latency = time.Since(start)

	if result.Success {
		c.logger.Debug("model call succeeded",
			zap.String("model", p.Model),
			zap.Duration("latency", result.Latency),
		)
	} else {
		c.logger.Warn("model call failed",
			zap.String("model", p.Model),
			zap.String("failure", string(result.Failure)),
			zap.String("error", result.Error),
			zap.Duration("latency", result.Latency),
		)
	}
	return result
}

func (c *Client) generate(ctx context.Context, p GenerateParams) models.GenerationResult {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	body := generateRequest{
		Model:  p.Model,
		Prompt: p.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: p.Temperature,
			NumPredict:  p.MaxTokens,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/api/generate")
	if err != nil {
		kind := classify(ctx, err)
		return models.Failed(p.Model, kind, "%s", describe(kind, c.baseURL, err))
	}

	if resp.StatusCode() != 200 {
		return models.Failed(p.Model, models.FailureUpstreamStatus,
			"model server returned status %d: %s", resp.StatusCode(), upstreamMessage(resp.Body()))
	}

	var out generateResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return models.Failed(p.Model, models.FailureBadResponse, "model server returned invalid JSON: %v", err)
	}
	if out.Response == nil {
		return models.Failed(p.Model, models.FailureBadResponse, "model server response has no text field")
	}

	return models.GenerationResult{
		Success:  true,
		Response: *out.Response,
		Model:    p.Model,
		Usage: &models.Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalDurationMs:  time.Duration(out.TotalDuration).Milliseconds(),
		},
	}
}

type tagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// ListModels returns the models installed on the model server
func (c *Client) ListModels(ctx context.Context) models.ModelsResult {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ListTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		kind := classify(ctx, err)
		return models.ModelsResult{Models: []models.ModelInfo{}, Error: describe(kind, c.baseURL, err), Failure: kind}
	}
	if resp.StatusCode() != 200 {
		return models.ModelsResult{
			Models:  []models.ModelInfo{},
			Error:   fmt.Sprintf("model server returned status %d: %s", resp.StatusCode(), upstreamMessage(resp.Body())),
			Failure: models.FailureUpstreamStatus,
		}
	}

	var tags tagsResponse
	if err := json.Unmarshal(resp.Body(), &tags); err != nil {
		return models.ModelsResult{
			Models:  []models.ModelInfo{},
			Error:   fmt.Sprintf("model server returned invalid JSON: %v", err),
			Failure: models.FailureBadResponse,
		}
	}

	list := make([]models.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		list = append(list, models.ModelInfo{Name: m.Name, Size: m.Size, Modified: m.ModifiedAt})
	}
	return models.ModelsResult{Success: true, Models: list}
}

// Ping checks the model server is reachable and returns its version.
// It never retries so health checks stay fast.
func (c *Client) Ping(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ProbeTimeout)
	defer cancel()

	resp, err := c.probe.R().SetContext(ctx).Get("/api/version")
	if err != nil {
		return "", errors.New(describe(classify(ctx, err), c.baseURL, err))
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("model server returned status %d", resp.StatusCode())
	}

	var v struct {
		Version string `json:"version"`
	}
	// a non-JSON body still proves reachability
	_ = json.Unmarshal(resp.Body(), &v)
	return v.Version, nil
}

func classify(ctx context.Context, err error) models.FailureKind {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return models.FailureCanceled
	}
	if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.FailureTimeout
	}
	return models.FailureUnreachable
}

func describe(kind models.FailureKind, baseURL string, err error) string {
	switch kind {
	case models.FailureTimeout:
		return fmt.Sprintf("model server at %s timed out", baseURL)
	case models.FailureCanceled:
		return "request canceled before the model server answered"
	default:
		return fmt.Sprintf("model server at %s is unreachable: %v", baseURL, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isConnectionFailure reports errors where the request never reached
// the model server, so retrying cannot duplicate work.
func isConnectionFailure(err error) bool {
	if err == nil || isTimeout(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

const maxUpstreamMessage = 512

func upstreamMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxUpstreamMessage {
		cut := maxUpstreamMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if msg == "" {
		msg = "empty body"
	}
	return msg
}
