package handlers

import "github.com/opsmono/agentproxy/internal/models"

// Options are the generation settings every task accepts
type Options struct {
	Language    string   `json:"language" binding:"omitempty,max=64"`
	Context     string   `json:"context"`
	Model       string   `json:"model" binding:"omitempty,max=200"`
	Temperature *float64 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens" binding:"omitempty,gte=1,lte=131072"`
	// Save writes the response to the agent's context directory
	Save bool `json:"save"`
}

func (o Options) apply(req *models.GenerationRequest) {
	req.Language = o.Language
	req.Context = o.Context
	req.Model = o.Model
	req.Temperature = o.Temperature
	req.MaxTokens = o.MaxTokens
	req.Save = o.Save
}

// GenerateRequest is the body of POST /generate
type GenerateRequest struct {
	Prompt      string `json:"prompt" binding:"required_without=Description" example:"write a function that adds two numbers"`
	Description string `json:"description"`
	Options
}

// CodeRequest is the body of POST /review, /explain and /document
type CodeRequest struct {
	Code string `json:"code" binding:"required"`
	Options
}

// TestRequest is the body of POST /test
type TestRequest struct {
	Code      string `json:"code" binding:"required"`
	Framework string `json:"framework" binding:"omitempty,max=64" example:"pytest"`
	Options
}

// RefactorRequest is the body of POST /refactor and /improve
type RefactorRequest struct {
	Code         string `json:"code" binding:"required"`
	Instructions string `json:"instructions"`
	Options
}

// DebugRequest is the body of POST /debug
type DebugRequest struct {
	Code     string `json:"code" binding:"required"`
	Error    string `json:"error"`
	Expected string `json:"expected"`
	Options
}

func (r GenerateRequest) toModel() models.GenerationRequest {
	req := models.GenerationRequest{Task: models.TaskGenerate, Prompt: r.Prompt, Description: r.Description}
	r.Options.apply(&req)
	return req
}

func (r CodeRequest) toModel(task models.TaskKind) models.GenerationRequest {
	req := models.GenerationRequest{Task: task, Code: r.Code}
	r.Options.apply(&req)
	return req
}

func (r TestRequest) toModel() models.GenerationRequest {
	req := models.GenerationRequest{Task: models.TaskTest, Code: r.Code, Framework: r.Framework}
	r.Options.apply(&req)
	return req
}

func (r RefactorRequest) toModel() models.GenerationRequest {
	req := models.GenerationRequest{Task: models.TaskRefactor, Code: r.Code, Instructions: r.Instructions}
	r.Options.apply(&req)
	return req
}

func (r DebugRequest) toModel() models.GenerationRequest {
	req := models.GenerationRequest{
		Task:        models.TaskDebug,
		Code:        r.Code,
		ErrorOutput: r.Error,
		Description: r.Expected,
	}
	r.Options.apply(&req)
	return req
}

// TaskResponse is the body every task route returns, on success and on
// upstream failure alike
type TaskResponse struct {
	Success      bool          `json:"success"`
	Response     string        `json:"response,omitempty"`
	Error        string        `json:"error,omitempty"`
	Code         string        `json:"code,omitempty"`
	Model        string        `json:"model"`
	Agent        string        `json:"agent"`
	Task         string        `json:"task"`
	Usage        *models.Usage `json:"usage,omitempty"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	RequestID    string        `json:"request_id"`
}
