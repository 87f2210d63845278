package models

import (
	"fmt"
	"time"
)

// TaskKind identifies what an agent is asked to do with its inputs
type TaskKind string

const (
	TaskGenerate TaskKind = "generate"
	TaskReview   TaskKind = "review"
	TaskExplain  TaskKind = "explain"
	TaskDocument TaskKind = "document"
	TaskTest     TaskKind = "test"
	TaskRefactor TaskKind = "refactor"
	TaskDebug    TaskKind = "debug"
)

// AllTasks lists every task kind in route order
var AllTasks = []TaskKind{
	TaskGenerate,
	TaskReview,
	TaskExplain,
	TaskDocument,
	TaskTest,
	TaskRefactor,
	TaskDebug,
}

// ParseTaskKind maps a task name (including the "improve" alias) to its kind
func ParseTaskKind(name string) (TaskKind, error) {
	if name == "improve" {
		return TaskRefactor, nil
	}
	for _, t := range AllTasks {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", name)
}

// GenerationRequest is one task submitted to an agent. It is built once
// per incoming call and never modified afterwards.
type GenerationRequest struct {
	Task TaskKind

	// Free-text inputs; which ones are required depends on Task
	Prompt       string
	Code         string
	Description  string
	Instructions string
	ErrorOutput  string
	Framework    string

	Language string
	Context  string

	Model       string
	Temperature *float64
	MaxTokens   int

	Save bool
}

// Usage carries the token counters reported by the model server
type Usage struct {
	PromptTokens     int   `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens" yaml:"completion_tokens"`
	TotalDurationMs  int64 `json:"total_duration_ms" yaml:"total_duration_ms"`
}

// FailureKind classifies why a model call did not succeed
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureUnreachable    FailureKind = "unreachable"
	FailureTimeout        FailureKind = "timeout"
	FailureUpstreamStatus FailureKind = "upstream_status"
	FailureBadResponse    FailureKind = "bad_response"
	FailureCanceled       FailureKind = "canceled"
)

// GenerationResult is the normalized outcome of a model call.
// Response is only meaningful when Success is true.
type GenerationResult struct {
	Success      bool          `json:"success"`
	Response     string        `json:"response,omitempty"`
	Model        string        `json:"model"`
	Error        string        `json:"error,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	Failure      FailureKind   `json:"-"`
	Latency      time.Duration `json:"-"`
}

// Failed builds an unsuccessful result
func Failed(model string, kind FailureKind, format string, args ...interface{}) GenerationResult {
	return GenerationResult{
		Success: false,
		Model:   model,
		Error:   fmt.Sprintf(format, args...),
		Failure: kind,
	}
}

// ModelInfo describes one model installed on the model server
type ModelInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ModelsResult is the normalized outcome of a model listing
type ModelsResult struct {
	Success bool        `json:"success"`
	Models  []ModelInfo `json:"models"`
	Error   string      `json:"error,omitempty"`
	Failure FailureKind `json:"-"`
}
