package eventbus

import "time"

const (
	KindArtifacts   = "artifacts"
	KindGenerations = "generations"
)

// ArtifactSaved is published after a response is written to the context directory
type ArtifactSaved struct {
	Agent     string    `json:"agent"`
	Task      string    `json:"task"`
	Model     string    `json:"model"`
	Path      string    `json:"path"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerationCompleted is published once per model call, successful or not
type GenerationCompleted struct {
	Agent     string `json:"agent"`
	Task      string `json:"task"`
	Model     string `json:"model"`
	Success   bool   `json:"success"`
	Failure   string `json:"failure,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
	RequestID string `json:"request_id,omitempty"`
}
