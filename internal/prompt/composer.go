package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/opsmono/agentproxy/internal/models"
)

// DefaultMaxInputBytes bounds every individual input field
const DefaultMaxInputBytes = 64 * 1024

var (
	// ErrInputTooLarge matches any *InputTooLargeError
	ErrInputTooLarge = errors.New("input too large")
	// ErrMissingInput is returned when a task's required field is empty
	ErrMissingInput = errors.New("missing required input")
	// ErrUnknownTask is returned for a task kind with no template
	ErrUnknownTask = errors.New("unknown task")
)

// InputTooLargeError reports which field exceeded the limit. Inputs are
// never cut to fit.
type InputTooLargeError struct {
	Field string
	Size  int
	Limit int
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("%s is %d bytes, limit is %d", e.Field, e.Size, e.Limit)
}

func (e *InputTooLargeError) Is(target error) bool {
	return target == ErrInputTooLarge
}

// Composer turns a GenerationRequest into the instruction string sent to
// the model. Templates are parsed once and are safe for concurrent use.
type Composer struct {
	persona       string
	maxInputBytes int
	templates     map[models.TaskKind]*template.Template
}

// NewComposer builds a composer. persona is prepended to every prompt
// when non-empty; maxInputBytes <= 0 selects DefaultMaxInputBytes.
func NewComposer(persona string, maxInputBytes int) *Composer {
	if maxInputBytes <= 0 {
		maxInputBytes = DefaultMaxInputBytes
	}
	c := &Composer{
		persona:       strings.TrimSpace(persona),
		maxInputBytes: maxInputBytes,
		templates:     make(map[models.TaskKind]*template.Template, len(taskTemplates)),
	}
	for task, body := range taskTemplates {
		c.templates[task] = template.Must(template.New(string(task)).Parse(body))
	}
	return c
}

// MaxInputBytes returns the per-field limit in effect
func (c *Composer) MaxInputBytes() int {
	return c.maxInputBytes
}

type templateData struct {
	Persona      string
	Prompt       string
	Code         string
	Description  string
	Instructions string
	ErrorOutput  string
	Framework    string
	Language     string
	Context      string
}

// Compose validates the request inputs and renders the task template
func (c *Composer) Compose(req models.GenerationRequest) (string, error) {
	tmpl, ok := c.templates[req.Task]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, req.Task)
	}

	if err := c.checkSizes(req); err != nil {
		return "", err
	}
	if err := checkRequired(req); err != nil {
		return "", err
	}

	language := req.Language
	if language == "" {
		language = "the appropriate language"
	}

	data := templateData{
		Persona:      c.persona,
		Prompt:       req.Prompt,
		Code:         req.Code,
		Description:  req.Description,
		Instructions: req.Instructions,
		ErrorOutput:  req.ErrorOutput,
		Framework:    req.Framework,
		Language:     language,
		Context:      req.Context,
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", req.Task, err)
	}
	return b.String(), nil
}

func (c *Composer) checkSizes(req models.GenerationRequest) error {
	fields := []struct {
		name  string
		value string
	}{
		{"prompt", req.Prompt},
		{"code", req.Code},
		{"description", req.Description},
		{"instructions", req.Instructions},
		{"error", req.ErrorOutput},
		{"framework", req.Framework},
		{"language", req.Language},
		{"context", req.Context},
	}
	for _, f := range fields {
		if len(f.value) > c.maxInputBytes {
			return &InputTooLargeError{Field: f.name, Size: len(f.value), Limit: c.maxInputBytes}
		}
	}
	return nil
}

func checkRequired(req models.GenerationRequest) error {
	switch req.Task {
	case models.TaskGenerate:
		if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.Description) == "" {
			return fmt.Errorf("%w: prompt or description", ErrMissingInput)
		}
	default:
		if strings.TrimSpace(req.Code) == "" {
			return fmt.Errorf("%w: code", ErrMissingInput)
		}
	}
	return nil
}
