package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/opsmono/agentproxy/internal/models"
	"gopkg.in/yaml.v3"
)

// Profile describes what one agent is for. Every agent runs the same
// code; only the profile differs.
type Profile struct {
	Name         string                   `yaml:"name"`
	Description  string                   `yaml:"description"`
	Persona      string                   `yaml:"persona"`
	DefaultModel string                   `yaml:"default_model"`
	Temperature  *float64                 `yaml:"temperature,omitempty"`
	MaxTokens    int                      `yaml:"max_tokens"`
	Tasks        []string                 `yaml:"tasks"`
	Timeouts     map[string]time.Duration `yaml:"timeouts"`
	// SaveArtifacts saves every successful response, not only those that ask for it
	SaveArtifacts bool `yaml:"save_artifacts"`
}

// TaskEnabled reports whether the agent serves a task
func (p Profile) TaskEnabled(task models.TaskKind) bool {
	for _, t := range p.Tasks {
		if t == string(task) {
			return true
		}
	}
	return false
}

// Validate checks names and task lists
func (p Profile) Validate() error {
	var errs []error
	if !agentNamePattern.MatchString(p.Name) {
		errs = append(errs, fmt.Errorf("agent name %q must be lowercase letters, digits and dashes", p.Name))
	}
	if p.DefaultModel == "" {
		errs = append(errs, fmt.Errorf("agent %q has no default model", p.Name))
	}
	if len(p.Tasks) == 0 {
		errs = append(errs, fmt.Errorf("agent %q enables no tasks", p.Name))
	}
	for _, t := range p.Tasks {
		if _, err := models.ParseTaskKind(t); err != nil || t == "improve" {
			errs = append(errs, fmt.Errorf("agent %q: unknown task %q", p.Name, t))
		}
	}
	for t, d := range p.Timeouts {
		if _, err := models.ParseTaskKind(t); err != nil {
			errs = append(errs, fmt.Errorf("agent %q: timeout for unknown task %q", p.Name, t))
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("agent %q: timeout for %q must be positive", p.Name, t))
		}
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent %q: max_tokens must not be negative", p.Name))
	}
	return errors.Join(errs...)
}

func allTaskNames() []string {
	names := make([]string, 0, len(models.AllTasks))
	for _, t := range models.AllTasks {
		names = append(names, string(t))
	}
	return names
}

func temperature(v float64) *float64 { return &v }

// BuiltinProfiles are the agents this repository has always run
var BuiltinProfiles = map[string]Profile{
	"code-assistant": {
		Name:         "code-assistant",
		Description:  "General coding help: generate, review, explain, document, test, refactor and debug",
		Persona:      "You are an expert software engineer. Be precise and prefer idiomatic, well-tested code.",
		DefaultModel: "qwen2.5-coder:7b",
		Temperature:  temperature(0.2),
		MaxTokens:    2048,
		Tasks:        allTaskNames(),
		Timeouts: map[string]time.Duration{
			"generate": 120 * time.Second,
			"review":   120 * time.Second,
			"explain":  90 * time.Second,
			"document": 120 * time.Second,
			"test":     180 * time.Second,
			"refactor": 180 * time.Second,
			"debug":    120 * time.Second,
		},
	},
	"systemops": {
		Name:         "systemops",
		Description:  "Linux operations: shell scripts, log and error diagnosis, config review",
		Persona:      "You are a senior Linux systems administrator. Prefer safe, reversible commands and call out anything destructive.",
		DefaultModel: "llama3.1:8b",
		Temperature:  temperature(0.1),
		MaxTokens:    1024,
		Tasks:        []string{"generate", "review", "explain", "debug"},
		Timeouts: map[string]time.Duration{
			"generate": 60 * time.Second,
			"review":   60 * time.Second,
			"explain":  30 * time.Second,
			"debug":    60 * time.Second,
		},
	},
	"course": {
		Name:          "course",
		Description:   "Training content for the Python and PySpark course: exercises, explanations, documentation and tests",
		Persona:       "You write material for a corporate Python and PySpark training program. Explain concepts for working engineers new to Spark and keep examples runnable.",
		DefaultModel:  "llama3.1:8b",
		Temperature:   temperature(0.4),
		MaxTokens:     4096,
		Tasks:         []string{"generate", "explain", "document", "test"},
		SaveArtifacts: true,
		Timeouts: map[string]time.Duration{
			"generate": 300 * time.Second,
			"explain":  180 * time.Second,
			"document": 300 * time.Second,
			"test":     300 * time.Second,
		},
	},
	"data": {
		Name:         "data",
		Description:  "Data engineering: SQL, pandas and PySpark pipelines",
		Persona:      "You are a data engineer fluent in SQL, pandas and PySpark. Mind data volume, partitioning and null handling.",
		DefaultModel: "qwen2.5-coder:7b",
		Temperature:  temperature(0.2),
		MaxTokens:    2048,
		Tasks:        []string{"generate", "review", "explain", "refactor", "debug"},
		Timeouts: map[string]time.Duration{
			"generate": 120 * time.Second,
			"review":   120 * time.Second,
			"explain":  60 * time.Second,
			"refactor": 180 * time.Second,
			"debug":    120 * time.Second,
		},
	},
	"tutor": {
		Name:         "tutor",
		Description:  "Course tutor for Vietnamese-speaking learners",
		Persona:      "You are a patient programming tutor for a Vietnamese-language Moodle course. Answer in Vietnamese, keep code identifiers in English, and guide the learner instead of handing over full solutions.",
		DefaultModel: "qwen2.5:7b",
		Temperature:  temperature(0.5),
		MaxTokens:    1024,
		Tasks:        []string{"explain", "review", "debug", "generate"},
		Timeouts: map[string]time.Duration{
			"explain":  90 * time.Second,
			"review":   90 * time.Second,
			"debug":    90 * time.Second,
			"generate": 90 * time.Second,
		},
	},
}

// ProfileNames returns the built-in profile names in sorted order
func ProfileNames() []string {
	names := make([]string, 0, len(BuiltinProfiles))
	for name := range BuiltinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveProfile starts from the built-in profile of that name (or a
// generic one with every task enabled) and overlays the YAML file.
func resolveProfile(name, file string) (Profile, error) {
	profile, ok := BuiltinProfiles[name]
	if ok {
		profile = cloneProfile(profile)
	} else {
		profile = Profile{
			Name:         name,
			DefaultModel: "llama3.1:8b",
			Tasks:        allTaskNames(),
		}
	}

	if file == "" {
		return profile, nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return Profile{}, fmt.Errorf("read agent profile: %w", err)
	}
	// yaml.Unmarshal only touches keys present in the file
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse agent profile %s: %w", file, err)
	}
	if profile.Name == "" {
		profile.Name = name
	}
	return profile, nil
}

func cloneProfile(p Profile) Profile {
	p.Tasks = append([]string(nil), p.Tasks...)
	timeouts := make(map[string]time.Duration, len(p.Timeouts))
	for k, v := range p.Timeouts {
		timeouts[k] = v
	}
	p.Timeouts = timeouts
	if p.Temperature != nil {
		p.Temperature = temperature(*p.Temperature)
	}
	return p
}
