package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for one agent process
type Config struct {
	// Server
	Port        string
	Environment string

	// Agent profile (name, persona, default model, tasks, timeouts)
	Agent Profile

	// Token gate
	TokenEnv  string
	TokenFile string

	// Model server
	OllamaBaseURL string
	ModelTimeout  time.Duration
	HealthTimeout time.Duration
	ListTimeout   time.Duration
	RetryCount    int
	RetryWait     time.Duration
	RetryMaxWait  time.Duration

	// Prompt composition
	MaxInputBytes int

	// Persistence
	ContextDir string

	// Optional collaborators
	NATSURL      string
	OTLPEndpoint string

	// Protection
	RateLimitPerMinute      int
	CircuitFailureThreshold int
	CircuitOpenTimeout      time.Duration
}

var agentNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Load reads configuration from an optional .env file, environment
// variables and an optional YAML profile, then validates it.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	name := getEnv("AGENT_NAME", "code-assistant")
	profile, err := resolveProfile(name, getEnv("AGENT_PROFILE_FILE", ""))
	if err != nil {
		return nil, err
	}

	if model := getEnv(modelEnvKey(profile.Name), ""); model != "" {
		profile.DefaultModel = model
	} else if model := getEnv("DEFAULT_MODEL", ""); model != "" {
		profile.DefaultModel = model
	}

	env := &envParser{}
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("GO_ENV", "development"),
		Agent:       profile,

		TokenEnv:  getEnv("AGENT_TOKEN_ENV", "AGENT_TOKEN"),
		TokenFile: getEnv("AGENT_TOKEN_FILE", ""),

		OllamaBaseURL: strings.TrimRight(getEnv("OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		ModelTimeout:  env.getDuration("MODEL_TIMEOUT", 120*time.Second),
		HealthTimeout: env.getDuration("HEALTH_TIMEOUT", 3*time.Second),
		ListTimeout:   env.getDuration("LIST_TIMEOUT", 10*time.Second),
		RetryCount:    env.getInt("MODEL_RETRY_COUNT", 2),
		RetryWait:     env.getDuration("MODEL_RETRY_WAIT", 250*time.Millisecond),
		RetryMaxWait:  env.getDuration("MODEL_RETRY_MAX_WAIT", 2*time.Second),

		MaxInputBytes: env.getInt("MAX_INPUT_BYTES", 64*1024),

		ContextDir: getEnv("CONTEXT_DIR", "context"),

		NATSURL:      getEnv("NATS_URL", ""),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		RateLimitPerMinute:      env.getInt("RATE_LIMIT_PER_MINUTE", 0),
		CircuitFailureThreshold: env.getInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitOpenTimeout:      env.getDuration("CIRCUIT_OPEN_TIMEOUT", 30*time.Second),
	}

	if err := errors.Join(env.err(), cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}

	u, err := url.Parse(c.OllamaBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("OLLAMA_BASE_URL %q must be an http(s) URL", c.OllamaBaseURL))
	}

	for name, d := range map[string]time.Duration{
		"MODEL_TIMEOUT":  c.ModelTimeout,
		"HEALTH_TIMEOUT": c.HealthTimeout,
		"LIST_TIMEOUT":   c.ListTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RetryCount < 0 {
		errs = append(errs, errors.New("MODEL_RETRY_COUNT must not be negative"))
	}
	if c.MaxInputBytes <= 0 {
		errs = append(errs, errors.New("MAX_INPUT_BYTES must be positive"))
	}
	if c.ContextDir == "" {
		errs = append(errs, errors.New("CONTEXT_DIR must not be empty"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.CircuitFailureThreshold < 0 {
		errs = append(errs, errors.New("CIRCUIT_FAILURE_THRESHOLD must not be negative"))
	}

	if err := c.Agent.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AgentContextDir is where this agent's artifacts are written
func (c *Config) AgentContextDir() string {
	return filepath.Join(c.ContextDir, c.Agent.Name)
}

// TaskTimeout returns the model call timeout for a task
func (c *Config) TaskTimeout(task string) time.Duration {
	if d, ok := c.Agent.Timeouts[task]; ok && d > 0 {
		return d
	}
	return c.ModelTimeout
}

func loadDotEnv() error {
	if file := os.Getenv("AGENT_ENV_FILE"); file != "" {
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// modelEnvKey maps "code-assistant" to "CODE_ASSISTANT_MODEL"
func modelEnvKey(agent string) string {
	return strings.ToUpper(strings.ReplaceAll(agent, "-", "_")) + "_MODEL"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser reads typed variables and keeps every parse error, so an
// unparseable value is reported instead of replaced by the default.
type envParser struct {
	errs []error
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

func (p *envParser) getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, value))
		return defaultValue
	}
	return n
}

// getDuration accepts Go durations ("90s") or plain seconds ("90")
func (p *envParser) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, value))
	return defaultValue
}
