package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsmono/agentproxy/internal/eventbus"
	"github.com/opsmono/agentproxy/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const createAttempts = 3

// Record is one generated response to persist
type Record struct {
	Agent     string
	Task      models.TaskKind
	Model     string
	Language  string
	RequestID string
	Prompt    string
	Response  string
	Usage     *models.Usage
	CreatedAt time.Time
}

type frontMatter struct {
	Agent     string        `yaml:"agent"`
	Task      string        `yaml:"task"`
	Model     string        `yaml:"model"`
	Language  string        `yaml:"language,omitempty"`
	RequestID string        `yaml:"request_id,omitempty"`
	CreatedAt time.Time     `yaml:"created_at"`
	Usage     *models.Usage `yaml:"usage,omitempty"`
	// SHA256 of the response section, to spot edits after the fact
	SHA256 string `yaml:"sha256"`
}

// Info describes a saved artifact
type Info struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store is the append-only context directory of one agent. Files are
// created exclusively with unique names, so concurrent saves need no
// locking and existing files are never overwritten.
type Store struct {
	dir     string
	events  *eventbus.Emitter
	logger  *zap.Logger
	now     func() time.Time
	newName func(task models.TaskKind, at time.Time) string
}

// NewStore creates a store rooted at dir. Call Init before saving.
func NewStore(dir string, events *eventbus.Emitter, logger *zap.Logger) *Store {
	return &Store{
		dir:     dir,
		events:  events,
		logger:  logger,
		now:     time.Now,
		newName: artifactName,
	}
}

// Dir returns the directory artifacts are written to
func (s *Store) Dir() string {
	return s.dir
}

// Init creates the context directory
func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create context directory %s: %w", s.dir, err)
	}
	return nil
}

func artifactName(task models.TaskKind, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s.md",
		task,
		at.UTC().Format("20060102T150405.000000000Z"),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	)
}

// Save writes the record and returns the path of the new file
func (s *Store) Save(ctx context.Context, rec Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	content, err := render(rec)
	if err != nil {
		return "", err
	}

	var path string
	for attempt := 0; attempt < createAttempts; attempt++ {
		path = filepath.Join(s.dir, s.newName(rec.Task, rec.CreatedAt))
		err = writeExclusive(path, content)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}

	s.logger.Info("artifact saved",
		zap.String("path", path),
		zap.String("task", string(rec.Task)),
		zap.String("request_id", rec.RequestID),
	)

	if s.events != nil {
		s.events.Emit(eventbus.KindArtifacts, eventbus.ArtifactSaved{
			Agent:     rec.Agent,
			Task:      string(rec.Task),
			Model:     rec.Model,
			Path:      path,
			RequestID: rec.RequestID,
			CreatedAt: rec.CreatedAt,
		})
	}
	return path, nil
}

func writeExclusive(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func render(rec Record) ([]byte, error) {
	meta, err := yaml.Marshal(frontMatter{
		Agent:     rec.Agent,
		Task:      string(rec.Task),
		Model:     rec.Model,
		Language:  rec.Language,
		RequestID: rec.RequestID,
		CreatedAt: rec.CreatedAt.UTC(),
		Usage:     rec.Usage,
		SHA256:    ResponseHash(rec.Response),
	})
	if err != nil {
		return nil, fmt.Errorf("encode artifact front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	if rec.Prompt != "" {
		b.WriteString("## Prompt\n\n")
		b.WriteString(rec.Prompt)
		b.WriteString("\n\n")
	}
	b.WriteString("## Response\n\n")
	b.WriteString(rec.Response)
	b.WriteString("\n")
	return b.Bytes(), nil
}

// ResponseHash is the hex SHA-256 recorded in an artifact's front matter
func ResponseHash(response string) string {
	sum := sha256.Sum256([]byte(response))
	return hex.EncodeToString(sum[:])
}

// List returns saved artifacts, newest first
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list context directory: %w", err)
	}

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Info{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Modified.Equal(out[j].Modified) {
			return out[i].Name > out[j].Name
		}
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}
