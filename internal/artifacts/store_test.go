package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opsmono/agentproxy/internal/eventbus"
	"github.com/opsmono/agentproxy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

type countingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *countingPublisher) Publish(subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func newTestStore(t *testing.T, pub eventbus.Publisher) *Store {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s := NewStore(filepath.Join(t.TempDir(), "code-assistant"), eventbus.NewEmitter("code-assistant", pub, logger), logger)
	require.NoError(t, s.Init())
	return s
}

func TestInit_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "agent")
	s := NewStore(dir, nil, zaptest.NewLogger(t))

	require.NoError(t, s.Init())
	st, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	// idempotent
	require.NoError(t, s.Init())
}

func TestSave_WritesFrontMatterAndResponse(t *testing.T) {
	pub := &countingPublisher{}
	s := newTestStore(t, pub)
	at := time.Date(2026, 10, 19, 8, 30, 0, 123, time.UTC)

	path, err := s.Save(context.Background(), Record{
		Agent:     "code-assistant",
		Task:      models.TaskGenerate,
		Model:     "qwen2.5-coder:7b",
		Language:  "python",
		RequestID: "req-1",
		Prompt:    "Write python code",
		Response:  "def add(a, b):\n    return a + b",
		Usage:     &models.Usage{PromptTokens: 10, CompletionTokens: 20},
		CreatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, s.Dir(), filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "generate-20261019T083000.000000123Z-"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)

	parts := strings.SplitN(content, "---\n", 3)
	require.Len(t, parts, 3)

	var meta frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &meta))
	assert.Equal(t, "code-assistant", meta.Agent)
	assert.Equal(t, "generate", meta.Task)
	assert.Equal(t, "qwen2.5-coder:7b", meta.Model)
	assert.Equal(t, "req-1", meta.RequestID)
	assert.True(t, at.Equal(meta.CreatedAt))
	require.NotNil(t, meta.Usage)
	assert.Equal(t, 20, meta.Usage.CompletionTokens)
	assert.Equal(t, ResponseHash("def add(a, b):\n    return a + b"), meta.SHA256)
	assert.Len(t, meta.SHA256, 64)

	assert.Contains(t, parts[2], "## Prompt\n\nWrite python code")
	assert.Contains(t, parts[2], "## Response\n\ndef add(a, b):\n    return a + b\n")

	assert.Equal(t, []string{"agents.code-assistant.artifacts"}, pub.subjects)
}

func TestSave_ConcurrentWritersGetDistinctFiles(t *testing.T) {
	s := newTestStore(t, nil)
	// identical timestamps force uniqueness to come from the random suffix
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	const writers = 32
	paths := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.Save(context.Background(), Record{Agent: "a", Task: models.TaskReview, Response: "ok", CreatedAt: at})
			assert.NoError(t, err)
			paths[i] = p
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, writers)
	for _, p := range paths {
		require.NotEmpty(t, p)
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, writers)
}

func TestSave_NeverOverwritesExistingFile(t *testing.T) {
	s := newTestStore(t, nil)
	existing := filepath.Join(s.Dir(), "taken.md")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	calls := 0
	s.newName = func(task models.TaskKind, at time.Time) string {
		calls++
		if calls == 1 {
			return "taken.md"
		}
		return artifactName(task, at)
	}

	path, err := s.Save(context.Background(), Record{Task: models.TaskExplain, Response: "new"})
	require.NoError(t, err)
	assert.NotEqual(t, existing, path)
	assert.Equal(t, 2, calls)

	raw, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(raw))
}

func TestSave_GivesUpAfterRepeatedCollisions(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "taken.md"), []byte("x"), 0o644))
	s.newName = func(models.TaskKind, time.Time) string { return "taken.md" }

	_, err := s.Save(context.Background(), Record{Task: models.TaskExplain, Response: "new"})
	assert.Error(t, err)
}

func TestSave_CanceledContext(t *testing.T) {
	s := newTestStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, Record{Task: models.TaskTest, Response: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestList_NewestFirst(t *testing.T) {
	s := newTestStore(t, nil)

	older := filepath.Join(s.Dir(), "review-old.md")
	newer := filepath.Join(s.Dir(), "generate-new.md")
	require.NoError(t, os.WriteFile(older, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("skip"), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "generate-new.md", list[0].Name)
	assert.Equal(t, int64(2), list[0].Size)
	assert.Equal(t, "review-old.md", list[1].Name)
}

func TestList_MissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "never-created"), nil, zaptest.NewLogger(t))
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
