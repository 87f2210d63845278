package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/opsmono/agentproxy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_EveryTaskKeepsInputVerbatim(t *testing.T) {
	c := NewComposer("", 0)
	input := "func add(a, b int) int { return a + b } // <tags> & {{braces}} \"quotes\""

	for _, task := range models.AllTasks {
		t.Run(string(task), func(t *testing.T) {
			req := models.GenerationRequest{Task: task, Language: "go", Code: input, Prompt: input}
			out, err := c.Compose(req)
			require.NoError(t, err)
			assert.Contains(t, out, input)
			assert.Contains(t, out, "go")
		})
	}
}

func TestCompose_InputAtLimitIsNotTruncated(t *testing.T) {
	const limit = 4096
	c := NewComposer("", limit)

	// multi-byte runes up to exactly the byte limit
	input := strings.Repeat("xé", limit/3) + strings.Repeat("y", limit-len(strings.Repeat("xé", limit/3)))
	require.Len(t, input, limit)

	out, err := c.Compose(models.GenerationRequest{Task: models.TaskReview, Code: input})
	require.NoError(t, err)
	assert.Contains(t, out, input)
}

func TestCompose_OversizeInputIsRejected(t *testing.T) {
	c := NewComposer("", 16)

	_, err := c.Compose(models.GenerationRequest{
		Task:    models.TaskExplain,
		Code:    "short",
		Context: strings.Repeat("z", 17),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputTooLarge))

	var tooLarge *InputTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, "context", tooLarge.Field)
	assert.Equal(t, 17, tooLarge.Size)
	assert.Equal(t, 16, tooLarge.Limit)
}

func TestCompose_ContextSectionOnlyWhenSupplied(t *testing.T) {
	c := NewComposer("", 0)

	without, err := c.Compose(models.GenerationRequest{Task: models.TaskReview, Code: "x = 1"})
	require.NoError(t, err)
	assert.NotContains(t, without, "Additional context")

	with, err := c.Compose(models.GenerationRequest{Task: models.TaskReview, Code: "x = 1", Context: "legacy module"})
	require.NoError(t, err)
	assert.Contains(t, with, "Additional context:\nlegacy module")
}

func TestCompose_Persona(t *testing.T) {
	c := NewComposer("  You are a patient Python tutor.  ", 0)

	out, err := c.Compose(models.GenerationRequest{Task: models.TaskGenerate, Prompt: "add two numbers", Language: "python"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "You are a patient Python tutor.\n\n"), out)
	assert.Contains(t, out, "Write python code")
}

func TestCompose_OptionalSections(t *testing.T) {
	c := NewComposer("", 0)

	out, err := c.Compose(models.GenerationRequest{Task: models.TaskTest, Code: "def f(): pass", Language: "python", Framework: "pytest"})
	require.NoError(t, err)
	assert.Contains(t, out, "using pytest")

	out, err = c.Compose(models.GenerationRequest{Task: models.TaskTest, Code: "def f(): pass"})
	require.NoError(t, err)
	assert.NotContains(t, out, "using")
	assert.Contains(t, out, "the appropriate language")

	out, err = c.Compose(models.GenerationRequest{Task: models.TaskDebug, Code: "1/0", ErrorOutput: "ZeroDivisionError"})
	require.NoError(t, err)
	assert.Contains(t, out, "Observed error:\nZeroDivisionError")
	assert.NotContains(t, out, "Expected behavior")
}

func TestCompose_MissingInput(t *testing.T) {
	c := NewComposer("", 0)

	_, err := c.Compose(models.GenerationRequest{Task: models.TaskGenerate, Prompt: "   "})
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = c.Compose(models.GenerationRequest{Task: models.TaskRefactor})
	assert.ErrorIs(t, err, ErrMissingInput)

	_, err = c.Compose(models.GenerationRequest{Task: models.TaskGenerate, Description: "a CLI that counts words"})
	assert.NoError(t, err)
}

func TestCompose_UnknownTask(t *testing.T) {
	c := NewComposer("", 0)
	_, err := c.Compose(models.GenerationRequest{Task: "translate", Code: "x"})
	assert.ErrorIs(t, err, ErrUnknownTask)
}
