package genie

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/genie-relay/internal/model"
)

func TestParseExchange(t *testing.T) {
	payload := map[string]any{
		"status":  "EXECUTING_QUERY",
		"content": "what is revenue?",
		"attachments": []any{
			map[string]any{
				"attachment_id": "a1",
				"query":         map[string]any{"description": "Total revenue by quarter.", "query": "SELECT 1"},
				"text":          map[string]any{"content": "ignored, query wins"},
			},
			map[string]any{"id": "a2", "text": map[string]any{"content": "Nested text content."}},
			map[string]any{"id": "a3", "text": "Plain text string."},
			"not an object",
		},
	}

	ex := ParseExchange("c1", "m1", payload)
	assert.Equal(t, model.StatusRunning, ex.Status)
	assert.Equal(t, "what is revenue?", ex.Question)
	require.Len(t, ex.Attachments, 3)

	assert.Equal(t, "a1", ex.Attachments[0].ID)
	assert.Equal(t, "Total revenue by quarter.", ex.Attachments[0].Text)
	assert.True(t, ex.Attachments[0].HasQuery)

	assert.Equal(t, "a2", ex.Attachments[1].ID)
	assert.Equal(t, "Nested text content.", ex.Attachments[1].Text)
	assert.False(t, ex.Attachments[1].HasQuery)

	assert.Equal(t, "Plain text string.", ex.Attachments[2].Text)
}

func TestUsableExplanation(t *testing.T) {
	assert.False(t, usableExplanation("", "q"))
	assert.False(t, usableExplanation("too short", "q"))
	assert.True(t, usableExplanation("ten chars!", "q"))
	assert.False(t, usableExplanation("what is revenue?", "what is revenue?"))
	assert.False(t, usableExplanation(" what is revenue? ", "what is revenue?"))
}

func TestExtractFallbackAttachments(t *testing.T) {
	payload := map[string]any{
		"attachments": []any{
			map[string]any{"text": map[string]any{"content": "First part"}},
			map[string]any{"description": "Second part"},
		},
		"content": "this top-level field is not used when attachments match",
	}
	assert.Equal(t, "First part\n\nSecond part", ExtractFallback(payload, false))
}

func TestExtractFallbackTopLevelFields(t *testing.T) {
	payload := map[string]any{
		"content":  "short",
		"message":  "A message long enough to be an answer.",
		"response": map[string]any{"text": "nested"},
	}
	assert.Equal(t, "A message long enough to be an answer.\n\nnested", ExtractFallback(payload, false))
}

func TestExtractFallbackNothingFound(t *testing.T) {
	payload := map[string]any{"status": "COMPLETED", "content": "tiny"}

	assert.Equal(t, MsgNoContent, ExtractFallback(payload, false))

	dump := ExtractFallback(payload, true)
	assert.True(t, strings.HasPrefix(dump, "⚠️ Debug - Full response:\n```json\n"))
	assert.Contains(t, dump, `"status": "COMPLETED"`)
}

func TestExtractFallbackDumpIsTruncated(t *testing.T) {
	payload := map[string]any{"blob": map[string]any{"x": strings.Repeat("y", 5000)}}

	dump := ExtractFallback(payload, true)
	inner := strings.TrimSuffix(strings.TrimPrefix(dump, "⚠️ Debug - Full response:\n```json\n"), "\n```")
	assert.Len(t, []rune(inner), maxDebugDumpChars)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "boom", failureMessage(map[string]any{"error": map[string]any{"message": "boom"}}))
	assert.Equal(t, "plain", failureMessage(map[string]any{"error": "plain"}))
	assert.Equal(t, "Unknown error", failureMessage(map[string]any{"error": map[string]any{}}))
	assert.Equal(t, "Unknown error", failureMessage(map[string]any{}))
}
