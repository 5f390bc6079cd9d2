package genie

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/genie-relay/internal/model"
)

const (
	minExplanationChars = 10
	minFallbackChars    = 20
	maxDebugDumpChars   = 2000
)

// Strategy extracts a piece of text from a JSON object. It reports false when
// the shape it looks for is absent or empty.
type Strategy func(obj map[string]any) (string, bool)

// explanationStrategies pull Genie's explanation out of an attachment, in
// priority order.
var explanationStrategies = []Strategy{
	nestedString("query", "description"),
	nestedString("text", "content"),
	plainString("text"),
}

// fallbackAttachmentStrategies are used by ExtractFallback on attachments.
var fallbackAttachmentStrategies = []Strategy{
	nestedString("text", "content"),
	plainString("text"),
	scalarString("content"),
	scalarString("description"),
}

// fallbackFields are the top-level payload fields ExtractFallback inspects.
var fallbackFields = []string{"content", "text", "description", "message", "response", "result"}

// firstMatch runs strategies in order and returns the first hit.
func firstMatch(obj map[string]any, strategies []Strategy) (string, bool) {
	for _, s := range strategies {
		if text, ok := s(obj); ok {
			return text, true
		}
	}
	return "", false
}

func nestedString(key, inner string) Strategy {
	return func(obj map[string]any) (string, bool) {
		nested, ok := obj[key].(map[string]any)
		if !ok {
			return "", false
		}
		s, ok := nested[inner].(string)
		return s, ok && s != ""
	}
}

func plainString(key string) Strategy {
	return func(obj map[string]any) (string, bool) {
		s, ok := obj[key].(string)
		return s, ok && s != ""
	}
}

// scalarString accepts any non-empty scalar and renders it as a string.
func scalarString(key string) Strategy {
	return func(obj map[string]any) (string, bool) {
		v, ok := obj[key]
		if !ok || v == nil {
			return "", false
		}
		if _, isMap := v.(map[string]any); isMap {
			return "", false
		}
		s := formatScalar(v)
		return s, s != ""
	}
}

// topLevelField matches a payload field that is either a long enough string
// or an object carrying "content" or "text" one level down.
func topLevelField(key string) Strategy {
	return func(obj map[string]any) (string, bool) {
		switch v := obj[key].(type) {
		case string:
			return v, utf8.RuneCountInString(v) >= minFallbackChars
		case map[string]any:
			for _, inner := range []string{"content", "text"} {
				if nested, ok := v[inner]; ok && nested != nil {
					s := formatScalar(nested)
					return s, s != ""
				}
			}
		}
		return "", false
	}
}

// ParseExchange builds the typed view of a polled message payload.
func ParseExchange(conversationID, messageID string, payload map[string]any) *model.RemoteExchange {
	ex := model.NewExchange(conversationID, messageID, stringField(payload, "content"))
	ex.RawStatus = stringField(payload, "status")
	ex.Advance(model.ParseStatus(ex.RawStatus))

	list, _ := payload["attachments"].([]any)
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		att := model.Attachment{Raw: obj}
		att.ID = stringField(obj, "attachment_id")
		if att.ID == "" {
			att.ID = stringField(obj, "id")
		}
		att.Text, _ = firstMatch(obj, explanationStrategies)
		_, att.HasQuery = obj["query"].(map[string]any)
		ex.Attachments = append(ex.Attachments, att)
	}
	return ex
}

// usableExplanation filters explanations that are empty, too short to be an
// answer, or an echo of the question.
func usableExplanation(text, question string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < minExplanationChars {
		return false
	}
	return trimmed != strings.TrimSpace(question)
}

// ExtractFallback pulls answer text out of a message payload without fetching
// query results. It tries attachment text first, then well-known top-level
// fields. When nothing matches it returns a JSON dump of the payload if debug
// is set, or the standard apology otherwise.
func ExtractFallback(payload map[string]any, debug bool) string {
	var parts []string

	list, _ := payload["attachments"].([]any)
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := firstMatch(obj, fallbackAttachmentStrategies); ok {
			parts = append(parts, text)
		}
	}

	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}
	return topLevelOrNoContent(payload, "", debug)
}

// topLevelOrNoContent joins the well-known top-level fields of payload,
// skipping any that repeat question. With none left it returns the payload
// dump in debug mode, else the apology.
func topLevelOrNoContent(payload map[string]any, question string, debug bool) string {
	question = strings.TrimSpace(question)
	var parts []string
	for _, field := range fallbackFields {
		text, ok := topLevelField(field)(payload)
		if !ok || (question != "" && strings.TrimSpace(text) == question) {
			continue
		}
		parts = append(parts, text)
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}
	if !debug {
		return MsgNoContent
	}
	return "⚠️ Debug - Full response:\n```json\n" + debugDump(payload) + "\n```"
}

func debugDump(payload map[string]any) string {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	r := []rune(string(data))
	if len(r) > maxDebugDumpChars {
		r = r[:maxDebugDumpChars]
	}
	return string(r)
}

// failureMessage extracts the error text of a FAILED message.
func failureMessage(payload map[string]any) string {
	switch v := payload["error"].(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
		if msg, ok := v["error"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if v != "" {
			return v
		}
	}
	return unknownError
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// formatScalar renders a decoded JSON value in its natural string form.
func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%v", t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}
