package nats

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/genie-relay/internal/model"
)

// Valid KeyValue keys; subject tokens additionally exclude ".".
var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestTokenIsSafeForSubjectsAndKeys(t *testing.T) {
	ids := []string{
		"19:meeting_abc@thread.v2",
		"a:1xyz.with spaces*and>wildcards",
		"default",
		"",
	}
	for _, id := range ids {
		tok := Token(id)
		assert.Regexp(t, validKey, tok, id)
		assert.NotContains(t, tok, ".", id)
	}
	assert.NotEqual(t, Token("a.b"), Token("a_b"))
}

func TestEventSubject(t *testing.T) {
	subject := EventSubject("19:abc@thread.v2", model.EventTypeExchangeTimedOut)

	parts := strings.Split(subject, ".")
	assert.Equal(t, []string{"relay", Token("19:abc@thread.v2"), "event", "exchange", "timed_out"}, parts)
	assert.True(t, strings.HasPrefix(EventFilter(), SubjectPrefix+"."))
}
