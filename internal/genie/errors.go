package genie

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrIncompleteStart is returned when start-conversation succeeds but the
// response lacks a conversation or message id.
var ErrIncompleteStart = errors.New("start-conversation response missing conversation_id or message_id")

// User-facing replies for outcomes that are not answers.
const (
	MsgTimeout          = "Sorry, Genie is taking too long to respond. Please try again."
	MsgNoContent        = "Sorry, I couldn't extract Genie's response. Please try again."
	MsgIncompleteStart  = "Sorry, I couldn't start a conversation with Genie."
	MsgTransportFailure = "Sorry, I encountered an error contacting Databricks Genie. Please try again."
	MsgUnexpected       = "Sorry, I encountered an unexpected error. Please try again."
	failedPrefix        = "Sorry, Genie encountered an error: "
	unknownError        = "Unknown error"
)

// Operation names used in errors, logs, metrics and spans.
const (
	OpStart       = "start_conversation"
	OpContinue    = "continue_conversation"
	OpGetMessage  = "get_message"
	OpQueryResult = "get_query_result"
	OpFeedback    = "send_feedback"
)

// ValidationError reports bad local input: configuration, inbound payloads or
// feedback that is missing fields. It is never the remote service's fault.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

// Kind classifies a RemoteServiceError by HTTP status.
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindOther        Kind = "other"
)

// RemoteServiceError is a 4xx/5xx answer from the Genie API.
type RemoteServiceError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string

	// Used to build guidance text.
	SpaceID  string
	ClientID string
}

func (e *RemoteServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("genie %s: HTTP %d %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("genie %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

// Kind returns the status class of the error.
func (e *RemoteServiceError) Kind() Kind {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}

// UserMessage returns chat-ready guidance for the failure.
func (e *RemoteServiceError) UserMessage() string {
	if e.Op == OpContinue {
		switch e.Kind() {
		case KindBadRequest:
			return "❌ Error continuing conversation:\n\n" + e.Message
		case KindNotFound:
			return "❌ Conversation not found:\n\n" +
				"The conversation may have expired or been deleted.\n" +
				"Please start a new conversation."
		}
	}

	switch e.Kind() {
	case KindBadRequest:
		return "❌ Databricks Genie Error:\n\n" + e.Message + "\n\n" +
			"**Possible causes:**\n" +
			"• The Genie space ID '" + e.SpaceID + "' may be invalid\n" +
			"• The service principal may not have access to this space\n" +
			"• The request format may be incorrect\n\n" +
			"Please verify:\n" +
			"1. Space ID is correct in your app settings\n" +
			"2. Service principal is registered in Databricks Admin Console\n" +
			"3. Service principal has 'Can use' permission on the Genie space"
	case KindUnauthorized:
		return "❌ Authentication failed:\n\n" + e.Message + "\n\n" +
			"Please verify:\n" +
			"• Service principal credentials (CLIENT_ID, CLIENT_SECRET, TENANT_ID) are correct\n" +
			"• Service principal has 'Azure Databricks' API permission\n" +
			"• Admin consent has been granted for the API permission"
	case KindForbidden:
		return "❌ Access denied:\n\n" + e.Message + "\n\n" +
			"The service principal does not have permission to access this Genie space.\n\n" +
			"Please:\n" +
			"1. Go to Databricks Admin Console → Service Principals\n" +
			"2. Find or add service principal: " + e.ClientID + "\n" +
			"3. Go to Genie space settings and grant 'Can use' permission"
	case KindNotFound:
		return "❌ Resource not found:\n\n" + e.Message + "\n\n" +
			"The Genie space '" + e.SpaceID + "' was not found.\n" +
			"Please verify DATABRICKS_GENIE_SPACE_ID in your app settings."
	default:
		return fmt.Sprintf("❌ Databricks Genie Error (%d):\n\n%s", e.StatusCode, e.Message)
	}
}

// TransportError is a network-level failure talking to a remote service,
// including failure to obtain a bearer credential.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("genie %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PollTimeoutError reports that polling ran out of attempts before the
// exchange reached a terminal status.
type PollTimeoutError struct {
	ConversationID string
	MessageID      string
	Attempts       int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("genie message %s: no terminal status after %d attempts", e.MessageID, e.Attempts)
}

// RemoteFailedError reports that the remote service marked the exchange FAILED.
type RemoteFailedError struct {
	MessageID string
	Message   string
}

func (e *RemoteFailedError) Error() string {
	return fmt.Sprintf("genie message %s failed: %s", e.MessageID, e.Message)
}

// UserMessage maps an error from a start/continue/poll call onto the text the
// chat user should see.
func UserMessage(err error) string {
	var remote *RemoteServiceError
	var validation *ValidationError
	var transport *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncompleteStart):
		return MsgIncompleteStart
	case errors.As(err, &remote):
		return remote.UserMessage()
	case errors.As(err, &validation):
		return "Sorry, I couldn't process that request: " + validation.Reason
	case errors.As(err, &transport):
		return MsgTransportFailure
	default:
		return MsgUnexpected
	}
}

// IsInfrastructure reports whether err should surface to the HTTP layer as a
// server fault rather than only as a chat reply.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteServiceError
	var validation *ValidationError
	if errors.As(err, &remote) || errors.As(err, &validation) || errors.Is(err, ErrIncompleteStart) {
		return false
	}
	return true
}
