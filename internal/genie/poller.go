package genie

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
	"github.com/capitalize-ai/genie-relay/pkg/metrics"
)

const (
	DefaultMaxAttempts  = 30
	DefaultPollInterval = 2 * time.Second

	maxLoggedPayloadChars = 500
)

// MessageSource returns the raw payload of a remote message.
type MessageSource interface {
	GetMessage(ctx context.Context, conversationID, messageID string) (map[string]any, error)
}

// Outcome is how a polled exchange ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Answer is the result of waiting on an exchange. Text is always ready to send
// to the chat user, whatever the outcome.
type Answer struct {
	Outcome  Outcome
	Text     string
	Exchange *model.RemoteExchange
	Attempts int
	// FailureMessage is the remote error text when Outcome is OutcomeFailed.
	FailureMessage string
}

// Err returns the typed error behind a non-completed outcome, or nil.
func (a *Answer) Err() error {
	switch a.Outcome {
	case OutcomeTimedOut:
		return &PollTimeoutError{
			ConversationID: a.Exchange.ConversationID,
			MessageID:      a.Exchange.MessageID,
			Attempts:       a.Attempts,
		}
	case OutcomeFailed:
		return &RemoteFailedError{MessageID: a.Exchange.MessageID, Message: a.FailureMessage}
	default:
		return nil
	}
}

// Poller waits for an exchange to reach a terminal status.
type Poller struct {
	source    MessageSource
	assembler *Assembler

	MaxAttempts int
	Interval    time.Duration

	logger *logger.Logger
}

// NewPoller creates a Poller with the default budget of 30 attempts 2s apart.
func NewPoller(source MessageSource, assembler *Assembler, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	if assembler == nil {
		assembler = NewAssembler(nil, false, log)
	}
	return &Poller{
		source:      source,
		assembler:   assembler,
		MaxAttempts: DefaultMaxAttempts,
		Interval:    DefaultPollInterval,
		logger:      log.Named("poller"),
	}
}

// AwaitCompletion polls the message until it completes, fails or the attempt
// budget runs out. Remote failure and timeout are reported through the
// returned Answer, not as errors. Errors from individual polls are retried
// within the budget; the error of the final attempt is returned if it failed.
// Cancelling ctx stops polling.
func (p *Poller) AwaitCompletion(ctx context.Context, conversationID, messageID string) (*Answer, error) {
	ex := model.NewExchange(conversationID, messageID, "")
	log := p.logger.With(
		zap.String("conversation_id", conversationID),
		zap.String("message_id", messageID),
	)

	attempts := max(p.MaxAttempts, 1)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		payload, err := p.source.GetMessage(ctx, conversationID, messageID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "polling cancelled")
			}
			lastErr = err
			log.Warn("poll attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		} else {
			lastErr = nil
			if answer := p.step(ctx, log, ex, payload, attempt); answer != nil {
				metrics.RecordExchange(string(answer.Outcome), attempt)
				return answer, nil
			}
		}

		if attempt < attempts {
			if err := p.wait(ctx); err != nil {
				return nil, errors.Wrap(err, "polling cancelled")
			}
		}
	}

	if lastErr != nil {
		metrics.RecordExchange("error", attempts)
		return nil, lastErr
	}

	log.Warn("polling timed out", zap.Int("attempts", attempts))
	metrics.RecordExchange(string(OutcomeTimedOut), attempts)
	return &Answer{
		Outcome:  OutcomeTimedOut,
		Text:     MsgTimeout,
		Exchange: ex,
		Attempts: attempts,
	}, nil
}

// step applies one polled payload to ex and returns an Answer once the
// exchange is terminal.
func (p *Poller) step(ctx context.Context, log *logger.Logger, ex *model.RemoteExchange, payload map[string]any, attempt int) *Answer {
	parsed := ParseExchange(ex.ConversationID, ex.MessageID, payload)
	status := model.ParseStatus(parsed.RawStatus)

	ex.RawStatus = parsed.RawStatus
	ex.Question = parsed.Question
	ex.Attachments = parsed.Attachments
	ex.Advance(status)

	log.Debug("poll attempt",
		zap.Int("attempt", attempt),
		zap.String("status", parsed.RawStatus),
	)

	switch ex.Status {
	case model.StatusCompleted:
		return &Answer{
			Outcome:  OutcomeCompleted,
			Text:     p.assembler.Assemble(ctx, ex, payload),
			Exchange: ex,
			Attempts: attempt,
		}
	case model.StatusFailed:
		msg := failureMessage(payload)
		log.Error("Genie message failed", zap.String("error", msg))
		return &Answer{
			Outcome:        OutcomeFailed,
			Text:           failedPrefix + msg,
			Exchange:       ex,
			Attempts:       attempt,
			FailureMessage: msg,
		}
	}

	if status == model.StatusUnknown {
		metrics.UnknownStatusTotal.WithLabelValues(logger.Truncate(parsed.RawStatus, 64)).Inc()
		log.Warn("unknown Genie status",
			zap.String("status", parsed.RawStatus),
			zap.String("payload", truncatedJSON(payload)),
		)
	}
	return nil
}

func (p *Poller) wait(ctx context.Context) error {
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncatedJSON(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return logger.Truncate(string(data), maxLoggedPayloadChars)
}
