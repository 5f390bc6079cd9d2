package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/internal/teams"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
	"github.com/capitalize-ai/genie-relay/pkg/metrics"
)

// Chat replies that do not come from Genie.
const (
	MsgEmptyQuestion   = "Please send me a question about your data."
	MsgWelcome         = "Hello! I'm your Databricks Genie assistant. Ask me questions about your data, and I'll help you find insights!"
	MsgFeedbackThanks  = "Thanks for your feedback!"
	MsgFeedbackFailed  = "Sorry, couldn't record feedback."
	MsgFeedbackInvalid = "Sorry, couldn't record your feedback."
)

const publishTimeout = 2 * time.Second

// Actions reported in Result.
const (
	ActionAnswered = "answered"
	ActionError    = "error"
	ActionEmpty    = "empty"
	ActionFeedback = "feedback"
	ActionWelcome  = "welcome"
	ActionIgnored  = "ignored"
)

// AnswerWaiter waits for a remote exchange to finish.
type AnswerWaiter interface {
	AwaitCompletion(ctx context.Context, conversationID, messageID string) (*genie.Answer, error)
}

// EventPublisher records relay events. It may be nil in Relay.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.RelayEvent) (uint64, error)
}

// Result summarizes how an inbound activity was handled.
type Result struct {
	Action         string `json:"action"`
	Outcome        string `json:"outcome,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

// Relay answers chat activities with Genie.
type Relay struct {
	sessions *SessionService
	poller   AnswerWaiter
	feedback *FeedbackService
	sender   teams.Sender
	events   EventPublisher
	logger   *logger.Logger
}

// NewRelay creates a Relay. events may be nil.
func NewRelay(sessions *SessionService, poller AnswerWaiter, feedback *FeedbackService, sender teams.Sender, events EventPublisher, log *logger.Logger) *Relay {
	return &Relay{
		sessions: sessions,
		poller:   poller,
		feedback: feedback,
		sender:   sender,
		events:   events,
		logger:   log.Named("relay"),
	}
}

// HandleActivity processes one inbound activity. Business failures become chat
// replies and a nil error; the error return is reserved for infrastructure
// faults, after an apology has been attempted.
func (r *Relay) HandleActivity(ctx context.Context, a *teams.Activity) (*Result, error) {
	metrics.ActivitiesTotal.WithLabelValues(a.Type).Inc()

	switch a.Type {
	case teams.ActivityMessage:
		return r.handleMessage(ctx, a)
	case teams.ActivityConversationUpdate:
		return r.handleConversationUpdate(ctx, a)
	default:
		r.logger.Info("unhandled activity type", zap.String("type", a.Type))
		return &Result{Action: ActionIgnored}, nil
	}
}

func (r *Relay) handleConversationUpdate(ctx context.Context, a *teams.Activity) (*Result, error) {
	if !a.AddedMembersOtherThanBot() {
		return &Result{Action: ActionIgnored}, nil
	}
	if err := r.sender.Send(ctx, a.Reply(MsgWelcome)); err != nil {
		r.logger.Error("sending welcome message", zap.Error(err))
	}
	return &Result{Action: ActionWelcome}, nil
}

func (r *Relay) handleMessage(ctx context.Context, a *teams.Activity) (*Result, error) {
	if fb, ok := a.Feedback(); ok {
		return r.handleFeedback(ctx, a, fb)
	}

	localID := a.LocalConversationID()
	log := r.logger.WithConversation(logger.CorrelationID(ctx), localID)

	text := a.UserText()
	if text == "" {
		log.Warn("empty message received")
		return &Result{Action: ActionEmpty}, r.reply(ctx, a, MsgEmptyQuestion)
	}
	log.Info("processing message", zap.String("text", logger.Truncate(text, 100)))

	if err := r.sender.Send(ctx, a.Typing()); err != nil {
		log.Warn("sending typing indicator", zap.Error(err))
	}

	ex, err := r.sessions.ResolveAndRoute(ctx, localID, text)
	if err != nil {
		return r.replyError(ctx, a, log, err)
	}

	answer, err := r.poller.AwaitCompletion(ctx, ex.ConversationID, ex.MessageID)
	if err != nil {
		return r.replyError(ctx, a, log, err)
	}

	if err := r.reply(ctx, a, answer.Text); err != nil {
		return nil, err
	}
	log.Info("sent answer",
		zap.String("outcome", string(answer.Outcome)),
		zap.Int("attempts", answer.Attempts),
		zap.String("text", logger.Truncate(answer.Text, 100)),
	)

	if answer.Outcome == genie.OutcomeCompleted && ex.ConversationID != "" && ex.MessageID != "" {
		card := a.CardReply(teams.FeedbackCard(ex.ConversationID, ex.MessageID))
		if err := r.sender.Send(ctx, card); err != nil {
			log.Error("sending feedback card", zap.Error(err))
		}
	}

	r.publish(ctx, exchangeEvent(localID, ex, answer))

	return &Result{
		Action:         ActionAnswered,
		Outcome:        string(answer.Outcome),
		ConversationID: ex.ConversationID,
		MessageID:      ex.MessageID,
	}, nil
}

func (r *Relay) handleFeedback(ctx context.Context, a *teams.Activity, fb *teams.FeedbackValue) (*Result, error) {
	ev := model.FeedbackEvent{
		ConversationID: fb.ConversationID,
		MessageID:      fb.MessageID,
		Rating:         fb.Rating,
	}

	result := &Result{Action: ActionFeedback, ConversationID: fb.ConversationID, MessageID: fb.MessageID}
	var validation *genie.ValidationError
	err := r.feedback.SubmitFeedback(ctx, ev)
	switch {
	case err == nil:
		result.Outcome = "recorded"
		rating, _ := model.NormalizeRating(ev.Rating)
		r.publish(ctx, &model.RelayEvent{
			Type:                 model.EventTypeFeedback,
			LocalConversationID:  a.LocalConversationID(),
			RemoteConversationID: ev.ConversationID,
			MessageID:            ev.MessageID,
			Metadata:             map[string]any{"rating": string(rating)},
		})
		return result, r.reply(ctx, a, MsgFeedbackThanks)
	case errors.As(err, &validation):
		result.Outcome = "invalid"
		return result, r.reply(ctx, a, MsgFeedbackInvalid)
	default:
		result.Outcome = "failed"
		return result, r.reply(ctx, a, MsgFeedbackFailed)
	}
}

// replyError tells the user what went wrong. Infrastructure errors are
// returned after the apology; everything else is a handled outcome.
func (r *Relay) replyError(ctx context.Context, a *teams.Activity, log *logger.Logger, err error) (*Result, error) {
	log.Error("processing message", zap.Error(err))
	sendErr := r.reply(ctx, a, genie.UserMessage(err))

	if genie.IsInfrastructure(err) {
		return nil, err
	}
	if sendErr != nil {
		return nil, sendErr
	}
	return &Result{Action: ActionError, Outcome: errorOutcome(err)}, nil
}

func (r *Relay) reply(ctx context.Context, a *teams.Activity, text string) error {
	if err := r.sender.Send(ctx, a.Reply(text)); err != nil {
		r.logger.Error("sending reply", zap.Error(err))
		return errors.Wrap(err, "send reply")
	}
	return nil
}

// publish records an event without letting event-log trouble affect the
// chat reply.
func (r *Relay) publish(ctx context.Context, event *model.RelayEvent) {
	if r.events == nil || event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := r.events.PublishEvent(ctx, event); err != nil {
		r.logger.Warn("publishing relay event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func exchangeEvent(localID string, ex *model.RemoteExchange, answer *genie.Answer) *model.RelayEvent {
	event := &model.RelayEvent{
		LocalConversationID:  localID,
		RemoteConversationID: ex.ConversationID,
		MessageID:            ex.MessageID,
		Metadata:             map[string]any{"attempts": answer.Attempts},
	}
	switch answer.Outcome {
	case genie.OutcomeCompleted:
		event.Type = model.EventTypeExchangeCompleted
	case genie.OutcomeFailed:
		event.Type = model.EventTypeExchangeFailed
		event.Reason = answer.FailureMessage
	case genie.OutcomeTimedOut:
		event.Type = model.EventTypeExchangeTimedOut
	default:
		return nil
	}
	return event
}

func errorOutcome(err error) string {
	var remote *genie.RemoteServiceError
	switch {
	case errors.As(err, &remote):
		return string(remote.Kind())
	case errors.Is(err, genie.ErrIncompleteStart):
		return "incomplete_start"
	default:
		return "invalid"
	}
}
