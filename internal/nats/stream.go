package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"

	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/pkg/metrics"
)

const (
	// StreamName is the name of the relay event stream.
	StreamName = "GENIE_RELAY"

	// SubjectPrefix is the prefix for all relay subjects.
	SubjectPrefix = "relay"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream creates the relay event stream if it does not exist.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Genie relay exchange and feedback events",
	})
	if err != nil {
		return errors.Wrap(err, "create stream")
	}
	return nil
}

// Token encodes an arbitrary id so it is a valid subject token and KeyValue
// key. Teams conversation ids contain dots and colons.
func Token(id string) string {
	if id == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// EventSubject returns the subject for an event on a chat conversation.
func EventSubject(localConversationID string, eventType model.EventType) string {
	return SubjectPrefix + "." + Token(localConversationID) + ".event." + string(eventType)
}

// EventFilter matches every event of the stream.
func EventFilter() string {
	return SubjectPrefix + ".*.event.>"
}

// PublishEvent publishes an event to JetStream and returns its sequence.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.RelayEvent) (uint64, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "marshal event")
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(event.LocalConversationID, event.Type), data,
		jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, errors.Wrap(err, "publish event")
	}
	return ack.Sequence, nil
}

// RecordStreamSize refreshes the stream size gauge and returns the message
// count.
func (m *StreamManager) RecordStreamSize(ctx context.Context) (uint64, error) {
	stream, err := m.client.JetStream().Stream(ctx, StreamName)
	if err != nil {
		return 0, errors.Wrap(err, "get stream")
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "stream info")
	}
	metrics.NATSStreamMessages.WithLabelValues(StreamName).Set(float64(info.State.Msgs))
	return info.State.Msgs, nil
}

// RecentEvents reads up to limit events starting after afterSequence. It
// returns the events, the last sequence read and whether more may follow.
func (m *StreamManager) RecentEvents(ctx context.Context, afterSequence uint64, limit int) ([]model.RelayEvent, uint64, bool, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     EventFilter(),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		// ephemeral; the server removes it once idle
		InactiveThreshold: 30 * time.Second,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, errors.Wrap(err, "create consumer")
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, errors.Wrap(err, "fetch events")
	}

	var (
		events       []model.RelayEvent
		lastSequence uint64
	)
	for msg := range batch.Messages() {
		var event model.RelayEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			lastSequence = meta.Sequence.Stream
		}
		events = append(events, event)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, false, errors.Wrap(err, "batch error")
	}

	return events, lastSequence, len(events) == limit, nil
}
