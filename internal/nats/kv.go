package nats

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"
)

// BindingBucket is the KeyValue bucket holding conversation bindings.
const BindingBucket = "genie_bindings"

// ErrEmptyBinding is returned when a binding is written without both ids.
var ErrEmptyBinding = errors.New("binding requires local and remote conversation ids")

// KVStore keeps conversation bindings in a JetStream KeyValue bucket so that
// several relay replicas share them. Keys are the encoded chat conversation
// ids; see Token.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens the binding bucket, creating it on first use.
func NewKVStore(ctx context.Context, client *Client) (*KVStore, error) {
	js := client.JetStream()
	kv, err := js.KeyValue(ctx, BindingBucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BindingBucket,
			Description: "Teams conversation to Genie conversation bindings",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, errors.Wrap(err, "open binding bucket")
	}
	return &KVStore{kv: kv}, nil
}

// Get returns the remote conversation bound to localID.
func (s *KVStore) Get(ctx context.Context, localID string) (string, bool, error) {
	localID = strings.TrimSpace(localID)
	if localID == "" {
		return "", false, nil
	}

	entry, err := s.kv.Get(ctx, Token(localID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get binding")
	}
	return string(entry.Value()), true, nil
}

// PutIfAbsent creates the binding with the bucket's create-if-absent
// primitive. When the key already exists the stored binding wins.
func (s *KVStore) PutIfAbsent(ctx context.Context, localID, remoteID string) (string, bool, error) {
	localID = strings.TrimSpace(localID)
	if localID == "" || remoteID == "" {
		return "", false, ErrEmptyBinding
	}

	_, err := s.kv.Create(ctx, Token(localID), []byte(remoteID))
	if err == nil {
		return remoteID, true, nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return "", false, errors.Wrap(err, "put binding")
	}

	existing, ok, err := s.Get(ctx, localID)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, errors.Errorf("binding for %s vanished after conflict", localID)
	}
	return existing, false, nil
}

// Close is a no-op; the connection belongs to the Client.
func (s *KVStore) Close() error {
	return nil
}
