// Package redisstore keeps storage origins in Redis. Writes publish a change
// message on the origin's channel and Watch subscribes to it.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Store struct {
	client *redis.Client
	origin string
	source uuid.UUID
	logger *zap.Logger
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(client *redis.Client, origin string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if origin == "" {
		return nil, fmt.Errorf("origin is empty")
	}

	s := &Store{
		client: client,
		origin: origin,
		source: uuid.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("client.Ping: %w", err)
	}

	return client, nil
}

type message struct {
	Source   uuid.UUID `json:"source"`
	Key      string    `json:"key"`
	OldValue *string   `json:"old,omitempty"`
	NewValue *string   `json:"new,omitempty"`
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("client.Get: %w", err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	old, err := s.client.SetArgs(ctx, s.redisKey(key), value, redis.SetArgs{Get: true}).Result()

	var oldValue *string
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return fmt.Errorf("client.SetArgs: %w", err)
	default:
		oldValue = &old
	}

	s.publish(ctx, message{Key: key, OldValue: oldValue, NewValue: &value})
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	old, err := s.client.GetDel(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("client.GetDel: %w", err)
	}

	s.publish(ctx, message{Key: key, OldValue: &old})
	return nil
}

// Watch reports changes made by other handles of the origin until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(domain.StorageEvent)) error {
	pubsub := s.client.Subscribe(ctx, s.channel())
	defer pubsub.Close()

	// wait for the subscription to be confirmed so no change is missed after Watch starts
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pubsub.Receive: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var m message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				s.logger.Warn("redisstore: bad change message", zap.Error(err))
				continue
			}
			if m.Source == s.source {
				continue
			}

			fn(domain.StorageEvent{Key: m.Key, OldValue: m.OldValue, NewValue: m.NewValue})
		}
	}
}

// publish announces a change that is already stored. A failure is logged
// and not returned: the write succeeded and callers must still treat it as
// persisted.
func (s *Store) publish(ctx context.Context, m message) {
	m.Source = s.source

	payload, err := json.Marshal(m)
	if err != nil {
		s.logger.Warn("redisstore: change message not built", zap.String("key", m.Key), zap.Error(err))
		return
	}

	if err := s.client.Publish(ctx, s.channel(), payload).Err(); err != nil {
		s.logger.Warn("redisstore: change not published", zap.String("key", m.Key), zap.Error(err))
	}
}

func (s *Store) redisKey(key string) string {
	return "storage:" + s.origin + ":" + key
}

func (s *Store) channel() string {
	return "storage-events:" + s.origin
}
