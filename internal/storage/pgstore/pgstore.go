// Package pgstore keeps storage origins in Postgres. Every write raises a
// pg_notify in the same transaction, and Watch LISTENs for them, so any
// number of processes sharing the database see each other's changes.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultChannel = "web_storage_changed"

	// pg_notify payloads must stay below 8000 bytes; larger values are
	// left out of the notification and read back by the listener.
	maxInlinePayload = 7000
)

type Store struct {
	pool    *pgxpool.Pool
	origin  string
	source  uuid.UUID
	channel string
	logger  *zap.Logger
}

type Option func(*Store)

func WithChannel(channel string) Option {
	return func(s *Store) {
		s.channel = channel
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New returns a handle on origin. Each handle gets its own source id so it
// can skip notifications about its own writes.
func New(pool *pgxpool.Pool, origin string, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if origin == "" {
		return nil, fmt.Errorf("origin is empty")
	}

	s := &Store{
		pool:    pool,
		origin:  origin,
		source:  uuid.New(),
		channel: DefaultChannel,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

type notification struct {
	Origin    string    `json:"origin"`
	Source    uuid.UUID `json:"source"`
	Key       string    `json:"key"`
	OldValue  *string   `json:"old,omitempty"`
	NewValue  *string   `json:"new,omitempty"`
	Removed   bool      `json:"removed,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM web_storage WHERE origin = $1 AND key = $2`,
		s.origin, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pool.QueryRow: %w", err)
	}

	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := withTx(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		old, err := selectForUpdate(ctx, tx, s.origin, key)
		if err != nil {
			return struct{}{}, fmt.Errorf("selectForUpdate: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO web_storage (origin, key, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (origin, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			s.origin, key, value)
		if err != nil {
			return struct{}{}, fmt.Errorf("tx.Exec: %w", err)
		}

		n := notification{Key: key, OldValue: old, NewValue: &value}
		if err := s.notify(ctx, tx, n); err != nil {
			return struct{}{}, fmt.Errorf("s.notify: %w", err)
		}

		return struct{}{}, nil
	})

	return err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := withTx(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		var old string
		err := tx.QueryRow(ctx,
			`DELETE FROM web_storage WHERE origin = $1 AND key = $2 RETURNING value`,
			s.origin, key,
		).Scan(&old)
		if errors.Is(err, pgx.ErrNoRows) {
			return struct{}{}, nil
		}
		if err != nil {
			return struct{}{}, fmt.Errorf("tx.QueryRow: %w", err)
		}

		n := notification{Key: key, OldValue: &old, Removed: true}
		if err := s.notify(ctx, tx, n); err != nil {
			return struct{}{}, fmt.Errorf("s.notify: %w", err)
		}

		return struct{}{}, nil
	})

	return err
}

// Watch LISTENs on a dedicated pool connection and reports changes made by
// other handles of the origin until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(domain.StorageEvent)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("pool.Acquire: %w", err)
	}
	defer func() {
		// the connection is unusable after a cancelled wait; drop it from the pool
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("conn.Exec LISTEN: %w", err)
	}

	for {
		pn, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("conn.WaitForNotification: %w", err)
		}

		var n notification
		if err := json.Unmarshal([]byte(pn.Payload), &n); err != nil {
			s.logger.Warn("pgstore: bad notification payload", zap.Error(err))
			continue
		}
		if n.Origin != s.origin || n.Source == s.source {
			continue
		}

		event := domain.StorageEvent{Key: n.Key, OldValue: n.OldValue, NewValue: n.NewValue}
		if n.Truncated && !n.Removed {
			value, ok, err := s.Get(ctx, n.Key)
			if err != nil {
				s.logger.Warn("pgstore: reading changed value failed", zap.String("key", n.Key), zap.Error(err))
			} else if ok {
				event.NewValue = &value
			}
		}

		fn(event)
	}
}

func (s *Store) notify(ctx context.Context, tx pgx.Tx, n notification) error {
	n.Origin = s.origin
	n.Source = s.source

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if len(payload) > maxInlinePayload {
		n.OldValue, n.NewValue, n.Truncated = nil, nil, true
		if payload, err = json.Marshal(n); err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, string(payload)); err != nil {
		return fmt.Errorf("tx.Exec pg_notify: %w", err)
	}
	return nil
}

func selectForUpdate(ctx context.Context, tx pgx.Tx, origin, key string) (*string, error) {
	var value string
	err := tx.QueryRow(ctx,
		`SELECT value FROM web_storage WHERE origin = $1 AND key = $2 FOR UPDATE`,
		origin, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tx.QueryRow: %w", err)
	}
	return &value, nil
}
