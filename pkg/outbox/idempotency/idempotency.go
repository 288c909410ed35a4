// Package idempotency keeps at-least-once consumers from applying the same
// outbox event twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorvault-backend/pkg/redis"
)

const processedScope = "evt:processed"

var (
	errConsumerRequired = errors.New("consumer name is required")
	errEventIDRequired  = errors.New("event id is required")
)

// Manager records processed (consumer, event) pairs in Redis. A marker lives
// for ttl; zero keeps it until evicted.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, fmt.Errorf("idempotency ttl %s is negative", ttl)
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Claim is a marker this consumer set for one event.
type Claim struct {
	store redis.IdempotencyStore
	key   string
}

// Release removes the marker so a redelivery is processed again.
func (c *Claim) Release(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.store.Del(ctx, c.key)
}

// Claim sets the marker for the event. A nil claim with a nil error means
// another delivery already holds it.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (*Claim, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return nil, err
	}
	won, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if !won {
		return nil, nil
	}
	return &Claim{store: m.store, key: key}, nil
}

// Process runs fn at most once per consumer and event. If fn fails the claim
// is released so the next delivery retries. The bool reports whether fn ran.
func (m *Manager) Process(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	claim, err := m.Claim(ctx, consumer, eventID)
	if err != nil || claim == nil {
		return false, err
	}
	runErr := fn(ctx)
	if runErr == nil {
		return true, nil
	}
	if err := claim.Release(context.WithoutCancel(ctx)); err != nil {
		return true, errors.Join(runErr, fmt.Errorf("release idempotency marker: %w", err))
	}
	return true, runErr
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errConsumerRequired
	}
	if eventID == uuid.Nil {
		return "", errEventIDRequired
	}
	return m.store.IdempotencyKey(processedScope+":"+consumer, eventID.String()), nil
}
