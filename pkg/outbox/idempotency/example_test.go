package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// memoryStore keeps markers in a map and ignores TTLs.
type memoryStore map[string]string

func (m memoryStore) Get(_ context.Context, key string) (string, error) {
	return m[key], nil
}

func (m memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m[key]; ok {
		return false, nil
	}
	m[key] = fmt.Sprint(value)
	return true, nil
}

func (m memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m, key)
	}
	return nil
}

func (m memoryStore) IdempotencyKey(scope, id string) string {
	return "cv:idempotency:" + scope + ":" + id
}

func ExampleManager_Process() {
	ctx := context.Background()
	manager, _ := NewManager(memoryStore{}, 7*24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	attempts := 0
	insertRow := func(context.Context) error {
		attempts++
		if attempts == 1 {
			return errors.New("bigquery unavailable")
		}
		return nil
	}

	for delivery := 1; delivery <= 3; delivery++ {
		ran, err := manager.Process(ctx, "analytics-worker", eventID, insertRow)
		fmt.Printf("delivery %d: ran=%v err=%v\n", delivery, ran, err)
	}
	// Output:
	// delivery 1: ran=true err=bigquery unavailable
	// delivery 2: ran=true err=<nil>
	// delivery 3: ran=false err=<nil>
}
