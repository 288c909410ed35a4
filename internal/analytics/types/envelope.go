package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorvault-backend/pkg/enums"
	"github.com/angelmondragon/creatorvault-backend/pkg/outbox"
)

// ErrMalformed marks messages that can never be processed.
var ErrMalformed = errors.New("malformed ledger event")

// Envelope is a ledger event as received from Pub/Sub, after the outbox
// payload envelope has been unwrapped.
type Envelope struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// DecodeEnvelope reads a published message. Routing comes from the
// attributes; identity and timing come from the body, falling back to the
// attributes for rows written before the body carried them.
func DecodeEnvelope(data []byte, attrs map[string]string) (Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &stored); err != nil {
		return Envelope{}, malformed("body", err)
	}
	attr := func(key string) string { return strings.TrimSpace(attrs[key]) }

	env := Envelope{Payload: stored.Data}
	var err error
	if env.EventType, err = enums.ParseOutboxEventType(attr(outbox.AttrEventType)); err != nil {
		return Envelope{}, malformed(outbox.AttrEventType, err)
	}
	if env.AggregateType, err = enums.ParseOutboxAggregateType(attr(outbox.AttrAggregateType)); err != nil {
		return Envelope{}, malformed(outbox.AttrAggregateType, err)
	}
	if env.AggregateID, err = uuid.Parse(attr(outbox.AttrAggregateID)); err != nil {
		return Envelope{}, malformed(outbox.AttrAggregateID, err)
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = attr(outbox.AttrEventID)
	}
	if env.EventID, err = uuid.Parse(rawID); err != nil {
		return Envelope{}, malformed(outbox.AttrEventID, err)
	}

	env.OccurredAt = stored.OccurredAt
	if env.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr(outbox.AttrCreatedAt)); err == nil {
			env.OccurredAt = created
		}
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return env, nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
}
