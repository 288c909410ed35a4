package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorvault-backend/pkg/db/models"
)

// ActorRef names who caused an event.
type ActorRef struct {
	ID   uuid.UUID `json:"id"`
	Role string    `json:"role,omitempty"`
}

const (
	ActorRoleMember  = "member"
	ActorRoleCreator = "creator"
	ActorRoleAdmin   = "admin"
	ActorRoleSystem  = "system"
)

// PayloadEnvelope is the JSON body stored in outbox_events.payload and
// published unchanged.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Pub/Sub attribute keys. Subscribers route and dedupe on these without
// decoding the body.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// MessageAttributes builds the attributes published alongside row.
func MessageAttributes(row models.OutboxEvent, eventID string) map[string]string {
	return map[string]string{
		AttrEventID:       eventID,
		AttrEventType:     string(row.EventType),
		AttrAggregateType: string(row.AggregateType),
		AttrAggregateID:   row.AggregateID.String(),
		AttrCreatedAt:     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
