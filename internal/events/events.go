// Package events carries domain events out of the core. Delivery is fire and
// forget: services emit after a transition commits, and a failed emit is
// logged, never rolled back into the transition.
package events

import (
	"context"
	"time"

	id "realhub/pkg/domain"
)

// Event names follow "<kind>.<what happened>": property.verified, kyc.rejected,
// payment.completed.
type Event struct {
	Name       string            `json:"name"`
	Kind       id.EntityKind     `json:"kind"`
	EntityID   string            `json:"entity_id"`
	ActorID    id.UserID         `json:"actor_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Publisher is the notification collaborator port. Implementations must not
// block the caller beyond their own bounded timeouts.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Sink receives events on the consuming side of an async pipeline.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
