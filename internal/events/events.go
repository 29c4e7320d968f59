// Package events publishes account lifecycle events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeAccountRegistered = "account.registered"
	TypeAccountLocked     = "account.locked"
	TypeAccountUnlocked   = "account.unlocked"
	TypeEmailVerified     = "account.email_verified"
	TypeAccountDeleted    = "account.deleted"
)

// Event is the broker-agnostic payload.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	AccountID  string            `json:"account_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Encode returns the JSON wire form of e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
