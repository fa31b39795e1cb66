package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Change operations carried in Message.Type.
const (
	RecordCreated = "absent.created"
	RecordUpdated = "absent.updated"
	RecordDeleted = "absent.deleted"
)

// Change describes a write the authority accepted.
type Change struct {
	RemoteID string    `json:"_id"`
	LocalID  string    `json:"id,omitempty"`
	UserID   string    `json:"user"`
	Actor    string    `json:"actor"`
	At       time.Time `json:"at"`
}

// PublishChange encodes c and enqueues it under op.
func PublishChange(ctx context.Context, q Queue, op string, c Change) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}
	return q.Publish(ctx, Message{Type: op, Body: body})
}

// DecodeChange reads a change event back out of msg.
func DecodeChange(msg Message) (Change, error) {
	switch msg.Type {
	case RecordCreated, RecordUpdated, RecordDeleted:
	default:
		return Change{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var c Change
	if err := json.Unmarshal(msg.Body, &c); err != nil {
		return Change{}, fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return c, nil
}
