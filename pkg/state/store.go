package state

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a conversation has no persisted state yet.
var ErrNotFound = errors.New("conversation state not found")

// Store persists one opaque state blob per conversation. Implementations
// must treat the blob as a unit: Save replaces it whole.
type Store interface {
	// Load returns the blob for the conversation, or ErrNotFound.
	Load(ctx context.Context, conversationID string) (json.RawMessage, error)
	// Save replaces the conversation's blob.
	Save(ctx context.Context, conversationID string, blob json.RawMessage) error
	// Delete removes the conversation's blob. Deleting a missing
	// conversation is not an error.
	Delete(ctx context.Context, conversationID string) error
}
