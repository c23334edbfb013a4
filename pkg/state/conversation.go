package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skillhost/skillhost/pkg/dialog"
)

// conversationData is the persisted shape: the dialog stack plus a bag of
// named conversation-scoped properties.
type conversationData struct {
	DialogState *dialog.State              `json:"dialogState"`
	Properties  map[string]json.RawMessage `json:"properties,omitempty"`
}

// ConversationState is one conversation's state for the duration of a
// turn: rehydrated from the store when the turn starts, mutated in memory
// while dialogs run, and written back exactly once by SaveChanges. It is
// not safe for concurrent use; the turn runner serializes turns per
// conversation.
type ConversationState struct {
	store          Store
	conversationID string
	data           conversationData
}

// Load rehydrates the conversation's state. A conversation with no
// history starts empty; that is not an error.
func Load(ctx context.Context, store Store, conversationID string) (*ConversationState, error) {
	cs := &ConversationState{store: store, conversationID: conversationID}
	blob, err := store.Load(ctx, conversationID)
	if err != nil {
		if err == ErrNotFound {
			cs.data.DialogState = dialog.NewState()
			return cs, nil
		}
		return nil, fmt.Errorf("load conversation %q: %w", conversationID, err)
	}
	if err := json.Unmarshal(blob, &cs.data); err != nil {
		return nil, fmt.Errorf("decode conversation %q: %w", conversationID, err)
	}
	if cs.data.DialogState == nil {
		cs.data.DialogState = dialog.NewState()
	}
	return cs, nil
}

// ConversationID returns the owning conversation's ID.
func (cs *ConversationState) ConversationID() string { return cs.conversationID }

// DialogState returns the conversation's dialog stack.
func (cs *ConversationState) DialogState() *dialog.State { return cs.data.DialogState }

// GetProperty decodes a named conversation property into v, reporting
// whether it was set.
func (cs *ConversationState) GetProperty(name string, v any) (bool, error) {
	raw, ok := cs.data.Properties[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode property %q: %w", name, err)
	}
	return true, nil
}

// SetProperty stores a named conversation property.
func (cs *ConversationState) SetProperty(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode property %q: %w", name, err)
	}
	if cs.data.Properties == nil {
		cs.data.Properties = make(map[string]json.RawMessage)
	}
	cs.data.Properties[name] = raw
	return nil
}

// DeleteProperty removes a named conversation property.
func (cs *ConversationState) DeleteProperty(name string) {
	delete(cs.data.Properties, name)
}

// SaveChanges writes the state back unconditionally. The turn runner
// calls it exactly once at the end of every turn, whatever the dialogs
// did, so a cancelled or errored stack never leaves stale state behind.
func (cs *ConversationState) SaveChanges(ctx context.Context) error {
	blob, err := json.Marshal(cs.data)
	if err != nil {
		return fmt.Errorf("encode conversation %q: %w", cs.conversationID, err)
	}
	if err := cs.store.Save(ctx, cs.conversationID, blob); err != nil {
		return fmt.Errorf("save conversation %q: %w", cs.conversationID, err)
	}
	return nil
}

// Clear drops all dialog and property state, e.g. when a conversation
// ends. The change still only persists via SaveChanges.
func (cs *ConversationState) Clear() {
	cs.data = conversationData{DialogState: dialog.NewState()}
}
