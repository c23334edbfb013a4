package bot

import (
	"context"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/state"
)

// TurnContext carries one inbound activity through the dialog stack and
// collects every reply sent along the way. It satisfies dialog.Turn and
// exposes the conversation state to dialogs that track properties across
// turns.
type TurnContext struct {
	activity *activity.Activity
	state    *state.ConversationState
	replies  []*activity.Activity
}

// NewTurnContext creates the context for one turn.
func NewTurnContext(a *activity.Activity, cs *state.ConversationState) *TurnContext {
	return &TurnContext{activity: a, state: cs}
}

// Activity returns the inbound activity.
func (t *TurnContext) Activity() *activity.Activity { return t.activity }

// Send queues a reply.
func (t *TurnContext) Send(_ context.Context, a *activity.Activity) error {
	t.replies = append(t.replies, a)
	return nil
}

// SendText queues a plain text reply.
func (t *TurnContext) SendText(ctx context.Context, text string) error {
	return t.Send(ctx, activity.NewMessage(t.activity.ConversationID, text))
}

// State returns the conversation's state for the duration of the turn.
func (t *TurnContext) State() *state.ConversationState { return t.state }

// Replies returns everything sent during the turn, in order.
func (t *TurnContext) Replies() []*activity.Activity { return t.replies }
