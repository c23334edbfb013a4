package activity

import (
	"encoding/json"

	"github.com/rs/xid"
)

// Type classifies an activity on the wire.
type Type string

const (
	TypeMessage            Type = "message"
	TypeEvent              Type = "event"
	TypeTrace              Type = "trace"
	TypeConversationUpdate Type = "conversationUpdate"
	TypeEndOfConversation  Type = "endOfConversation"
)

// Account identifies a conversation participant.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Attachment is a rich content payload carried alongside a message,
// e.g. an adaptive card.
type Attachment struct {
	ContentType string          `json:"contentType"`
	Content     json.RawMessage `json:"content"`
}

// Activity is one unit of conversational traffic between the transport
// and the bot. Value carries a structured payload for event activities;
// ChannelData and Properties are opaque channel metadata forwarded
// verbatim to skills.
type Activity struct {
	ID             string          `json:"id,omitempty"`
	Type           Type            `json:"type"`
	Name           string          `json:"name,omitempty"`
	Text           string          `json:"text,omitempty"`
	Label          string          `json:"label,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
	ConversationID string          `json:"conversationId"`
	From           Account         `json:"from,omitempty"`
	Recipient      Account         `json:"recipient,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	ChannelData    json.RawMessage `json:"channelData,omitempty"`
	Properties     map[string]json.RawMessage `json:"properties,omitempty"`
	MembersAdded   []Account       `json:"membersAdded,omitempty"`
}

// NewMessage creates an outbound message activity.
func NewMessage(conversationID, text string) *Activity {
	return &Activity{
		ID:             xid.New().String(),
		Type:           TypeMessage,
		Text:           text,
		ConversationID: conversationID,
	}
}

// NewEvent creates an event activity with an optional structured payload.
func NewEvent(conversationID, name string, value json.RawMessage) *Activity {
	return &Activity{
		ID:             xid.New().String(),
		Type:           TypeEvent,
		Name:           name,
		Value:          value,
		ConversationID: conversationID,
	}
}

// NewTrace creates a trace activity for diagnostics. Traces are not
// user-visible; transports may drop them.
func NewTrace(conversationID, name, label string) *Activity {
	return &Activity{
		ID:             xid.New().String(),
		Type:           TypeTrace,
		Name:           name,
		Label:          label,
		ConversationID: conversationID,
	}
}

// NewEndOfConversation creates the signal sent to a skill host when its
// dialog is cancelled from the outside.
func NewEndOfConversation(conversationID string) *Activity {
	return &Activity{
		ID:             xid.New().String(),
		Type:           TypeEndOfConversation,
		ConversationID: conversationID,
	}
}

// Clone returns a deep copy of the activity via a JSON round trip, so a
// forwarded activity can be mutated without touching the original.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		// Activity contains only JSON-representable fields.
		cp := *a
		return &cp
	}
	var cp Activity
	if err := json.Unmarshal(raw, &cp); err != nil {
		cp = *a
	}
	return &cp
}
