package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	TurnReceived     EventType = "turn.received"
	TurnCompleted    EventType = "turn.completed"
	DialogState      EventType = "dialog.state"
	IntentRecognized EventType = "intent.recognized"
	SkillInvoked     EventType = "skill.invoked"
	SkillCompleted   EventType = "skill.completed"
	DialogCancelled  EventType = "dialog.cancelled"
	BookingConfirmed EventType = "booking.confirmed"
	SystemError      EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	Source         string            `json:"source"`
	ConversationID string            `json:"conversation_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Data           json.RawMessage   `json:"data"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TurnReceivedData is the payload for turn.received events.
type TurnReceivedData struct {
	ActivityID   string `json:"activity_id"`
	ActivityType string `json:"activity_type"`
	FromID       string `json:"from_id,omitempty"`
}

// TurnCompletedData is the payload for turn.completed events.
type TurnCompletedData struct {
	ActivityID  string `json:"activity_id"`
	TurnStatus  string `json:"turn_status"`
	RepliesSent int    `json:"replies_sent"`
	DurationMs  int64  `json:"duration_ms"`
}

// DialogStateData is the payload for dialog.state events, a snapshot of
// the conversation's dialog stack after a turn.
type DialogStateData struct {
	ActiveDialog string `json:"active_dialog,omitempty"`
	StackDepth   int    `json:"stack_depth"`
}

// IntentRecognizedData is the payload for intent.recognized events.
type IntentRecognizedData struct {
	Utterance string             `json:"utterance"`
	TopIntent string             `json:"top_intent"`
	Score     float64            `json:"score"`
	Intents   map[string]float64 `json:"intents,omitempty"`
	Entities  []EntityRecord     `json:"entities,omitempty"`
}

// EntityRecord is the telemetry shape of one recognized entity.
type EntityRecord struct {
	Category   string  `json:"category"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// SkillInvokedData is the payload for skill.invoked events.
type SkillInvokedData struct {
	SkillID    string `json:"skill_id"`
	ActionName string `json:"action_name"`
}

// SkillCompletedData is the payload for skill.completed events.
type SkillCompletedData struct {
	SkillID string `json:"skill_id"`
	Result  string `json:"result,omitempty"`
}

// DialogCancelledData is the payload for dialog.cancelled events.
type DialogCancelledData struct {
	ActiveSkill string `json:"active_skill,omitempty"`
	StackDepth  int    `json:"stack_depth"`
}

// BookingConfirmedData is the payload for booking.confirmed events.
type BookingConfirmedData struct {
	Destination   string `json:"destination"`
	TravelDate    string `json:"travel_date"`
	MultipleDates bool   `json:"multiple_dates"`
}

// SystemErrorData is the payload for error events.
type SystemErrorData struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}
