// Package telemetry persists the event stream: every envelope published
// on the bus is written to the event_records table, giving operators a
// durable trail of turns, recognitions, skill invocations and bookings.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/frame/datastore/pool"
	"github.com/pitabwire/util"
	"gorm.io/gorm"

	"github.com/skillhost/skillhost/pkg/events"
)

// EventRecord is one persisted event envelope.
type EventRecord struct {
	data.BaseModel

	EventID        string    `gorm:"type:varchar(50);not null;uniqueIndex"                json:"event_id"`
	EventType      string    `gorm:"type:varchar(100);not null;index:idx_er_type"         json:"event_type"`
	ConversationID string    `gorm:"type:varchar(255);not null;index:idx_er_conversation" json:"conversation_id"`
	OccurredAt     time.Time `json:"occurred_at"`
	Payload        string    `gorm:"type:jsonb"                                            json:"payload"`
}

func (EventRecord) TableName() string { return "event_records" }

// Repository provides storage for event records.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a telemetry repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Record persists one event.
func (r *Repository) Record(ctx context.Context, rec *EventRecord) error {
	return r.db(ctx, false).Create(rec).Error
}

// ListByConversation returns a conversation's events, oldest first.
func (r *Repository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]EventRecord, error) {
	var records []EventRecord
	q := r.db(ctx, true).
		Where("conversation_id = ?", conversationID).
		Order("occurred_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}

// ListByType returns the newest events of one type.
func (r *Repository) ListByType(ctx context.Context, eventType string, limit int) ([]EventRecord, error) {
	var records []EventRecord
	q := r.db(ctx, true).
		Where("event_type = ?", eventType).
		Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}

// Subscriber implements queue.SubscribeWorker, writing each envelope from
// the event bus into the repository.
type Subscriber struct {
	Repo *Repository
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("telemetry subscriber: unmarshal envelope")
		return err
	}

	rec := &EventRecord{
		EventID:        env.ID,
		EventType:      string(env.Type),
		ConversationID: env.ConversationID,
		OccurredAt:     env.Timestamp,
		Payload:        string(env.Data),
	}
	if err := s.Repo.Record(ctx, rec); err != nil {
		util.Log(ctx).WithError(err).Error("telemetry subscriber: record event")
		return err
	}
	return nil
}
