package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/frame/datastore/pool"
)

// ConversationRecord is the relational form of one conversation's state.
type ConversationRecord struct {
	data.BaseModel

	ConversationID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_conv_id" json:"conversation_id"`
	State          StateJSON `gorm:"type:jsonb;default:'{}'"                            json:"state"`
}

func (ConversationRecord) TableName() string { return "conversation_states" }

// StateJSON is a custom GORM type for JSONB storage of the state blob.
type StateJSON json.RawMessage

func (s StateJSON) Value() (interface{}, error) {
	if len(s) == 0 {
		return []byte("{}"), nil
	}
	return []byte(s), nil
}

func (s *StateJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		*s = append((*s)[:0], v...)
		return nil
	case string:
		*s = StateJSON(v)
		return nil
	default:
		*s = StateJSON("{}")
		return nil
	}
}

// GormStore persists conversation state in a relational database through
// the service's datastore pool.
type GormStore struct {
	pool pool.Pool
}

// NewGormStore creates a gorm-backed store.
func NewGormStore(pool pool.Pool) *GormStore {
	return &GormStore{pool: pool}
}

func (s *GormStore) db(ctx context.Context, readOnly bool) *gorm.DB {
	return s.pool.DB(ctx, readOnly)
}

// Load implements Store.
func (s *GormStore) Load(ctx context.Context, conversationID string) (json.RawMessage, error) {
	var rec ConversationRecord
	err := s.db(ctx, true).Where("conversation_id = ?", conversationID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation record: %w", err)
	}
	return json.RawMessage(rec.State), nil
}

// Save implements Store.
func (s *GormStore) Save(ctx context.Context, conversationID string, blob json.RawMessage) error {
	var rec ConversationRecord
	err := s.db(ctx, false).Where("conversation_id = ?", conversationID).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		rec = ConversationRecord{ConversationID: conversationID, State: StateJSON(blob)}
		if err := s.db(ctx, false).Create(&rec).Error; err != nil {
			return fmt.Errorf("create conversation record: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("find conversation record: %w", err)
	}
	rec.State = StateJSON(blob)
	if err := s.db(ctx, false).Save(&rec).Error; err != nil {
		return fmt.Errorf("update conversation record: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, conversationID string) error {
	err := s.db(ctx, false).
		Where("conversation_id = ?", conversationID).
		Delete(&ConversationRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete conversation record: %w", err)
	}
	return nil
}
