package state

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/skillhost/skillhost/pkg/dialog"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := t.Context()

	if _, err := s.Load(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load before save: err = %v, want ErrNotFound", err)
	}

	blob := json.RawMessage(`{"dialogState":{"stack":[]}}`)
	if err := s.Save(ctx, "conv-1", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("Load = %s, want %s", got, blob)
	}

	if err := s.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "conv-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: err = %v, want ErrNotFound", err)
	}
	// Deleting again is a no-op.
	if err := s.Delete(ctx, "conv-1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestMemoryStoreCopiesBlobs(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := t.Context()

	blob := json.RawMessage(`{"a":1}`)
	if err := s.Save(ctx, "conv-1", blob); err != nil {
		t.Fatalf("Save: %v", err)
	}
	blob[2] = 'x'

	got, err := s.Load(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("stored blob mutated through caller's slice: %s", got)
	}
}

func TestConversationStateStartsEmpty(t *testing.T) {
	cs, err := Load(t.Context(), NewMemoryStore(0), "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cs.DialogState().Depth(); got != 0 {
		t.Errorf("fresh conversation stack depth = %d, want 0", got)
	}
	var skill string
	ok, err := cs.GetProperty("activeSkill", &skill)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if ok {
		t.Error("fresh conversation has property set")
	}
}

func TestConversationStateSaveAndRehydrate(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := t.Context()

	cs, err := Load(ctx, store, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cs.SetProperty("activeSkill", "FlightBooking"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	frame := &dialog.Frame{DialogID: "main"}
	if err := frame.PutState(map[string]int{"step": 2}); err != nil {
		t.Fatalf("PutState: %v", err)
	}
	cs.DialogState().Stack = append(cs.DialogState().Stack, frame)
	if err := cs.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges: %v", err)
	}

	// A later turn sees the same stack and properties.
	cs2, err := Load(ctx, store, "conv-1")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	var skill string
	ok, err := cs2.GetProperty("activeSkill", &skill)
	if err != nil || !ok {
		t.Fatalf("GetProperty: ok=%v err=%v", ok, err)
	}
	if skill != "FlightBooking" {
		t.Errorf("activeSkill = %q, want %q", skill, "FlightBooking")
	}
	if got := cs2.DialogState().Depth(); got != 1 {
		t.Fatalf("stack depth = %d, want 1", got)
	}
	if got := cs2.DialogState().Top().DialogID; got != "main" {
		t.Errorf("top dialog = %q, want %q", got, "main")
	}
}

func TestConversationStateClear(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := t.Context()

	cs, err := Load(ctx, store, "conv-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cs.SetProperty("activeSkill", "GetWeather"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	cs.Clear()
	if err := cs.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges: %v", err)
	}

	cs2, err := Load(ctx, store, "conv-1")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	var skill string
	ok, _ := cs2.GetProperty("activeSkill", &skill)
	if ok {
		t.Errorf("activeSkill survived Clear: %q", skill)
	}
}

func TestMemoryStoreReaperDropsIdleConversations(t *testing.T) {
	s := NewMemoryStore(time.Millisecond)
	defer s.Close()
	ctx := t.Context()

	if err := s.Save(ctx, "conv-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.mu.Lock()
	s.entries["conv-1"].lastSeen = time.Now().Add(-time.Hour)
	for id, e := range s.entries {
		if time.Since(e.lastSeen) > s.ttl {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	if got := s.Len(); got != 0 {
		t.Errorf("entries after reap = %d, want 0", got)
	}
}
