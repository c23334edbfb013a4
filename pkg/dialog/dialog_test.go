package dialog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/skillhost/skillhost/pkg/activity"
)

// testTurn is an in-memory Turn that records every outbound activity.
type testTurn struct {
	activity *activity.Activity
	sent     []*activity.Activity
}

func userTurn(text string) *testTurn {
	return &testTurn{activity: activity.NewMessage("conv-1", text)}
}

func (tt *testTurn) Activity() *activity.Activity { return tt.activity }

func (tt *testTurn) Send(_ context.Context, a *activity.Activity) error {
	tt.sent = append(tt.sent, a)
	return nil
}

func (tt *testTurn) SendText(ctx context.Context, text string) error {
	return tt.Send(ctx, activity.NewMessage("conv-1", text))
}

func (tt *testTurn) lastText(t *testing.T) string {
	t.Helper()
	if len(tt.sent) == 0 {
		t.Fatal("no activities sent")
	}
	return tt.sent[len(tt.sent)-1].Text
}

func newTestRegistry(dialogs ...Dialog) *Registry {
	r := NewRegistry()
	for _, d := range dialogs {
		r.Add(d)
	}
	return r
}

// roundTrip serializes and rehydrates the stack, the way a state store
// does between turns, so tests exercise the persisted form rather than
// in-memory pointers.
func roundTrip(t *testing.T, st *State) *State {
	t.Helper()
	raw, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	fresh := NewState()
	if err := json.Unmarshal(raw, fresh); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return fresh
}
