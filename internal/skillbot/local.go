package skillbot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skillhost/skillhost/internal/router"
	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/state"
)

// LocalConnector runs a skill bot in-process instead of calling a remote
// host. The skill keeps its own conversation state, keyed per skill so
// two skills sharing a store never collide.
type LocalConnector struct {
	store  state.Store
	reg    *dialog.Registry
	rootID string
}

// NewLocalConnector wires a root dialog as an in-process skill over the
// given store.
func NewLocalConnector(store state.Store, root dialog.Dialog) *LocalConnector {
	reg := dialog.NewRegistry()
	reg.Add(root)
	return &LocalConnector{store: store, reg: reg, rootID: root.ID()}
}

// captureTurn collects everything the skill sends during one delivery.
type captureTurn struct {
	activity *activity.Activity
	sent     []*activity.Activity
}

func (t *captureTurn) Activity() *activity.Activity { return t.activity }

func (t *captureTurn) Send(_ context.Context, a *activity.Activity) error {
	t.sent = append(t.sent, a)
	return nil
}

func (t *captureTurn) SendText(ctx context.Context, text string) error {
	return t.Send(ctx, activity.NewMessage(t.activity.ConversationID, text))
}

// Send implements router.Connector: one activity in, the skill's replies
// out, with the skill's dialog state persisted between deliveries.
func (c *LocalConnector) Send(ctx context.Context, skill router.Skill, a *activity.Activity) (*router.Response, error) {
	key := skill.ID + ":" + a.ConversationID
	cs, err := state.Load(ctx, c.store, key)
	if err != nil {
		return nil, fmt.Errorf("load skill state: %w", err)
	}
	turn := &captureTurn{activity: a}
	dc := dialog.NewContext(c.reg, cs.DialogState(), turn)

	if a.Type == activity.TypeEndOfConversation {
		if _, err := dc.CancelAll(ctx); err != nil {
			return nil, err
		}
		cs.Clear()
		if err := cs.SaveChanges(ctx); err != nil {
			return nil, err
		}
		return &router.Response{EndOfConversation: true}, nil
	}

	result, err := dc.ContinueDialog(ctx)
	if err == nil && result.Status == dialog.StatusEmpty {
		result, err = dc.Begin(ctx, c.rootID, nil)
	}
	if err != nil {
		return nil, err
	}
	if saveErr := cs.SaveChanges(ctx); saveErr != nil {
		return nil, saveErr
	}

	resp := &router.Response{Replies: turn.sent}
	if result.Status == dialog.StatusComplete || result.Status == dialog.StatusCancelled {
		resp.EndOfConversation = true
		if result.Result != nil {
			raw, err := json.Marshal(result.Result)
			if err != nil {
				return nil, fmt.Errorf("encode skill result: %w", err)
			}
			resp.Result = raw
		}
	}
	return resp, nil
}
