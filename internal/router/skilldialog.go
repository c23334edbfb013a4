package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/events"
)

// BeginSkillOptions carries the activity that starts a skill dialog.
type BeginSkillOptions struct {
	Activity *activity.Activity `json:"activity"`
}

// SkillDialog proxies one skill host as a dialog: beginning it delivers
// the begin activity, continuing it forwards each user turn, and a
// cancelled frame signals end-of-conversation so the skill can tear down
// its own dialogs too.
type SkillDialog struct {
	skill     Skill
	connector Connector
	sink      events.Sink
}

// NewSkillDialog creates a dialog proxying the given skill. The dialog's
// ID is the skill's ID.
func NewSkillDialog(skill Skill, connector Connector, sink events.Sink) *SkillDialog {
	return &SkillDialog{skill: skill, connector: connector, sink: sink}
}

// ID implements Dialog.
func (d *SkillDialog) ID() string { return d.skill.ID }

// Begin implements Dialog.
func (d *SkillDialog) Begin(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	opts, err := decodeBeginSkillOptions(options)
	if err != nil {
		return dialog.TurnResult{}, err
	}
	if opts.Activity == nil {
		return dialog.TurnResult{}, fmt.Errorf("skill %q: begin without an activity", d.skill.ID)
	}
	return d.deliver(ctx, dc, opts.Activity)
}

// Continue implements Dialog: each user turn is forwarded verbatim.
func (d *SkillDialog) Continue(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	return d.deliver(ctx, dc, dc.Turn().Activity())
}

// Resume implements Dialog. Skill dialogs push no local children; a
// resume forwards the current turn like a continue.
func (d *SkillDialog) Resume(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	return d.Continue(ctx, dc)
}

// OnCancel implements dialog.CancelNotifier: the skill host gets an
// end-of-conversation signal so it can cancel its own dialogs.
func (d *SkillDialog) OnCancel(ctx context.Context, dc *dialog.Context, _ *dialog.Frame) {
	conversationID := dc.Turn().Activity().ConversationID
	eoc := activity.NewEndOfConversation(conversationID)
	if _, err := d.connector.Send(ctx, d.skill, eoc); err != nil {
		slog.Warn("end-of-conversation delivery failed",
			slog.String("skill", d.skill.ID), slog.Any("error", err))
	}
}

func (d *SkillDialog) deliver(ctx context.Context, dc *dialog.Context, a *activity.Activity) (dialog.TurnResult, error) {
	resp, err := d.connector.Send(ctx, d.skill, a)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("deliver to skill %q: %w", d.skill.ID, err)
	}

	for _, reply := range resp.Replies {
		if reply.Type == activity.TypeTrace {
			continue
		}
		if err := dc.Turn().Send(ctx, reply); err != nil {
			return dialog.TurnResult{}, err
		}
	}

	if resp.EndOfConversation {
		if d.sink != nil {
			_ = d.sink.Emit(ctx, events.SkillCompleted, a.ConversationID, &events.SkillCompletedData{
				SkillID: d.skill.ID,
				Result:  string(resp.Result),
			})
		}
		var result any
		if len(resp.Result) > 0 {
			result = resp.Result
		}
		return dc.End(ctx, result)
	}
	return dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

func decodeBeginSkillOptions(options any) (BeginSkillOptions, error) {
	switch v := options.(type) {
	case BeginSkillOptions:
		return v, nil
	case *BeginSkillOptions:
		return *v, nil
	case nil:
		return BeginSkillOptions{}, nil
	default:
		raw, err := json.Marshal(options)
		if err != nil {
			return BeginSkillOptions{}, fmt.Errorf("encode skill options: %w", err)
		}
		var out BeginSkillOptions
		if err := json.Unmarshal(raw, &out); err != nil {
			return BeginSkillOptions{}, fmt.Errorf("decode skill options: %w", err)
		}
		return out, nil
	}
}
