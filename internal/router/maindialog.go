package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/cards"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/state"
)

const (
	// MainDialogID names the root routing dialog.
	MainDialogID = "MainDialog"

	// ActiveSkillProperty is the conversation property holding the ID of
	// the skill currently being driven, if any.
	ActiveSkillProperty = "activeSkill"

	// MessageAction is the pseudo-action that forwards the user's typed
	// text to the skill instead of a named catalog action.
	MessageAction = "Message"

	// cancelKeyword tears down the active skill from anywhere in its flow.
	cancelKeyword = "abort"

	skillPromptID    = "SkillPrompt"
	actionPromptID   = "SkillActionPrompt"
	routingID        = "skillRouting"
	selectedSkillKey = "selectedSkill"

	itineraryCard = "FlightItineraryCard"
)

// StateCarrier is implemented by turns that expose per-conversation state
// to dialogs. The routing dialog uses it to track the active skill across
// turns.
type StateCarrier interface {
	State() *state.ConversationState
}

// MainDialog routes a conversation to one of the configured skills: it
// prompts for a skill, prompts for one of that skill's actions (or free
// text), drives the skill to completion, and loops. While a skill is
// active, typing the cancel keyword aborts it and starts over.
type MainDialog struct {
	*dialog.ComponentDialog

	skills SkillSource
	cards  *cards.Loader
	sink   events.Sink
}

// NewMainDialog builds the routing dialog over the given skill source.
// Prompt choices and action lookup follow the source on every turn, so a
// reloading Catalog is reflected live; the per-skill child dialogs are
// registered once from the source's current skills. cardLoader and sink
// may be nil.
func NewMainDialog(skills SkillSource, connector Connector, cardLoader *cards.Loader, sink events.Sink) *MainDialog {
	if sink == nil {
		sink = events.NopSink{}
	}
	m := &MainDialog{
		ComponentDialog: dialog.NewComponentDialog(MainDialogID),
		skills:          skills,
		cards:           cardLoader,
		sink:            sink,
	}

	waterfall := dialog.NewWaterfallDialog(routingID).
		AddStep("selectSkill", m.selectSkillStep).
		AddStep("selectAction", m.selectActionStep).
		AddStep("handleAction", m.handleActionStep).
		AddStep("finalize", m.finalStep)

	m.AddDialog(waterfall)
	m.AddDialog(dialog.NewChoicePrompt(skillPromptID, nil))
	m.AddDialog(dialog.NewChoicePrompt(actionPromptID, actionPromptValidator))
	for _, s := range skills.Skills() {
		m.AddDialog(NewSkillDialog(s, connector, sink))
	}

	m.SetOnContinue(m.interceptCancel)
	return m
}

// interceptCancel runs before every inner-stack resumption. The cancel
// keyword only acts while a skill is active; otherwise the turn proceeds
// to normal step resumption.
func (m *MainDialog) interceptCancel(ctx context.Context, inner *dialog.Context) (dialog.TurnResult, bool, error) {
	a := inner.Turn().Activity()
	if a == nil || a.Type != activity.TypeMessage {
		return dialog.TurnResult{}, false, nil
	}
	if !strings.EqualFold(strings.TrimSpace(a.Text), cancelKeyword) {
		return dialog.TurnResult{}, false, nil
	}
	cs, ok := conversationState(inner)
	if !ok {
		return dialog.TurnResult{}, false, nil
	}
	var activeSkillID string
	set, err := cs.GetProperty(ActiveSkillProperty, &activeSkillID)
	if err != nil {
		return dialog.TurnResult{}, false, err
	}
	if !set {
		return dialog.TurnResult{}, false, nil
	}

	_ = m.sink.Emit(ctx, events.DialogCancelled, a.ConversationID, &events.DialogCancelledData{
		ActiveSkill: activeSkillID,
		StackDepth:  inner.StackState().Depth(),
	})

	if _, err := inner.CancelAll(ctx); err != nil {
		return dialog.TurnResult{}, false, err
	}
	result, err := inner.Replace(ctx, routingID, "Canceled! \n\n What skill would you like to call?")
	return result, true, err
}

func (m *MainDialog) selectSkillStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	messageText := "What skill would you like to call?"
	var restart string
	if ok, err := step.Options(&restart); err == nil && ok && restart != "" {
		messageText = restart
	}
	return step.Prompt(ctx, skillPromptID, dialog.PromptOptions{
		Prompt:      messageText,
		RetryPrompt: "That was not a valid choice, please select a valid skill.",
		Choices:     skillIDs(m.skills.Skills()),
	})
}

func (m *MainDialog) selectActionStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	choice, err := foundChoice(step.Result)
	if err != nil {
		return dialog.TurnResult{}, err
	}
	skill, ok := m.skills.Find(choice.Value)
	if !ok {
		return dialog.TurnResult{}, fmt.Errorf("selected skill %q is not configured", choice.Value)
	}
	if err := step.SetValue(selectedSkillKey, skill.ID); err != nil {
		return dialog.TurnResult{}, err
	}

	messageText := fmt.Sprintf("Select an action # to send to **%s** or just type in a message and it will be forwarded to the skill", skill.ID)
	return step.Prompt(ctx, actionPromptID, dialog.PromptOptions{
		Prompt:  messageText,
		Choices: skill.ActionNames(),
	})
}

func (m *MainDialog) handleActionStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	var skillID string
	if ok, err := step.Value(selectedSkillKey, &skillID); err != nil || !ok {
		if err != nil {
			return dialog.TurnResult{}, err
		}
		return dialog.TurnResult{}, fmt.Errorf("no skill selected")
	}
	skill, ok := m.skills.Find(skillID)
	if !ok {
		return dialog.TurnResult{}, fmt.Errorf("selected skill %q is not configured", skillID)
	}
	choice, err := foundChoice(step.Result)
	if err != nil {
		return dialog.TurnResult{}, err
	}

	beginActivity, err := m.beginActivity(step.Turn().Activity(), skill, choice.Value)
	if err != nil {
		return dialog.TurnResult{}, err
	}

	cs, ok := conversationState(step.Context())
	if !ok {
		return dialog.TurnResult{}, fmt.Errorf("turn does not carry conversation state")
	}
	if err := cs.SetProperty(ActiveSkillProperty, skill.ID); err != nil {
		return dialog.TurnResult{}, err
	}

	_ = m.sink.Emit(ctx, events.SkillInvoked, beginActivity.ConversationID, &events.SkillInvokedData{
		SkillID:    skill.ID,
		ActionName: choice.Value,
	})

	return step.BeginChild(ctx, skill.ID, BeginSkillOptions{Activity: beginActivity})
}

// beginActivity builds the activity that starts the skill: a clone of the
// user's message for the Message pseudo-action, or an event named after
// the catalog action with its configured payload. Channel metadata rides
// along verbatim either way.
func (m *MainDialog) beginActivity(inbound *activity.Activity, skill Skill, actionName string) (*activity.Activity, error) {
	var a *activity.Activity
	if actionName == MessageAction {
		a = inbound.Clone()
	} else {
		action, ok := skill.FindAction(actionName)
		if !ok {
			return nil, fmt.Errorf("unknown action %q for skill %q", actionName, skill.ID)
		}
		payload, err := action.PayloadJSON()
		if err != nil {
			return nil, err
		}
		a = activity.NewEvent(inbound.ConversationID, action.Name, payload)
	}
	a.ChannelData = inbound.ChannelData
	a.Properties = inbound.Properties
	return a, nil
}

func (m *MainDialog) finalStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	cs, ok := conversationState(step.Context())
	if !ok {
		return dialog.TurnResult{}, fmt.Errorf("turn does not carry conversation state")
	}
	var activeSkillID string
	hadActiveSkill, err := cs.GetProperty(ActiveSkillProperty, &activeSkillID)
	if err != nil {
		return dialog.TurnResult{}, err
	}

	if step.Result != nil {
		raw, err := json.Marshal(step.Result)
		if err != nil {
			return dialog.TurnResult{}, err
		}
		text := fmt.Sprintf("Skill %q invocation complete. Result: %s", activeSkillID, raw)
		if err := step.Turn().SendText(ctx, text); err != nil {
			return dialog.TurnResult{}, err
		}
		if err := m.sendItinerary(ctx, step, raw); err != nil {
			return dialog.TurnResult{}, err
		}
	}

	if err := step.ClearValue(selectedSkillKey); err != nil {
		return dialog.TurnResult{}, err
	}
	cs.DeleteProperty(ActiveSkillProperty)

	// The restart message names the finished skill; without one (the
	// property was cleared out of band) the default prompt is used.
	var restart any
	if hadActiveSkill {
		restart = fmt.Sprintf("Done with %q. \n\n What skill would you like to call?", activeSkillID)
	}
	return step.Replace(ctx, routingID, restart)
}

// sendItinerary renders the flight itinerary card when the skill result
// looks like booking details. Results of any other shape are skipped.
func (m *MainDialog) sendItinerary(ctx context.Context, step *dialog.StepContext, result json.RawMessage) error {
	if m.cards == nil {
		return nil
	}
	var details struct {
		Destination string `json:"destination"`
		TravelDate  string `json:"travelDate"`
	}
	if err := json.Unmarshal(result, &details); err != nil || details.Destination == "" || details.TravelDate == "" {
		return nil
	}
	attachment, err := m.cards.Render(itineraryCard, details)
	if err != nil {
		return nil
	}
	a := activity.NewMessage(step.Turn().Activity().ConversationID, "")
	a.Attachments = []activity.Attachment{*attachment}
	return step.Turn().Send(ctx, a)
}

// actionPromptValidator accepts any input: an unmatched reply falls back
// to the Message pseudo-action so free text is forwarded to the skill.
func actionPromptValidator(_ context.Context, pc *dialog.PromptContext) (bool, error) {
	if !pc.Recognized.Succeeded || pc.Recognized.Value.Score < 1 {
		pc.Recognized.Value = dialog.FoundChoice{Value: MessageAction, Index: -1}
	}
	return true, nil
}

// foundChoice recovers a FoundChoice from a step result, which arrives
// typed within a turn and as generic JSON after rehydration.
func foundChoice(result any) (dialog.FoundChoice, error) {
	switch v := result.(type) {
	case dialog.FoundChoice:
		return v, nil
	case *dialog.FoundChoice:
		return *v, nil
	default:
		raw, err := json.Marshal(result)
		if err != nil {
			return dialog.FoundChoice{}, fmt.Errorf("encode choice result: %w", err)
		}
		var fc dialog.FoundChoice
		if err := json.Unmarshal(raw, &fc); err != nil {
			return dialog.FoundChoice{}, fmt.Errorf("decode choice result: %w", err)
		}
		return fc, nil
	}
}

func conversationState(dc *dialog.Context) (*state.ConversationState, bool) {
	carrier, ok := dc.Turn().(StateCarrier)
	if !ok {
		return nil, false
	}
	return carrier.State(), true
}

func skillIDs(skills []Skill) []string {
	ids := make([]string, 0, len(skills))
	for _, s := range skills {
		ids = append(ids, s.ID)
	}
	return ids
}
