package skillbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/recognizer"
)

// ActivityRouterID names the skill side's root dialog.
const ActivityRouterID = "ActivityRouterDialog"

// Event names the skill accepts from a calling bot.
const (
	EventBookFlight = "Book Flight"
	EventGetWeather = "Get Weather"
)

// Intents the classifier is trained on for free-text messages.
const (
	intentBookFlight = "BookFlight"
	intentGetWeather = "GetWeather"
)

const (
	processStepsID = "processActivity"

	weatherTODOText = "TODO: get weather flow here"

	notConfiguredText = "NOTE: CLU is not configured. To enable all capabilities, " +
		"set 'CLASSIFIER_ENDPOINT' and 'CLASSIFIER_API_KEY' in the service configuration."

	missingEntityText = "Sorry, I need both a destination and a travel date to book a flight."
)

// IntentRecognizer is the classifier surface the router needs.
type IntentRecognizer interface {
	Configured() bool
	Analyze(ctx context.Context, conversationID, utterance, participantID string) (*recognizer.Result, error)
}

// ActivityRouterDialog routes activities sent to the skill: events
// dispatch by name, messages run through the classifier and dispatch by
// top intent, anything else gets a diagnostic notice. Booking requests
// land in the booking dialog; everything else completes within the turn.
type ActivityRouterDialog struct {
	*dialog.ComponentDialog

	recognizer IntentRecognizer
	sink       events.Sink
}

// NewActivityRouterDialog builds the skill root dialog. recognizer may be
// nil, which puts every message turn on the not-configured path; sink may
// be nil.
func NewActivityRouterDialog(rec IntentRecognizer, sink events.Sink) *ActivityRouterDialog {
	if sink == nil {
		sink = events.NopSink{}
	}
	r := &ActivityRouterDialog{
		ComponentDialog: dialog.NewComponentDialog(ActivityRouterID),
		recognizer:      rec,
		sink:            sink,
	}

	steps := dialog.NewWaterfallDialog(processStepsID).
		AddStep("process", r.processActivity)

	r.AddDialog(steps)
	r.AddDialog(NewBookingDialog(sink))
	return r
}

func (r *ActivityRouterDialog) processActivity(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	a := step.Turn().Activity()

	trace := activity.NewTrace(a.ConversationID, "ActivityRouterDialog.processActivity",
		fmt.Sprintf("Got ActivityType: %s", a.Type))
	if err := step.Turn().Send(ctx, trace); err != nil {
		return dialog.TurnResult{}, err
	}

	_ = r.sink.Emit(ctx, events.TurnReceived, a.ConversationID, &events.TurnReceivedData{
		ActivityID:   a.ID,
		ActivityType: string(a.Type),
		FromID:       a.From.ID,
	})

	switch a.Type {
	case activity.TypeEvent:
		return r.onEvent(ctx, step, a)
	case activity.TypeMessage:
		return r.onMessage(ctx, step, a)
	default:
		if err := step.Turn().SendText(ctx, fmt.Sprintf("Unrecognized ActivityType: %q.", string(a.Type))); err != nil {
			return dialog.TurnResult{}, err
		}
		return step.End(ctx, nil)
	}
}

func (r *ActivityRouterDialog) onEvent(ctx context.Context, step *dialog.StepContext, a *activity.Activity) (dialog.TurnResult, error) {
	switch a.Name {
	case EventBookFlight:
		var bd recognizer.BookingDetails
		if len(a.Value) > 0 {
			if err := json.Unmarshal(a.Value, &bd); err != nil {
				return dialog.TurnResult{}, fmt.Errorf("decode %q event value: %w", a.Name, err)
			}
		}
		return step.BeginChild(ctx, BookingDialogID, bd)

	case EventGetWeather:
		if err := step.Turn().SendText(ctx, weatherTODOText); err != nil {
			return dialog.TurnResult{}, err
		}
		return step.End(ctx, nil)

	default:
		if err := step.Turn().SendText(ctx, fmt.Sprintf("Unrecognized EventName: %q.", a.Name)); err != nil {
			return dialog.TurnResult{}, err
		}
		return step.End(ctx, nil)
	}
}

func (r *ActivityRouterDialog) onMessage(ctx context.Context, step *dialog.StepContext, a *activity.Activity) (dialog.TurnResult, error) {
	if r.recognizer == nil || !r.recognizer.Configured() {
		if err := step.Turn().SendText(ctx, notConfiguredText); err != nil {
			return dialog.TurnResult{}, err
		}
		return step.End(ctx, nil)
	}

	result, err := r.recognizer.Analyze(ctx, a.ConversationID, a.Text, a.From.ID)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("classify %q: %w", a.Text, err)
	}

	intent, score := result.Top()
	summary := fmt.Sprintf("CLU results for %q:\nIntent: %q Score: %.2f", a.Text, intent, score)
	if err := step.Turn().SendText(ctx, summary); err != nil {
		return dialog.TurnResult{}, err
	}

	switch intent {
	case intentBookFlight:
		bd, err := recognizer.ExtractBooking(result.Entities)
		if err != nil {
			if errors.Is(err, recognizer.ErrMissingEntity) {
				if sendErr := step.Turn().SendText(ctx, missingEntityText); sendErr != nil {
					return dialog.TurnResult{}, sendErr
				}
				return step.End(ctx, nil)
			}
			return dialog.TurnResult{}, err
		}
		return step.BeginChild(ctx, BookingDialogID, *bd)

	case intentGetWeather:
		if err := step.Turn().SendText(ctx, weatherTODOText); err != nil {
			return dialog.TurnResult{}, err
		}
		return step.End(ctx, nil)

	default:
		catchAll := fmt.Sprintf("Sorry, I didn't get that. Please try asking in a different way (intent was %s)", intent)
		if err := step.Turn().SendText(ctx, catchAll); err != nil {
			return dialog.TurnResult{}, err
		}
		return step.End(ctx, nil)
	}
}
