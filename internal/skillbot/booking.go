package skillbot

import (
	"context"
	"strings"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/recognizer"
)

// BookingDialogID names the flight booking dialog.
const BookingDialogID = "BookingDialog"

const (
	textPromptID    = "TextPrompt"
	confirmPromptID = "ConfirmPrompt"
	bookingStepsID  = "bookingSteps"

	destinationPromptText = "Where would you like to travel to?"
	confirmText           = "Please confirm your choice. Is this correct?"
	helpText              = "Show help here"
	cancelText            = "Cancelling..."
)

// BookingDialog collects flight booking details slot by slot: destination,
// then a definite travel date (disambiguated through the date resolver
// when needed), then a yes/no confirmation. Ends with the details on yes,
// nil on no. Typing "cancel" or "quit" at any prompt cancels the whole
// booking; "help" or "?" replies with guidance and keeps the prompt
// waiting.
type BookingDialog struct {
	*dialog.ComponentDialog

	sink events.Sink
}

// NewBookingDialog builds the booking dialog. sink may be nil.
func NewBookingDialog(sink events.Sink) *BookingDialog {
	if sink == nil {
		sink = events.NopSink{}
	}
	b := &BookingDialog{
		ComponentDialog: dialog.NewComponentDialog(BookingDialogID),
		sink:            sink,
	}

	steps := dialog.NewWaterfallDialog(bookingStepsID).
		AddStep("destination", b.destinationStep).
		AddStep("travelDate", b.travelDateStep).
		AddStep("confirm", b.confirmStep).
		AddStep("finalize", b.finalStep)

	b.AddDialog(steps)
	b.AddDialog(dialog.NewTextPrompt(textPromptID))
	b.AddDialog(dialog.NewConfirmPrompt(confirmPromptID))
	b.AddDialog(NewDateResolverDialog())

	b.SetOnContinue(interruptCheck)
	return b
}

// interruptCheck handles the cancel/help keywords before any prompt gets
// to interpret the turn.
func interruptCheck(ctx context.Context, inner *dialog.Context) (dialog.TurnResult, bool, error) {
	a := inner.Turn().Activity()
	if a == nil || a.Type != activity.TypeMessage {
		return dialog.TurnResult{}, false, nil
	}
	switch strings.ToLower(strings.TrimSpace(a.Text)) {
	case "help", "?":
		if err := inner.Turn().SendText(ctx, helpText); err != nil {
			return dialog.TurnResult{}, false, err
		}
		return dialog.TurnResult{Status: dialog.StatusWaiting}, true, nil
	case "cancel", "quit":
		if err := inner.Turn().SendText(ctx, cancelText); err != nil {
			return dialog.TurnResult{}, false, err
		}
		if _, err := inner.CancelAll(ctx); err != nil {
			return dialog.TurnResult{}, false, err
		}
		// Completing with a nil result ends the enclosing component too.
		return dialog.TurnResult{Status: dialog.StatusComplete}, true, nil
	}
	return dialog.TurnResult{}, false, nil
}

func (b *BookingDialog) destinationStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	var bd recognizer.BookingDetails
	if _, err := step.Options(&bd); err != nil {
		return dialog.TurnResult{}, err
	}
	if bd.Destination == "" {
		return step.Prompt(ctx, textPromptID, dialog.PromptOptions{Prompt: destinationPromptText})
	}
	return step.Next(ctx, bd.Destination)
}

func (b *BookingDialog) travelDateStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	var bd recognizer.BookingDetails
	if _, err := step.Options(&bd); err != nil {
		return dialog.TurnResult{}, err
	}
	bd.Destination = resultText(step.Result)
	if err := step.SetOptions(bd); err != nil {
		return dialog.TurnResult{}, err
	}
	if bd.TravelDate == "" || bd.MultipleDates || !recognizer.IsDefiniteDate(bd.TravelDate) {
		return step.BeginChild(ctx, DateResolverID, bd.TravelDate)
	}
	return step.Next(ctx, bd.TravelDate)
}

func (b *BookingDialog) confirmStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	var bd recognizer.BookingDetails
	if _, err := step.Options(&bd); err != nil {
		return dialog.TurnResult{}, err
	}
	bd.TravelDate = resultText(step.Result)
	bd.MultipleDates = false
	if err := step.SetOptions(bd); err != nil {
		return dialog.TurnResult{}, err
	}
	return step.Prompt(ctx, confirmPromptID, dialog.PromptOptions{Prompt: confirmText})
}

func (b *BookingDialog) finalStep(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
	confirmed, _ := step.Result.(bool)
	if !confirmed {
		return step.End(ctx, nil)
	}
	var bd recognizer.BookingDetails
	if _, err := step.Options(&bd); err != nil {
		return dialog.TurnResult{}, err
	}
	_ = b.sink.Emit(ctx, events.BookingConfirmed, step.Turn().Activity().ConversationID, &events.BookingConfirmedData{
		Destination:   bd.Destination,
		TravelDate:    bd.TravelDate,
		MultipleDates: bd.MultipleDates,
	})
	return step.End(ctx, bd)
}

func resultText(v any) string {
	s, _ := v.(string)
	return s
}
