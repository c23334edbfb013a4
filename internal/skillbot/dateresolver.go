package skillbot

import (
	"context"
	"strings"

	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/recognizer"
)

// DateResolverID names the date disambiguation dialog.
const DateResolverID = "DateResolverDialog"

const (
	datePromptText   = "When would you like to travel?"
	dateRepromptText = "I'm sorry, for best results, please enter your travel date including the month, day and year."
)

// DateResolverDialog is a leaf that keeps asking until the user supplies
// a definite calendar date. It is begun whenever the date slot is empty
// or ambiguous (a span, or an expression that did not resolve).
type DateResolverDialog struct{}

// NewDateResolverDialog creates the date resolver.
func NewDateResolverDialog() *DateResolverDialog { return &DateResolverDialog{} }

// ID implements Dialog.
func (d *DateResolverDialog) ID() string { return DateResolverID }

// Begin implements Dialog: always prompts, whatever partial value the
// caller had.
func (d *DateResolverDialog) Begin(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if err := dc.Turn().SendText(ctx, datePromptText); err != nil {
		return dialog.TurnResult{}, err
	}
	return dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

// Continue implements Dialog: a definite date ends the dialog with it,
// anything else re-prompts.
func (d *DateResolverDialog) Continue(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	text := strings.TrimSpace(dc.Turn().Activity().Text)
	if recognizer.IsDefiniteDate(text) {
		return dc.End(ctx, text)
	}
	if err := dc.Turn().SendText(ctx, dateRepromptText); err != nil {
		return dialog.TurnResult{}, err
	}
	return dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

// Resume implements Dialog.
func (d *DateResolverDialog) Resume(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	return d.Continue(ctx, dc)
}
