package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PromptOptions configures a single prompt instance.
type PromptOptions struct {
	Prompt      string   `json:"prompt,omitempty"`
	RetryPrompt string   `json:"retryPrompt,omitempty"`
	Choices     []string `json:"choices,omitempty"`
}

// FoundChoice is the result of a choice prompt recognition. Score is 1 on
// an exact match and 0 otherwise.
type FoundChoice struct {
	Value string  `json:"value"`
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Recognition carries a choice prompt's raw recognition outcome into the
// validator, which may accept, reject, or rewrite it.
type Recognition struct {
	Succeeded bool
	Value     FoundChoice
}

// PromptContext is handed to a choice validator.
type PromptContext struct {
	Options    PromptOptions
	Recognized *Recognition
	Turn       Turn
}

// ChoiceValidator decides whether a recognition outcome is acceptable.
// Returning false re-prompts with the retry message.
type ChoiceValidator func(ctx context.Context, pc *PromptContext) (bool, error)

func decodePromptOptions(options any) (PromptOptions, error) {
	switch v := options.(type) {
	case PromptOptions:
		return v, nil
	case *PromptOptions:
		return *v, nil
	case nil:
		return PromptOptions{}, nil
	default:
		// Rehydrated state arrives as generic JSON.
		raw, err := json.Marshal(options)
		if err != nil {
			return PromptOptions{}, fmt.Errorf("encode prompt options: %w", err)
		}
		var po PromptOptions
		if err := json.Unmarshal(raw, &po); err != nil {
			return PromptOptions{}, fmt.Errorf("decode prompt options: %w", err)
		}
		return po, nil
	}
}

func promptWithChoices(po PromptOptions) string {
	if len(po.Choices) == 0 {
		return po.Prompt
	}
	var b strings.Builder
	b.WriteString(po.Prompt)
	for i, c := range po.Choices {
		fmt.Fprintf(&b, "\n   %d. %s", i+1, c)
	}
	return b.String()
}

// TextPrompt captures a single non-empty line of user input.
type TextPrompt struct {
	id string
}

// NewTextPrompt creates a text prompt with the given ID.
func NewTextPrompt(id string) *TextPrompt { return &TextPrompt{id: id} }

// ID implements Dialog.
func (p *TextPrompt) ID() string { return p.id }

// Begin implements Dialog: sends the prompt and suspends the turn.
func (p *TextPrompt) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	po, err := decodePromptOptions(options)
	if err != nil {
		return TurnResult{}, err
	}
	if err := dc.Top().PutState(&po); err != nil {
		return TurnResult{}, err
	}
	if po.Prompt != "" {
		if err := dc.Turn().SendText(ctx, po.Prompt); err != nil {
			return TurnResult{}, err
		}
	}
	return TurnResult{Status: StatusWaiting}, nil
}

// Continue implements Dialog: a non-empty reply ends the prompt with the
// text; an empty reply re-prompts.
func (p *TextPrompt) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	var po PromptOptions
	if err := dc.Top().GetState(&po); err != nil {
		return TurnResult{}, err
	}
	text := strings.TrimSpace(dc.Turn().Activity().Text)
	if text == "" {
		retry := po.RetryPrompt
		if retry == "" {
			retry = po.Prompt
		}
		if retry != "" {
			if err := dc.Turn().SendText(ctx, retry); err != nil {
				return TurnResult{}, err
			}
		}
		return TurnResult{Status: StatusWaiting}, nil
	}
	return dc.End(ctx, text)
}

// Resume implements Dialog. Prompts have no children; treat as a continue.
func (p *TextPrompt) Resume(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
	return p.Continue(ctx, dc)
}

// ChoicePrompt presents a closed set of options. Recognition matches a
// choice value case-insensitively or by list position, scoring 1; anything
// else fails with score 0 and is handed to the validator, which may
// substitute a fallback instead of re-prompting.
type ChoicePrompt struct {
	id        string
	validator ChoiceValidator
}

// NewChoicePrompt creates a choice prompt; validator may be nil for the
// default re-prompt-on-failure behavior.
func NewChoicePrompt(id string, validator ChoiceValidator) *ChoicePrompt {
	return &ChoicePrompt{id: id, validator: validator}
}

// ID implements Dialog.
func (p *ChoicePrompt) ID() string { return p.id }

// Begin implements Dialog.
func (p *ChoicePrompt) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	po, err := decodePromptOptions(options)
	if err != nil {
		return TurnResult{}, err
	}
	if err := dc.Top().PutState(&po); err != nil {
		return TurnResult{}, err
	}
	if po.Prompt != "" {
		if err := dc.Turn().SendText(ctx, promptWithChoices(po)); err != nil {
			return TurnResult{}, err
		}
	}
	return TurnResult{Status: StatusWaiting}, nil
}

// Continue implements Dialog.
func (p *ChoicePrompt) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	var po PromptOptions
	if err := dc.Top().GetState(&po); err != nil {
		return TurnResult{}, err
	}

	rec := recognizeChoice(dc.Turn().Activity().Text, po.Choices)
	if p.validator != nil {
		pc := &PromptContext{Options: po, Recognized: rec, Turn: dc.Turn()}
		ok, err := p.validator(ctx, pc)
		if err != nil {
			return TurnResult{}, err
		}
		if ok {
			return dc.End(ctx, pc.Recognized.Value)
		}
	} else if rec.Succeeded {
		return dc.End(ctx, rec.Value)
	}

	retry := po.RetryPrompt
	if retry == "" {
		retry = po.Prompt
	}
	if retry != "" {
		if err := dc.Turn().SendText(ctx, retry); err != nil {
			return TurnResult{}, err
		}
	}
	return TurnResult{Status: StatusWaiting}, nil
}

// Resume implements Dialog.
func (p *ChoicePrompt) Resume(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
	return p.Continue(ctx, dc)
}

func recognizeChoice(text string, choices []string) *Recognition {
	trimmed := strings.TrimSpace(text)
	for i, c := range choices {
		if strings.EqualFold(trimmed, c) {
			return &Recognition{Succeeded: true, Value: FoundChoice{Value: c, Index: i, Score: 1}}
		}
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n >= 1 && n <= len(choices) {
		return &Recognition{Succeeded: true, Value: FoundChoice{Value: choices[n-1], Index: n - 1, Score: 1}}
	}
	return &Recognition{Succeeded: false, Value: FoundChoice{Index: -1}}
}

// ConfirmPrompt captures a yes/no answer as a bool.
type ConfirmPrompt struct {
	id string
}

// NewConfirmPrompt creates a confirm prompt with the given ID.
func NewConfirmPrompt(id string) *ConfirmPrompt { return &ConfirmPrompt{id: id} }

// ID implements Dialog.
func (p *ConfirmPrompt) ID() string { return p.id }

// Begin implements Dialog.
func (p *ConfirmPrompt) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	po, err := decodePromptOptions(options)
	if err != nil {
		return TurnResult{}, err
	}
	if err := dc.Top().PutState(&po); err != nil {
		return TurnResult{}, err
	}
	if po.Prompt != "" {
		if err := dc.Turn().SendText(ctx, po.Prompt+" (yes/no)"); err != nil {
			return TurnResult{}, err
		}
	}
	return TurnResult{Status: StatusWaiting}, nil
}

// Continue implements Dialog.
func (p *ConfirmPrompt) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	var po PromptOptions
	if err := dc.Top().GetState(&po); err != nil {
		return TurnResult{}, err
	}
	switch strings.ToLower(strings.TrimSpace(dc.Turn().Activity().Text)) {
	case "yes", "y", "yep", "sure", "ok", "true", "confirm":
		return dc.End(ctx, true)
	case "no", "n", "nope", "false", "cancel":
		return dc.End(ctx, false)
	}
	retry := po.RetryPrompt
	if retry == "" {
		retry = po.Prompt + " (yes/no)"
	}
	if err := dc.Turn().SendText(ctx, retry); err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Status: StatusWaiting}, nil
}

// Resume implements Dialog.
func (p *ConfirmPrompt) Resume(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
	return p.Continue(ctx, dc)
}
