package dialog

import (
	"context"
	"encoding/json"
	"fmt"
)

// StepFunc is one step of a waterfall. It receives the accumulated step
// context and reports how the turn proceeds: advance, suspend, push a
// child, or end the dialog.
type StepFunc func(ctx context.Context, step *StepContext) (TurnResult, error)

type waterfallStep struct {
	name string
	fn   StepFunc
}

// WaterfallDialog runs an ordered sequence of steps with a persisted
// cursor. A step that advances is re-invoked immediately within the same
// turn; prompts and child dialogs suspend until a later turn. Re-entering
// an ended waterfall always starts over at step zero.
type WaterfallDialog struct {
	id    string
	steps []waterfallStep
}

// NewWaterfallDialog creates an empty waterfall with the given ID.
func NewWaterfallDialog(id string) *WaterfallDialog {
	return &WaterfallDialog{id: id}
}

// AddStep appends a named step and returns the dialog for chaining.
func (w *WaterfallDialog) AddStep(name string, fn StepFunc) *WaterfallDialog {
	w.steps = append(w.steps, waterfallStep{name: name, fn: fn})
	return w
}

// ID implements Dialog.
func (w *WaterfallDialog) ID() string { return w.id }

// StepName returns the name of the step at the given cursor.
func (w *WaterfallDialog) StepName(i int) string {
	if i < 0 || i >= len(w.steps) {
		return ""
	}
	return w.steps[i].name
}

type waterfallState struct {
	Step    int                        `json:"step"`
	Options json.RawMessage            `json:"options,omitempty"`
	Values  map[string]json.RawMessage `json:"values,omitempty"`
}

// Begin implements Dialog. The options bag is fixed for the lifetime of
// the instance and handed to every step.
func (w *WaterfallDialog) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	st := &waterfallState{Values: make(map[string]json.RawMessage)}
	if options != nil {
		raw, err := json.Marshal(options)
		if err != nil {
			return TurnResult{}, fmt.Errorf("waterfall %q: encode options: %w", w.id, err)
		}
		st.Options = raw
	}
	return w.runStep(ctx, dc, st, 0, nil)
}

// Continue implements Dialog. A waterfall only sees Continue when one of
// its steps suspended the turn directly; the inbound text becomes the next
// step's result.
func (w *WaterfallDialog) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	var input any
	if a := dc.Turn().Activity(); a != nil {
		input = a.Text
	}
	return w.Resume(ctx, dc, input)
}

// Resume implements Dialog: a child dialog ended and its value becomes the
// input of the step after the cursor. Running past the last step ends the
// waterfall with that value.
func (w *WaterfallDialog) Resume(ctx context.Context, dc *Context, result any) (TurnResult, error) {
	frame := dc.Top()
	if frame == nil {
		return TurnResult{}, ErrNoActiveDialog
	}
	st := &waterfallState{}
	if err := frame.GetState(st); err != nil {
		return TurnResult{}, err
	}
	if st.Values == nil {
		st.Values = make(map[string]json.RawMessage)
	}
	return w.runStep(ctx, dc, st, st.Step+1, result)
}

func (w *WaterfallDialog) runStep(ctx context.Context, dc *Context, st *waterfallState, index int, input any) (TurnResult, error) {
	if index >= len(w.steps) {
		// Reaching the end without an explicit End finishes the dialog
		// with the last result.
		return dc.End(ctx, input)
	}

	frame := dc.Top()
	if frame == nil {
		return TurnResult{}, ErrNoActiveDialog
	}
	st.Step = index
	if err := frame.PutState(st); err != nil {
		return TurnResult{}, err
	}

	step := &StepContext{
		dc:     dc,
		dialog: w,
		frame:  frame,
		state:  st,
		index:  index,
		Result: input,
	}
	return w.steps[index].fn(ctx, step)
}

// StepContext is the accumulated context handed to each waterfall step:
// the prior step's result, the options bag fixed at begin time, and a
// persisted per-instance value map.
type StepContext struct {
	dc     *Context
	dialog *WaterfallDialog
	frame  *Frame
	state  *waterfallState
	index  int

	// Result is the previous step's result, or the ended child dialog's
	// return value.
	Result any
}

// Context returns the underlying dialog context.
func (s *StepContext) Context() *Context { return s.dc }

// Turn returns the current turn.
func (s *StepContext) Turn() Turn { return s.dc.Turn() }

// Index returns the cursor of the executing step.
func (s *StepContext) Index() int { return s.index }

// Name returns the executing step's name.
func (s *StepContext) Name() string { return s.dialog.StepName(s.index) }

// Options decodes the begin-time options bag into v. Returns false when
// the dialog was begun without options.
func (s *StepContext) Options(v any) (bool, error) {
	if len(s.state.Options) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(s.state.Options, v); err != nil {
		return false, fmt.Errorf("waterfall %q: decode options: %w", s.dialog.id, err)
	}
	return true, nil
}

// SetOptions replaces and persists the options bag. Steps that fill in
// slots on a shared record write it back here so later turns see it.
func (s *StepContext) SetOptions(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("waterfall %q: encode options: %w", s.dialog.id, err)
	}
	s.state.Options = raw
	return s.frame.PutState(s.state)
}

// SetValue persists a named value on this waterfall instance.
func (s *StepContext) SetValue(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("waterfall %q: encode value %q: %w", s.dialog.id, key, err)
	}
	s.state.Values[key] = raw
	return s.frame.PutState(s.state)
}

// Value decodes a named instance value into v, reporting whether it was set.
func (s *StepContext) Value(key string, v any) (bool, error) {
	raw, ok := s.state.Values[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("waterfall %q: decode value %q: %w", s.dialog.id, key, err)
	}
	return true, nil
}

// ClearValue removes a named instance value.
func (s *StepContext) ClearValue(key string) error {
	delete(s.state.Values, key)
	return s.frame.PutState(s.state)
}

// Next advances to the following step in the same turn; result becomes
// that step's input.
func (s *StepContext) Next(ctx context.Context, result any) (TurnResult, error) {
	return s.dialog.runStep(ctx, s.dc, s.state, s.index+1, result)
}

// Prompt begins the named prompt dialog; the validated reply arrives as
// the next step's result on a later turn.
func (s *StepContext) Prompt(ctx context.Context, promptID string, opts PromptOptions) (TurnResult, error) {
	return s.dc.Begin(ctx, promptID, opts)
}

// BeginChild pushes a child dialog; its return value arrives as the next
// step's result.
func (s *StepContext) BeginChild(ctx context.Context, dialogID string, options any) (TurnResult, error) {
	return s.dc.Begin(ctx, dialogID, options)
}

// End finishes this waterfall, resuming the parent with result.
func (s *StepContext) End(ctx context.Context, result any) (TurnResult, error) {
	return s.dc.End(ctx, result)
}

// Replace restarts the stack from the named dialog.
func (s *StepContext) Replace(ctx context.Context, dialogID string, options any) (TurnResult, error) {
	return s.dc.Replace(ctx, dialogID, options)
}
