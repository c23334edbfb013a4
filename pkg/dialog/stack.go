package dialog

import (
	"context"
	"encoding/json"
	"fmt"
)

// Frame is one active dialog's persisted position on the stack: the dialog
// name plus whatever instance state the dialog chose to keep. State is
// opaque JSON owned by the dialog.
type Frame struct {
	DialogID string          `json:"dialogId"`
	State    json.RawMessage `json:"state,omitempty"`
}

// GetState decodes the frame's instance state into v.
func (f *Frame) GetState(v any) error {
	if len(f.State) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.State, v); err != nil {
		return fmt.Errorf("decode state for dialog %q: %w", f.DialogID, err)
	}
	return nil
}

// PutState encodes v as the frame's instance state.
func (f *Frame) PutState(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state for dialog %q: %w", f.DialogID, err)
	}
	f.State = raw
	return nil
}

// State is a serializable dialog stack for one conversation, outermost
// frame first. The top (last) frame is the one a turn resumes.
type State struct {
	Stack []*Frame `json:"stack"`
}

// NewState creates an empty dialog stack.
func NewState() *State {
	return &State{}
}

// Top returns the active frame, or nil when the stack is idle.
func (s *State) Top() *Frame {
	if len(s.Stack) == 0 {
		return nil
	}
	return s.Stack[len(s.Stack)-1]
}

// Depth returns the number of active frames.
func (s *State) Depth() int { return len(s.Stack) }

func (s *State) push(f *Frame) { s.Stack = append(s.Stack, f) }

func (s *State) pop() *Frame {
	if len(s.Stack) == 0 {
		return nil
	}
	f := s.Stack[len(s.Stack)-1]
	s.Stack = s.Stack[:len(s.Stack)-1]
	return f
}

// Context drives one dialog stack for the duration of a turn. All stack
// mutation goes through it, synchronously; it is never shared across
// conversations.
type Context struct {
	registry *Registry
	state    *State
	turn     Turn
	parent   *Context
}

// NewContext creates a dialog context over the given registry, stack state
// and turn.
func NewContext(registry *Registry, state *State, turn Turn) *Context {
	return &Context{registry: registry, state: state, turn: turn}
}

// Turn exposes the current turn to dialog implementations.
func (dc *Context) Turn() Turn { return dc.turn }

// StackState returns the underlying stack, for persistence at turn end.
func (dc *Context) StackState() *State { return dc.state }

// Top returns the active frame.
func (dc *Context) Top() *Frame { return dc.state.Top() }

// Parent returns the enclosing component's context, if any.
func (dc *Context) Parent() *Context { return dc.parent }

// Begin pushes a new frame for the named dialog and starts it.
func (dc *Context) Begin(ctx context.Context, dialogID string, options any) (TurnResult, error) {
	d, err := dc.registry.mustFind(dialogID)
	if err != nil {
		return TurnResult{}, err
	}
	dc.state.push(&Frame{DialogID: dialogID})
	return d.Begin(ctx, dc, options)
}

// ContinueDialog resumes the top frame with the current turn. An idle
// stack yields StatusEmpty so the caller can begin its root dialog.
func (dc *Context) ContinueDialog(ctx context.Context) (TurnResult, error) {
	top := dc.state.Top()
	if top == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}
	d, err := dc.registry.mustFind(top.DialogID)
	if err != nil {
		return TurnResult{}, err
	}
	return d.Continue(ctx, dc)
}

// End pops the top frame and resumes the new top frame with result as its
// step input. When the stack empties, the whole run completes with result.
func (dc *Context) End(ctx context.Context, result any) (TurnResult, error) {
	if dc.state.pop() == nil {
		return TurnResult{}, ErrNoActiveDialog
	}
	top := dc.state.Top()
	if top == nil {
		return TurnResult{Status: StatusComplete, Result: result}, nil
	}
	d, err := dc.registry.mustFind(top.DialogID)
	if err != nil {
		return TurnResult{}, err
	}
	return d.Resume(ctx, dc, result)
}

// Replace atomically clears the stack and begins the named dialog in its
// place. Popped frames do not run their completion steps.
func (dc *Context) Replace(ctx context.Context, dialogID string, options any) (TurnResult, error) {
	dc.state.Stack = nil
	return dc.Begin(ctx, dialogID, options)
}

// CancelAll pops every frame without invoking completion steps. Frames
// whose dialog implements CancelNotifier get an out-of-band notification
// before removal, top frame first.
func (dc *Context) CancelAll(ctx context.Context) (TurnResult, error) {
	if dc.state.Top() == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}
	for {
		f := dc.state.pop()
		if f == nil {
			break
		}
		if d, ok := dc.registry.Find(f.DialogID); ok {
			if n, ok := d.(CancelNotifier); ok {
				n.OnCancel(ctx, dc, f)
			}
		}
	}
	return TurnResult{Status: StatusCancelled}, nil
}
