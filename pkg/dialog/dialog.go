package dialog

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillhost/skillhost/pkg/activity"
)

// TurnStatus describes where a dialog stack stands after processing a turn.
type TurnStatus string

const (
	// StatusEmpty means no dialog is active on the stack.
	StatusEmpty TurnStatus = "empty"
	// StatusWaiting means a dialog suspended the turn and is awaiting the
	// next inbound activity.
	StatusWaiting TurnStatus = "waiting"
	// StatusComplete means the stack unwound completely; Result carries the
	// value returned by the outermost dialog.
	StatusComplete TurnStatus = "complete"
	// StatusCancelled means the stack was torn down without completing.
	StatusCancelled TurnStatus = "cancelled"
)

// TurnResult is the outcome of resuming a dialog stack for one turn.
type TurnResult struct {
	Status TurnStatus
	Result any
}

// ErrDialogNotFound is returned when a begin or replace names a dialog
// missing from the registry.
var ErrDialogNotFound = errors.New("dialog not found")

// ErrNoActiveDialog is returned when End is called on an empty stack.
var ErrNoActiveDialog = errors.New("no active dialog")

// Turn is the surface a dialog needs from the current turn: the inbound
// activity and a way to send replies.
type Turn interface {
	Activity() *activity.Activity
	Send(ctx context.Context, a *activity.Activity) error
	SendText(ctx context.Context, text string) error
}

// Dialog is one named, resumable unit of conversation logic. Waterfalls,
// prompts, and components all satisfy it.
type Dialog interface {
	// ID is the dialog's stable name, unique within its registry.
	ID() string
	// Begin starts a fresh instance; the caller has already pushed the frame.
	Begin(ctx context.Context, dc *Context, options any) (TurnResult, error)
	// Continue resumes the instance with a new inbound turn.
	Continue(ctx context.Context, dc *Context) (TurnResult, error)
	// Resume re-enters the instance after a child dialog ended; result is
	// the child's return value.
	Resume(ctx context.Context, dc *Context, result any) (TurnResult, error)
}

// CancelNotifier is implemented by dialogs that need an out-of-band signal
// (e.g. end-of-conversation to a skill host) when their frame is cancelled
// without completing.
type CancelNotifier interface {
	OnCancel(ctx context.Context, dc *Context, f *Frame)
}

// Registry holds the dialogs addressable by name within one scope.
type Registry struct {
	dialogs map[string]Dialog
}

// NewRegistry creates an empty dialog registry.
func NewRegistry() *Registry {
	return &Registry{dialogs: make(map[string]Dialog)}
}

// Add registers a dialog under its ID, replacing any previous entry.
func (r *Registry) Add(d Dialog) *Registry {
	r.dialogs[d.ID()] = d
	return r
}

// Find returns the dialog registered under the given ID.
func (r *Registry) Find(id string) (Dialog, bool) {
	d, ok := r.dialogs[id]
	return d, ok
}

func (r *Registry) mustFind(id string) (Dialog, error) {
	d, ok := r.dialogs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDialogNotFound, id)
	}
	return d, nil
}
