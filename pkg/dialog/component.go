package dialog

import (
	"context"
)

// ContinueInterceptor runs before a component resumes its inner stack on a
// new turn. Returning handled=true short-circuits normal step resumption;
// the interceptor's result stands for the turn.
type ContinueInterceptor func(ctx context.Context, inner *Context) (result TurnResult, handled bool, err error)

// ComponentDialog is a waterfall plus its own child-dialog registry,
// itself usable as a nested Dialog. Its children run on an inner stack
// persisted inside the component's own frame.
type ComponentDialog struct {
	id         string
	registry   *Registry
	initialID  string
	onContinue ContinueInterceptor
}

// NewComponentDialog creates a component with an empty child registry.
func NewComponentDialog(id string) *ComponentDialog {
	return &ComponentDialog{id: id, registry: NewRegistry()}
}

// ID implements Dialog.
func (c *ComponentDialog) ID() string { return c.id }

// AddDialog registers a child dialog. The first registered dialog becomes
// the initial dialog unless SetInitialID overrides it.
func (c *ComponentDialog) AddDialog(d Dialog) *ComponentDialog {
	c.registry.Add(d)
	if c.initialID == "" {
		c.initialID = d.ID()
	}
	return c
}

// SetInitialID names the child dialog that a Begin starts.
func (c *ComponentDialog) SetInitialID(id string) *ComponentDialog {
	c.initialID = id
	return c
}

// InitialID returns the child dialog a Begin starts.
func (c *ComponentDialog) InitialID() string { return c.initialID }

// Registry exposes the child registry.
func (c *ComponentDialog) Registry() *Registry { return c.registry }

// SetOnContinue installs an interceptor that runs before every inner-stack
// continuation, e.g. a cancel-keyword check that takes priority over
// normal step resumption.
func (c *ComponentDialog) SetOnContinue(fn ContinueInterceptor) *ComponentDialog {
	c.onContinue = fn
	return c
}

type componentState struct {
	Dialogs *State `json:"dialogs"`
}

func (c *ComponentDialog) innerContext(dc *Context) (*Context, *componentState, error) {
	st := &componentState{}
	if err := dc.Top().GetState(st); err != nil {
		return nil, nil, err
	}
	if st.Dialogs == nil {
		st.Dialogs = NewState()
	}
	inner := NewContext(c.registry, st.Dialogs, dc.Turn())
	inner.parent = dc
	return inner, st, nil
}

// finishTurn maps an inner-stack outcome onto the outer stack: a completed
// inner stack ends the component, everything else persists and bubbles.
func (c *ComponentDialog) finishTurn(ctx context.Context, dc *Context, st *componentState, result TurnResult, err error) (TurnResult, error) {
	if err != nil {
		return TurnResult{}, err
	}
	if result.Status == StatusComplete {
		return dc.End(ctx, result.Result)
	}
	if putErr := dc.Top().PutState(st); putErr != nil {
		return TurnResult{}, putErr
	}
	return result, nil
}

// Begin implements Dialog: starts the initial child on a fresh inner stack.
func (c *ComponentDialog) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	inner, st, err := c.innerContext(dc)
	if err != nil {
		return TurnResult{}, err
	}
	result, err := inner.Begin(ctx, c.initialID, options)
	return c.finishTurn(ctx, dc, st, result, err)
}

// Continue implements Dialog: resumes the inner stack, running the
// interceptor first when one is installed. An idle inner stack restarts
// the initial child.
func (c *ComponentDialog) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	inner, st, err := c.innerContext(dc)
	if err != nil {
		return TurnResult{}, err
	}

	if c.onContinue != nil {
		result, handled, err := c.onContinue(ctx, inner)
		if handled || err != nil {
			return c.finishTurn(ctx, dc, st, result, err)
		}
	}

	result, err := inner.ContinueDialog(ctx)
	if err == nil && result.Status == StatusEmpty {
		result, err = inner.Begin(ctx, c.initialID, nil)
	}
	return c.finishTurn(ctx, dc, st, result, err)
}

// Resume implements Dialog: feeds a child result into the inner stack's
// top frame.
func (c *ComponentDialog) Resume(ctx context.Context, dc *Context, result any) (TurnResult, error) {
	inner, st, err := c.innerContext(dc)
	if err != nil {
		return TurnResult{}, err
	}
	top := inner.Top()
	if top == nil {
		res, err := inner.Begin(ctx, c.initialID, result)
		return c.finishTurn(ctx, dc, st, res, err)
	}
	d, err := c.registry.mustFind(top.DialogID)
	if err != nil {
		return TurnResult{}, err
	}
	res, err := d.Resume(ctx, inner, result)
	return c.finishTurn(ctx, dc, st, res, err)
}
