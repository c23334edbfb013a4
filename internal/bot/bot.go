package bot

import (
	"context"
	"sync"
	"time"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/cards"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/state"
)

const welcomeCardName = "WelcomeCard"

const welcomeText = "Hi, I'm your Personal Assistant!"

// TurnOutcome is what one processed activity produced: the replies to
// relay and how the dialog stack ended up.
type TurnOutcome struct {
	Replies []*activity.Activity
	Status  dialog.TurnStatus
	Result  any
}

// EndOfConversation reports whether the turn finished the root dialog,
// whether by completing or by being cancelled.
func (o *TurnOutcome) EndOfConversation() bool {
	return o.Status == dialog.StatusComplete || o.Status == dialog.StatusCancelled
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// Bot runs one root dialog per conversation: state is rehydrated at turn
// start, the dialog stack is continued (or begun when idle), and the
// state is written back exactly once at turn end — also when the dialogs
// errored, so a partial turn never leaves the next one inconsistent.
// Turns for the same conversation are serialized; different conversations
// run concurrently.
type Bot struct {
	store  state.Store
	reg    *dialog.Registry
	rootID string
	cards  *cards.Loader
	sink   events.Sink

	mu    sync.Mutex
	locks map[string]*convLock
}

// New creates a bot running the given root dialog. cardLoader and sink
// may be nil.
func New(store state.Store, root dialog.Dialog, cardLoader *cards.Loader, sink events.Sink) *Bot {
	if sink == nil {
		sink = events.NopSink{}
	}
	reg := dialog.NewRegistry()
	reg.Add(root)
	return &Bot{
		store:  store,
		reg:    reg,
		rootID: root.ID(),
		cards:  cardLoader,
		sink:   sink,
		locks:  make(map[string]*convLock),
	}
}

func (b *Bot) lockConversation(id string) func() {
	b.mu.Lock()
	l, ok := b.locks[id]
	if !ok {
		l = &convLock{}
		b.locks[id] = l
	}
	l.refs++
	b.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		b.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(b.locks, id)
		}
		b.mu.Unlock()
	}
}

// ProcessActivity runs one turn for the activity's conversation.
func (b *Bot) ProcessActivity(ctx context.Context, a *activity.Activity) (*TurnOutcome, error) {
	release := b.lockConversation(a.ConversationID)
	defer release()

	start := time.Now()
	_ = b.sink.Emit(ctx, events.TurnReceived, a.ConversationID, &events.TurnReceivedData{
		ActivityID:   a.ID,
		ActivityType: string(a.Type),
		FromID:       a.From.ID,
	})

	cs, err := state.Load(ctx, b.store, a.ConversationID)
	if err != nil {
		return nil, err
	}
	tc := NewTurnContext(a, cs)
	dc := dialog.NewContext(b.reg, cs.DialogState(), tc)

	result, runErr := b.runTurn(ctx, dc, tc, cs, a)

	// State is written back whatever the dialogs did, so a recoverable
	// failure does not strand the conversation mid-prompt.
	if saveErr := cs.SaveChanges(ctx); saveErr != nil && runErr == nil {
		runErr = saveErr
	}
	if runErr != nil {
		_ = b.sink.Emit(ctx, events.SystemError, a.ConversationID, &events.SystemErrorData{
			Component: "bot",
			Error:     runErr.Error(),
		})
		return nil, runErr
	}

	stateData := &events.DialogStateData{StackDepth: cs.DialogState().Depth()}
	if top := cs.DialogState().Top(); top != nil {
		stateData.ActiveDialog = top.DialogID
	}
	_ = b.sink.Emit(ctx, events.DialogState, a.ConversationID, stateData)

	_ = b.sink.Emit(ctx, events.TurnCompleted, a.ConversationID, &events.TurnCompletedData{
		ActivityID:  a.ID,
		TurnStatus:  string(result.Status),
		RepliesSent: len(tc.Replies()),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	return &TurnOutcome{Replies: tc.Replies(), Status: result.Status, Result: result.Result}, nil
}

func (b *Bot) runTurn(ctx context.Context, dc *dialog.Context, tc *TurnContext, cs *state.ConversationState, a *activity.Activity) (dialog.TurnResult, error) {
	switch a.Type {
	case activity.TypeConversationUpdate:
		return b.onConversationUpdate(ctx, dc, tc, a)

	case activity.TypeEndOfConversation:
		result, err := dc.CancelAll(ctx)
		if err != nil {
			return dialog.TurnResult{}, err
		}
		cs.Clear()
		return result, nil

	default:
		return b.runDialog(ctx, dc)
	}
}

func (b *Bot) runDialog(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	result, err := dc.ContinueDialog(ctx)
	if err == nil && result.Status == dialog.StatusEmpty {
		result, err = dc.Begin(ctx, b.rootID, nil)
	}
	return result, err
}

// onConversationUpdate greets every added member except the bot itself
// with the welcome card, then starts the root dialog.
func (b *Bot) onConversationUpdate(ctx context.Context, dc *dialog.Context, tc *TurnContext, a *activity.Activity) (dialog.TurnResult, error) {
	greeted := false
	for _, member := range a.MembersAdded {
		if member.ID == a.Recipient.ID {
			continue
		}
		welcome := activity.NewMessage(a.ConversationID, welcomeText)
		if b.cards != nil {
			if attachment, err := b.cards.Attachment(welcomeCardName); err == nil {
				welcome.Attachments = []activity.Attachment{*attachment}
			}
		}
		if err := tc.Send(ctx, welcome); err != nil {
			return dialog.TurnResult{}, err
		}
		greeted = true
	}
	if !greeted {
		return dialog.TurnResult{Status: dialog.StatusEmpty}, nil
	}
	return b.runDialog(ctx, dc)
}
