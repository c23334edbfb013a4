package skillbot

import (
	"context"
	"strings"
	"testing"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/dialog"
	"github.com/skillhost/skillhost/pkg/recognizer"
	"github.com/skillhost/skillhost/pkg/state"
)

const testConversation = "conv-1"

type fakeRecognizer struct {
	configured bool
	result     *recognizer.Result
	err        error
}

func (f *fakeRecognizer) Configured() bool { return f.configured }

func (f *fakeRecognizer) Analyze(_ context.Context, _, _, _ string) (*recognizer.Result, error) {
	return f.result, f.err
}

type skillTurn struct {
	activity *activity.Activity
	sent     []*activity.Activity
}

func (t *skillTurn) Activity() *activity.Activity { return t.activity }

func (t *skillTurn) Send(_ context.Context, a *activity.Activity) error {
	t.sent = append(t.sent, a)
	return nil
}

func (t *skillTurn) SendText(ctx context.Context, text string) error {
	return t.Send(ctx, activity.NewMessage(t.activity.ConversationID, text))
}

func (t *skillTurn) texts() []string {
	var out []string
	for _, a := range t.sent {
		if a.Type == activity.TypeMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

func (t *skillTurn) lastText(tb *testing.T) string {
	tb.Helper()
	texts := t.texts()
	if len(texts) == 0 {
		tb.Fatal("no messages sent")
	}
	return texts[len(texts)-1]
}

type skillHarness struct {
	t     *testing.T
	store *state.MemoryStore
	reg   *dialog.Registry
}

func newSkillHarness(t *testing.T, rec IntentRecognizer) *skillHarness {
	t.Helper()
	reg := dialog.NewRegistry()
	reg.Add(NewActivityRouterDialog(rec, nil))
	store := state.NewMemoryStore(0)
	t.Cleanup(store.Close)
	return &skillHarness{t: t, store: store, reg: reg}
}

// turn runs one inbound activity through the router with state persisted
// between turns.
func (h *skillHarness) turn(a *activity.Activity) (*skillTurn, dialog.TurnResult) {
	h.t.Helper()
	ctx := context.Background()
	cs, err := state.Load(ctx, h.store, testConversation)
	if err != nil {
		h.t.Fatalf("load state: %v", err)
	}
	turn := &skillTurn{activity: a}
	dc := dialog.NewContext(h.reg, cs.DialogState(), turn)
	result, err := dc.ContinueDialog(ctx)
	if err == nil && result.Status == dialog.StatusEmpty {
		result, err = dc.Begin(ctx, ActivityRouterID, nil)
	}
	if err != nil {
		h.t.Fatalf("turn: %v", err)
	}
	if err := cs.SaveChanges(ctx); err != nil {
		h.t.Fatalf("save state: %v", err)
	}
	return turn, result
}

func (h *skillHarness) say(text string) (*skillTurn, dialog.TurnResult) {
	return h.turn(activity.NewMessage(testConversation, text))
}

func bookingEvent(value string) *activity.Activity {
	var raw []byte
	if value != "" {
		raw = []byte(value)
	}
	return activity.NewEvent(testConversation, EventBookFlight, raw)
}

func TestRouterEmitsTracePerActivity(t *testing.T) {
	h := newSkillHarness(t, nil)
	turn, _ := h.turn(activity.NewEvent(testConversation, EventGetWeather, nil))

	if len(turn.sent) == 0 || turn.sent[0].Type != activity.TypeTrace {
		t.Fatalf("first sent activity = %+v, want trace", turn.sent)
	}
	if !strings.Contains(turn.sent[0].Label, "Got ActivityType: event") {
		t.Errorf("trace label = %q", turn.sent[0].Label)
	}
}

func TestRouterGetWeatherEvent(t *testing.T) {
	h := newSkillHarness(t, nil)
	turn, result := h.turn(activity.NewEvent(testConversation, EventGetWeather, nil))

	if got := turn.lastText(t); got != "TODO: get weather flow here" {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}

func TestRouterUnknownEventName(t *testing.T) {
	h := newSkillHarness(t, nil)
	turn, result := h.turn(activity.NewEvent(testConversation, "Dance", nil))

	if got := turn.lastText(t); got != `Unrecognized EventName: "Dance".` {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}

func TestRouterUnknownActivityType(t *testing.T) {
	h := newSkillHarness(t, nil)
	a := &activity.Activity{Type: activity.TypeConversationUpdate, ConversationID: testConversation}
	turn, result := h.turn(a)

	if got := turn.lastText(t); got != `Unrecognized ActivityType: "conversationUpdate".` {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}

func TestRouterMessageWithoutRecognizer(t *testing.T) {
	h := newSkillHarness(t, nil)
	turn, result := h.say("book me a flight")

	if got := turn.lastText(t); !strings.HasPrefix(got, "NOTE: CLU is not configured.") {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}

func TestRouterMessageCatchAllNamesIntent(t *testing.T) {
	rec := &fakeRecognizer{
		configured: true,
		result:     &recognizer.Result{TopIntent: "None", Intents: map[string]float64{"None": 0.51}},
	}
	h := newSkillHarness(t, rec)
	turn, _ := h.say("what is the meaning of life")

	want := "Sorry, I didn't get that. Please try asking in a different way (intent was None)"
	if got := turn.lastText(t); got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
}

func TestRouterMessageSummarizesRecognition(t *testing.T) {
	rec := &fakeRecognizer{
		configured: true,
		result:     &recognizer.Result{TopIntent: "GetWeather", Intents: map[string]float64{"GetWeather": 0.88}},
	}
	h := newSkillHarness(t, rec)
	turn, _ := h.say("how is the weather")

	texts := turn.texts()
	if len(texts) < 2 {
		t.Fatalf("texts = %q, want summary plus reply", texts)
	}
	want := "CLU results for \"how is the weather\":\nIntent: \"GetWeather\" Score: 0.88"
	if texts[0] != want {
		t.Errorf("summary = %q, want %q", texts[0], want)
	}
	if texts[1] != "TODO: get weather flow here" {
		t.Errorf("reply = %q", texts[1])
	}
}

func TestRouterMessageStartsBookingFromEntities(t *testing.T) {
	rec := &fakeRecognizer{
		configured: true,
		result: &recognizer.Result{
			TopIntent: "BookFlight",
			Intents:   map[string]float64{"BookFlight": 0.97},
			Entities: []recognizer.Entity{
				{Category: recognizer.DestinationCategory, Text: "London", Confidence: 0.95},
				{Category: recognizer.DateCategory, Text: "2024-05-21", Confidence: 0.9},
			},
		},
	}
	h := newSkillHarness(t, rec)
	turn, result := h.say("book me a flight to London on 2024-05-21")

	if result.Status != dialog.StatusWaiting {
		t.Fatalf("status = %q, want waiting at confirm prompt", result.Status)
	}
	if got := turn.lastText(t); got != "Please confirm your choice. Is this correct? (yes/no)" {
		t.Errorf("confirm prompt = %q", got)
	}

	turn, result = h.say("yes")
	if result.Status != dialog.StatusComplete {
		t.Fatalf("status = %q, want complete", result.Status)
	}
	bd, ok := result.Result.(recognizer.BookingDetails)
	if !ok {
		t.Fatalf("result = %T, want BookingDetails", result.Result)
	}
	if bd.Destination != "London" || bd.TravelDate != "2024-05-21" {
		t.Errorf("details = %+v", bd)
	}
}

func TestRouterMessageMissingEntities(t *testing.T) {
	rec := &fakeRecognizer{
		configured: true,
		result: &recognizer.Result{
			TopIntent: "BookFlight",
			Intents:   map[string]float64{"BookFlight": 0.97},
			Entities: []recognizer.Entity{
				{Category: recognizer.DestinationCategory, Text: "London", Confidence: 0.95},
			},
		},
	}
	h := newSkillHarness(t, rec)
	turn, result := h.say("book me a flight to London")

	if got := turn.lastText(t); got != missingEntityText {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusComplete {
		t.Errorf("status = %q, want complete", result.Status)
	}
}

func TestRouterBookingEventCollectsMissingSlots(t *testing.T) {
	h := newSkillHarness(t, nil)

	turn, result := h.turn(bookingEvent(""))
	if result.Status != dialog.StatusWaiting {
		t.Fatalf("status = %q, want waiting", result.Status)
	}
	if got := turn.lastText(t); got != "Where would you like to travel to?" {
		t.Errorf("destination prompt = %q", got)
	}

	turn, _ = h.say("London")
	if got := turn.lastText(t); got != "When would you like to travel?" {
		t.Errorf("date prompt = %q", got)
	}

	// Not a definite date yet.
	turn, _ = h.say("sometime next week")
	if got := turn.lastText(t); got != dateRepromptText {
		t.Errorf("reprompt = %q", got)
	}

	turn, _ = h.say("2024-05-21")
	if got := turn.lastText(t); got != "Please confirm your choice. Is this correct? (yes/no)" {
		t.Errorf("confirm prompt = %q", got)
	}

	_, result = h.say("yes")
	bd, ok := result.Result.(recognizer.BookingDetails)
	if !ok {
		t.Fatalf("result = %T, want BookingDetails", result.Result)
	}
	if bd.Destination != "London" || bd.TravelDate != "2024-05-21" {
		t.Errorf("details = %+v", bd)
	}
}

func TestRouterBookingEventSkipsFilledSlots(t *testing.T) {
	h := newSkillHarness(t, nil)
	turn, result := h.turn(bookingEvent(`{"destination":"Paris","travelDate":"2024-06-01"}`))

	if result.Status != dialog.StatusWaiting {
		t.Fatalf("status = %q, want waiting", result.Status)
	}
	if got := turn.lastText(t); got != "Please confirm your choice. Is this correct? (yes/no)" {
		t.Errorf("prompt = %q, want to jump straight to confirmation", got)
	}
}

func TestRouterBookingAmbiguousDateGoesToResolver(t *testing.T) {
	h := newSkillHarness(t, nil)
	turn, _ := h.turn(bookingEvent(`{"destination":"Paris","travelDate":"from 2024-06-01 to 2024-06-05","multipleDates":true}`))

	if got := turn.lastText(t); got != "When would you like to travel?" {
		t.Errorf("prompt = %q, want date resolver", got)
	}
}

func TestRouterBookingDeclinedEndsWithNil(t *testing.T) {
	h := newSkillHarness(t, nil)
	h.turn(bookingEvent(`{"destination":"Paris","travelDate":"2024-06-01"}`))

	_, result := h.say("no")
	if result.Status != dialog.StatusComplete {
		t.Fatalf("status = %q, want complete", result.Status)
	}
	if result.Result != nil {
		t.Errorf("result = %v, want nil", result.Result)
	}
}

func TestBookingHelpKeepsPromptWaiting(t *testing.T) {
	h := newSkillHarness(t, nil)
	h.turn(bookingEvent(""))

	turn, result := h.say("help")
	if got := turn.lastText(t); got != helpText {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusWaiting {
		t.Fatalf("status = %q, want waiting", result.Status)
	}

	// The original prompt is still live.
	turn, _ = h.say("London")
	if got := turn.lastText(t); got != "When would you like to travel?" {
		t.Errorf("prompt after help = %q", got)
	}
}

func TestBookingCancelEndsDialog(t *testing.T) {
	h := newSkillHarness(t, nil)
	h.turn(bookingEvent(""))

	turn, result := h.say("cancel")
	if got := turn.lastText(t); got != cancelText {
		t.Errorf("reply = %q", got)
	}
	if result.Status != dialog.StatusComplete {
		t.Fatalf("status = %q, want complete", result.Status)
	}
	if result.Result != nil {
		t.Errorf("result = %v, want nil", result.Result)
	}
}
