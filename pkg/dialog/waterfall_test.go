package dialog

import (
	"context"
	"testing"
)

func TestWaterfallAdvancesWithinTurn(t *testing.T) {
	var visited []string
	record := func(name string) StepFunc {
		return func(ctx context.Context, step *StepContext) (TurnResult, error) {
			visited = append(visited, name)
			return step.Next(ctx, name)
		}
	}
	w := NewWaterfallDialog("seq").
		AddStep("one", record("one")).
		AddStep("two", record("two")).
		AddStep("three", record("three"))

	dc := NewContext(newTestRegistry(w), NewState(), userTurn("go"))
	result, err := dc.Begin(t.Context(), "seq", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if result.Status != StatusComplete {
		t.Fatalf("status = %q, want %q", result.Status, StatusComplete)
	}
	// Running off the end finishes with the last step's result.
	if result.Result != "three" {
		t.Errorf("result = %v, want %q", result.Result, "three")
	}
	want := []string{"one", "two", "three"}
	for i, name := range want {
		if visited[i] != name {
			t.Fatalf("visited = %v, want %v", visited, want)
		}
	}
}

func TestWaterfallResumesAfterPrompt(t *testing.T) {
	var secondInput any
	w := NewWaterfallDialog("ask").
		AddStep("prompt", func(ctx context.Context, step *StepContext) (TurnResult, error) {
			return step.Prompt(ctx, "text", PromptOptions{Prompt: "Name?"})
		}).
		AddStep("greet", func(ctx context.Context, step *StepContext) (TurnResult, error) {
			secondInput = step.Result
			return step.End(ctx, step.Result)
		})
	reg := newTestRegistry(w, NewTextPrompt("text"))

	// Turn 1: the prompt suspends with two frames on the stack.
	turn1 := userTurn("go")
	dc := NewContext(reg, NewState(), turn1)
	result, err := dc.Begin(t.Context(), "ask", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if result.Status != StatusWaiting {
		t.Fatalf("turn 1 status = %q, want %q", result.Status, StatusWaiting)
	}
	if got := turn1.lastText(t); got != "Name?" {
		t.Errorf("prompt text = %q, want %q", got, "Name?")
	}
	if got := dc.StackState().Depth(); got != 2 {
		t.Fatalf("stack depth = %d, want 2", got)
	}

	// Turn 2: the reply ends the prompt and feeds the next step.
	st := roundTrip(t, dc.StackState())
	dc = NewContext(reg, st, userTurn("Ada"))
	result, err = dc.ContinueDialog(t.Context())
	if err != nil {
		t.Fatalf("ContinueDialog: %v", err)
	}
	if result.Status != StatusComplete {
		t.Fatalf("turn 2 status = %q, want %q", result.Status, StatusComplete)
	}
	if secondInput != "Ada" {
		t.Errorf("second step input = %v, want %q", secondInput, "Ada")
	}
}

func TestWaterfallCursorSurvivesRehydration(t *testing.T) {
	// Each step prompts; the reply must land on the step after the one
	// that suspended, regardless of how many turns have passed.
	var inputs []any
	w := NewWaterfallDialog("multi")
	for _, name := range []string{"a", "b", "c"} {
		prompt := "step " + name
		w.AddStep(name, func(ctx context.Context, step *StepContext) (TurnResult, error) {
			inputs = append(inputs, step.Result)
			return step.Prompt(ctx, "text", PromptOptions{Prompt: prompt})
		})
	}
	reg := newTestRegistry(w, NewTextPrompt("text"))

	dc := NewContext(reg, NewState(), userTurn("go"))
	result, err := dc.Begin(t.Context(), "multi", nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	st := dc.StackState()

	for _, reply := range []string{"r1", "r2", "r3"} {
		if result.Status != StatusWaiting {
			t.Fatalf("status before reply %q = %q, want %q", reply, result.Status, StatusWaiting)
		}
		st = roundTrip(t, st)
		dc = NewContext(reg, st, userTurn(reply))
		result, err = dc.ContinueDialog(t.Context())
		if err != nil {
			t.Fatalf("ContinueDialog(%q): %v", reply, err)
		}
		st = dc.StackState()
	}

	if result.Status != StatusComplete {
		t.Fatalf("final status = %q, want %q", result.Status, StatusComplete)
	}
	want := []any{nil, "r1", "r2"}
	if len(inputs) != len(want) {
		t.Fatalf("step inputs = %v, want %v", inputs, want)
	}
	for i := range want {
		if inputs[i] != want[i] {
			t.Errorf("step %d input = %v, want %v", i, inputs[i], want[i])
		}
	}
	if result.Result != "r3" {
		t.Errorf("final result = %v, want %q", result.Result, "r3")
	}
}

func TestWaterfallFreshCursorOnRebegin(t *testing.T) {
	var starts int
	w := NewWaterfallDialog("restart").
		AddStep("first", func(ctx context.Context, step *StepContext) (TurnResult, error) {
			starts++
			return step.Prompt(ctx, "text", PromptOptions{Prompt: "?"})
		}).
		AddStep("second", func(ctx context.Context, step *StepContext) (TurnResult, error) {
			return step.End(ctx, step.Result)
		})
	reg := newTestRegistry(w, NewTextPrompt("text"))

	dc := NewContext(reg, NewState(), userTurn("go"))
	if _, err := dc.Begin(t.Context(), "restart", nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	st := roundTrip(t, dc.StackState())
	dc = NewContext(reg, st, userTurn("done"))
	result, err := dc.ContinueDialog(t.Context())
	if err != nil {
		t.Fatalf("ContinueDialog: %v", err)
	}
	if result.Status != StatusComplete {
		t.Fatalf("status = %q, want %q", result.Status, StatusComplete)
	}

	// A second begin starts at step zero, not where the last run ended.
	dc = NewContext(reg, dc.StackState(), userTurn("again"))
	if _, err := dc.Begin(t.Context(), "restart", nil); err != nil {
		t.Fatalf("re-Begin: %v", err)
	}
	if starts != 2 {
		t.Errorf("first step ran %d times, want 2", starts)
	}
}

func TestWaterfallOptionsAndValues(t *testing.T) {
	type bookingOptions struct {
		Destination string `json:"destination"`
	}
	w := NewWaterfallDialog("slots").
		AddStep("fill", func(ctx context.Context, step *StepContext) (TurnResult, error) {
			var opts bookingOptions
			ok, err := step.Options(&opts)
			if err != nil || !ok {
				t.Fatalf("Options: ok=%v err=%v", ok, err)
			}
			if opts.Destination != "Paris" {
				t.Errorf("destination = %q, want %q", opts.Destination, "Paris")
			}
			if err := step.SetValue("leg", "outbound"); err != nil {
				return TurnResult{}, err
			}
			opts.Destination = "London"
			if err := step.SetOptions(opts); err != nil {
				return TurnResult{}, err
			}
			return step.Prompt(ctx, "text", PromptOptions{Prompt: "?"})
		}).
		AddStep("check", func(ctx context.Context, step *StepContext) (TurnResult, error) {
			var opts bookingOptions
			if _, err := step.Options(&opts); err != nil {
				return TurnResult{}, err
			}
			var leg string
			ok, err := step.Value("leg", &leg)
			if err != nil || !ok {
				t.Fatalf("Value: ok=%v err=%v", ok, err)
			}
			return step.End(ctx, opts.Destination+"/"+leg)
		})
	reg := newTestRegistry(w, NewTextPrompt("text"))

	dc := NewContext(reg, NewState(), userTurn("go"))
	if _, err := dc.Begin(t.Context(), "slots", bookingOptions{Destination: "Paris"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	st := roundTrip(t, dc.StackState())
	dc = NewContext(reg, st, userTurn("ok"))
	result, err := dc.ContinueDialog(t.Context())
	if err != nil {
		t.Fatalf("ContinueDialog: %v", err)
	}
	if result.Result != "London/outbound" {
		t.Errorf("result = %v, want %q", result.Result, "London/outbound")
	}
}
