package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/urlvalidation"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	emitted []events.EventType
	last    interface{}
}

func (s *recordingSink) Emit(_ context.Context, et events.EventType, _ string, data interface{}) error {
	s.emitted = append(s.emitted, et)
	s.last = data
	return nil
}

const analysisResponse = `{
  "result": {
    "prediction": {
      "topIntent": "FirstIntent",
      "intents": [
        {"category": "FirstIntent", "confidenceScore": 0.97},
        {"category": "SecondIntent", "confidenceScore": 0.02}
      ],
      "entities": [
        {
          "category": "Destination",
          "text": "London",
          "confidenceScore": 0.95
        },
        {
          "category": "Date",
          "text": "next Tuesday",
          "confidenceScore": 0.8,
          "resolutions": [
            {"resolutionKind": "DateTimeResolution", "timex": "2024-05-21", "value": "2024-05-21"}
          ]
        }
      ]
    }
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, sink events.Sink) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Endpoint:    srv.URL,
		APIKey:      "test-key",
		ProjectName: "skills",
	}, sink, urlvalidation.AllowPrivateIPs())
}

func TestAnalyzeMapsPrediction(t *testing.T) {
	var gotReq analyzeRequest
	sink := &recordingSink{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "test-key" {
			t.Errorf("subscription key = %q, want %q", got, "test-key")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(analysisResponse))
	}, sink)

	result, err := client.Analyze(t.Context(), "conv-1", "book a flight to London next Tuesday", "user-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if gotReq.Kind != "Conversation" {
		t.Errorf("request kind = %q, want %q", gotReq.Kind, "Conversation")
	}
	if gotReq.AnalysisInput.ConversationItem.ParticipantID != "user-1" {
		t.Errorf("participantId = %q, want %q", gotReq.AnalysisInput.ConversationItem.ParticipantID, "user-1")
	}
	if gotReq.Parameters.ProjectName != "skills" {
		t.Errorf("projectName = %q, want %q", gotReq.Parameters.ProjectName, "skills")
	}

	top, score := result.Top()
	if top != "FirstIntent" || score != 0.97 {
		t.Errorf("top intent = %q/%v, want FirstIntent/0.97", top, score)
	}
	if len(result.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(result.Entities))
	}
	if result.Entities[1].Resolutions[0].Value != "2024-05-21" {
		t.Errorf("resolution value = %q, want %q", result.Entities[1].Resolutions[0].Value, "2024-05-21")
	}

	if len(sink.emitted) != 1 || sink.emitted[0] != events.IntentRecognized {
		t.Errorf("emitted = %v, want [intent.recognized]", sink.emitted)
	}
}

func TestAnalyzeUnconfigured(t *testing.T) {
	client := NewClient(Config{}, nil)
	if client.Configured() {
		t.Error("empty config reports configured")
	}
	if _, err := client.Analyze(t.Context(), "conv-1", "hello", ""); err == nil {
		t.Error("Analyze on unconfigured client did not error")
	}
}

func TestAnalyzeServerErrorEmitsEvent(t *testing.T) {
	sink := &recordingSink{}
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, sink)

	_, err := client.Analyze(t.Context(), "conv-1", "hello", "")
	if err == nil {
		t.Fatal("Analyze did not propagate server error")
	}
	if len(sink.emitted) != 1 || sink.emitted[0] != events.SystemError {
		t.Errorf("emitted = %v, want [error]", sink.emitted)
	}
}

func TestAnalyzeCircuitOpensAfterFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}, nil)

	for range 5 {
		if _, err := client.Analyze(t.Context(), "conv-1", "hello", ""); err == nil {
			t.Fatal("expected failure")
		}
	}
	if got := client.BreakerState(); got != StateOpen {
		t.Fatalf("breaker state = %q, want %q", got, StateOpen)
	}
	if _, err := client.Analyze(t.Context(), "conv-1", "hello", ""); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}
