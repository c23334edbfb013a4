package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skillhost/skillhost/pkg/events"
	"github.com/skillhost/skillhost/pkg/urlvalidation"
)

// ErrCircuitOpen is returned when the breaker is rejecting classifier calls.
var ErrCircuitOpen = errors.New("classifier circuit open")

// Config holds the connection settings for the conversation analysis
// service. The client is "unconfigured" (an alternate code path, not an
// error) when Endpoint, APIKey, or ProjectName is empty.
type Config struct {
	Endpoint       string
	APIKey         string
	ProjectName    string
	DeploymentName string
	Verbose        bool
}

// Configured reports whether the required connection settings are present.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.APIKey != "" && c.ProjectName != ""
}

// Client calls the conversation analysis endpoint and maps its prediction
// into the canonical Result.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	sink         events.Sink
	breaker      *CircuitBreaker
	validateOpts []urlvalidation.Option
}

// NewClient creates a classifier client. sink may be nil.
func NewClient(cfg Config, sink events.Sink, validateOpts ...urlvalidation.Option) *Client {
	if cfg.DeploymentName == "" {
		cfg.DeploymentName = "production"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		sink: sink,
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		validateOpts: validateOpts,
	}
}

// Configured reports whether Analyze can be called.
func (c *Client) Configured() bool { return c.cfg.Configured() }

type analyzeRequest struct {
	Kind          string        `json:"kind"`
	AnalysisInput analysisInput `json:"analysisInput"`
	Parameters    parameters    `json:"parameters"`
}

type analysisInput struct {
	ConversationItem conversationItem `json:"conversationItem"`
}

type conversationItem struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Modality      string `json:"modality"`
	Language      string `json:"language"`
	ParticipantID string `json:"participantId,omitempty"`
}

type parameters struct {
	ProjectName     string `json:"projectName"`
	DeploymentName  string `json:"deploymentName"`
	Verbose         bool   `json:"verbose"`
	StringIndexType string `json:"stringIndexType"`
}

type analyzeResponse struct {
	Result struct {
		Prediction struct {
			TopIntent string `json:"topIntent"`
			Intents   []struct {
				Category        string  `json:"category"`
				ConfidenceScore float64 `json:"confidenceScore"`
			} `json:"intents"`
			Entities []struct {
				Category        string       `json:"category"`
				Text            string       `json:"text"`
				ConfidenceScore float64      `json:"confidenceScore"`
				Resolutions     []Resolution `json:"resolutions,omitempty"`
			} `json:"entities"`
		} `json:"prediction"`
	} `json:"result"`
}

// Analyze classifies one utterance. Failures are terminal for the turn;
// the client does not retry internally.
func (c *Client) Analyze(ctx context.Context, conversationID, utterance, participantID string) (*Result, error) {
	if !c.Configured() {
		return nil, errors.New("classifier is not configured")
	}
	if err := urlvalidation.ValidateEndpointURL(c.cfg.Endpoint, c.validateOpts...); err != nil {
		return nil, fmt.Errorf("classifier endpoint validation: %w", err)
	}
	if !c.breaker.AllowRequest() {
		return nil, ErrCircuitOpen
	}

	body, err := json.Marshal(analyzeRequest{
		Kind: "Conversation",
		AnalysisInput: analysisInput{
			ConversationItem: conversationItem{
				ID:            "1",
				Text:          utterance,
				Modality:      "text",
				Language:      "en-us",
				ParticipantID: participantID,
			},
		},
		Parameters: parameters{
			ProjectName:     c.cfg.ProjectName,
			DeploymentName:  c.cfg.DeploymentName,
			Verbose:         c.cfg.Verbose,
			StringIndexType: "Utf16CodeUnit",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	url := c.cfg.Endpoint + "/language/:analyze-conversations?api-version=2023-04-01"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		c.emitError(ctx, conversationID, err.Error())
		return nil, fmt.Errorf("analyze request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("read analyze response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.breaker.RecordFailure()
		errMsg := fmt.Sprintf("classifier returned HTTP %d: %s", resp.StatusCode, string(respBody))
		c.emitError(ctx, conversationID, errMsg)
		return nil, errors.New(errMsg)
	}
	c.breaker.RecordSuccess()

	var decoded analyzeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal analyze response: %w", err)
	}

	result := &Result{
		Text:      utterance,
		TopIntent: decoded.Result.Prediction.TopIntent,
		Intents:   make(map[string]float64, len(decoded.Result.Prediction.Intents)),
	}
	for _, in := range decoded.Result.Prediction.Intents {
		result.Intents[in.Category] = in.ConfidenceScore
	}
	for _, en := range decoded.Result.Prediction.Entities {
		result.Entities = append(result.Entities, Entity{
			Category:    en.Category,
			Text:        en.Text,
			Confidence:  en.ConfidenceScore,
			Resolutions: en.Resolutions,
		})
	}

	if c.sink != nil {
		top, score := result.Top()
		records := make([]events.EntityRecord, 0, len(result.Entities))
		for _, en := range result.Entities {
			records = append(records, events.EntityRecord{
				Category:   en.Category,
				Text:       en.Text,
				Confidence: en.Confidence,
			})
		}
		_ = c.sink.Emit(ctx, events.IntentRecognized, conversationID, &events.IntentRecognizedData{
			Utterance: utterance,
			TopIntent: top,
			Score:     score,
			Intents:   result.Intents,
			Entities:  records,
		})
	}

	return result, nil
}

func (c *Client) emitError(ctx context.Context, conversationID, msg string) {
	if c.sink == nil {
		return
	}
	_ = c.sink.Emit(ctx, events.SystemError, conversationID, &events.SystemErrorData{
		Component: "recognizer",
		Error:     msg,
	})
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() string { return c.breaker.State() }
