package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skillhost/skillhost/pkg/activity"
	"github.com/skillhost/skillhost/pkg/urlvalidation"
)

// Response is what a skill host returns for one delivered activity.
type Response struct {
	// Replies are activities the skill wants relayed to the user, in order.
	Replies []*activity.Activity `json:"replies,omitempty"`
	// EndOfConversation reports that the skill finished its dialog.
	EndOfConversation bool `json:"endOfConversation,omitempty"`
	// Result is the value the skill returned when it ended.
	Result json.RawMessage `json:"result,omitempty"`
}

// Connector delivers activities to a skill host. Implementations exist
// for in-process skills and remote HTTP skill hosts.
type Connector interface {
	Send(ctx context.Context, skill Skill, a *activity.Activity) (*Response, error)
}

// HTTPConnector posts activities to remote skill host endpoints.
type HTTPConnector struct {
	httpClient   *http.Client
	validateOpts []urlvalidation.Option
}

// NewHTTPConnector creates a connector for remote skill hosts.
func NewHTTPConnector(validateOpts ...urlvalidation.Option) *HTTPConnector {
	return &HTTPConnector{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		validateOpts: validateOpts,
	}
}

// SetTimeout overrides the default per-request timeout.
func (c *HTTPConnector) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// Send implements Connector.
func (c *HTTPConnector) Send(ctx context.Context, skill Skill, a *activity.Activity) (*Response, error) {
	if err := urlvalidation.ValidateEndpointURL(skill.Endpoint, c.validateOpts...); err != nil {
		return nil, fmt.Errorf("skill %q endpoint validation: %w", skill.ID, err)
	}

	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal activity: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/conversations/%s/activities", skill.Endpoint, a.ConversationID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create skill request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("skill %q request failed: %w", skill.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read skill response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("skill %q returned HTTP %d: %s", skill.ID, resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal skill response: %w", err)
	}
	return &out, nil
}
