// Package relay provides a client for the agent mailbox relay.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

// DefaultBaseURL is used when NewClient is given an empty base URL.
const DefaultBaseURL = "http://localhost:8080"

// Client talks to a relay on behalf of one agent.
type Client struct {
	BaseURL    string
	AgentID    string
	HTTPClient *http.Client
}

// NewClient creates a new relay client for agentID.
func NewClient(baseURL, agentID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AgentID:    agentID,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for any response with a 4xx or 5xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Send deposits a message for agent to. The sender is the client's agent and
// the timestamp is the current UTC time.
func (c *Client) Send(ctx context.Context, to, msgType string, payload any) (*models.Message, error) {
	p, err := models.NewPayload(payload)
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		Sender:    c.AgentID,
		Recipient: to,
		Timestamp: time.Now().UTC(),
		Type:      msgType,
		Payload:   p,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var stored models.Message
	if err := c.doRequest(ctx, http.MethodPost, "/messages", body, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Fetch collects every pending message addressed to the client's agent.
// Messages returned here will not be returned again.
func (c *Client) Fetch(ctx context.Context) ([]models.Message, error) {
	path := "/messages?recipient=" + url.QueryEscape(c.AgentID)

	var messages []models.Message
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                       `json:"status"`
	Version   string                       `json:"version"`
	Instance  string                       `json:"instance,omitempty"`
	Checks    map[string]map[string]string `json:"checks"`
	Timestamp string                       `json:"timestamp"`
}

// Health checks relay health. A degraded relay yields an *APIError with
// status 503.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsResponse is the response from the stats endpoint.
type StatsResponse struct {
	Backend    string `json:"backend"`
	Pending    int64  `json:"pending"`
	Delivered  int64  `json:"delivered"`
	Recipients int64  `json:"recipients"`
}

// Stats returns mailbox counters.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
