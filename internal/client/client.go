// Package client is the HTTP client side of the daemon API, used by the CLI
// to inspect runs and answer approvals from another terminal.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sghr/warden/internal/manager"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(addr, token string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.http.Timeout = d
}

// CreateRun submits a run and returns its ID.
func (c *Client) CreateRun(req manager.RunRequest) (string, error) {
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do("POST", "/runs", req, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// ListRuns returns a snapshot per run known to the daemon.
func (c *Client) ListRuns() ([]*manager.Snapshot, error) {
	var out struct {
		Items []*manager.Snapshot `json:"items"`
	}
	if err := c.do("GET", "/runs", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetRun returns the snapshot for one run.
func (c *Client) GetRun(runID string) (*manager.Snapshot, error) {
	var snap manager.Snapshot
	if err := c.do("GET", "/runs/"+runID, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Events returns the run's event mirror.
func (c *Client) Events(runID string) ([]map[string]any, error) {
	var out struct {
		Items []map[string]any `json:"items"`
	}
	if err := c.do("GET", "/runs/"+runID+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Approve answers the run's pending approval request.
func (c *Client) Approve(runID, requestID, decision string) error {
	body := map[string]string{"request_id": requestID, "decision": decision}
	return c.do("POST", "/runs/"+runID+"/approve", body, nil)
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf(
			"failed to reach daemon at %s: %w\n"+
				"Is the daemon running? Start it with: warden serve",
			c.baseURL, err,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErrorMessage(resp.Body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiErrorMessage(body io.Reader) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return "unexpected response"
}
