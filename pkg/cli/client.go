package cli

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
)

// Client is a minimal HTTP client for the querychat API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the given base URL.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// Ask submits one question and decodes the response union.
func (c *Client) Ask(ctx context.Context, queryText, userID, sessionID string) (map[string]interface{}, error) {
	body, _ := json.Marshal(map[string]string{
		"queryText": queryText,
		"userId":    userID,
		"sessionId": sessionID,
	})
	return c.postJSON(ctx, "/v1/ask", body)
}

// Templates lists the available query templates.
func (c *Client) Templates(ctx context.Context) (map[string]interface{}, error) {
	return c.getJSON(ctx, "/v1/templates", nil)
}

// Audit lists recent execution records.
func (c *Client) Audit(ctx context.Context, userID string, limit int) (map[string]interface{}, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return c.getJSON(ctx, "/v1/audit", q)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values) (map[string]interface{}, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]interface{}, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}
	if resp.StatusCode >= 500 {
		return out, fmt.Errorf("server error (%d)", resp.StatusCode)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
