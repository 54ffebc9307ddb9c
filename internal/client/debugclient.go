// Package client is a thin HTTP client for a peer's debug API (read
// endpoints plus POST /trade), used by cmd/energyctl. It deliberately knows nothing about the UDP
// protocol — it only ever talks to one peer's debugapi.Server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls one peer's debug HTTP API.
type Client struct {
	base string
	hc   *http.Client
}

// New builds a Client targeting baseURL (e.g. "http://localhost:9001"),
// with every request bounded by timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{base: baseURL, hc: &http.Client{Timeout: timeout}}
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("client: %s returned %s: %s", req.URL, resp.Status, data)
	}
	return data, nil
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/status")
}

// Ledger fetches GET /ledger.
func (c *Client) Ledger(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/ledger")
}

// Nodes fetches GET /nodes.
func (c *Client) Nodes(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/nodes")
}

// History fetches GET /history.
func (c *Client) History(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/history")
}

// Trade posts a trade proposal to POST /trade.
func (c *Client) Trade(ctx context.Context, target string, amount int, tradeType string) (json.RawMessage, error) {
	return c.post(ctx, "/trade", map[string]any{
		"target": target,
		"amount": amount,
		"type":   tradeType,
	})
}
