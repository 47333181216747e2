package segctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"segmentd/pkg/types"
)

// Client is a thin HTTP client for a running segmentd.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient builds a client for base, e.g. "http://127.0.0.1:8080".
func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{base: base, hc: &http.Client{Timeout: timeout}}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var out types.StatusResponse
	err := c.getJSON(ctx, "/status", &out)
	return out, err
}

// Models fetches GET /models.
func (c *Client) Models(ctx context.Context) (types.ModelsResponse, error) {
	var out types.ModelsResponse
	err := c.getJSON(ctx, "/models", &out)
	return out, err
}

// Metrics fetches GET /metrics/json.
func (c *Client) Metrics(ctx context.Context) (types.MetricsResponse, error) {
	var out types.MetricsResponse
	err := c.getJSON(ctx, "/metrics/json", &out)
	return out, err
}

// Segment posts one segmentation request.
func (c *Client) Segment(ctx context.Context, req types.SegmentRequest) (types.SegmentResponse, error) {
	var out types.SegmentResponse
	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/segment", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	hr.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(hr)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, decodeError(resp)
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er types.ErrorResponse
	if json.Unmarshal(b, &er) == nil && er.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
