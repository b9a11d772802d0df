package xkcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotFound is returned for comic numbers the remote does not serve
var ErrNotFound = errors.New("comic not found")

// Client is an xkcd JSON API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client against baseURL (normally https://xkcd.com).
// The HTTP client is shared with the rest of the process.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Latest fetches the most recent comic
func (c *Client) Latest(ctx context.Context) (*Info, error) {
	info, err := c.get(ctx, c.baseURL+"/info.0.json")
	if err != nil {
		return nil, fmt.Errorf("get latest: %w", err)
	}
	return info, nil
}

// Get fetches a comic by number
func (c *Client) Get(ctx context.Context, num int) (*Info, error) {
	info, err := c.get(ctx, fmt.Sprintf("%s/%d/info.0.json", c.baseURL, num))
	if err != nil {
		return nil, fmt.Errorf("get comic %d: %w", num, err)
	}
	return info, nil
}

func (c *Client) get(ctx context.Context, url string) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &info, nil
}
