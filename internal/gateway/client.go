// Package gateway provides Searcher implementations for the filter
// engine: an HTTP client against a remote gateway's log search API and a
// local adapter over the console's own store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/pysugar/nexus-console/internal/logview"
	"github.com/sony/gobreaker"
)

const searchPath = "/api/request-logs/search"

// Client searches request logs on a remote gateway. Calls run through a
// circuit breaker so a flapping gateway trips open instead of being
// hammered on every keystroke; breaker rejections surface as errors,
// which the filter engine absorbs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a search client for the given gateway base URL.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: 30 * time.Second})
}

// NewClientWithHTTP allows injecting the HTTP client, used by tests.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "gateway-search",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Gateway] breaker %s: %s -> %s", name, from, to)
		},
	})
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

// SearchLogs implements logview.Searcher over the gateway's search API.
func (c *Client) SearchLogs(ctx context.Context, accessToken string, p logview.SearchParams) (logview.Page, error) {
	searchesTotal.Inc()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.search(ctx, accessToken, p)
	})
	if err != nil {
		searchFailures.Inc()
		return logview.Page{}, err
	}
	return result.(logview.Page), nil
}

func (c *Client) search(ctx context.Context, accessToken string, p logview.SearchParams) (logview.Page, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return logview.Page{}, fmt.Errorf("encode search params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return logview.Page{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return logview.Page{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return logview.Page{}, fmt.Errorf("search returned %d: %s", resp.StatusCode, snippet)
	}

	var page logview.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return logview.Page{}, fmt.Errorf("decode search response: %w", err)
	}
	return page, nil
}
