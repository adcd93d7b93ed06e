// Package fitbit is a minimal Fitbit Web API client plus the push and pull services built on it.
package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL       = "https://api.fitbit.com"
	defaultTimeout       = 30 * time.Second
	maxResponseBodyBytes = 4 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx response from the Web API.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fitbit %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

type Client struct {
	baseURL string
	http    HTTPDoer
}

// NewClient returns a client for baseURL. A nil doer gets an http.Client with timeout.
func NewClient(baseURL string, doer HTTPDoer, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

// get decodes the JSON body of path into out. found is false on 404 when allowMissing.
func (c *Client) get(ctx context.Context, accessToken, path string, allowMissing bool, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build fitbit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("fitbit %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return false, fmt.Errorf("read fitbit response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && allowMissing {
		return false, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return false, &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}

	if len(body) == 0 {
		return true, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode fitbit %s: %w", path, err)
	}
	return true, nil
}

// series fetches a date-range time series and returns the list under key.
func (c *Client) series(ctx context.Context, accessToken, path, key string) ([]any, error) {
	var payload map[string]any
	if _, err := c.get(ctx, accessToken, path, false, &payload); err != nil {
		return nil, err
	}
	items, _ := payload[key].([]any)
	if items == nil {
		items = []any{}
	}
	return items, nil
}

// Steps returns daily step totals between two YYYY-MM-DD dates.
func (c *Client) Steps(ctx context.Context, accessToken, start, end string) ([]any, error) {
	return c.series(ctx, accessToken, fmt.Sprintf("/1/user/-/activities/steps/date/%s/%s.json", start, end), "activities-steps")
}

func (c *Client) Calories(ctx context.Context, accessToken, start, end string) ([]any, error) {
	return c.series(ctx, accessToken, fmt.Sprintf("/1/user/-/activities/calories/date/%s/%s.json", start, end), "activities-calories")
}

func (c *Client) Weight(ctx context.Context, accessToken, start, end string) ([]any, error) {
	return c.series(ctx, accessToken, fmt.Sprintf("/1/user/-/body/log/weight/date/%s/%s.json", start, end), "weight")
}

// Sleep returns the sleep log response for a date, or a date range when end is set.
func (c *Client) Sleep(ctx context.Context, accessToken, start, end string) (map[string]any, error) {
	path := fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", start)
	if end != "" {
		path = fmt.Sprintf("/1.2/user/-/sleep/date/%s/%s.json", start, end)
	}
	payload := map[string]any{}
	if _, err := c.get(ctx, accessToken, path, false, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// HRV returns the HRV summary for a date. Dates without HRV data yield an empty map.
func (c *Client) HRV(ctx context.Context, accessToken, date string) (map[string]any, error) {
	payload := map[string]any{}
	if _, err := c.get(ctx, accessToken, fmt.Sprintf("/1/user/-/hrv/date/%s.json", date), true, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// IntradaySteps returns minute-level step datapoints for a date.
func (c *Client) IntradaySteps(ctx context.Context, accessToken, date string) ([]any, error) {
	return c.intraday(ctx, accessToken, fmt.Sprintf("/1/user/-/activities/steps/date/%s/1d/1min.json", date), "activities-steps-intraday")
}

// IntradayHeart returns minute-level heart rate for a date, optionally bounded to HH:MM times.
func (c *Client) IntradayHeart(ctx context.Context, accessToken, date, startTime, endTime string) ([]any, error) {
	path := fmt.Sprintf("/1/user/-/activities/heart/date/%s/1d/1min.json", date)
	if startTime != "" && endTime != "" {
		path = fmt.Sprintf("/1/user/-/activities/heart/date/%s/1d/1min/time/%s/%s.json", date, startTime, endTime)
	}
	return c.intraday(ctx, accessToken, path, "activities-heart-intraday")
}

func (c *Client) intraday(ctx context.Context, accessToken, path, key string) ([]any, error) {
	var payload map[string]any
	found, err := c.get(ctx, accessToken, path, true, &payload)
	if err != nil {
		return nil, err
	}
	if !found {
		return []any{}, nil
	}
	block, _ := payload[key].(map[string]any)
	dataset, _ := block["dataset"].([]any)
	if dataset == nil {
		dataset = []any{}
	}
	return dataset, nil
}
