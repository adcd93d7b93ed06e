package fitbit

import (
	"context"
	"fmt"
	"slices"

	"healthsync/internal/provider"
)

// PullService serves raw Fitbit payloads for the requested metrics. Range metrics need both
// start and end; daily metrics need start.
type PullService struct {
	client *Client
}

func NewPullService(client *Client) *PullService {
	return &PullService{client: client}
}

func (s *PullService) FetchMetrics(ctx context.Context, req provider.PullRequest) (map[string]any, error) {
	tok := req.Token.AccessToken
	if tok == "" {
		return nil, fmt.Errorf("fitbit pull for %s: empty access token", req.UserID)
	}
	want := func(m string) bool { return slices.Contains(req.Metrics, m) }
	hasRange := req.Start != "" && req.End != ""

	type fetch struct {
		metric string
		ready  bool
		call   func() (any, error)
	}
	fetches := []fetch{
		{"steps", hasRange, func() (any, error) { return boxed(s.client.Steps(ctx, tok, req.Start, req.End)) }},
		{"calories", hasRange, func() (any, error) { return boxed(s.client.Calories(ctx, tok, req.Start, req.End)) }},
		{"weight", hasRange, func() (any, error) { return boxed(s.client.Weight(ctx, tok, req.Start, req.End)) }},
		{"sleep", req.Start != "", func() (any, error) { return boxed(s.client.Sleep(ctx, tok, req.Start, req.End)) }},
		{"hrv", req.Start != "", func() (any, error) { return boxed(s.client.HRV(ctx, tok, req.Start)) }},
		{"steps_minute", req.Start != "", func() (any, error) { return boxed(s.client.IntradaySteps(ctx, tok, req.Start)) }},
		{"heart_minute", req.Start != "", func() (any, error) {
			return boxed(s.client.IntradayHeart(ctx, tok, req.Start, req.TimeStart, req.TimeEnd))
		}},
	}

	out := map[string]any{}
	for _, f := range fetches {
		if !f.ready || !want(f.metric) {
			continue
		}
		v, err := f.call()
		if err != nil {
			return nil, fmt.Errorf("fitbit %s: %w", f.metric, err)
		}
		out[f.metric] = v
	}
	return out, nil
}

func boxed[T any](v T, err error) (any, error) { return v, err }
