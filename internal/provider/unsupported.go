package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// UnsupportedPush accepts webhook deliveries for a provider without a push flow and
// queues nothing.
type UnsupportedPush struct {
	Kind   Kind
	Detail string
	Logger *slog.Logger
}

func (UnsupportedPush) IsValidVerificationCode(string) bool { return false }

func (u UnsupportedPush) IngestNotifications(_ context.Context, body any) (Receipt, error) {
	if u.Logger != nil {
		u.Logger.Info("notification for provider without push flow", "provider", u.Kind, "body", body)
	}
	return Receipt{
		Status:   StatusNotSupported,
		Provider: string(u.Kind),
		Detail:   u.Detail,
	}, nil
}

// UnsupportedPull rejects every pull request for a provider.
type UnsupportedPull struct {
	Kind   Kind
	Reason string
}

func (u UnsupportedPull) FetchMetrics(context.Context, PullRequest) (map[string]any, error) {
	return nil, fmt.Errorf("%s pull: %s: %w", u.Kind, u.Reason, ErrNotSupported)
}
