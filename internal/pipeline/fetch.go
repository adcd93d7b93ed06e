package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"healthsync/internal/domain/credential"
	"healthsync/internal/domain/event"
)

var ErrMissingCredentials = errors.New("no stored credentials")

// ProviderAPI is the set of date-scoped fetchers the fetch stage uses. Results are passed
// through untouched.
type ProviderAPI interface {
	Steps(ctx context.Context, accessToken, start, end string) ([]any, error)
	Calories(ctx context.Context, accessToken, start, end string) ([]any, error)
	Weight(ctx context.Context, accessToken, start, end string) ([]any, error)
	Sleep(ctx context.Context, accessToken, start, end string) (map[string]any, error)
	HRV(ctx context.Context, accessToken, date string) (map[string]any, error)
}

// ResolveUserID returns the subscriptionId prefix before the first "-", or fallback.
func ResolveUserID(subscriptionID, fallback string) string {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if prefix, _, ok := strings.Cut(subscriptionID, "-"); ok && prefix != "" {
		return prefix
	}
	return fallback
}

// FetchDetails loads credentials for the resolved user and fetches the collection's data.
func (p *Pipeline) FetchDetails(ctx context.Context, c *Context) error {
	ev := c.Event
	collection := strings.ToLower(ev.String(event.FieldCollectionType))
	date := ev.String(event.FieldDate)
	userID := ResolveUserID(ev.String(event.FieldSubscriptionID), p.defaultUserID)

	tok, err := p.credentials.Get(ctx, c.Provider, userID)
	if err != nil {
		return fmt.Errorf("load credentials for %s/%s: %w", c.Provider, userID, err)
	}
	if tok == nil {
		return fmt.Errorf("%w for %s user_id=%s", ErrMissingCredentials, c.Provider, userID)
	}

	d := &Details{
		UserID:         userID,
		CollectionType: collection,
		Date:           date,
		TokenExpired:   tok.Expired(p.now(), 0),
	}
	if err := p.fetchCollection(ctx, tok, collection, date, d); err != nil {
		return err
	}
	c.Details = d
	return nil
}

func (p *Pipeline) fetchCollection(ctx context.Context, tok *credential.Token, collection, date string, d *Details) error {
	at := tok.AccessToken
	var err error

	switch collection {
	case "activities":
		if date == "" {
			return nil
		}
		if d.Steps, err = p.api.Steps(ctx, at, date, date); err != nil {
			return fmt.Errorf("fetch steps: %w", err)
		}
		if d.Calories, err = p.api.Calories(ctx, at, date, date); err != nil {
			return fmt.Errorf("fetch calories: %w", err)
		}
		if d.HRV, err = p.api.HRV(ctx, at, date); err != nil {
			return fmt.Errorf("fetch hrv: %w", err)
		}
	case "sleep":
		if date == "" {
			return nil
		}
		if d.Sleep, err = p.api.Sleep(ctx, at, date, ""); err != nil {
			return fmt.Errorf("fetch sleep: %w", err)
		}
	case "body":
		if date == "" {
			return nil
		}
		if d.Weight, err = p.api.Weight(ctx, at, date, date); err != nil {
			return fmt.Errorf("fetch weight: %w", err)
		}
	default:
		d.Note = "No fetch strategy for collectionType=" + collection
	}
	return nil
}
