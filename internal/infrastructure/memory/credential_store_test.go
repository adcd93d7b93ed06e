package memory

import (
	"context"
	"testing"

	"healthsync/internal/domain/credential"
)

func TestCredentialStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore()

	got, err := store.Get(ctx, "fitbit", "u1")
	if err != nil || got != nil {
		t.Fatalf("expected empty store, got %v, %v", got, err)
	}

	if err := store.Put(ctx, "fitbit", "u1", credential.Token{AccessToken: "abc"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err = store.Get(ctx, "fitbit", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.AccessToken != "abc" {
		t.Fatalf("unexpected token %+v", got)
	}

	if other, _ := store.Get(ctx, "google", "u1"); other != nil {
		t.Fatalf("tokens must be scoped by provider")
	}
}
