package event

import (
	"errors"
	"testing"
)

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{`"not-an-object"`, `[1,2]`, `42`, `null`, `{broken`} {
		if _, err := Decode([]byte(payload)); err == nil {
			t.Fatalf("expected %s to be rejected", payload)
		}
	}

	ev, err := Decode([]byte(`{"subscriptionId":"u1-sub","retry_count":2}`))
	if err != nil {
		t.Fatalf("decode object: %v", err)
	}
	if ev.String(FieldSubscriptionID) != "u1-sub" {
		t.Fatalf("unexpected subscriptionId %q", ev.String(FieldSubscriptionID))
	}
	if ev.RetryCount() != 2 {
		t.Fatalf("expected retry_count 2, got %d", ev.RetryCount())
	}
}

func TestRetryCountDefaults(t *testing.T) {
	cases := map[string]Event{
		"absent":  {},
		"null":    {FieldRetryCount: nil},
		"garbage": {FieldRetryCount: "abc"},
	}
	for name, ev := range cases {
		if got := ev.RetryCount(); got != 0 {
			t.Fatalf("%s: expected 0, got %d", name, got)
		}
	}
	if got := (Event{FieldRetryCount: "3"}).RetryCount(); got != 3 {
		t.Fatalf("expected string count to parse, got %d", got)
	}
}

func TestWithFailureDoesNotMutateOriginal(t *testing.T) {
	orig := Event{FieldDate: "2026-02-10", FieldRetryCount: 1}
	next := orig.WithFailure(errors.New("boom"))

	if orig.RetryCount() != 1 {
		t.Fatalf("original mutated: %v", orig)
	}
	if _, ok := orig[FieldLastError]; ok {
		t.Fatalf("original gained last_error")
	}
	if next.RetryCount() != 2 || next.String(FieldLastError) != "boom" {
		t.Fatalf("unexpected copy %v", next)
	}
}

func TestStringRendersNonStrings(t *testing.T) {
	ev := Event{FieldOwnerID: float64(123), "missing": nil}
	if ev.String(FieldOwnerID) != "123" {
		t.Fatalf("expected 123, got %q", ev.String(FieldOwnerID))
	}
	if ev.String("missing") != "" || ev.String("nope") != "" {
		t.Fatalf("expected empty strings for absent fields")
	}
}
