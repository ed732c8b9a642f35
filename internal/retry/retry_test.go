package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kitsurai/torii/internal/provider"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", &provider.ErrUnavailable{Provider: "jikan"}, true},
		{"rate limited", &provider.ErrRateLimited{Provider: "jikan"}, true},
		{"wrapped unavailable", fmt.Errorf("search: %w", &provider.ErrUnavailable{Provider: "kitsu"}), true},
		{"not found", &provider.ErrNotFound{Provider: "jikan", ID: "1"}, false},
		{"upstream", &provider.ErrUpstream{Provider: "anilist"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return &provider.ErrNotFound{Provider: "jikan", ID: "42"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (not-found must not retry)", calls)
	}
}

func TestDoRetriesTransientError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &provider.ErrUnavailable{Provider: "jikan", Cause: errors.New("timeout")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
