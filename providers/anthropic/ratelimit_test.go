package anthropic

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-limit", "1000")
	h.Set("anthropic-ratelimit-requests-remaining", "500")
	h.Set("anthropic-ratelimit-requests-reset", "2026-08-06T17:30:00Z")
	h.Set("anthropic-ratelimit-input-tokens-limit", "80000")
	h.Set("anthropic-ratelimit-input-tokens-remaining", "79500")
	h.Set("retry-after", "40")

	limits, retryAfter := parseRateLimitHeaders(h)

	if len(limits) != 2 {
		t.Fatalf("limits = %d, want 2: %+v", len(limits), limits)
	}

	// Sorted by resource name: input-tokens before requests.
	tokens, requests := limits[0], limits[1]
	if tokens.Name != "input-tokens" {
		t.Errorf("limits[0].Name = %q, want input-tokens", tokens.Name)
	}
	if tokens.Limit == nil || *tokens.Limit != 80000 {
		t.Errorf("input-tokens limit = %v, want 80000", tokens.Limit)
	}
	if tokens.ResetsAt != nil {
		t.Error("input-tokens resets_at set without a reset header")
	}

	if requests.Name != "requests" {
		t.Errorf("limits[1].Name = %q, want requests", requests.Name)
	}
	if requests.Limit == nil || *requests.Limit != 1000 {
		t.Errorf("requests limit = %v, want 1000", requests.Limit)
	}
	if requests.Remaining == nil || *requests.Remaining != 500 {
		t.Errorf("requests remaining = %v, want 500", requests.Remaining)
	}
	want := time.Date(2026, 8, 6, 17, 30, 0, 0, time.UTC)
	if requests.ResetsAt == nil || !requests.ResetsAt.Equal(want) {
		t.Errorf("requests resets_at = %v, want %v", requests.ResetsAt, want)
	}

	if retryAfter == nil || *retryAfter != 40 {
		t.Errorf("retry_after = %v, want 40", retryAfter)
	}
}

func TestParseRateLimitHeadersAbsent(t *testing.T) {
	limits, retryAfter := parseRateLimitHeaders(http.Header{})
	if len(limits) != 0 {
		t.Errorf("limits = %+v, want none", limits)
	}
	if retryAfter != nil {
		t.Errorf("retry_after = %v, want nil", retryAfter)
	}
}

func TestParseRateLimitHeadersIgnoresGarbage(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-ratelimit-requests-limit", "not-a-number")
	h.Set("anthropic-ratelimit-requests-reset", "not-a-time")
	h.Set("anthropic-ratelimit-bogus", "1")
	h.Set("retry-after", "soon")

	limits, retryAfter := parseRateLimitHeaders(h)
	if len(limits) != 1 {
		t.Fatalf("limits = %+v, want the requests record", limits)
	}
	if limits[0].Limit != nil || limits[0].ResetsAt != nil {
		t.Errorf("unparseable values were not dropped: %+v", limits[0])
	}
	if retryAfter != nil {
		t.Errorf("retry_after = %v, want nil", retryAfter)
	}
}
