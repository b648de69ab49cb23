package github

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	gh "github.com/google/go-github/v61/github"
)

func TestRateLimitPolicyWait(t *testing.T) {
	p := RateLimitPolicy{}.WithDefaults()
	inFallback := func(d time.Duration) bool { return d >= p.FallbackMin && d <= p.FallbackMax }
	retryAfter := 90 * time.Second
	tooLong := 3 * time.Hour

	tests := []struct {
		name      string
		err       error
		wantRetry bool
		check     func(time.Duration) bool
	}{
		{
			name:      "reset in future",
			err:       &gh.RateLimitError{Rate: gh.Rate{Reset: gh.Timestamp{Time: time.Now().Add(2 * time.Minute)}}},
			wantRetry: true,
			check:     func(d time.Duration) bool { return d > 110*time.Second && d <= 121*time.Second },
		},
		{
			name:      "reset in past",
			err:       &gh.RateLimitError{Rate: gh.Rate{Reset: gh.Timestamp{Time: time.Now().Add(-time.Minute)}}},
			wantRetry: true,
			check:     inFallback,
		},
		{
			name:      "missing reset",
			err:       &gh.RateLimitError{},
			wantRetry: true,
			check:     inFallback,
		},
		{
			name:      "reset beyond max wait",
			err:       &gh.RateLimitError{Rate: gh.Rate{Reset: gh.Timestamp{Time: time.Now().Add(5 * time.Hour)}}},
			wantRetry: true,
			check:     inFallback,
		},
		{
			name:      "secondary limit with retry-after",
			err:       &gh.AbuseRateLimitError{RetryAfter: &retryAfter},
			wantRetry: true,
			check:     func(d time.Duration) bool { return d == retryAfter },
		},
		{
			name:      "secondary limit with absurd retry-after",
			err:       &gh.AbuseRateLimitError{RetryAfter: &tooLong},
			wantRetry: true,
			check:     inFallback,
		},
		{
			name:      "server error",
			err:       &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusBadGateway}},
			wantRetry: true,
			check:     inFallback,
		},
		{
			name:      "too many requests",
			err:       &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusTooManyRequests}},
			wantRetry: true,
			check:     inFallback,
		},
		{
			name:      "network error",
			err:       fmt.Errorf("dial tcp: connection refused"),
			wantRetry: true,
			check:     inFallback,
		},
		{
			name: "not found",
			err:  &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}},
		},
		{
			name: "validation failed",
			err:  &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusUnprocessableEntity}},
		},
		{
			name: "cancelled",
			err:  fmt.Errorf("search: %w", context.Canceled),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, retry := p.Wait(tt.err)
			if retry != tt.wantRetry {
				t.Fatalf("retry = %v, want %v", retry, tt.wantRetry)
			}
			if tt.check != nil && !tt.check(d) {
				t.Errorf("wait = %v outside expected range", d)
			}
		})
	}
}

func TestRateLimitPolicyDefaults(t *testing.T) {
	p := RateLimitPolicy{FallbackMin: 5 * time.Second, FallbackMax: time.Second}.WithDefaults()
	if p.FallbackMin != 5*time.Second {
		t.Errorf("FallbackMin = %v", p.FallbackMin)
	}
	if p.FallbackMax < p.FallbackMin {
		t.Errorf("FallbackMax %v < FallbackMin %v", p.FallbackMax, p.FallbackMin)
	}
	if p.MaxWait != DefaultMaxWait {
		t.Errorf("MaxWait = %v", p.MaxWait)
	}

	fixed := RateLimitPolicy{FallbackMin: time.Second, FallbackMax: time.Second, MaxWait: time.Minute}
	if d, _ := fixed.Wait(&gh.RateLimitError{}); d != time.Second {
		t.Errorf("fixed fallback = %v, want 1s", d)
	}
}

func TestTarballURL(t *testing.T) {
	tests := []struct {
		template, base, ref, want string
	}{
		{"https://api.github.com/repos/o/r/{archive_format}{/ref}", "", "main", "https://api.github.com/repos/o/r/tarball/main"},
		{"https://api.github.com/repos/o/r/{archive_format}{/ref}", "", "", "https://api.github.com/repos/o/r/tarball"},
		{"", "https://ghe.example.com/api/v3/", "dev", "https://ghe.example.com/api/v3/repos/o/r/tarball/dev"},
	}
	for _, tt := range tests {
		if got := tarballURL(tt.template, tt.base, "o", "r", tt.ref); got != tt.want {
			t.Errorf("tarballURL(%q, %q, %q) = %q, want %q", tt.template, tt.base, tt.ref, got, tt.want)
		}
	}
}
