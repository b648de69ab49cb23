package github

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	gh "github.com/google/go-github/v61/github"

	"github.com/matzehuels/packscan/pkg/observability"
)

// Rate-limit defaults.
const (
	DefaultFallbackMin = 30 * time.Second
	DefaultFallbackMax = 70 * time.Second
	DefaultMaxWait     = time.Hour
)

// RateLimitPolicy bounds how long a single retry may wait.
type RateLimitPolicy struct {
	FallbackMin time.Duration // Lower bound of the randomized fallback delay
	FallbackMax time.Duration // Upper bound of the randomized fallback delay
	MaxWait     time.Duration // Reset times further out than this use the fallback
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (p RateLimitPolicy) WithDefaults() RateLimitPolicy {
	if p.FallbackMin <= 0 {
		p.FallbackMin = DefaultFallbackMin
	}
	if p.FallbackMax < p.FallbackMin {
		p.FallbackMax = max(DefaultFallbackMax, p.FallbackMin)
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	return p
}

func (p RateLimitPolicy) fallback() time.Duration {
	spread := p.FallbackMax - p.FallbackMin
	if spread <= 0 {
		return p.FallbackMin
	}
	return p.FallbackMin + rand.N(spread+1)
}

// Wait returns how long to pause before retrying after err, and whether err
// is worth retrying at all.
//
// Primary rate limits wait until the advertised reset plus one second;
// secondary limits honour Retry-After. A reset time that is missing, already
// past, or beyond MaxWait falls back to a randomized delay, as do transient
// network and 5xx failures. Cancellation and other 4xx responses are permanent.
func (p RateLimitPolicy) Wait(err error) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var rl *gh.RateLimitError
	if errors.As(err, &rl) {
		wait := time.Until(rl.Rate.Reset.Time) + time.Second
		if rl.Rate.Reset.IsZero() || wait <= time.Second || wait > p.MaxWait {
			return p.fallback(), true
		}
		return wait, true
	}

	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		if abuse.RetryAfter != nil && *abuse.RetryAfter > 0 && *abuse.RetryAfter <= p.MaxWait {
			return *abuse.RetryAfter, true
		}
		return p.fallback(), true
	}

	var resp *gh.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		code := resp.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return 0, false
		}
	}
	return p.fallback(), true
}

// sleepFunc pauses for d unless ctx ends first.
type sleepFunc func(ctx context.Context, d time.Duration) error

// withRateLimit runs call until it succeeds, a permanent error occurs, or ctx
// ends. Retries are unbounded in count but each wait is bounded by the policy.
func (s *Source) withRateLimit(ctx context.Context, endpoint string, call func() error) error {
	for {
		err := call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait, retry := s.rate.Wait(err)
		if !retry {
			return err
		}
		observability.Pipeline().OnRateLimited(ctx, endpoint, wait)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
