// Package httputil provides resilience helpers for remote calls.
//
// # Retry
//
// [Retry] re-runs an operation that failed transiently. Only errors wrapped
// with [Retryable] are retried; anything else (a 404, a malformed response)
// is returned at once:
//
//	err := httputil.Retry(ctx, 3, time.Second, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
//
// Downloads of repository archives use [RetryWithBackoff]. Rate-limit waits
// are handled separately by the GitHub source, which knows the reset time.
//
// # Sleep
//
// [Sleep] is a context-aware pause used by both retry paths so a cancelled
// run never waits out a backoff.
package httputil
