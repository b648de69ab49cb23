// Package github searches GitHub for JavaScript repositories and counts
// their contributors.
//
// # Search
//
// [Source.Search] queries the repository search API for projects whose
// package.json mentions a term, sorted by most recent update. Results stream
// as an iterator so callers can stop early:
//
//	src, err := github.NewSource(github.Config{Token: token})
//	if err != nil {
//	    return err
//	}
//	for d, err := range src.Search(ctx, "webpack", 200) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(d.FullName, d.ArchiveURL)
//	}
//
// The search API exposes at most 1000 results per query. Repositories already
// collected are filtered through the function installed with
// [Source.WithKnown] and do not count toward the limit.
//
// # Rate Limits
//
// Every API call runs under a [RateLimitPolicy]. Primary limits wait for the
// advertised reset, secondary limits honour Retry-After, and anything without
// a usable hint waits a randomized 30-70 seconds. Retries continue until the
// call succeeds or the context is cancelled.
//
// # Contributors
//
// [Source.Contributors] requests a single contributor per page and reads the
// total from the last-page link. Counts are cached through [cache.Cache].
package github
