// Package integrations provides the HTTP plumbing shared by remote sources.
//
// # Overview
//
// The [github] subpackage implements repository search and contributor
// counts on top of the GitHub REST API. This package holds what is not
// GitHub-specific:
//
//   - [Client]: cached lookups via [cache.Cache] and streaming archive
//     downloads with default headers and retry
//   - [ErrNotFound] / [ErrNetwork]: transport error taxonomy
//   - [NormalizeRepoURL]: canonical https clone URLs
//
// # Client Pattern
//
//	c := integrations.NewClient(fileCache, "github:", 24*time.Hour, map[string]string{
//	    "Authorization": "Bearer " + token,
//	})
//	err := c.Download(ctx, archiveURL, func(r io.Reader) error {
//	    return extract(r, dest)
//	})
//
// 5xx responses and connection failures are wrapped in
// [httputil.RetryableError]; 404 maps to [ErrNotFound] and is never retried.
//
// [github]: github.com/matzehuels/packscan/pkg/integrations/github
// [cache.Cache]: github.com/matzehuels/packscan/pkg/cache.Cache
// [httputil.RetryableError]: github.com/matzehuels/packscan/pkg/httputil.RetryableError
package integrations
