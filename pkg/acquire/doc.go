// Package acquire downloads repositories into deterministic local copies.
//
// Each repository lands in "{root}/{name}_{id}/" with the fetched content
// under "source/" and the search metadata in "details.json":
//
//	repositories/
//	  webpack-demo_1234/
//	    details.json
//	    source/
//	      package.json
//	      ...
//
// # Idempotence
//
// [Engine.Acquire] returns an existing copy without fetching again. Content
// is fetched into a hidden staging directory and renamed into place only
// once complete, so an existing copy is never a partial one. A failed fetch
// leaves nothing behind.
//
// # Fetchers
//
// [TarballFetcher] streams the repository archive over HTTP and extracts it;
// [GitFetcher] performs a shallow clone with the git CLI. Both implement
// [Fetcher], so tests and callers can plug in their own.
package acquire
