package github

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gh "github.com/google/go-github/v61/github"

	"github.com/matzehuels/packscan/pkg/cache"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/httputil"
	"github.com/matzehuels/packscan/pkg/integrations"
	"github.com/matzehuels/packscan/pkg/observability"
)

const (
	// MaxPerPage is the largest page size the search API accepts.
	MaxPerPage = 100
	// SearchResultCap is the number of results the search API exposes per query.
	SearchResultCap = 1000
)

// KnownFunc reports whether a repository id is already collected.
type KnownFunc func(ctx context.Context, id int64) (bool, error)

// Config configures a [Source].
type Config struct {
	Token      string          // Personal access token (optional, raises rate limits)
	BaseURL    string          // API root, e.g. an Enterprise "https://ghe.example.com/api/v3/"
	Cache      cache.Cache     // Contributor-count cache (nil disables caching)
	CacheTTL   time.Duration   // Contributor-count cache lifetime
	RateLimit  RateLimitPolicy // Wait bounds for rate-limited calls
	PerPage    int             // Search page size (default and maximum: 100)
	Logger     *log.Logger     // Defaults to log.Default()
	HTTPClient *http.Client    // Defaults to integrations.NewHTTPClient()
}

// Source searches GitHub for repositories whose package.json references a
// term, and counts their contributors.
type Source struct {
	client  *gh.Client
	http    *integrations.Client
	keyer   cache.Keyer
	known   KnownFunc
	rate    RateLimitPolicy
	perPage int
	logger  *log.Logger
	sleep   sleepFunc
}

// NewSource creates a Source.
func NewSource(cfg Config) (*Source, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = integrations.NewHTTPClient()
	}
	client := gh.NewClient(httpClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse github base url")
		}
		client.BaseURL = base
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	return &Source{
		client:  client,
		http:    integrations.NewClient(cfg.Cache, "", cfg.CacheTTL, nil),
		keyer:   cache.NewScopedKeyer(cache.NewDefaultKeyer(), client.BaseURL.Host+":"),
		known:   func(context.Context, int64) (bool, error) { return false, nil },
		rate:    cfg.RateLimit.WithDefaults(),
		perPage: perPage,
		logger:  logger,
		sleep:   httputil.Sleep,
	}, nil
}

// WithKnown installs the deduplication check consulted for every result.
// Repositories for which fn reports true are never yielded.
func (s *Source) WithKnown(fn KnownFunc) *Source {
	if fn != nil {
		s.known = fn
	}
	return s
}

// Query builds the search query for term.
func Query(term string) string {
	return fmt.Sprintf("%s in:package.json language:javascript archived:false is:public", strings.TrimSpace(term))
}

// Search yields up to limit repositories matching term, most recently updated
// first. Repositories already known are skipped without counting toward the
// limit. Each call starts a fresh search; nothing persists between calls.
//
// Rate-limited pages are retried after waiting, indefinitely, so callers stop
// a stuck search by cancelling ctx. An error is yielded once and ends the
// sequence.
func (s *Source) Search(ctx context.Context, term string, limit int) iter.Seq2[Descriptor, error] {
	return func(yield func(Descriptor, error) bool) {
		if err := errors.ValidateSearchTerm(term); err != nil {
			yield(Descriptor{}, err)
			return
		}
		if limit <= 0 {
			return
		}

		// Pages are always full size; known repositories do not count
		// toward limit.
		maxPages := (SearchResultCap + s.perPage - 1) / s.perPage
		opts := &gh.SearchOptions{
			Sort:        "updated",
			Order:       "desc",
			ListOptions: gh.ListOptions{PerPage: s.perPage},
		}
		query := Query(term)
		seen := make(map[int64]bool)
		yielded := 0

		for page := 1; page <= maxPages; page++ {
			opts.Page = page
			var (
				result *gh.RepositoriesSearchResult
				resp   *gh.Response
			)
			err := s.withRateLimit(ctx, "search", func() error {
				var err error
				result, resp, err = s.client.Search.Repositories(ctx, query, opts)
				return err
			})
			if err != nil {
				yield(Descriptor{}, fmt.Errorf("search %q page %d: %w", term, page, err))
				return
			}

			accepted := 0
			for _, repo := range result.Repositories {
				d := descriptorFrom(repo, s.client.BaseURL.String())
				if seen[d.ID] {
					continue
				}
				seen[d.ID] = true

				known, err := s.known(ctx, d.ID)
				if err != nil {
					yield(Descriptor{}, fmt.Errorf("check known %s: %w", d, err))
					return
				}
				if known {
					continue
				}
				if err := errors.ValidateRepoName(d.Name); err != nil {
					s.logger.Warn("skipping repository", "repo", d.FullName, "err", err)
					continue
				}

				accepted++
				if !yield(d, nil) {
					return
				}
				if yielded++; yielded >= limit {
					return
				}
			}
			observability.Pipeline().OnSearchPage(ctx, term, page, accepted)

			if len(result.Repositories) < s.perPage || resp.NextPage == 0 {
				return
			}
		}
	}
}

// Contributors returns the number of contributors of owner/repo, anonymous
// ones included. The count is read from the last-page link of a one-per-page
// listing, so it costs a single request; results are cached.
func (s *Source) Contributors(ctx context.Context, owner, repo string) (int, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return 0, err
	}

	var count int
	err := s.http.Cached(ctx, s.keyer.ContributorsKey(owner, repo), false, &count, func() error {
		return s.withRateLimit(ctx, "contributors", func() error {
			list, resp, err := s.client.Repositories.ListContributors(ctx, owner, repo, &gh.ListContributorsOptions{
				Anon:        "true",
				ListOptions: gh.ListOptions{PerPage: 1},
			})
			if err != nil {
				return err
			}
			count = len(list)
			if resp != nil && resp.LastPage > 0 {
				count = resp.LastPage
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("contributors %s/%s: %w", owner, repo, err)
	}
	return count, nil
}
