package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matzehuels/packscan/internal/config"
	"github.com/matzehuels/packscan/pkg/acquire"
	"github.com/matzehuels/packscan/pkg/cache"
	"github.com/matzehuels/packscan/pkg/errors"
	"github.com/matzehuels/packscan/pkg/integrations"
	"github.com/matzehuels/packscan/pkg/integrations/github"
	"github.com/matzehuels/packscan/pkg/observability"
	"github.com/matzehuels/packscan/pkg/pipeline"
	"github.com/matzehuels/packscan/pkg/rules"
	"github.com/matzehuels/packscan/pkg/store"
)

// =============================================================================
// Environment - collaborators shared by the batch commands
// =============================================================================

// envOptions selects what a command needs wired.
type envOptions struct {
	source   bool             // GitHub search source (fetch, run)
	progress bool             // Show batch progress
	pipeline pipeline.Options // Runner options; Logger, Concurrency and Progress are filled in
}

// env holds the opened store, cache and runner for one command.
type env struct {
	cfg      config.Config
	store    *store.Store
	engine   *acquire.Engine
	cache    cache.Cache
	runner   *pipeline.Runner
	reporter reporter
}

// bindFlag binds a command-local flag to a config key. Binding happens when
// the command runs because several commands share flag names.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		_ = viper.BindPFlag(key, f)
	}
}

// openEnv loads the configuration and opens every collaborator the batch
// commands use. Failures here are fatal startup errors.
func (c *CLI) openEnv(ctx context.Context, command string, o envOptions) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg}
	if e.store, err = store.Open(ctx, cfg.DatabasePath()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "open database")
	}
	if e.cache, err = newCache(ctx, cfg); err != nil {
		e.Close()
		return nil, err
	}

	method, err := acquire.ParseMethod(cfg.FetchMethod)
	if err != nil {
		e.Close()
		return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "fetch method")
	}
	e.engine, err = acquire.NewEngine(acquire.Options{
		Root:    cfg.RepositoriesPath(),
		Fetcher: newFetcher(cfg, method),
		Logger:  c.Logger,
	})
	if err != nil {
		e.Close()
		return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "open repositories directory")
	}

	d := pipeline.Deps{Store: e.store, Engine: e.engine}
	if o.source {
		src, err := github.NewSource(github.Config{
			Token:    cfg.GitHub.Token,
			BaseURL:  cfg.GitHub.BaseURL,
			Cache:    e.cache,
			CacheTTL: cfg.Cache.TTL,
			RateLimit: github.RateLimitPolicy{
				FallbackMin: cfg.RateLimit.FallbackMin,
				FallbackMax: cfg.RateLimit.FallbackMax,
				MaxWait:     cfg.RateLimit.MaxWait,
			},
			Logger: c.Logger,
		})
		if err != nil {
			e.Close()
			return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "github source")
		}
		if cfg.GitHub.Token == "" {
			c.Logger.Warn("no GitHub token configured, search is limited to 10 requests per minute")
		}
		d.Source = src.WithKnown(e.store.Exists)
	}
	if cfg.Rules.Reference != "" {
		ref, err := rules.LoadReference(cfg.Rules.Reference)
		if err != nil {
			e.Close()
			return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "load reference data")
		}
		d.Checker = rules.NewChecker(ref)
	}

	e.reporter = nopReporter{}
	if o.progress {
		e.reporter = newReporter(ctx, os.Stderr, c.Logger)
	}
	observability.SetPipelineHooks(&logHooks{logger: c.Logger, reporter: e.reporter})
	observability.SetHTTPHooks(&httpLogHooks{logger: c.Logger})

	opts := o.pipeline
	opts.Concurrency = cfg.Concurrency
	opts.Logger = c.Logger
	opts.Progress = func(p pipeline.Progress) {
		p.Command = command
		e.reporter.Update(p)
	}
	if e.runner, err = pipeline.NewRunner(d, opts); err != nil {
		e.Close()
		return nil, err
	}
	c.Logger.Debug("environment ready", "database", cfg.DatabasePath(),
		"repositories", cfg.RepositoriesPath(), "concurrency", cfg.Concurrency, "method", method)
	return e, nil
}

// Close stops the reporter and releases the store and cache.
func (e *env) Close() error {
	if e.reporter != nil {
		e.reporter.Stop()
	}
	var err error
	if e.cache != nil {
		err = e.cache.Close()
	}
	if e.store != nil {
		if cerr := e.store.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

// newCache opens the configured contributor-count cache.
func newCache(ctx context.Context, cfg config.Config) (cache.Cache, error) {
	switch {
	case cfg.Cache.Disabled:
		return cache.NewNullCache(), nil
	case cfg.Cache.RedisURL != "":
		c, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, "")
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "open redis cache")
		}
		return c, nil
	default:
		c, err := cache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFatalStartup, err, "open cache directory")
		}
		return c, nil
	}
}

// newFetcher builds the fetcher for method. Tarball downloads carry the
// token so private rate limits apply to archive requests too.
func newFetcher(cfg config.Config, method acquire.Method) acquire.Fetcher {
	if method == acquire.MethodGit {
		return acquire.GitFetcher{}
	}
	var headers map[string]string
	if cfg.GitHub.Token != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.GitHub.Token}
	}
	client := integrations.NewClient(nil, "", 0, headers).WithHTTPClient(integrations.NewDownloadHTTPClient())
	return acquire.NewTarballFetcher(client)
}
