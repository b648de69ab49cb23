package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/packscan/pkg/observability"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// elapsed tracks the start time of an operation and logs completion with
// elapsed duration.
type elapsed struct {
	logger *log.Logger
	start  time.Time
}

func newElapsed(l *log.Logger) *elapsed {
	return &elapsed{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time, e.g. "Swept 42 copies (1.234s)".
func (p *elapsed) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// =============================================================================
// Pipeline Hooks
// =============================================================================

// logHooks forwards pipeline events to the logger. Rate-limit pauses are
// also shown on the progress reporter since they can stall a batch for
// minutes.
type logHooks struct {
	observability.NoopPipelineHooks
	logger   *log.Logger
	reporter reporter
}

func (h *logHooks) OnSearchPage(_ context.Context, term string, page, accepted int) {
	h.logger.Debug("search page", "term", term, "page", page, "accepted", accepted)
}

func (h *logHooks) OnRateLimited(_ context.Context, endpoint string, wait time.Duration) {
	h.logger.Warn("rate limited", "endpoint", endpoint, "wait", wait.Round(time.Second))
	if h.reporter != nil {
		h.reporter.Notify("rate limited on " + endpoint + ", waiting " + wait.Round(time.Second).String())
	}
}

func (h *logHooks) OnAcquireStart(_ context.Context, repo string) {
	h.logger.Debug("acquiring", "repo", repo)
}

func (h *logHooks) OnAcquireComplete(_ context.Context, repo string, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("acquisition failed", "repo", repo, "err", err)
		return
	}
	h.logger.Debug("acquired", "repo", repo, "took", d.Round(time.Millisecond))
}

func (h *logHooks) OnClassified(_ context.Context, repo, category, status string) {
	h.logger.Debug("classified", "repo", repo, "category", category, "status", status)
}

func (h *logHooks) OnAnalyzed(_ context.Context, repo string, hasLinter bool, misplaced int) {
	h.logger.Debug("analyzed", "repo", repo, "linter", hasLinter, "misplaced", misplaced)
}

// httpLogHooks logs archive downloads at debug level.
type httpLogHooks struct {
	logger *log.Logger
}

func (h *httpLogHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h *httpLogHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "took", d.Round(time.Millisecond))
}

func (h *httpLogHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}
