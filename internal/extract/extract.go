// Package extract fetches event pages and derives normalized metadata from them.
//
// Fetching is attempted twice at most: a primary resty client with retry on
// transient statuses, then a raw socket transport that tolerates malformed
// response headers and follows redirects itself. The attempts run in sequence
// so a page is never requested concurrently.
package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/metrics"
	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxRedirects = 5
	defaultRetryWait    = 500 * time.Millisecond
	maxBodyBytes        = 5 << 20
)

// Options tunes the fetch transports. Zero values take defaults.
type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	RetryWait    time.Duration
}

// Extractor implements the primary/fallback fetch pipeline.
type Extractor struct {
	primary  *primaryFetcher
	fallback *rawFetcher
	log      zerolog.Logger
}

// New constructs an Extractor.
func New(opts Options, log zerolog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	return &Extractor{
		primary:  newPrimaryFetcher(opts, log),
		fallback: newRawFetcher(opts),
		log:      log,
	}
}

// Extract returns metadata for rawURL, or nil when the page could not be
// fetched or carries neither a title nor a description. It never errors:
// a failed extraction is an ordinary outcome and callers fall back to manual entry.
func (e *Extractor) Extract(ctx context.Context, rawURL string) *model.EventMetadata {
	body, err := e.primary.fetch(ctx, rawURL)
	if err == nil && len(body) == 0 {
		err = errEmptyBody
	}
	if err != nil {
		metrics.ExtractAttempts.WithLabelValues("primary", "failed").Inc()
		e.log.Debug().Err(err).Str("url", rawURL).Msg("primary fetch failed, trying fallback transport")

		body, err = e.fallback.fetch(ctx, rawURL)
		if err == nil && len(body) == 0 {
			err = errEmptyBody
		}
		if err != nil {
			metrics.ExtractAttempts.WithLabelValues("fallback", "failed").Inc()
			e.log.Warn().Err(err).Str("url", rawURL).Msg("metadata extraction failed")
			return nil
		}
		metrics.ExtractAttempts.WithLabelValues("fallback", "ok").Inc()
	} else {
		metrics.ExtractAttempts.WithLabelValues("primary", "ok").Inc()
	}

	meta := ParseMetadata(body, rawURL)
	if meta.Title == "" && meta.Description == "" {
		e.log.Info().Str("url", rawURL).Msg("page has no title or description")
		return nil
	}
	return &meta
}

var urlRx = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)

// FindURL returns the first http(s) URL in free text, without trailing punctuation.
func FindURL(text string) (string, bool) {
	m := urlRx.FindString(text)
	if m == "" {
		return "", false
	}
	m = strings.TrimRight(m, ".,;:!?)]}")
	return m, m != ""
}
