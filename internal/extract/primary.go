package extract

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

var errEmptyBody = errors.New("empty response body")

// browserHeaders mimics a desktop browser; several ticketing sites refuse
// anything that looks like a bot.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "pt-PT,pt;q=0.9,en-US;q=0.8,en;q=0.7",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

// retryableStatus reports whether a status is worth exactly one more try.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusRequestEntityTooLarge, http.StatusTooManyRequests,
		521, 522, 524:
		return true
	}
	return code >= 500 && code <= 599
}

type primaryFetcher struct {
	client *resty.Client
}

func newPrimaryFetcher(opts Options, log zerolog.Logger) *primaryFetcher {
	c := resty.New().
		SetLogger(restyLogger{log: log}).
		SetTimeout(opts.Timeout).
		SetHeaders(browserHeaders).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}). // #nosec G402 -- event pages with broken certs are common
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(opts.MaxRedirects)).
		SetRetryCount(1).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r != nil && retryableStatus(r.StatusCode())
		})
	return &primaryFetcher{client: c}
}

func (p *primaryFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("primary request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("primary status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	return string(body), nil
}

// restyLogger routes resty's internal warnings (retries, redirects) into zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
