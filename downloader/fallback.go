package downloader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"scrollgrab/cf"

	"github.com/gocolly/colly"
	"github.com/rs/zerolog"
)

// ImageFetcher retrieves image bytes outside the browser
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL, referer string) ([]byte, error)
}

// HTTPFetcher fetches images with colly, replaying stored clearance cookies
// and the user agent that earned them.
type HTTPFetcher struct {
	collector *colly.Collector
	bypass    *cf.BypassData
	log       zerolog.Logger
}

// FetcherOption customises an HTTPFetcher
type FetcherOption func(*HTTPFetcher)

// WithTransport routes requests through rt (tests use httpmock)
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *HTTPFetcher) { f.collector.WithTransport(rt) }
}

// WithBypassData makes every request carry the stored cookies
func WithBypassData(data *cf.BypassData) FetcherOption {
	return func(f *HTTPFetcher) { f.bypass = data }
}

// NewHTTPFetcher builds the fallback fetcher
func NewHTTPFetcher(userAgent string, timeout time.Duration, log zerolog.Logger, opts ...FetcherOption) *HTTPFetcher {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.MaxBodySize = 0
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	f := &HTTPFetcher{collector: c, log: log}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads imageURL. A response that turns out to be a challenge page
// is reported as *cf.ChallengeError.
func (f *HTTPFetcher) Fetch(ctx context.Context, imageURL, referer string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := f.collector.Clone()
	if f.bypass != nil {
		if err := cf.ApplyToCollector(c, f.bypass, imageURL); err != nil {
			f.log.Debug().Err(err).Msg("stored cookies not applied")
		}
	}
	c.OnRequest(func(r *colly.Request) {
		if referer != "" {
			r.Headers.Set("Referer", referer)
		}
	})

	var (
		body     []byte
		fetchErr error
	)

	inspect := func(r *colly.Response) error {
		var header http.Header
		if r.Headers != nil {
			header = *r.Headers
		}

		data, decompressed, err := cf.DecompressBody(r.Body, header.Get("Content-Encoding"))
		if err != nil {
			f.log.Debug().Err(err).Msg("failed to decompress response")
		} else if decompressed {
			r.Body = data
		}

		if isCF, info := cf.Detect(r.StatusCode, header, r.Body); isCF {
			return &cf.ChallengeError{
				URL:        imageURL,
				StatusCode: info.StatusCode,
				Indicators: info.Indicators,
			}
		}
		return nil
	}

	c.OnResponse(func(r *colly.Response) {
		if err := inspect(r); err != nil {
			fetchErr = err
			return
		}
		body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("request failed: %w", err)
		if r != nil && r.StatusCode != 0 {
			if cfErr := inspect(r); cfErr != nil {
				fetchErr = cfErr
			}
		}
	})

	if err := c.Visit(imageURL); err != nil && fetchErr == nil {
		return nil, fmt.Errorf("failed to visit URL: %w", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body from %s", imageURL)
	}
	return body, nil
}
