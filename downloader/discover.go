package downloader

import (
	"context"
	"fmt"
)

// discoverImages enumerates the page's images. When nothing shows up it
// reloads and rescrolls before trying again; running out of attempts gives
// an empty list rather than an error.
func (s *Session) discoverImages(ctx context.Context) []Element {
	cfg := s.cfg.Discovery
	q := CSS(s.site.ImageSelector)

	images, err := Retry(ctx, cfg.Attempts,
		func(ctx context.Context, attempt int) ([]Element, error) {
			els, err := s.browser.Elements(ctx, q, cfg.Wait)
			if err != nil {
				s.log.Debug().Err(err).Int("attempt", attempt).Msg("image lookup failed")
				return nil, err
			}
			if len(els) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, q)
			}
			return els, nil
		},
		func(ctx context.Context, attempt int) error {
			s.log.Info().Int("attempt", attempt).Int("of", cfg.Attempts).Msg("no images found, reloading")
			s.metrics.IncRetries()

			if err := s.sleep(ctx, cfg.RetryPause); err != nil {
				return err
			}
			if err := s.browser.Reload(ctx); err != nil {
				// the next lookup will fail too and use up the attempt
				s.log.Warn().Err(err).Msg("reload failed")
				return ctx.Err()
			}
			s.scroll(ctx)
			return ctx.Err()
		},
	)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("giving up on image discovery")
			s.metrics.IncError(err)
		}
		return nil
	}

	s.log.Info().Int("count", len(images)).Msg("images found")
	return images
}
