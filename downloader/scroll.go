package downloader

import (
	"context"
	"encoding/json"
	"fmt"
)

const documentHeightJS = `Math.max(
	document.body.scrollHeight, document.body.offsetHeight,
	document.documentElement.clientHeight, document.documentElement.scrollHeight,
	document.documentElement.offsetHeight)`

const scrollToBottomJS = `(() => { window.scrollTo(0, document.body.scrollHeight); return true; })()`

func lastMarkerBottomJS(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(`(() => {
	const markers = document.querySelectorAll(%s);
	if (markers.length === 0) return 0;
	const last = markers[markers.length - 1];
	return last.offsetTop + last.offsetHeight;
})()`, sel)
}

func scrollToJS(top int) string {
	return fmt.Sprintf(`(() => { window.scrollTo({top: %d, behavior: 'smooth'}); return true; })()`, top)
}

// scroll walks the page down in uneven steps so lazy images load. It never
// fails: on any browser error it jumps to the bottom once and waits.
func (s *Session) scroll(ctx context.Context) {
	if err := s.scrollPage(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Msg("scroll failed, jumping to bottom")
		_ = s.browser.Evaluate(ctx, scrollToBottomJS, nil)
		_ = s.sleep(ctx, s.cfg.Scroll.FallbackPause)
	}
}

func (s *Session) scrollPage(ctx context.Context) error {
	cfg := s.cfg.Scroll

	target, err := s.scrollTarget(ctx)
	if err != nil {
		return err
	}
	s.log.Debug().Int("target", target).Msg("scrolling")

	position := 0
	for step := 0; position < target; step++ {
		if cfg.MaxSteps > 0 && step >= cfg.MaxSteps {
			s.log.Warn().Int("steps", step).Int("target", target).Msg("scroll step cap reached")
			break
		}

		position += s.pacer.Step(cfg.Step.Min, cfg.Step.Max)
		if position > target {
			position = target
		}
		if err := s.browser.Evaluate(ctx, scrollToJS(position), nil); err != nil {
			return err
		}

		if err := s.sleep(ctx, s.pacer.Jitter(cfg.Pause)); err != nil {
			return err
		}
		if s.pacer.Chance(cfg.ReadChance) {
			if err := s.sleep(ctx, s.pacer.Jitter(cfg.ReadPause)); err != nil {
				return err
			}
		}

		var height float64
		if err := s.browser.Evaluate(ctx, documentHeightJS, &height); err != nil {
			return err
		}
		if int(height) > target {
			s.log.Debug().Int("from", target).Int("to", int(height)).Msg("page grew, extending scroll target")
			target = int(height)
		}
	}

	if err := s.browser.Evaluate(ctx, scrollToBottomJS, nil); err != nil {
		return err
	}
	return s.sleep(ctx, s.pacer.Jitter(cfg.FinalPause))
}

// scrollTarget is the bottom of the last section marker, or the document
// height when the profile has no marker or none shows up in time.
func (s *Session) scrollTarget(ctx context.Context) (int, error) {
	var height float64

	if s.site.SectionMarker != "" {
		markers, err := s.browser.Elements(ctx, CSS(s.site.SectionMarker), s.cfg.Scroll.MarkerWait)
		if err == nil && len(markers) > 0 {
			if err := s.browser.Evaluate(ctx, lastMarkerBottomJS(s.site.SectionMarker), &height); err != nil {
				return 0, err
			}
			if height > 0 {
				s.log.Debug().Int("markers", len(markers)).Msg("scrolling to last section marker")
				return int(height), nil
			}
		} else if ctx.Err() != nil {
			return 0, ctx.Err()
		} else {
			s.log.Debug().Msg("no section markers, using document height")
		}
	}

	if err := s.browser.Evaluate(ctx, documentHeightJS, &height); err != nil {
		return 0, err
	}
	return int(height), nil
}
