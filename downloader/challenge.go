package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"scrollgrab/cf"
)

func challengeVisibleJS(selectors []string) string {
	sels, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
	for (const sel of %s) {
		for (const el of document.querySelectorAll(sel)) {
			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') continue;
			if (el.getClientRects().length > 0) return true;
		}
	}
	return false;
})()`, sels)
}

// challengeVisible reports whether any challenge overlay is showing. A probe
// that fails counts as no challenge.
func (s *Session) challengeVisible(ctx context.Context) bool {
	var visible bool
	if err := s.browser.Evaluate(ctx, challengeVisibleJS(s.site.ChallengeSelectors), &visible); err != nil {
		s.log.Debug().Err(err).Msg("challenge probe failed")
		return false
	}
	return visible
}

// checkChallenge blocks while a challenge overlay is visible so the operator
// can solve it in the browser window. It reports whether one was seen.
func (s *Session) checkChallenge(ctx context.Context) bool {
	if !s.challengeVisible(ctx) {
		return false
	}

	s.metrics.IncChallenge()
	s.challenges++

	evt := s.log.Warn()
	if html, err := s.browser.OuterHTML(ctx); err == nil {
		if _, info := cf.Inspect(html); info != nil {
			evt = evt.Strs("indicators", info.Indicators).Bool("turnstile", info.Turnstile)
			if info.RayID != "" {
				evt = evt.Str("ray_id", info.RayID)
			}
		}
	}
	evt.Msg("challenge detected, solve it in the browser window")

	err := PollUntil(ctx, s.cfg.Challenge.PollInterval, s.cfg.Challenge.MaxWait, s.sleep,
		func(ctx context.Context) (bool, error) {
			return !s.challengeVisible(ctx), nil
		},
	)
	switch {
	case errors.Is(err, ErrPollTimeout):
		s.log.Warn().Dur("max_wait", s.cfg.Challenge.MaxWait).Msg("challenge still showing, continuing anyway")
		s.metrics.IncError(err)
	case err != nil:
		return true
	default:
		s.log.Info().Msg("challenge cleared")
	}

	_ = s.sleep(ctx, s.cfg.Challenge.SettleDelay)
	return true
}
