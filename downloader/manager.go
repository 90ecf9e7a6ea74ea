package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"scrollgrab/cf"
	"scrollgrab/config"
	"scrollgrab/logger"
	"scrollgrab/parser"
	"scrollgrab/sites"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// State is a phase of the page loop
type State int

const (
	ScrollingPage State = iota
	CheckingChallenge
	DiscoveringImages
	DownloadingImages
	FindingNextLink
	NavigatingNext
	Terminated
)

func (s State) String() string {
	switch s {
	case ScrollingPage:
		return "scrolling"
	case CheckingChallenge:
		return "checking_challenge"
	case DiscoveringImages:
		return "discovering_images"
	case DownloadingImages:
		return "downloading_images"
	case FindingNextLink:
		return "finding_next_link"
	case NavigatingNext:
		return "navigating_next"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProgressFunc is called after every image attempt
type ProgressFunc func(Outcome)

// Report summarises a finished run
type Report struct {
	RunID      string
	Downloaded int
	Skipped    int
	Failed     int
	Pages      int
	Challenges int

	// ResumeIndex is the index the next run will write first
	ResumeIndex int
	Reason      string
	Duration    time.Duration
}

// Session scrapes one gallery: it walks page after page from the start URL,
// saving every image, until no next link is found.
type Session struct {
	cfg      *config.Config
	site     sites.Profile
	startURL string
	dir      string
	prefix   string
	runID    string

	launch   Launcher
	browser  Browser
	pacer    Pacer
	sleep    SleepFunc
	log      zerolog.Logger
	metrics  *Metrics
	fallback ImageFetcher
	bypass   *cf.BypassData
	progress ProgressFunc

	seen *lru.Cache[string, struct{}]

	lastIndex  int
	downloaded int
	skipped    int
	failed     int
	pages      int
	challenges int
}

// Option customises a Session
type Option func(*Session)

func WithLauncher(l Launcher) Option {
	return func(s *Session) { s.launch = l }
}

// WithPacer replaces the random pacer (tests use NopPacer)
func WithPacer(p Pacer) Option {
	return func(s *Session) { s.pacer = p }
}

func WithSleep(fn SleepFunc) Option {
	return func(s *Session) { s.sleep = fn }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithFallback fetches over HTTP when the canvas export fails
func WithFallback(f ImageFetcher) Option {
	return func(s *Session) { s.fallback = f }
}

func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}

// WithLogger sets the base logger; the session adds its own fields
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

// WithBypass injects stored clearance cookies and reuses the user agent that
// earned them.
func WithBypass(data *cf.BypassData) Option { return func(s *Session) { s.bypass = data } }

// NewSession prepares a run. It creates dir if needed and reads the resume
// index from it; a directory that cannot be read is an error so existing
// files are never overwritten.
func NewSession(cfg *config.Config, site sites.Profile, startURL, dir string, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if _, err := url.ParseRequestURI(startURL); err != nil {
		return nil, fmt.Errorf("invalid start URL %q: %w", startURL, err)
	}

	s := &Session{
		cfg:      cfg,
		site:     site,
		startURL: startURL,
		prefix:   cfg.Output.Prefix,
		runID:    uuid.NewString(),
		sleep:    Sleep,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pacer == nil {
		s.pacer = NewRandomPacer(cfg.Pacing)
	}
	if s.prefix == "" {
		s.prefix = "image"
	}
	if len(s.site.ImageAttrs) == 0 {
		s.site.ImageAttrs = sites.DefaultImageAttrs
	}
	if len(s.site.ChallengeSelectors) == 0 {
		s.site.ChallengeSelectors = sites.DefaultChallengeSelectors
	}
	if s.site.ImageSelector == "" {
		s.site.ImageSelector = "img"
	}

	s.log = s.log.With().Str("run_id", s.runID).Str("site", site.Name).Logger()
	if s.launch == nil {
		s.launch = ChromeLauncher(logger.Component(s.log, "browser"))
	}

	expanded, err := parser.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	s.dir = expanded

	last, err := parser.LastImageIndex(s.dir, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("cannot determine resume index: %w", err)
	}
	s.lastIndex = last

	if cfg.Download.SkipDuplicates {
		size := cfg.Download.DuplicateCacheSize
		if size <= 0 {
			size = 4096
		}
		s.seen, err = lru.New[string, struct{}](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create duplicate filter: %w", err)
		}
	}

	return s, nil
}

// RunID identifies this run in logs and reports
func (s *Session) RunID() string { return s.runID }

// LastIndex is the highest existing index found at startup (-1 for none)
func (s *Session) LastIndex() int { return s.lastIndex }

func (s *Session) browserOptions() BrowserOptions {
	opts := BrowserOptions{
		Headless:          s.cfg.Browser.Headless,
		ExecPath:          s.cfg.Browser.ExecPath,
		UserAgent:         s.pickUserAgent(),
		NavigationTimeout: s.cfg.Browser.NavigationTimeout,
		ScriptTimeout:     s.cfg.Browser.ScriptTimeout,
	}
	if s.bypass != nil {
		opts.Cookies = s.bypass.CookieList()
		if ua := s.bypass.Entropy.UserAgent; ua != "" {
			// clearance is bound to the agent that solved the challenge
			opts.UserAgent = ua
		}
	}
	return opts
}

func (s *Session) pickUserAgent() string {
	pool := s.cfg.Browser.UserAgents
	if len(pool) == 0 {
		pool = config.DefaultUserAgents
	}
	return pool[s.pacer.Step(0, len(pool)-1)]
}

// Run drives the page loop until the gallery ends, ctx is cancelled or a
// phase fails. Individual image failures never stop it. The browser is
// closed exactly once on every exit path. The error is non-nil only when the
// browser could not be started or the loop panicked.
func (s *Session) Run(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	reason := "end of gallery"

	s.log.Info().
		Str("url", s.startURL).
		Str("dir", s.dir).
		Int("next_index", s.lastIndex+1).
		Msg("starting scrape")

	browser, err := s.launch(ctx, s.browserOptions())
	if err != nil {
		return s.report(start, "browser launch failed"), fmt.Errorf("failed to launch browser: %w", err)
	}
	s.browser = browser

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("scrape aborted")
			reason = "panic"
			err = fmt.Errorf("scrape panicked: %v", r)
		}
		if cerr := browser.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("failed to close browser")
		}
		rep = s.report(start, reason)
		s.log.Info().
			Int("downloaded", rep.Downloaded).
			Int("skipped", rep.Skipped).
			Int("failed", rep.Failed).
			Int("pages", rep.Pages).
			Str("reason", rep.Reason).
			Dur("duration", rep.Duration).
			Msg("scrape finished")
	}()

	if err := browser.Navigate(ctx, s.startURL); err != nil {
		if ctx.Err() != nil {
			reason = "cancelled"
			return rep, nil
		}
		reason = "start page failed to load"
		s.log.Error().Err(err).Msg(reason)
		s.metrics.IncError(err)
		return rep, nil
	}

	reason = s.loop(ctx)
	return rep, nil
}

// loop runs the state machine and returns why it stopped
func (s *Session) loop(ctx context.Context) string {
	var (
		images  []Element
		nextURL string
	)

	state := ScrollingPage
	for {
		if ctx.Err() != nil {
			return "cancelled"
		}
		s.log.Debug().Stringer("state", state).Msg("entering state")

		switch state {
		case ScrollingPage:
			s.pages++
			s.metrics.IncPage()
			s.scroll(ctx)
			state = CheckingChallenge

		case CheckingChallenge:
			s.checkChallenge(ctx)
			_ = s.sleep(ctx, s.pacer.Between(s.downloaded))
			state = DiscoveringImages

		case DiscoveringImages:
			images = s.discoverImages(ctx)
			if len(images) == 0 {
				s.log.Info().Msg("no images on page, trying next chapter")
				state = FindingNextLink
			} else {
				state = DownloadingImages
			}

		case DownloadingImages:
			s.downloadPage(ctx, images)
			images = nil
			state = FindingNextLink

		case FindingNextLink:
			next, err := s.findNextLink(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return "cancelled"
				}
				s.log.Info().Err(err).Msg("no next chapter link")
				return "end of gallery"
			}
			nextURL = next
			state = NavigatingNext

		case NavigatingNext:
			if err := s.navigateNext(ctx, nextURL); err != nil {
				if ctx.Err() != nil {
					return "cancelled"
				}
				s.log.Error().Err(err).Str("url", nextURL).Msg("failed to open next chapter")
				s.metrics.IncError(err)
				return "navigation failed"
			}
			state = ScrollingPage

		default:
			return "terminated"
		}
	}
}

func (s *Session) downloadPage(ctx context.Context, images []Element) {
	location, err := s.browser.Location(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("could not read page location, relative URLs stay unresolved")
		location = ""
	}

	for _, el := range images {
		if ctx.Err() != nil {
			return
		}

		imgURL := imageURL(el, s.site.ImageAttrs, location)
		if imgURL == "" {
			s.log.Debug().Msg("image element has no usable URL")
			continue
		}

		out := s.downloadImage(ctx, imgURL, location)
		if s.progress != nil {
			s.progress(out)
		}
		if out.Status == Saved {
			_ = s.sleep(ctx, s.pacer.Between(s.downloaded))
		}
	}
}

// findNextLink returns the absolute URL behind the profile's next-chapter
// anchor. ErrNoNextLink means the gallery has ended.
func (s *Session) findNextLink(ctx context.Context) (string, error) {
	if s.site.NextLinkXPath == "" {
		return "", ErrNoNextLink
	}
	if err := s.sleep(ctx, s.pacer.Jitter(s.cfg.Pacing.BeforeNextLink)); err != nil {
		return "", err
	}

	el, err := s.browser.Clickable(ctx, XPath(s.site.NextLinkXPath), s.cfg.Pacing.NextLinkWait)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimeout) {
			return "", ErrNoNextLink
		}
		return "", err
	}

	href := el.Attr("href")
	if href == "" || href == "#" {
		return "", fmt.Errorf("%w: link has no href", ErrNoNextLink)
	}

	location, err := s.browser.Location(ctx)
	if err != nil {
		return href, nil
	}
	next := resolveURL(location, href)
	if next == location {
		return "", fmt.Errorf("%w: link points at the current page", ErrNoNextLink)
	}
	return next, nil
}

func (s *Session) navigateNext(ctx context.Context, nextURL string) error {
	if err := s.sleep(ctx, s.pacer.Jitter(s.cfg.Pacing.BeforeNavigate)); err != nil {
		return err
	}

	s.log.Info().Str("url", nextURL).Msg("navigating to next chapter")
	if err := s.browser.Navigate(ctx, nextURL); err != nil {
		return err
	}

	if err := s.sleep(ctx, s.pacer.Jitter(s.cfg.Pacing.AfterNavigate)); err != nil {
		return err
	}
	s.checkChallenge(ctx)
	return nil
}

func (s *Session) report(start time.Time, reason string) Report {
	return Report{
		RunID:       s.runID,
		Downloaded:  s.downloaded,
		Skipped:     s.skipped,
		Failed:      s.failed,
		Pages:       s.pages,
		Challenges:  s.challenges,
		ResumeIndex: s.lastIndex + s.downloaded + 1,
		Reason:      reason,
		Duration:    time.Since(start),
	}
}
