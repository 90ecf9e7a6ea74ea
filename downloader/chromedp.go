package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scrollgrab/cf"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// BrowserSession is the chromedp-backed Browser: one exec allocator and one
// browser context per run.
type BrowserSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
	opts   BrowserOptions

	closeOnce sync.Once
	closeErr  error
}

// ChromeLauncher returns the Launcher used outside tests
func ChromeLauncher(log zerolog.Logger) Launcher {
	return func(ctx context.Context, opts BrowserOptions) (Browser, error) {
		return NewBrowserSession(ctx, opts, log)
	}
}

// NewBrowserSession starts Chrome and opens its first tab. Stored clearance
// cookies in opts are injected before anything navigates.
func NewBrowserSession(ctx context.Context, opts BrowserOptions, log zerolog.Logger) (*BrowserSession, error) {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.ScriptTimeout <= 0 {
		opts.ScriptTimeout = 30 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if !opts.Headless {
		allocOpts = append(allocOpts,
			chromedp.Flag("headless", false),
			chromedp.Flag("hide-scrollbars", false),
			chromedp.Flag("mute-audio", false),
		)
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			log.Debug().Msgf(format, args...)
		}),
	)

	bs := &BrowserSession{
		ctx:    browserCtx,
		cancel: func() { cancelBrowser(); cancelAlloc() },
		log:    log,
		opts:   opts,
	}

	// the first Run allocates the browser; it must not run under a deadline
	// or the browser dies with it
	if err := chromedp.Run(browserCtx); err != nil {
		bs.cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info().
		Bool("headless", opts.Headless).
		Str("user_agent", opts.UserAgent).
		Msg("browser started")

	if len(opts.Cookies) > 0 {
		if err := bs.setCookies(ctx, opts.Cookies); err != nil {
			// a bad cookie only costs us a challenge; keep going
			log.Warn().Err(err).Msg("failed to inject stored cookies")
		} else {
			log.Info().Int("count", len(opts.Cookies)).Msg("injected stored cookies")
		}
	}

	return bs, nil
}

func (bs *BrowserSession) setCookies(ctx context.Context, cookies []cf.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		if ck.Name == "" {
			continue
		}
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
		}
		if ck.ExpirationDate > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(ck.ExpirationDate), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}

	return bs.run(ctx, bs.opts.NavigationTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// run executes actions on the session's tab under a per-call deadline; a
// cancelled ctx aborts the call as well.
func (bs *BrowserSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	return runOn(ctx, bs.ctx, timeout, actions...)
}

func runOn(ctx, tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(callCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Navigate loads url and waits for the body
func (bs *BrowserSession) Navigate(ctx context.Context, url string) error {
	bs.log.Debug().Str("url", url).Msg("navigating")
	err := bs.run(ctx, bs.opts.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Reload reloads the current page
func (bs *BrowserSession) Reload(ctx context.Context) error {
	err := bs.run(ctx, bs.opts.NavigationTimeout,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (bs *BrowserSession) Evaluate(ctx context.Context, script string, res interface{}) error {
	return evaluateOn(ctx, bs.ctx, bs.opts.ScriptTimeout, script, res)
}

func evaluateOn(ctx, tabCtx context.Context, timeout time.Duration, script string, res interface{}) error {
	err := runOn(ctx, tabCtx, timeout, chromedp.Evaluate(script, res, awaitPromise))
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	return nil
}

func awaitPromise(p *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (bs *BrowserSession) Elements(ctx context.Context, q Query, wait time.Duration) ([]Element, error) {
	return elementsOn(ctx, bs.ctx, q, wait)
}

func elementsOn(ctx, tabCtx context.Context, q Query, wait time.Duration) ([]Element, error) {
	by := chromedp.ByQueryAll
	if q.XPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	err := runOn(ctx, tabCtx, wait, chromedp.Nodes(q.Selector, &nodes, by))
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, q)
		}
		return nil, err
	}

	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toElement(n))
	}
	return out, nil
}

// Clickable waits for the first match of q to be visible and enabled
func (bs *BrowserSession) Clickable(ctx context.Context, q Query, wait time.Duration) (Element, error) {
	by := chromedp.ByQuery
	if q.XPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	err := bs.run(ctx, wait,
		chromedp.WaitVisible(q.Selector, by),
		chromedp.WaitEnabled(q.Selector, by),
		chromedp.Nodes(q.Selector, &nodes, by),
	)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return Element{}, fmt.Errorf("%w: %s", ErrNotFound, q)
		}
		return Element{}, err
	}
	if len(nodes) == 0 {
		return Element{}, fmt.Errorf("%w: %s", ErrNotFound, q)
	}
	return toElement(nodes[0]), nil
}

func (bs *BrowserSession) Location(ctx context.Context) (string, error) {
	var loc string
	if err := bs.run(ctx, bs.opts.ScriptTimeout, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// OuterHTML returns the page HTML
func (bs *BrowserSession) OuterHTML(ctx context.Context) (string, error) {
	var html string
	err := bs.run(ctx, bs.opts.ScriptTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// OpenTab opens a new tab in the same browser
func (bs *BrowserSession) OpenTab(ctx context.Context) (Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(bs.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return &chromeTab{ctx: tabCtx, cancel: cancel, opts: bs.opts}, nil
}

// Activate brings the session's original tab back to the front
func (bs *BrowserSession) Activate(ctx context.Context) error {
	return bs.run(ctx, bs.opts.ScriptTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(chromedp.FromContext(ctx).Target.TargetID).Do(ctx)
	}))
}

// Close shuts the browser down. Only the first call does anything.
func (bs *BrowserSession) Close() error {
	bs.closeOnce.Do(func() {
		bs.closeErr = chromedp.Cancel(bs.ctx)
		bs.cancel()
		if errors.Is(bs.closeErr, context.Canceled) {
			bs.closeErr = nil
		}
		bs.log.Info().Msg("browser closed")
	})
	return bs.closeErr
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   BrowserOptions
	once   sync.Once
}

func (t *chromeTab) Navigate(ctx context.Context, url string) error {
	err := runOn(ctx, t.ctx, t.opts.NavigationTimeout, chromedp.Navigate(url))
	if err != nil {
		return fmt.Errorf("tab navigation failed: %w", err)
	}
	return nil
}

func (t *chromeTab) Elements(ctx context.Context, q Query, wait time.Duration) ([]Element, error) {
	return elementsOn(ctx, t.ctx, q, wait)
}

func (t *chromeTab) Evaluate(ctx context.Context, script string, res interface{}) error {
	return evaluateOn(ctx, t.ctx, t.opts.ScriptTimeout, script, res)
}

func (t *chromeTab) Close() error {
	var err error
	t.once.Do(func() {
		err = chromedp.Cancel(t.ctx)
		t.cancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

// toElement flattens the node's name/value attribute list into a map
func toElement(n *cdp.Node) Element {
	el := Element{NodeName: n.NodeName, Attrs: make(map[string]string, len(n.Attributes)/2)}
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		el.Attrs[n.Attributes[i]] = n.Attributes[i+1]
	}
	return el
}
