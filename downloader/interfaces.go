package downloader

import (
	"context"
	"time"

	"scrollgrab/cf"
)

// Query selects elements either by CSS selector or by XPath expression
type Query struct {
	Selector string
	XPath    bool
}

// CSS builds a CSS selector query
func CSS(sel string) Query { return Query{Selector: sel} }

// XPath builds an XPath query
func XPath(expr string) Query { return Query{Selector: expr, XPath: true} }

func (q Query) String() string {
	if q.XPath {
		return "xpath:" + q.Selector
	}
	return "css:" + q.Selector
}

// Element is a snapshot of a DOM node taken when it was enumerated.
// It does not track the live node, so a reload never leaves it stale.
type Element struct {
	NodeName string
	Attrs    map[string]string
}

// Attr returns the named attribute, or "" when absent
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Browser is the page-level surface the scraper drives. BrowserSession is the
// chromedp implementation; tests script a fake.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// Evaluate runs script in the page, awaiting a returned promise, and
	// unmarshals the result into res (which may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error

	// Elements waits up to wait for at least one match and returns them all.
	// Nothing within wait yields ErrNotFound.
	Elements(ctx context.Context, q Query, wait time.Duration) ([]Element, error)

	// Clickable waits up to wait for the first match to be visible and
	// enabled and returns it.
	Clickable(ctx context.Context, q Query, wait time.Duration) (Element, error)

	Location(ctx context.Context) (string, error)
	OuterHTML(ctx context.Context) (string, error)

	// OpenTab opens a new tab in the same browser. The caller must Close it
	// and then Activate to return focus to the original tab.
	OpenTab(ctx context.Context) (Tab, error)
	Activate(ctx context.Context) error

	Close() error
}

// Tab is a secondary browser tab used for image export
type Tab interface {
	Navigate(ctx context.Context, url string) error
	Elements(ctx context.Context, q Query, wait time.Duration) ([]Element, error)
	Evaluate(ctx context.Context, script string, res interface{}) error
	Close() error
}

// BrowserOptions configures a launched browser
type BrowserOptions struct {
	Headless  bool
	ExecPath  string
	UserAgent string

	// Cookies are injected before the first navigation (stored clearance)
	Cookies []cf.Cookie

	NavigationTimeout time.Duration
	ScriptTimeout     time.Duration
}

// Launcher starts a browser. The returned Browser lives until Close or
// until ctx is cancelled.
type Launcher func(ctx context.Context, opts BrowserOptions) (Browser, error)
