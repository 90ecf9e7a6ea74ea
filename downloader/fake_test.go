package downloader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"scrollgrab/cf"
	"scrollgrab/config"
	"scrollgrab/sites"

	"github.com/stretchr/testify/require"
)

// fakePage is one gallery page served by fakeBrowser
type fakePage struct {
	images  []Element
	next    string
	markers bool
	height  []float64 // successive document heights, last one repeats
}

// fakeBrowser scripts just enough of a browser for the session loop
type fakeBrowser struct {
	mu sync.Mutex

	pages   map[string]*fakePage
	current string

	// exports maps image URL to the canvas data URL; missing means pngDataURL
	exports map[string]string

	// challenge is the sequence of probe answers; exhausted means false
	challenge []bool

	imageSelector string
	heightCalls   int
	scrolls       []string

	navigated      []string
	reloads        int
	closes         int
	activations    int
	tabsOpened     int
	tabsClosed     int
	panicOnLocate  bool
	failEvaluation bool
}

func newFakeBrowser(start string, pages map[string]*fakePage) *fakeBrowser {
	return &fakeBrowser{
		pages:         pages,
		current:       start,
		exports:       map[string]string{},
		imageSelector: "img",
	}
}

func (b *fakeBrowser) launcher() Launcher {
	return func(ctx context.Context, opts BrowserOptions) (Browser, error) {
		return b, nil
	}
}

func (b *fakeBrowser) page() *fakePage {
	if p, ok := b.pages[b.current]; ok {
		return p
	}
	return &fakePage{}
}

func setResult(res interface{}, v interface{}) error {
	if res == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, res)
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigated = append(b.navigated, url)
	b.current = url
	b.heightCalls = 0
	return nil
}

func (b *fakeBrowser) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
	return nil
}

func (b *fakeBrowser) Evaluate(ctx context.Context, script string, res interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failEvaluation {
		return fmt.Errorf("evaluation failed: %w", ErrTimeout)
	}

	switch {
	case strings.Contains(script, "getClientRects"):
		visible := false
		if len(b.challenge) > 0 {
			visible, b.challenge = b.challenge[0], b.challenge[1:]
		}
		return setResult(res, visible)
	case strings.Contains(script, "offsetTop"):
		return setResult(res, b.height())
	case strings.Contains(script, "Math.max("):
		h := b.height()
		b.heightCalls++
		return setResult(res, h)
	case strings.Contains(script, "scrollTo"):
		b.scrolls = append(b.scrolls, script)
		return setResult(res, true)
	}
	return fmt.Errorf("unexpected script: %s", script)
}

func (b *fakeBrowser) height() float64 {
	hs := b.page().height
	if len(hs) == 0 {
		return 1000
	}
	if b.heightCalls < len(hs) {
		return hs[b.heightCalls]
	}
	return hs[len(hs)-1]
}

func (b *fakeBrowser) Elements(ctx context.Context, q Query, wait time.Duration) ([]Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.page()
	switch {
	case q.Selector == b.imageSelector && len(p.images) > 0:
		return p.images, nil
	case q.Selector != b.imageSelector && p.markers:
		return []Element{{NodeName: "DIV"}}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, q)
}

func (b *fakeBrowser) Clickable(ctx context.Context, q Query, wait time.Duration) (Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !q.XPath {
		return Element{}, fmt.Errorf("expected an xpath query, got %s", q)
	}
	next := b.page().next
	if next == "" {
		return Element{}, fmt.Errorf("%w: %s", ErrNotFound, q)
	}
	return Element{NodeName: "A", Attrs: map[string]string{"href": next}}, nil
}

func (b *fakeBrowser) Location(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.panicOnLocate {
		panic("location exploded")
	}
	return b.current, nil
}

func (b *fakeBrowser) OuterHTML(ctx context.Context) (string, error) {
	return `<html><head><title>Just a moment...</title></head><body><div id="challenge-running"></div></body></html>`, nil
}

func (b *fakeBrowser) OpenTab(ctx context.Context) (Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabsOpened++
	return &fakeTab{b: b}, nil
}

func (b *fakeBrowser) Activate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activations++
	return nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

type fakeTab struct {
	b   *fakeBrowser
	url string
}

func (t *fakeTab) Navigate(ctx context.Context, url string) error {
	t.url = url
	return nil
}

func (t *fakeTab) Elements(ctx context.Context, q Query, wait time.Duration) ([]Element, error) {
	return []Element{{NodeName: "IMG", Attrs: map[string]string{"src": t.url}}}, nil
}

func (t *fakeTab) Evaluate(ctx context.Context, script string, res interface{}) error {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()

	if !strings.Contains(script, "toDataURL") {
		return fmt.Errorf("unexpected tab script: %s", script)
	}
	dataURL, ok := t.b.exports[t.url]
	if !ok {
		dataURL = pngDataURL
	}
	return setResult(res, dataURL)
}

func (t *fakeTab) Close() error {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	t.b.tabsClosed++
	return nil
}

var pngBytes, pngDataURL = func() ([]byte, string) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes(), "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}()

// sleepRecorder captures requested pauses instead of waiting
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Challenge.PollInterval = 7 * time.Second
	cfg.Challenge.SettleDelay = 11 * time.Second
	cfg.Discovery.RetryPause = 13 * time.Second
	cfg.Scroll.FallbackPause = 17 * time.Second
	return cfg
}

func img(attrs ...string) Element {
	el := Element{NodeName: "IMG", Attrs: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attrs[attrs[i]] = attrs[i+1]
	}
	return el
}

func newTestSession(t *testing.T, b *fakeBrowser, dir string, site sites.Profile, opts ...Option) (*Session, *sleepRecorder) {
	t.Helper()

	rec := &sleepRecorder{}
	base := []Option{
		WithLauncher(b.launcher()),
		WithPacer(NopPacer{}),
		WithSleep(rec.sleep),
		WithMetrics(NewMetrics()),
	}
	s, err := NewSession(testConfig(), site, b.current, dir, append(base, opts...)...)
	require.NoError(t, err)
	return s, rec
}

func bypassFixture() *cf.BypassData {
	return &cf.BypassData{
		Type:   cf.ProtectionCookie,
		Domain: "reader.example.com",
		Entropy: cf.Entropy{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Platform:  "Linux",
		},
		Headers:           map[string]string{"acceptLanguage": "en-US,en;q=0.9"},
		CfClearanceStruct: &cf.CfClearanceCookie{Name: "cf_clearance", Value: "clearance-token"},
		AllCookies: []cf.Cookie{
			{Name: "wpmanga-reading", Value: "1", Domain: "reader.example.com", Path: "/"},
		},
	}
}
