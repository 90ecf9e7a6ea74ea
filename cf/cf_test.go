package cf

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const challengePage = `<!DOCTYPE html>
<html><head><title>Just a moment...</title></head>
<body>
<div id="challenge-running">Checking your browser before accessing the site.</div>
<form id="challenge-form" action="/chapter-1/?__cf_chl_f_tk=abc" method="POST"></form>
<script src="/cdn-cgi/challenge-platform/h/b/orchestrate/chl_page/v1"></script>
</body></html>`

const chapterPage = `<!DOCTYPE html>
<html><head><title>Chapter 1 - Some Manhua</title>
<script src="/cdn-cgi/challenge-platform/scripts/jsd/main.js"></script></head>
<body>
<div class="reading-content"><img src="https://cdn.example.com/1.jpg"></div>
<div class="comment">i was here just a moment ago</div>
</body></html>`

func TestInspectChallengePage(t *testing.T) {
	found, info := Inspect(challengePage)
	require.True(t, found)

	assert.Equal(t, "Just a moment...", info.Title)
	assert.Contains(t, info.Indicators, "Cloudflare challenge page")
	assert.Contains(t, info.Indicators, "Cloudflare challenge form")
	assert.Contains(t, info.Indicators, "Cloudflare browser check")
	assert.Contains(t, info.Indicators, "Cloudflare challenge JS")
	assert.Equal(t, "/chapter-1/?__cf_chl_f_tk=abc", info.FormAction)
}

func TestInspectOrdinaryPage(t *testing.T) {
	found, info := Inspect(chapterPage)
	assert.False(t, found)
	assert.Empty(t, info.Indicators)
	assert.Equal(t, "Chapter 1 - Some Manhua", info.Title)
}

func TestInspectTurnstile(t *testing.T) {
	found, info := Inspect(`<html><body><div class="cf-turnstile" data-sitekey="x"></div></body></html>`)
	assert.True(t, found)
	assert.True(t, info.Turnstile)
}

func TestDetectStatusAndHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("CF-Ray", "8abc-AMS")

	found, info := Detect(http.StatusForbidden, h, []byte("<html></html>"))
	assert.True(t, found)
	assert.Equal(t, "8abc-AMS", info.RayID)
	assert.Contains(t, info.Indicators, "403 Forbidden")

	found, _ = Detect(http.StatusOK, http.Header{}, []byte{0xff, 0xd8, 0xff, 0xe0})
	assert.False(t, found)
}

func TestIsChallenge(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &ChallengeError{URL: "https://x", StatusCode: 503})
	cfErr, ok := IsChallenge(err)
	require.True(t, ok)
	assert.Equal(t, 503, cfErr.StatusCode)

	_, ok = IsChallenge(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func capturedJSON(domain string, capturedAt time.Time) string {
	return fmt.Sprintf(`{
  "capturedAt": %q,
  "url": "https://%s/manga/x/chapter-1/",
  "domain": %q,
  "allCookies": [
    {"name": "cf_clearance", "value": "clear123", "domain": ".%s", "path": "/", "secure": true, "httpOnly": true},
    {"name": "wpmanga-reading-history", "value": "abc", "domain": "%s", "path": "/"}
  ],
  "entropy": {"userAgent": "Mozilla/5.0 Chrome/120.0", "platform": "Linux x86_64"},
  "headers": {"acceptLanguage": "en-US,en;q=0.9"}
}`, capturedAt.Format(time.RFC3339), domain, domain, domain, domain)
}

func TestParseCapturedDataFromCookieJar(t *testing.T) {
	data, err := ParseCapturedData(capturedJSON("manhuaus.com", time.Now()))
	require.NoError(t, err)

	assert.Equal(t, ProtectionCookie, data.Type)
	require.NotNil(t, data.CfClearanceStruct)
	assert.Equal(t, "clear123", data.CfClearanceStruct.Value)

	cookies := data.CookieList()
	require.Len(t, cookies, 2)
	assert.Equal(t, "cf_clearance", cookies[0].Name)
	assert.Equal(t, "wpmanga-reading-history", cookies[1].Name)
}

func TestParseCfClearanceCookie(t *testing.T) {
	c, err := ParseCfClearanceCookie("cf_clearance=v1; Path=/; Domain=.example.com; Expires=Mon, 02 Jan 2034 15:04:05 GMT; HttpOnly; Secure; SameSite=None")
	require.NoError(t, err)

	assert.Equal(t, "v1", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, ".example.com", c.Domain)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "None", c.SameSite)
	require.NotNil(t, c.Expires)
	assert.Equal(t, 2034, c.Expires.Year())

	_, err = ParseCfClearanceCookie("session=abc")
	assert.Error(t, err)
}

func TestParseCapturedDataRejectsEmpty(t *testing.T) {
	_, err := ParseCapturedData(`{"domain": "example.com"}`)
	assert.Error(t, err)

	_, err = ParseCapturedData(`{"allCookies": [{"name": "a", "value": "b"}]}`)
	assert.Error(t, err)

	_, err = ParseCapturedData(`not json`)
	assert.Error(t, err)
}

func TestStoreImportLoadDelete(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())

	domain, err := store.Import(capturedJSON("manhuaus.com", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "manhuaus.com", domain)

	domains, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"manhuaus.com"}, domains)

	data, err := store.LoadValid("www.manhuaus.com", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0 Chrome/120.0", data.Entropy.UserAgent)

	require.NoError(t, store.Delete("manhuaus.com"))
	_, err = store.Load("manhuaus.com")
	assert.ErrorIs(t, err, ErrNoBypassData)
}

func TestStoreRejectsDomainsOutsideDir(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "cf"), zerolog.Nop())

	for _, domain := range []string{"../escaped", "..", ".", "a/b", `a\b`, "/etc/passwd"} {
		_, err := store.Import(fmt.Sprintf(`{"domain":%q,"cfClearance":"abc"}`, domain))
		assert.ErrorIs(t, err, ErrInvalidDomain, domain)

		assert.ErrorIs(t, store.Save(&BypassData{Domain: "x"}, domain), ErrInvalidDomain, domain)
		_, err = store.Load(domain)
		assert.ErrorIs(t, err, ErrInvalidDomain, domain)
		assert.ErrorIs(t, store.Delete(domain), ErrInvalidDomain, domain)
	}

	assert.NoFileExists(t, filepath.Join(root, "escaped.json"))
	_, err := os.Stat(filepath.Join(root, "cf"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreImportFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.json")
	require.NoError(t, os.WriteFile(path, []byte(capturedJSON("example.org", time.Now())), 0644))

	store := NewStore(filepath.Join(dir, "cf"), zerolog.Nop())
	domain, err := store.ImportFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "example.org", domain)
	assert.FileExists(t, filepath.Join(dir, "cf", "example.org.json"))
}

func TestValidate(t *testing.T) {
	now := time.Now()

	fresh, err := ParseCapturedData(capturedJSON("a.com", now))
	require.NoError(t, err)
	assert.NoError(t, Validate(fresh, now))

	old, err := ParseCapturedData(capturedJSON("a.com", now.Add(-48*time.Hour)))
	require.NoError(t, err)
	assert.ErrorContains(t, Validate(old, now), "too old")

	expired := time.Now().Add(-time.Minute)
	fresh.CfClearanceStruct.Expires = &expired
	assert.ErrorContains(t, Validate(fresh, now), "expired")

	assert.Error(t, Validate(nil, now))
}

func TestMarkFailedBlocksReuse(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())
	now := time.Now()

	_, err := store.Import(capturedJSON("b.com", now))
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed("b.com", now))

	_, err = store.LoadValid("b.com", now.Add(time.Minute))
	assert.ErrorContains(t, err, "failed recently")

	_, err = store.LoadValid("b.com", now.Add(10*time.Minute))
	assert.NoError(t, err)
}

func TestDecompressBody(t *testing.T) {
	plain := []byte("hello, compressed world")

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, _ = w.Write(plain)
	require.NoError(t, w.Close())

	out, ok, err := DecompressBody(gz.Bytes(), "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, plain, out)

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write(plain)
	require.NoError(t, bw.Close())

	out, ok, err = DecompressBody(br.Bytes(), "br")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, plain, out)

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	out, ok, err = DecompressBody(png, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, png, out)
}
