package cf

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Info describes what a page or response revealed about a cf challenge
type Info struct {
	StatusCode int
	Title      string
	Indicators []string
	RayID      string
	FormAction string
	Turnstile  bool
	IsBIC      bool // Browser Integrity Check
}

// strong markers each identify a challenge page on their own
var strongChecks = []struct{ substr, reason string }{
	{"cloudflare-browser-verification", "JS browser verification challenge"},
	{"challenge-form", "Cloudflare challenge form"},
	{"cf-chl-", "Cloudflare challenge token"},
	{"attention required", "Cloudflare BIC"},
	{"checking your browser", "Cloudflare browser check"},
	{"verify you are human", "Cloudflare human verification"},
}

// the challenge platform script is embedded on ordinary cf-proxied pages
// too, so it only counts next to a strong marker
const weakCheck = "/cdn-cgi/challenge-platform/"

var justAMomentRe = regexp.MustCompile(`(?i)just a moment`)

// Inspect looks at rendered page HTML for challenge markers. It never fails:
// unparsable markup is reported as "no challenge".
func Inspect(html string) (bool, *Info) {
	info := &Info{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, info
	}

	match := false
	strong := false
	body := strings.ToLower(html)

	info.Title = strings.TrimSpace(doc.Find("title").First().Text())
	// only the <title> counts: chapter comments quote the phrase too
	if justAMomentRe.MatchString(info.Title) {
		info.Indicators = append(info.Indicators, "Cloudflare challenge page")
		match, strong = true, true
	}

	for _, check := range strongChecks {
		if strings.Contains(body, check.substr) {
			info.Indicators = append(info.Indicators, check.reason)
			match, strong = true, true
		}
	}

	if strong && strings.Contains(body, weakCheck) {
		info.Indicators = append(info.Indicators, "Cloudflare challenge JS")
	}

	if form := doc.Find("form#challenge-form"); form.Length() > 0 {
		info.FormAction, _ = form.Attr("action")
	}

	if doc.Find(".cf-turnstile, [data-sitekey]").Length() > 0 || strings.Contains(body, "cf-turnstile") {
		info.Turnstile = true
		info.Indicators = append(info.Indicators, "Turnstile CAPTCHA")
		match = true
	}

	if strings.Contains(body, "verify you are human") {
		info.IsBIC = true
	}

	return match, info
}

// Detect inspects an HTTP response (status, headers and decoded body) the
// way Inspect inspects a rendered page, adding status and header signals.
func Detect(statusCode int, header http.Header, body []byte) (bool, *Info) {
	match, info := Inspect(string(body))
	info.StatusCode = statusCode

	switch statusCode {
	case http.StatusForbidden:
		info.Indicators = append(info.Indicators, "403 Forbidden")
		match = true
	case http.StatusServiceUnavailable:
		info.Indicators = append(info.Indicators, "503 Service Unavailable")
		match = true
	case http.StatusTooManyRequests:
		info.Indicators = append(info.Indicators, "429 Rate limit")
	}

	if header != nil {
		info.RayID = header.Get("CF-Ray")
		for _, cookie := range header.Values("Set-Cookie") {
			if strings.Contains(cookie, "cf_clearance") {
				info.Indicators = append(info.Indicators, "New cf_clearance cookie in response")
				match = true
			}
		}
	}

	return match, info
}
