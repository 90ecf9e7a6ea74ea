package cf

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly"
)

// HTTPCookies converts the stored cookies to net/http cookies
func (b *BypassData) HTTPCookies() []*http.Cookie {
	var out []*http.Cookie
	for _, ck := range b.CookieList() {
		hc := &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     ck.Path,
			Domain:   ck.Domain,
			Secure:   ck.Secure,
			HttpOnly: ck.HTTPOnly,
		}
		if ck.ExpirationDate > 0 {
			hc.Expires = time.Unix(int64(ck.ExpirationDate), 0)
		}
		out = append(out, hc)
	}
	return out
}

// ApplyToCollector makes c look like the browser that solved the challenge:
// same user agent, the stored cookies for targetURL and browser-like headers
// on every request.
func ApplyToCollector(c *colly.Collector, data *BypassData, targetURL string) error {
	if !data.HasCookies() {
		return fmt.Errorf("no cookie data available")
	}

	if data.Entropy.UserAgent != "" {
		c.UserAgent = data.Entropy.UserAgent
	}

	if err := c.SetCookies(targetURL, data.HTTPCookies()); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}

	c.OnRequest(func(r *colly.Request) {
		if lang := data.Headers["acceptLanguage"]; lang != "" {
			r.Headers.Set("Accept-Language", lang)
		}
		r.Headers.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
		r.Headers.Set("Accept-Encoding", "gzip, br")
		r.Headers.Set("Sec-Fetch-Dest", "image")
		r.Headers.Set("Sec-Fetch-Mode", "no-cors")
		r.Headers.Set("Sec-Fetch-Site", "cross-site")

		if strings.Contains(data.Entropy.UserAgent, "Chrome") {
			r.Headers.Set("sec-ch-ua-mobile", "?0")
			if data.Entropy.Platform != "" {
				r.Headers.Set("sec-ch-ua-platform", fmt.Sprintf(`"%s"`, data.Entropy.Platform))
			}
		}
	})

	return nil
}
