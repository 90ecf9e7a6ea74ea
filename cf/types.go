package cf

import "time"

// ProtectionType indicates which cf protection the stored data answers
type ProtectionType string

const (
	ProtectionNone   ProtectionType = "none"
	ProtectionCookie ProtectionType = "cookie" // cf_clearance based
)

// Cookie represents a browser cookie as exported by the capture extension
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	SameSite       string  `json:"sameSite"`
	ExpirationDate float64 `json:"expirationDate"` // Unix timestamp
}

// Entropy is the subset of the captured browser fingerprint we replay.
// The clearance cookie is bound to the user agent that solved the challenge.
type Entropy struct {
	UserAgent string   `json:"userAgent"`
	Language  string   `json:"language"`
	Languages []string `json:"languages"`
	Platform  string   `json:"platform"`
}

// BypassData is the stored result of a manually solved challenge for one domain
type BypassData struct {
	Type       ProtectionType `json:"type"`
	CapturedAt string         `json:"capturedAt"`
	URL        string         `json:"url"`
	Domain     string         `json:"domain"`

	Cookies    []Cookie `json:"cookies,omitempty"`
	AllCookies []Cookie `json:"allCookies,omitempty"`

	Entropy Entropy           `json:"entropy"`
	Headers map[string]string `json:"headers"`

	CfClearance           string             `json:"cfClearance,omitempty"`
	CfClearanceCapturedAt time.Time          `json:"cfClearanceCapturedAt"`
	CfClearanceStruct     *CfClearanceCookie `json:"cfClearanceStruct,omitempty"`
}

// CfClearanceCookie represents a structured cf_clearance cookie
type CfClearanceCookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain,omitempty"`
	Path     string     `json:"path,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
	HttpOnly bool       `json:"httpOnly"`
	Secure   bool       `json:"secure"`
	SameSite string     `json:"sameSite,omitempty"`
}

// IsExpired checks if the bypass data is older than maxAge
func (b *BypassData) IsExpired(maxAge time.Duration) bool {
	capturedTime, err := time.Parse(time.RFC3339, b.CapturedAt)
	if err != nil {
		return true
	}
	return time.Since(capturedTime) > maxAge
}

// HasCookies returns true if cookie-based bypass data exists
func (b *BypassData) HasCookies() bool {
	return len(b.AllCookies) > 0 || b.CfClearanceStruct != nil
}

// DetermineProtectionType analyzes the data and determines protection type
func (b *BypassData) DetermineProtectionType() ProtectionType {
	if b.HasCookies() {
		return ProtectionCookie
	}
	return ProtectionNone
}

// CookieList flattens the stored cookies into the order they are injected:
// the structured cf_clearance first, then every other named cookie.
func (b *BypassData) CookieList() []Cookie {
	var cookies []Cookie

	if cc := b.CfClearanceStruct; cc != nil {
		ck := Cookie{
			Name:     cc.Name,
			Value:    cc.Value,
			Domain:   cc.Domain,
			Path:     cc.Path,
			Secure:   cc.Secure,
			HTTPOnly: cc.HttpOnly,
			SameSite: cc.SameSite,
		}
		if ck.Domain == "" {
			ck.Domain = b.Domain
		}
		if ck.Path == "" {
			ck.Path = "/"
		}
		if cc.Expires != nil {
			ck.ExpirationDate = float64(cc.Expires.Unix())
		}
		cookies = append(cookies, ck)
	}

	for _, ck := range b.AllCookies {
		if ck.Name == "" || (ck.Name == "cf_clearance" && b.CfClearanceStruct != nil) {
			continue
		}
		if ck.Domain == "" {
			ck.Domain = b.Domain
		}
		cookies = append(cookies, ck)
	}

	return cookies
}
