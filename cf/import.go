package cf

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.design/x/clipboard"
)

// ParseCfClearanceCookie parses a raw Set-Cookie style cf_clearance string
// ("cf_clearance=...; Path=/; Domain=...; Secure") into a structured cookie
func ParseCfClearanceCookie(raw string) (*CfClearanceCookie, error) {
	if raw == "" {
		return nil, fmt.Errorf("cfClearance string is empty")
	}

	parts := strings.Split(raw, ";")
	cookie := &CfClearanceCookie{}

	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i == 0 {
			if !strings.HasPrefix(part, "cf_clearance=") {
				return nil, fmt.Errorf("invalid cf_clearance format")
			}
			cookie.Name = "cf_clearance"
			cookie.Value = strings.TrimPrefix(part, "cf_clearance=")
			continue
		}

		key, value, _ := strings.Cut(part, "=")
		switch strings.ToLower(key) {
		case "httponly":
			cookie.HttpOnly = true
		case "secure":
			cookie.Secure = true
		case "path":
			cookie.Path = value
		case "domain":
			cookie.Domain = value
		case "samesite":
			cookie.SameSite = value
		case "expires":
			if t, err := time.Parse(time.RFC1123, value); err == nil {
				cookie.Expires = &t
			}
		}
	}

	return cookie, nil
}

// ParseCapturedData parses the JSON exported by the capture extension
func ParseCapturedData(jsonData string) (*BypassData, error) {
	var data BypassData

	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if data.Domain == "" {
		return nil, fmt.Errorf("domain is empty")
	}
	if err := checkDomain(data.Domain); err != nil {
		return nil, err
	}
	if data.Headers == nil {
		data.Headers = map[string]string{}
	}

	rawCF := data.Headers["cfClearance"]
	if rawCF == "" {
		rawCF = data.CfClearance
	}
	if rawCF != "" && data.CfClearanceStruct == nil {
		if !strings.HasPrefix(rawCF, "cf_clearance=") {
			rawCF = "cf_clearance=" + rawCF
		}
		if cookie, err := ParseCfClearanceCookie(rawCF); err == nil {
			data.CfClearanceStruct = cookie
			data.CfClearance = cookie.Value
		}
	}

	// fall back to the cf_clearance entry of the cookie jar
	if data.CfClearanceStruct == nil {
		for _, ck := range data.AllCookies {
			if ck.Name != "cf_clearance" {
				continue
			}
			cc := &CfClearanceCookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				HttpOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
				SameSite: ck.SameSite,
			}
			if ck.ExpirationDate > 0 {
				t := time.Unix(int64(ck.ExpirationDate), 0).UTC()
				cc.Expires = &t
			}
			data.CfClearanceStruct = cc
			data.CfClearance = ck.Value
			break
		}
	}

	data.Type = data.DetermineProtectionType()
	if data.Type == ProtectionNone {
		return nil, fmt.Errorf("no valid bypass data found (no cookies)")
	}

	return &data, nil
}

// Import parses captured JSON and stores it. Returns the domain on success.
func (s *Store) Import(jsonData string) (string, error) {
	data, err := ParseCapturedData(jsonData)
	if err != nil {
		return "", err
	}

	if err := s.Save(data, data.Domain); err != nil {
		return "", fmt.Errorf("failed to save data: %w", err)
	}

	s.log.Info().
		Str("domain", data.Domain).
		Str("type", string(data.Type)).
		Int("cookies", len(data.AllCookies)).
		Bool("user_agent", data.Entropy.UserAgent != "").
		Msg("imported bypass data")
	return data.Domain, nil
}

// ImportFromFile imports captured JSON from a file
func (s *Store) ImportFromFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Import(string(raw))
}

// ImportFromClipboard imports captured JSON from the system clipboard
func (s *Store) ImportFromClipboard() (string, error) {
	text, err := ReadClipboard()
	if err != nil {
		return "", err
	}
	return s.Import(text)
}

// ReadClipboard returns the text currently on the clipboard
func ReadClipboard() (string, error) {
	if err := clipboard.Init(); err != nil {
		return "", fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	data := clipboard.Read(clipboard.FmtText)
	if len(data) == 0 {
		return "", fmt.Errorf("clipboard is empty")
	}
	return strings.TrimSpace(string(data)), nil
}
