// Package sites holds the per-site knowledge the scraper needs: which
// elements delimit page sections, where chapter images live, what a
// challenge overlay looks like and how to find the next chapter link.
package sites

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DefaultChallengeSelectors match the common Cloudflare interstitial overlays
var DefaultChallengeSelectors = []string{
	"#challenge-running",
	"#challenge-form",
	".cf-challenge-running",
}

// DefaultImageAttrs is the attribute preference for reading an image URL.
// Lazy loaders keep the real URL in data-* until the element scrolls in.
var DefaultImageAttrs = []string{"data-src", "data-lazy-src", "src"}

// Profile describes one site layout
type Profile struct {
	Name    string
	Domains []string

	// SectionMarker is a CSS selector for page-section markers; the scroll
	// target is the bottom of the last one. Empty means use document height.
	SectionMarker string

	// ImageSelector is the CSS selector for chapter images
	ImageSelector string
	ImageAttrs    []string

	ChallengeSelectors []string

	// NextLinkXPath locates the "next chapter" anchor. Empty means the
	// gallery is a single page.
	NextLinkXPath string
}

// Registry maps profile names to profiles
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry holding the given profiles
func NewRegistry(profiles ...Profile) *Registry {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		r.Register(p)
	}
	return r
}

// Default returns a registry with every built-in profile
func Default() *Registry {
	return NewRegistry(Manhuaus(), Stonescape(), Madara(), Generic())
}

// Register adds or replaces a profile, filling unset fields with defaults
func (r *Registry) Register(p Profile) {
	if len(p.ImageAttrs) == 0 {
		p.ImageAttrs = DefaultImageAttrs
	}
	if len(p.ChallengeSelectors) == 0 {
		p.ChallengeSelectors = DefaultChallengeSelectors
	}
	if p.ImageSelector == "" {
		p.ImageSelector = "img"
	}
	r.profiles[p.Name] = p
}

// Lookup returns the named profile
func (r *Registry) Lookup(name string) (Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns the registered profile names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForURL picks the profile whose domain matches the URL host (subdomains
// included), falling back to the generic profile.
func (r *Registry) ForURL(rawURL string) Profile {
	u, err := url.Parse(rawURL)
	if err == nil {
		host := strings.ToLower(u.Hostname())
		for _, name := range r.Names() {
			p := r.profiles[name]
			for _, d := range p.Domains {
				if host == d || strings.HasSuffix(host, "."+d) {
					return p
				}
			}
		}
	}

	if p, ok := r.profiles["generic"]; ok {
		return p
	}
	return Generic()
}

// Resolve turns a configured profile name into a profile; "auto" or ""
// selects by the start URL.
func (r *Registry) Resolve(name, startURL string) (Profile, error) {
	if name == "" || name == "auto" {
		return r.ForURL(startURL), nil
	}
	p, ok := r.Lookup(name)
	if !ok {
		return Profile{}, fmt.Errorf("unknown site profile %q (available: auto, %s)", name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}
