package sites

// madaraNextLink is the "next chapter" anchor of the WordPress Madara theme
const madaraNextLink = "//div[contains(@class, 'nav-next')]//a[contains(@class, 'next_page')]"

// Madara covers sites built on the WordPress Madara manga theme
func Madara() Profile {
	return Profile{
		Name:          "madara",
		SectionMarker: "div.page-break.no-gaps",
		ImageSelector: "div.reading-content img",
		NextLinkXPath: madaraNextLink,
	}
}

// Manhuaus is Madara with the manhuaus.com domains
func Manhuaus() Profile {
	p := Madara()
	p.Name = "manhuaus"
	p.Domains = []string{"manhuaus.com", "manhuaus.org"}
	return p
}

// Stonescape is Madara; its chapter images carry their own class
func Stonescape() Profile {
	p := Madara()
	p.Name = "stonescape"
	p.Domains = []string{"stonescape.xyz"}
	p.ImageSelector = "img.wp-manga-chapter-img"
	return p
}

// Generic scrapes every img on the page and follows rel="next" links
func Generic() Profile {
	return Profile{
		Name:          "generic",
		ImageSelector: "img",
		ImageAttrs:    DefaultImageAttrs,
		NextLinkXPath: "//a[@rel='next']",
	}
}
