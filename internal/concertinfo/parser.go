// Package concertinfo guesses artist, venue and date from scraped event metadata.
package concertinfo

import (
	"html"
	"regexp"
	"strings"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// titleSeparators are tried in order; the first one that splits the title wins.
var titleSeparators = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?)\s+@\s+(.+)$`),
	regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`),
	regexp.MustCompile(`(?i)^(.+?)\s+at\s+(.+)$`),
	regexp.MustCompile(`(?i)^(.+?)\s+em\s+(.+)$`),
	regexp.MustCompile(`(?i)^(.+?)\s+no\s+(.+)$`),
}

// venueMarkers look for a venue name in raw markup, most specific first:
// schema.org location (microdata, then JSON-LD), the Portuguese "local"
// class used by local ticketing sites, then any "location" class.
var venueMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?is)itemprop=["']location["'].*?itemprop=["']name["'][^>]*?(?:content=["']([^"']+)["'][^>]*>|>\s*([^<]+?)\s*<)`),
	regexp.MustCompile(`(?is)"location"\s*:\s*\{[^{}]*?"name"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`(?is)class=["'][^"']*\blocal\b[^"']*["'][^>]*>\s*([^<]+?)\s*<`),
	regexp.MustCompile(`(?is)class=["'][^"']*location[^"']*["'][^>]*>\s*([^<]+?)\s*<`),
}

// Parse never fails; fields it cannot guess stay empty. rawMarkup overrides
// meta.RawMarkup when non-empty.
func Parse(meta model.EventMetadata, rawMarkup string) model.ConcertProposal {
	if rawMarkup == "" {
		rawMarkup = meta.RawMarkup
	}

	var p model.ConcertProposal
	title := strings.TrimSpace(meta.Title)
	if title != "" {
		p.Artist, p.Venue = splitTitle(title)
	}
	if p.Venue == "" && rawMarkup != "" {
		p.Venue = venueFromMarkup(rawMarkup)
	}
	p.Date = meta.Date
	return p
}

func splitTitle(title string) (artist, venue string) {
	for _, rx := range titleSeparators {
		m := rx.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		a, v := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if a != "" && v != "" {
			return a, v
		}
	}
	return title, ""
}

func venueFromMarkup(markup string) string {
	for _, rx := range venueMarkers {
		m := rx.FindStringSubmatch(markup)
		if m == nil {
			continue
		}
		for _, g := range m[1:] {
			if v := strings.TrimSpace(html.UnescapeString(g)); v != "" {
				return strings.Join(strings.Fields(v), " ")
			}
		}
	}
	return ""
}
