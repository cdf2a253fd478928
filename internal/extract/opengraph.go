package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/azeiteiro/burro-dos-concertos-sub000/internal/model"
)

// dateKeys are meta property/name/itemprop keys that carry an event start, in priority order.
var dateKeys = []string{
	"event:start_time",
	"og:event:start_time",
	"event:start_date",
	"og:start_time",
	"startdate",
}

// ParseMetadata runs the Open Graph pass over markup. Both fetch paths
// share it, so a page yields the same record whichever transport delivered it.
func ParseMetadata(markup, sourceURL string) model.EventMetadata {
	tags := scanHead(markup)

	meta := model.EventMetadata{
		Title:       firstOf(tags.meta, "og:title", "twitter:title"),
		Description: firstOf(tags.meta, "og:description", "twitter:description", "description"),
		Image:       firstOf(tags.meta, "og:image", "og:image:url", "twitter:image"),
		SourceURL:   firstNonEmpty(tags.meta["og:url"], tags.canonical, sourceURL),
		Date:        firstNonEmpty(firstOf(tags.meta, dateKeys...), tags.timeAttr),
		RawMarkup:   markup,
	}
	if meta.Title == "" {
		meta.Title = tags.title
	}
	meta.Image = resolveAgainst(sourceURL, meta.Image)
	meta.SourceURL = resolveAgainst(sourceURL, meta.SourceURL)
	return meta
}

type headTags struct {
	meta      map[string]string
	title     string
	canonical string
	timeAttr  string
}

func scanHead(markup string) headTags {
	out := headTags{meta: make(map[string]string)}
	z := html.NewTokenizer(strings.NewReader(markup))
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return out
		case html.TextToken:
			if inTitle && out.title == "" {
				out.title = collapseSpace(z.Token().Data)
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "title" {
				inTitle = false
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			attrs := attrMap(tok.Attr)
			switch tok.Data {
			case "title":
				inTitle = tt == html.StartTagToken
			case "meta":
				content := strings.TrimSpace(attrs["content"])
				if content == "" {
					continue
				}
				for _, k := range []string{"property", "name", "itemprop"} {
					key := strings.ToLower(strings.TrimSpace(attrs[k]))
					if key == "" {
						continue
					}
					if _, seen := out.meta[key]; !seen {
						out.meta[key] = content
					}
				}
			case "link":
				if out.canonical == "" && strings.EqualFold(strings.TrimSpace(attrs["rel"]), "canonical") {
					out.canonical = strings.TrimSpace(attrs["href"])
				}
			case "time":
				if out.timeAttr == "" {
					out.timeAttr = strings.TrimSpace(attrs["datetime"])
				}
			default:
				if strings.EqualFold(attrs["itemprop"], "startDate") {
					if _, seen := out.meta["startdate"]; !seen {
						if v := firstNonEmpty(attrs["content"], attrs["datetime"]); v != "" {
							out.meta["startdate"] = strings.TrimSpace(v)
						}
					}
				}
			}
		}
	}
}

func attrMap(attrs []html.Attribute) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[strings.ToLower(a.Key)] = a.Val
	}
	return m
}

func firstOf(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveAgainst(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return r.String()
}
