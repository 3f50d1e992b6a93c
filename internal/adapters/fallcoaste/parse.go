package fallcoaste

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"asta_radar/internal/domain"
)

// ListingLink is one result found on a listing page, with the few fields the
// listing itself shows.
type ListingLink struct {
	URL        string `json:"url"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	PriceText  string `json:"price_text,omitempty"`
	DateText   string `json:"date_text,omitempty"`
	CourtText  string `json:"court_text,omitempty"`
}

// DetailPage is the parsed content of one item page. Media paths are left as
// found in the markup.
type DetailPage struct {
	Title    string            `json:"title,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	PVPID    string            `json:"pvp_id,omitempty"`
	Media    domain.Media      `json:"media"`
	Coords   *domain.Coords    `json:"coords,omitempty"`
	FullText string            `json:"full_text,omitempty"`
}

var (
	reContainer   = regexp.MustCompile(`result|auction|item|card`)
	reDetailLink  = regexp.MustCompile(`(avviso-vendita|vendita)/`)
	reExternalID  = regexp.MustCompile(`-(\d+)\.html`)
	rePVPID       = regexp.MustCompile(`idAnnuncio[=:](\d+)`)
	reListPrice   = regexp.MustCompile(`Prezzo base|€`)
	reListDate    = regexp.MustCompile(`Inizio|Termine|Data`)
	reListCourt   = regexp.MustCompile(`Tribunale`)
	reFloorPlan   = regexp.MustCompile(`(?i)planimetri`)
	reDocumentExt = regexp.MustCompile(`(?i)\.pdf(?:$|[?#])`)
)

const defaultTitle = "Immobile all'asta"

// ExternalIDFromURL derives the source-scoped id from a detail URL such as
// ".../avviso-vendita/appartamento-roma-12345.html".
func ExternalIDFromURL(u string) (string, bool) {
	m := reExternalID.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return "fallcoaste_" + m[1], true
}

// ParseListing extracts one detail link per result container. When the markup
// has no recognisable containers it falls back to links that look like detail
// pages. Links are absolute and unique by URL.
func ParseListing(body []byte, base string) []ListingLink {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	baseURL, _ := url.Parse(base)

	var out []ListingLink
	seen := map[string]bool{}
	add := func(l ListingLink) {
		if l.URL == "" || seen[l.URL] {
			return
		}
		seen[l.URL] = true
		out = append(out, l)
	}

	containers := doc.Find("div[class]").FilterFunction(isContainer)
	// innermost containers only; an outer wrapper would pick up its first child's link
	containers = containers.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("div[class]").FilterFunction(isContainer).Length() == 0
	})
	containers.Each(func(_ int, s *goquery.Selection) {
		var link ListingLink
		s.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			abs := resolve(baseURL, href)
			id, ok := ExternalIDFromURL(abs)
			if !ok {
				return true
			}
			link = ListingLink{URL: abs, ExternalID: id, Title: squash(a.Text())}
			return false
		})
		if link.URL == "" {
			return
		}
		if h := squash(s.Find("h2, h3, h4").First().Text()); h != "" {
			link.Title = h
		}
		s.Find("*").Each(func(_ int, el *goquery.Selection) {
			if el.Children().Length() > 0 {
				return
			}
			t := squash(el.Text())
			switch {
			case link.PriceText == "" && reListPrice.MatchString(t):
				link.PriceText = t
			case link.CourtText == "" && reListCourt.MatchString(t):
				link.CourtText = t
			case link.DateText == "" && reListDate.MatchString(t):
				link.DateText = t
			}
		})
		if link.Title == "" {
			link.Title = defaultTitle
		}
		add(link)
	})
	if len(out) > 0 {
		return out
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !reDetailLink.MatchString(href) {
			return
		}
		abs := resolve(baseURL, href)
		id, ok := ExternalIDFromURL(abs)
		if !ok {
			return
		}
		title := squash(a.Text())
		if title == "" {
			title = defaultTitle
		}
		add(ListingLink{URL: abs, ExternalID: id, Title: title})
	})
	return out
}

func isContainer(_ int, s *goquery.Selection) bool {
	c, _ := s.Attr("class")
	return reContainer.MatchString(c)
}

// ParseDetail reads the item page: definition-list fields, the ministerial
// listing id, media and map coordinates.
func ParseDetail(body []byte) DetailPage {
	var d DetailPage
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return d
	}
	doc.Find("script, style, noscript").Remove()

	d.Title = squash(doc.Find("h1").First().Text())
	d.Fields = map[string]string{}
	put := func(k, v string) {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			return
		}
		if _, ok := d.Fields[k]; !ok {
			d.Fields[k] = v
		}
	}

	// <dt>Key</dt><dd>Value</dd>, or a self-contained "Key: Value" in either tag
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		text := squash(dt.Text())
		if k, v, ok := strings.Cut(text, ":"); ok && strings.TrimSpace(v) != "" {
			put(k, v)
			return
		}
		if dd := dt.NextFiltered("dd"); dd.Length() > 0 {
			put(strings.TrimSuffix(text, ":"), squash(dd.Text()))
		}
	})
	doc.Find("dd").Each(func(_ int, dd *goquery.Selection) {
		if dd.PrevFiltered("dt").Length() > 0 {
			return
		}
		if k, v, ok := strings.Cut(squash(dd.Text()), ":"); ok {
			put(k, v)
		}
	})

	doc.Find("a[href*='idAnnuncio']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if m := rePVPID.FindStringSubmatch(href); m != nil {
			d.PVPID = m[1]
			return false
		}
		return true
	})

	d.Media = parseMedia(doc)
	d.Coords = parseCoords(doc)
	d.FullText = squash(doc.Find("body").Text())
	return d
}

func parseMedia(doc *goquery.Document) domain.Media {
	var m domain.Media
	seen := map[string]bool{}
	addTo := func(list *[]string, u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		*list = append(*list, u)
	}

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := imgSrc(img)
		alt, _ := img.Attr("alt")
		if reFloorPlan.MatchString(src) || reFloorPlan.MatchString(alt) {
			addTo(&m.FloorPlans, src)
		}
	})
	doc.Find(".gallery img, .carousel img, .slider img, [class*='gallery'] img, [class*='foto'] img").Each(func(_ int, img *goquery.Selection) {
		addTo(&m.Photos, imgSrc(img))
	})
	if len(m.Photos) == 0 {
		if og, ok := doc.Find("meta[property='og:image']").Attr("content"); ok {
			addTo(&m.Photos, og)
		}
	}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !reDocumentExt.MatchString(href) {
			return
		}
		if reFloorPlan.MatchString(href) || reFloorPlan.MatchString(a.Text()) {
			addTo(&m.FloorPlans, href)
			return
		}
		addTo(&m.Documents, href)
	})
	return m
}

// imgSrc prefers lazy-load attributes over the placeholder src.
func imgSrc(img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy", "src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func parseCoords(doc *goquery.Document) *domain.Coords {
	var c *domain.Coords
	doc.Find("[data-lat]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		latS, _ := s.Attr("data-lat")
		lonS, ok := s.Attr("data-lng")
		if !ok {
			lonS, _ = s.Attr("data-lon")
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(latS), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(lonS), 64)
		if err1 != nil || err2 != nil || (lat == 0 && lon == 0) {
			return true
		}
		c = &domain.Coords{Lat: lat, Lon: lon}
		return false
	})
	return c
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil || ref.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func squash(s string) string { return strings.Join(strings.Fields(s), " ") }
