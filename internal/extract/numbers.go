package extract

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	MinPrice   = 1_000
	MaxPrice   = 100_000_000
	MinSurface = 10
	MaxSurface = 10_000
	MinRooms   = 1
	MaxRooms   = 20
)

var (
	rePriceLabeled = regexp.MustCompile(`(?i)(?:prezzo\s+base|base\s+d'asta|prezzo|valore\s+di\s+stima|valore|offerta\s+minima|importo)[^\d€]{0,30}€?\s*(\d[\d.,]*)`)
	rePriceEuroPre = regexp.MustCompile(`€\s*(\d[\d.,]*)`)
	rePriceEuroSuf = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(?:€|euro\b|eur\b)`)
	reAmount       = regexp.MustCompile(`\d[\d.,]*`)

	reSurfaceUnit  = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(?:mq|m2|m²|metri\s+quadr[ai]|sqm)`)
	reSurfaceLabel = regexp.MustCompile(`(?i)superficie[^\d]{0,40}?(\d[\d.,]*)`)

	reRoomsNumeric = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:vani|locali|camere|stanze)\b`)
)

var roomLexicon = NewLexicon([]Term{
	{"monolocale", "1"},
	{"bilocale", "2"},
	{"trilocale", "3"},
	{"quadrilocale", "4"},
	{"pentalocale", "5"},
})

// parseItalianNumber reads "150.000,50" as 150000.5: '.' groups thousands and
// ',' is the decimal separator.
func parseItalianNumber(s string) (float64, bool) {
	s = strings.Trim(s, ".,")
	if s == "" || strings.Count(s, ",") > 1 {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

func findAmount(text string, bare bool) (float64, bool) {
	for _, re := range []*regexp.Regexp{rePriceLabeled, rePriceEuroPre, rePriceEuroSuf} {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := parseItalianNumber(m[1]); ok {
				return v, true
			}
		}
	}
	if bare {
		if m := reAmount.FindString(text); m != "" {
			return parseItalianNumber(m)
		}
	}
	return 0, false
}

// ParseAmount extracts the first monetary amount from a price-bearing field
// (e.g. "Prezzo base € 100.500,00" or "100.500") without a sanity band.
func ParseAmount(text string) (float64, bool) {
	return findAmount(text, true)
}

// ParsePrice is ParseAmount restricted to the plausible auction price band.
func ParsePrice(text string) (float64, bool) {
	v, ok := ParseAmount(text)
	if !ok || v < MinPrice || v > MaxPrice {
		return 0, false
	}
	return v, true
}

// priceFromFreeText only trusts amounts next to a currency marker or price label.
func priceFromFreeText(text string) (float64, bool) {
	v, ok := findAmount(text, false)
	if !ok || v < MinPrice || v > MaxPrice {
		return 0, false
	}
	return v, true
}

func ParseSurface(text string) (float64, bool) {
	for _, re := range []*regexp.Regexp{reSurfaceUnit, reSurfaceLabel} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := parseItalianNumber(m[1]); ok && v >= MinSurface && v <= MaxSurface {
				return v, true
			}
		}
	}
	return 0, false
}

// ParseRooms tries the sized-apartment lexicon first, then "N vani/locali".
func ParseRooms(text string) (int, bool) {
	if label, ok := roomLexicon.First(text); ok {
		n, _ := strconv.Atoi(label)
		return n, true
	}
	for _, m := range reRoomsNumeric.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= MinRooms && n <= MaxRooms {
			return n, true
		}
	}
	return 0, false
}
