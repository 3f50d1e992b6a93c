package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var italianMonths = map[string]time.Month{
	"gennaio": time.January, "febbraio": time.February, "marzo": time.March,
	"aprile": time.April, "maggio": time.May, "giugno": time.June,
	"luglio": time.July, "agosto": time.August, "settembre": time.September,
	"ottobre": time.October, "novembre": time.November, "dicembre": time.December,
}

var (
	reDateNumeric = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4})\b`)
	reDateISO     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})`)
	reDateMonth   = regexp.MustCompile(`(?i)\b(\d{1,2})[°º]?\s+(gennaio|febbraio|marzo|aprile|maggio|giugno|luglio|agosto|settembre|ottobre|novembre|dicembre)\s+(\d{4})\b`)
	reClock       = regexp.MustCompile(`(?i)^[\s,T]*(?:(?:alle\s+)?ore\s+|h\.?\s*)?(\d{1,2})[:.](\d{2})`)
)

// ExtractAuctionDate finds the first date in numeric (dd/mm/yyyy, dd-mm-yyyy,
// dd.mm.yyyy), ISO (yyyy-mm-dd) or Italian month-name form. A clock time
// directly after the date is kept. Wall-clock values are stored as UTC.
func ExtractAuctionDate(text string) (time.Time, bool) {
	if m := reDateNumeric.FindStringSubmatchIndex(text); m != nil {
		d, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		y, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := buildDate(y, time.Month(mo), d, text[m[1]:]); ok {
			return t, true
		}
	}
	if m := reDateISO.FindStringSubmatchIndex(text); m != nil {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := buildDate(y, time.Month(mo), d, text[m[1]:]); ok {
			return t, true
		}
	}
	if m := reDateMonth.FindStringSubmatchIndex(text); m != nil {
		d, _ := strconv.Atoi(text[m[2]:m[3]])
		mo := italianMonths[strings.ToLower(text[m[4]:m[5]])]
		y, _ := strconv.Atoi(text[m[6]:m[7]])
		if t, ok := buildDate(y, mo, d, text[m[1]:]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func buildDate(y int, mo time.Month, d int, rest string) (time.Time, bool) {
	if y < 1990 || y > 2100 || mo < time.January || mo > time.December || d < 1 {
		return time.Time{}, false
	}
	hh, mm := 0, 0
	if c := reClock.FindStringSubmatch(rest); c != nil {
		h, _ := strconv.Atoi(c[1])
		m, _ := strconv.Atoi(c[2])
		if h < 24 && m < 60 {
			hh, mm = h, m
		}
	}
	t := time.Date(y, mo, d, hh, mm, 0, 0, time.UTC)
	// time.Date normalises 31/02 to March; reject instead.
	if t.Day() != d || t.Month() != mo {
		return time.Time{}, false
	}
	return t, true
}
