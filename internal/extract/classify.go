package extract

import (
	"regexp"
	"strings"

	"asta_radar/internal/domain"
)

// Order matters: the first entry present in the text wins.
var propertyTypeLexicon = NewLexicon([]Term{
	{"appartament", string(domain.Apartment)},
	{"alloggi", string(domain.Apartment)},
	{"abitazion", string(domain.Apartment)},
	{"monolocale", string(domain.Apartment)},
	{"bilocale", string(domain.Apartment)},
	{"trilocale", string(domain.Apartment)},
	{"quadrilocale", string(domain.Apartment)},
	{"villa ", string(domain.Villa)},
	{"ville ", string(domain.Villa)},
	{"villett", string(domain.Villa)},
	{"villino", string(domain.Villa)},
	{"attic", string(domain.Penthouse)},
	{"superattic", string(domain.Penthouse)},
	{"penthouse", string(domain.Penthouse)},
	{"negozi", string(domain.Commercial)},
	{"locale commerciale", string(domain.Commercial)},
	{"locali commerciali", string(domain.Commercial)},
	{"uffic", string(domain.Office)},
	{"studio professionale", string(domain.Office)},
	{"magazzin", string(domain.Warehouse)},
	{"capannon", string(domain.Warehouse)},
	{"opificio", string(domain.Warehouse)},
	{"box ", string(domain.Garage)},
	{"garage", string(domain.Garage)},
	{"autorimess", string(domain.Garage)},
	{"posto auto", string(domain.Garage)},
	{"terren", string(domain.Land)},
	{"rustic", string(domain.Rural)},
	{"casal", string(domain.Rural)},
	{"casa colonica", string(domain.Rural)},
	{"casa ", string(domain.Apartment)},
})

// ClassifyPropertyType maps free text to the closed enumeration, defaulting to Other.
func ClassifyPropertyType(text string) domain.PropertyType {
	if label, ok := propertyTypeLexicon.First(text); ok {
		return domain.PropertyType(label)
	}
	return domain.Other
}

// Cities recognised in free text. Both Reggio variants are listed.
var Cities = []string{
	"Roma", "Milano", "Napoli", "Torino", "Palermo", "Genova", "Bologna", "Firenze",
	"Bari", "Catania", "Venezia", "Verona", "Messina", "Padova", "Trieste", "Brescia",
	"Parma", "Taranto", "Prato", "Modena", "Reggio Calabria", "Reggio Emilia",
}

var cityLexicon = func() *Lexicon {
	terms := make([]Term, 0, len(Cities))
	for _, c := range Cities {
		terms = append(terms, Term{Word: c + " ", Label: c})
	}
	return NewLexicon(terms)
}()

// Occurrences right after these words name a street or a court, not the location.
var cityStopPrefixes = []string{
	"via", "viale", "piazza", "piazzale", "corso", "largo", "vicolo", "strada", "lungomare",
	"tribunale", "tribunale di", "foro di", "corte d appello di",
}

// ExtractCity returns the known city named earliest in text, ignoring
// street names ("Via Roma") and court seats ("Tribunale di Roma").
func ExtractCity(text string) (string, bool) {
	labels := cityLexicon.Labels(text)
	if len(labels) == 0 {
		return "", false
	}
	folded := " " + FoldKey(text) + " "
	best, bestPos := "", -1
	for _, city := range labels {
		needle := " " + FoldKey(city) + " "
		for from := 0; ; {
			i := strings.Index(folded[from:], needle)
			if i < 0 {
				break
			}
			pos := from + i
			if !precededByStop(folded[:pos+1]) {
				if bestPos < 0 || pos < bestPos {
					best, bestPos = city, pos
				}
				break
			}
			from = pos + 1
		}
	}
	return best, bestPos >= 0
}

func precededByStop(head string) bool {
	for _, p := range cityStopPrefixes {
		if strings.HasSuffix(head, " "+p+" ") {
			return true
		}
	}
	return false
}

var (
	reCourt = regexp.MustCompile(`(?i:tribunale)\s+(?:(?i:ordinario)\s+)?(?:(?i:di)\s+)?(\p{Lu}[\p{L}']+)(?:\s+(\p{Lu}[\p{L}']+))?`)
	// Second capitalised words that belong to the surrounding sentence, not the seat.
	courtStopWords = map[string]bool{
		"via": true, "viale": true, "piazza": true, "sezione": true, "esecuzioni": true,
		"procedura": true, "lotto": true, "rge": true, "fallimento": true, "giudice": true,
		"asta": true, "vendita": true, "immobiliare": true, "civile": true,
	}
)

// ExtractCourt finds "Tribunale [di] X" and returns the canonical "Tribunale di X".
func ExtractCourt(text string) (string, bool) {
	m := reCourt.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	name := titleCase(m[1])
	if FoldKey(name) == "di" || FoldKey(name) == "ordinario" {
		return "", false
	}
	if m[2] != "" && !courtStopWords[FoldKey(m[2])] {
		name += " " + titleCase(m[2])
	}
	return "Tribunale di " + name, true
}

var reCourtPrefix = regexp.MustCompile(`^(?i:tribunale)\s+(?:(?i:ordinario)\s+)?(?:(?i:di)\s+)?(\S.*)$`)

// CanonicalCourt rewrites the "Tribunale [Ordinario] [di]" prefix of a court
// value to "Tribunale di " and keeps the seat name whole. Values without the
// prefix are returned cleaned.
func CanonicalCourt(s string) string {
	s = CleanText(s)
	m := reCourtPrefix.FindStringSubmatch(s)
	if m == nil || FoldKey(m[1]) == "di" {
		return s
	}
	return "Tribunale di " + m[1]
}

var seatParticles = map[string]bool{"di": true, "del": true, "dei": true, "della": true, "nell'": true, "sul": true}

// CourtFromField reads a court from a labelled field, which holds either a
// full "Tribunale di X" value or only the seat name.
func CourtFromField(s string) (string, bool) {
	s = CleanText(s)
	if s == "" {
		return "", false
	}
	if reCourtPrefix.MatchString(s) {
		return CanonicalCourt(s), true
	}
	if strings.Contains(FoldKey(s), "tribunale") {
		return ExtractCourt(s)
	}
	words := strings.Fields(s)
	for i, w := range words {
		if i > 0 && seatParticles[strings.ToLower(w)] {
			words[i] = strings.ToLower(w)
			continue
		}
		words[i] = titleCase(w)
	}
	return "Tribunale di " + strings.Join(words, " "), true
}

func titleCase(s string) string {
	r := []rune(strings.ToLower(s))
	if len(r) == 0 {
		return s
	}
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
