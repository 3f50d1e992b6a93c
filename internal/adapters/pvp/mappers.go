package pvp

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"asta_radar/internal/domain"
	"asta_radar/internal/extract"
)

/********** alias registries (single source of truth) **********/

var recordAliases = map[string][]string{
	"id":          {"idLotto", "id", "idAnnuncio", "lotto.idLotto", "lotto.id"},
	"title":       {"titolo", "titoloAnnuncio", "descrizioneBreve", "lotto.titolo", "title"},
	"description": {"descrizione", "descrizioneLotto", "lotto.descrizione", "descrizioneBene", "description"},
	"category":    {"categoria", "categoriaBene", "tipologia", "tipologiaBene", "lotto.categoria"},
	"city":        {"citta", "comune", "indirizzo.citta", "indirizzo.comune", "ubicazione.citta", "city"},
	"province":    {"provincia", "siglaProvincia", "indirizzo.provincia", "ubicazione.provincia"},
	"address":     {"indirizzo", "indirizzo.via", "indirizzo.indirizzo", "ubicazione.indirizzo", "address"},
	"court":       {"tribunale", "ufficioGiudiziario", "procedura.tribunale", "ufficio"},
	"case_number": {"numeroProcedura", "procedura.numero", "rgProcedura", "numeroRG"},
	"case_year":   {"annoProcedura", "procedura.anno", "annoRG"},
	"status":      {"stato", "statoVendita", "statoLotto", "status"},
	"occupancy":   {"statoOccupazione", "occupazione", "occupato"},
}

var numberAliases = map[string][]string{
	"base_price":  {"prezzoBase", "prezzoBaseAsta", "lotto.prezzoBase", "prezzo"},
	"current":     {"offertaMinima", "prezzoOffertaMinima", "lotto.offertaMinima"},
	"estimate":    {"valoreStima", "valorePerizia", "lotto.valoreStima"},
	"surface":     {"superficie", "mq", "metriQuadri", "superficieCommerciale"},
	"rooms":       {"vani", "locali", "numeroVani"},
	"bathrooms":   {"bagni", "numeroBagni"},
	"floor":       {"piano"},
	"round":       {"esperimentoVendita", "numeroEsperimento", "tentativoVendita"},
	"lat":         {"latitudine", "lat", "coordinate.lat", "indirizzo.lat", "geo.lat"},
	"lon":         {"longitudine", "lon", "lng", "coordinate.lon", "coordinate.lng", "indirizzo.lng", "geo.lon"},
	"sale_date":   {"dataOraVendita", "dataVendita", "dataAsta"},
	"photos":      {"foto", "immagini", "fotoLotto"},
	"floor_plans": {"planimetrie"},
	"documents":   {"allegati", "documenti", "perizie"},
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the trimmed string at path, or "" when absent or not a string.
func lookupStr(m map[string]any, path string) string {
	if s, ok := lookupAny(m, path).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

// firstIDFlexible accepts provider ids sent as strings or JSON numbers.
func firstIDFlexible(m map[string]any, paths ...string) string {
	for _, p := range paths {
		switch v := lookupAny(m, p).(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// getFloatFlexible: number from several paths. Strings are read in the Italian
// format ("100.500,00").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case string:
			if f, ok := extract.ParseAmount(v); ok {
				return &f
			}
		}
	}
	return nil
}

func getIntFlexible(m map[string]any, paths ...string) *int {
	if f := getFloatFlexible(m, paths...); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

// firstSliceStrings: accept []any with either strings or {url/src/link/path}.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		raw, ok := lookupAny(m, k).([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(raw))
		for _, it := range raw {
			switch t := it.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				for _, key := range []string{"url", "src", "link", "path"} {
					if u, ok := t[key].(string); ok && u != "" {
						out = append(out, u)
						break
					}
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// parseSaleDate accepts the layouts the provider is known to send plus epoch
// milliseconds. Wall-clock values are kept as UTC.
func parseSaleDate(m map[string]any, paths ...string) *time.Time {
	for _, p := range paths {
		switch v := lookupAny(m, p).(type) {
		case float64:
			if v <= 0 {
				continue
			}
			t := time.UnixMilli(int64(v)).UTC()
			return &t
		case string:
			s := strings.TrimSpace(v)
			if s == "" {
				continue
			}
			for _, layout := range dateLayouts {
				if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
					t = t.UTC()
					return &t
				}
			}
			if t, ok := extract.ExtractAuctionDate(s); ok {
				return &t
			}
		}
	}
	return nil
}

func mapStatus(s string) domain.AuctionStatus {
	switch k := extract.FoldKey(s); {
	case k == "":
		return ""
	case strings.Contains(k, "sospes"):
		return domain.StatusSuspended
	case strings.Contains(k, "annullat"), strings.Contains(k, "revocat"):
		return domain.StatusCancelled
	case strings.Contains(k, "conclus"), strings.Contains(k, "aggiudicat"), strings.Contains(k, "terminat"),
		strings.Contains(k, "chius"), strings.Contains(k, "deserta"):
		return domain.StatusEnded
	case strings.Contains(k, "in corso"), strings.Contains(k, "attiv"), strings.Contains(k, "aperta"),
		strings.Contains(k, "pubblicat"), strings.Contains(k, "in vendita"):
		return domain.StatusActive
	}
	return ""
}

// occupancy reads bools or Italian yes/no/occupied/vacant strings.
func occupancy(m map[string]any, paths ...string) *bool {
	for _, p := range paths {
		switch v := lookupAny(m, p).(type) {
		case bool:
			b := v
			return &b
		case string:
			k := extract.FoldKey(v)
			var b bool
			switch {
			case strings.HasPrefix(k, "liber"), k == "no", k == "false":
				b = false
			case strings.HasPrefix(k, "occupat"), k == "si", k == "true":
				b = true
			default:
				continue
			}
			return &b
		}
	}
	return nil
}

func nonNegative(p *float64) *float64 {
	if p == nil || *p < 0 {
		return nil
	}
	return p
}

/********** record mapper **********/

// MapRecord maps one provider item into an AuctionRecord. It returns false only
// when the item has no provider identifier; any other field that fails
// coercion is left unset.
func MapRecord(p map[string]any) (domain.AuctionRecord, bool) {
	id := firstIDFlexible(p, recordAliases["id"]...)
	if id == "" {
		return domain.AuctionRecord{}, false
	}

	rec := domain.AuctionRecord{
		ExternalID:     id,
		Title:          firstNonEmptyAlias(p, recordAliases, "title"),
		Description:    firstNonEmptyAlias(p, recordAliases, "description"),
		Category:       firstNonEmptyAlias(p, recordAliases, "category"),
		City:           firstNonEmptyAlias(p, recordAliases, "city"),
		Province:       firstNonEmptyAlias(p, recordAliases, "province"),
		Address:        firstNonEmptyAlias(p, recordAliases, "address"),
		Court:          firstNonEmptyAlias(p, recordAliases, "court"),
		Status:         mapStatus(firstNonEmptyAlias(p, recordAliases, "status")),
		BasePrice:      nonNegative(getFloatFlexible(p, numberAliases["base_price"]...)),
		CurrentPrice:   nonNegative(getFloatFlexible(p, numberAliases["current"]...)),
		EstimatedValue: nonNegative(getFloatFlexible(p, numberAliases["estimate"]...)),
		SurfaceSqm:     nonNegative(getFloatFlexible(p, numberAliases["surface"]...)),
		Rooms:          getIntFlexible(p, numberAliases["rooms"]...),
		Bathrooms:      getIntFlexible(p, numberAliases["bathrooms"]...),
		Floor:          getIntFlexible(p, numberAliases["floor"]...),
		AuctionDate:    parseSaleDate(p, numberAliases["sale_date"]...),
		IsOccupied:     occupancy(p, recordAliases["occupancy"]...),
		Media: domain.Media{
			Photos:     firstSliceStrings(p, numberAliases["photos"]...),
			FloorPlans: firstSliceStrings(p, numberAliases["floor_plans"]...),
			Documents:  firstSliceStrings(p, numberAliases["documents"]...),
		},
	}

	if n := getIntFlexible(p, numberAliases["round"]...); n != nil && *n >= 1 {
		rec.AuctionRound = *n
	}

	// "123" + "2022" → "123/2022"
	num := firstIDFlexible(p, recordAliases["case_number"]...)
	year := firstIDFlexible(p, recordAliases["case_year"]...)
	switch {
	case num != "" && year != "" && !strings.Contains(num, "/"):
		rec.CaseNumber = num + "/" + year
	default:
		rec.CaseNumber = num
	}

	lat := getFloatFlexible(p, numberAliases["lat"]...)
	lon := getFloatFlexible(p, numberAliases["lon"]...)
	if lat != nil && lon != nil && (*lat != 0 || *lon != 0) {
		rec.Coords = &domain.Coords{Lat: *lat, Lon: *lon}
	}

	if raw, err := json.Marshal(p); err == nil {
		rec.Raw = raw
	}
	return rec, true
}
