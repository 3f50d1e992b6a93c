package fallcoaste

import (
	"sort"
	"strings"
	"time"

	"asta_radar/internal/domain"
	"asta_radar/internal/extract"
)

// detailKeys maps folded detail labels to the metadata key carried into
// enrichment details.
var detailKeys = map[string]string{
	"tipo procedura":                "procedure_type",
	"referente procedura":           "referent",
	"termine presentazione offerte": "offer_deadline",
	"termine visita":                "visit_deadline",
	"codice vendita":                "sale_code",
	"data pubblicazione":            "publication_date",
	"cauzione minima":               "minimum_deposit",
	"annotazioni pvp":               "pvp_notes",
	"procedura n":                   "procedure_number",
}

// BuildCandidate combines a listing entry and its detail page into a
// normalized CandidateItem. Detail fields win over listing snippets.
func BuildCandidate(link ListingLink, d DetailPage, now time.Time) domain.CandidateItem {
	c := domain.CandidateItem{
		ExternalID: link.ExternalID,
		URL:        link.URL,
		Title:      link.Title,
		FullText:   d.FullText,
		PriceText:  link.PriceText,
		DateText:   link.DateText,
		CourtText:  link.CourtText,
		PVPID:      d.PVPID,
		Coords:     d.Coords,
		Media:      d.Media,
		ScrapedAt:  now.UTC(),
	}
	if d.Title != "" && (c.Title == "" || c.Title == defaultTitle) {
		c.Title = d.Title
	}

	// Colliding alias labels: the last in sorted order wins.
	labels := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, k := range labels {
		v := d.Fields[k]
		key := extract.FoldKey(k)
		switch key {
		case "procedura n", "procedura", "numero procedura":
			c.ProcedureText = v
		case "tribunale":
			c.CourtText = v
		case "data vendita", "data asta":
			c.DateText = v
		case "prezzo base":
			c.PriceText = v
		case "cauzione minima":
			c.DepositText = v
		case "indirizzo", "ubicazione":
			c.Address = v
		case "citta", "comune":
			c.City = v
		case "id inserzione pvp":
			if c.PVPID == "" {
				c.PVPID = strings.TrimSpace(v)
			}
		case "link inserzione ministeriale":
			if m := rePVPID.FindStringSubmatch(v); m != nil && c.PVPID == "" {
				c.PVPID = m[1]
			}
		}
		if c.Details == nil {
			c.Details = map[string]string{}
		}
		if name, ok := detailKeys[key]; ok {
			c.Details[name] = v
		} else {
			c.Details[k] = v
		}
	}
	return extract.NormalizeCandidate(c)
}
