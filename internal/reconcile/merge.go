package reconcile

import (
	"time"

	"asta_radar/internal/domain"
)

const enrichmentOrigin = domain.SourceFallcoaste

// Merge enriches primary with c. Only empty primary fields are filled; media
// collections are copied wholesale when the primary has none. Enrichment
// metadata is always written. ExternalID is never touched.
func (r *Reconciler) Merge(primary domain.AuctionRecord, c domain.CandidateItem, confidence float64, now time.Time) domain.AuctionRecord {
	out := primary.Clone()

	fillStr(&out.Title, c.Title)
	fillStr(&out.Address, c.Address)
	fillStr(&out.City, c.City)
	fillStr(&out.Court, c.Court)
	fillStr(&out.CaseNumber, c.CaseNumber)
	fillStr(&out.FullText, c.FullText)

	if out.BasePrice == nil && c.BasePrice != nil {
		v := *c.BasePrice
		out.BasePrice = &v
	}
	if out.AuctionDate == nil && c.AuctionDate != nil {
		v := *c.AuctionDate
		out.AuctionDate = &v
	}
	if out.Coords == nil && c.Coords != nil {
		v := *c.Coords
		out.Coords = &v
	}

	if len(out.Media.Photos) == 0 && len(c.Media.Photos) > 0 {
		out.Media.Photos = append([]string(nil), c.Media.Photos...)
	}
	if len(out.Media.FloorPlans) == 0 && len(c.Media.FloorPlans) > 0 {
		out.Media.FloorPlans = append([]string(nil), c.Media.FloorPlans...)
	}
	if len(out.Media.Documents) == 0 && len(c.Media.Documents) > 0 {
		out.Media.Documents = append([]string(nil), c.Media.Documents...)
	}

	var details map[string]string
	if len(c.Details) > 0 {
		details = make(map[string]string, len(c.Details))
		for k, v := range c.Details {
			details[k] = v
		}
	}
	out.Enrichment = &domain.Enrichment{
		Origin:       enrichmentOrigin,
		Confidence:   confidence,
		SecondaryID:  c.ExternalID,
		SecondaryURL: c.URL,
		PVPID:        c.PVPID,
		EnrichedAt:   now.UTC(),
		Details:      details,
	}
	return out
}

func fillStr(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}
