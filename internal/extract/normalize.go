package extract

import (
	"strings"
	"time"

	"asta_radar/internal/domain"
)

// Entities is what free text yields on its own. Absent values stay nil/empty.
type Entities struct {
	PropertyType domain.PropertyType `json:"property_type"`
	City         string              `json:"city,omitempty"`
	Price        *float64            `json:"price,omitempty"`
	SurfaceSqm   *float64            `json:"surface_sqm,omitempty"`
	Rooms        *int                `json:"rooms,omitempty"`
	Court        string              `json:"court,omitempty"`
	AuctionDate  *time.Time          `json:"auction_date,omitempty"`
}

func ExtractEntities(title, description, fullText string) Entities {
	text := strings.TrimSpace(strings.Join([]string{title, description, fullText}, " "))
	e := Entities{PropertyType: ClassifyPropertyType(text)}
	if c, ok := ExtractCity(text); ok {
		e.City = c
	}
	if v, ok := priceFromFreeText(text); ok {
		e.Price = &v
	}
	if v, ok := ParseSurface(text); ok {
		e.SurfaceSqm = &v
	}
	if n, ok := ParseRooms(text); ok {
		e.Rooms = &n
	}
	if c, ok := ExtractCourt(text); ok {
		e.Court = c
	}
	if t, ok := ExtractAuctionDate(text); ok {
		e.AuctionDate = &t
	}
	return e
}

// Normalize cleans the text fields of rec and fills attributes that the
// provider left empty from its free text. Provider values are never replaced.
func Normalize(rec domain.AuctionRecord) domain.AuctionRecord {
	out := rec.Clone()
	out.Title = CleanText(out.Title)
	out.Description = CleanText(out.Description)
	out.FullText = CleanText(out.FullText)
	out.Address = CleanText(out.Address)
	out.City = CleanText(out.City)
	out.Province = strings.ToUpper(strings.TrimSpace(out.Province))
	out.Court = CanonicalCourt(out.Court)
	out.CaseNumber = CleanText(out.CaseNumber)

	ents := ExtractEntities(out.Title, out.Description, out.FullText)

	if !out.PropertyType.Valid() || out.PropertyType == domain.Other {
		t := ClassifyPropertyType(out.Category)
		if t == domain.Other {
			t = ents.PropertyType
		}
		out.PropertyType = t
	}
	if out.City == "" {
		if c, ok := ExtractCity(out.Address); ok {
			out.City = c
		} else {
			out.City = ents.City
		}
	}
	if out.BasePrice == nil {
		out.BasePrice = ents.Price
	}
	if out.SurfaceSqm == nil {
		out.SurfaceSqm = ents.SurfaceSqm
	}
	if out.Rooms == nil {
		out.Rooms = ents.Rooms
	}
	if out.Court == "" {
		out.Court = ents.Court
	}
	if out.AuctionDate == nil {
		out.AuctionDate = ents.AuctionDate
	}

	if out.BasePrice != nil && *out.BasePrice < 0 {
		out.BasePrice = nil
	}
	if out.AuctionRound < 1 {
		out.AuctionRound = 1
	}
	if out.Status == "" {
		out.Status = domain.StatusActive
	}
	return out
}

// NormalizeCandidate cleans a secondary item and fills each parsed value from
// its raw text when the parse is still missing.
func NormalizeCandidate(c domain.CandidateItem) domain.CandidateItem {
	out := c
	out.Title = CleanText(c.Title)
	out.Address = CleanText(c.Address)
	out.City = CleanText(c.City)
	out.FullText = CleanText(c.FullText)

	if out.BasePrice == nil && c.PriceText != "" {
		if v, ok := ParsePrice(c.PriceText); ok {
			out.BasePrice = &v
		}
	}
	if out.AuctionDate == nil && c.DateText != "" {
		if t, ok := ExtractAuctionDate(c.DateText); ok {
			out.AuctionDate = &t
		}
	}
	if out.Court == "" && c.CourtText != "" {
		if ct, ok := CourtFromField(c.CourtText); ok {
			out.Court = ct
		}
	}
	if out.MinimumDeposit == nil && c.DepositText != "" {
		if v, ok := ParseAmount(c.DepositText); ok {
			out.MinimumDeposit = &v
		}
	}
	if out.CaseNumber == "" && c.ProcedureText != "" {
		out.CaseNumber = CleanText(c.ProcedureText)
	}
	if out.City == "" {
		if city, ok := ExtractCity(out.Address); ok {
			out.City = city
		} else if city, ok := ExtractCity(out.Title + " " + out.FullText); ok {
			out.City = city
		}
	}
	return out
}
