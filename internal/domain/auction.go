package domain

import (
	"encoding/json"
	"time"
)

type PropertyType string

const (
	Apartment  PropertyType = "Apartment"
	Villa      PropertyType = "Villa"
	Penthouse  PropertyType = "Penthouse"
	Commercial PropertyType = "Commercial"
	Office     PropertyType = "Office"
	Warehouse  PropertyType = "Warehouse"
	Land       PropertyType = "Land"
	Garage     PropertyType = "Garage"
	Rural      PropertyType = "Rural"
	Other      PropertyType = "Other"
)

// PropertyTypes lists the closed enumeration in declaration order.
var PropertyTypes = []PropertyType{Apartment, Villa, Penthouse, Commercial, Office, Warehouse, Land, Garage, Rural, Other}

// Valid reports whether t belongs to the closed enumeration.
func (t PropertyType) Valid() bool {
	for _, v := range PropertyTypes {
		if v == t {
			return true
		}
	}
	return false
}

type AuctionStatus string

const (
	StatusActive    AuctionStatus = "Active"
	StatusEnded     AuctionStatus = "Ended"
	StatusSuspended AuctionStatus = "Suspended"
	StatusCancelled AuctionStatus = "Cancelled"
)

type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Media struct {
	Photos     []string `json:"photos,omitempty"`
	FloorPlans []string `json:"floor_plans,omitempty"`
	Documents  []string `json:"documents,omitempty"`
}

// ScoreBreakdown holds the five ranking sub-scores, each in [0,100].
type ScoreBreakdown struct {
	PriceDiscount   float64 `json:"price_discount"`
	Location        float64 `json:"location_score"`
	Condition       float64 `json:"property_condition"`
	LegalComplexity float64 `json:"legal_complexity"`
	Liquidity       float64 `json:"liquidity_potential"`
}

// Enrichment is the traceability block attached by a secondary-source merge.
type Enrichment struct {
	Origin       string            `json:"origin"`
	Confidence   float64           `json:"confidence"`
	SecondaryID  string            `json:"secondary_id"`
	SecondaryURL string            `json:"secondary_url"`
	PVPID        string            `json:"pvp_id,omitempty"`
	EnrichedAt   time.Time         `json:"enriched_at"`
	Details      map[string]string `json:"details,omitempty"`
}

// AuctionRecord is the canonical auction. ExternalID is assigned by the
// primary source only and never changes afterwards.
type AuctionRecord struct {
	ExternalID   string       `json:"external_id"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	FullText     string       `json:"full_text,omitempty"`
	Category     string       `json:"category,omitempty"` // provider category text, input to classification
	PropertyType PropertyType `json:"property_type,omitempty"`

	City     string  `json:"city,omitempty"`
	Province string  `json:"province,omitempty"`
	Address  string  `json:"address,omitempty"`
	Coords   *Coords `json:"coords,omitempty"`

	SurfaceSqm *float64 `json:"surface_sqm,omitempty"`
	Rooms      *int     `json:"rooms,omitempty"`
	Bathrooms  *int     `json:"bathrooms,omitempty"`
	Floor      *int     `json:"floor,omitempty"`

	BasePrice      *float64      `json:"base_price,omitempty"`
	CurrentPrice   *float64      `json:"current_price,omitempty"`
	EstimatedValue *float64      `json:"estimated_value,omitempty"`
	AuctionDate    *time.Time    `json:"auction_date,omitempty"`
	AuctionRound   int           `json:"auction_round,omitempty"`
	Court          string        `json:"court,omitempty"`
	CaseNumber     string        `json:"case_number,omitempty"`
	Status         AuctionStatus `json:"status,omitempty"`
	IsOccupied     *bool         `json:"is_occupied,omitempty"`

	Score     *float64        `json:"score,omitempty"`
	Breakdown *ScoreBreakdown `json:"score_breakdown,omitempty"`

	Media      Media           `json:"media"`
	Enrichment *Enrichment     `json:"enrichment,omitempty"`
	SourceURL  string          `json:"source_url,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	ScrapedAt  time.Time       `json:"scraped_at"`
}

// Text joins the free-text fields used by extraction and ranking lexicons.
func (r AuctionRecord) Text() string {
	out := r.Title
	for _, s := range []string{r.Description, r.FullText} {
		if s == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += s
	}
	return out
}

// Clone returns a copy that shares no pointers, slices or maps with r.
func (r AuctionRecord) Clone() AuctionRecord {
	c := r
	if r.Coords != nil {
		v := *r.Coords
		c.Coords = &v
	}
	c.SurfaceSqm = cloneF(r.SurfaceSqm)
	c.BasePrice = cloneF(r.BasePrice)
	c.CurrentPrice = cloneF(r.CurrentPrice)
	c.EstimatedValue = cloneF(r.EstimatedValue)
	c.Score = cloneF(r.Score)
	c.Rooms = cloneI(r.Rooms)
	c.Bathrooms = cloneI(r.Bathrooms)
	c.Floor = cloneI(r.Floor)
	if r.AuctionDate != nil {
		v := *r.AuctionDate
		c.AuctionDate = &v
	}
	if r.IsOccupied != nil {
		v := *r.IsOccupied
		c.IsOccupied = &v
	}
	if r.Breakdown != nil {
		v := *r.Breakdown
		c.Breakdown = &v
	}
	c.Media = Media{
		Photos:     append([]string(nil), r.Media.Photos...),
		FloorPlans: append([]string(nil), r.Media.FloorPlans...),
		Documents:  append([]string(nil), r.Media.Documents...),
	}
	if r.Enrichment != nil {
		e := *r.Enrichment
		if r.Enrichment.Details != nil {
			e.Details = make(map[string]string, len(r.Enrichment.Details))
			for k, v := range r.Enrichment.Details {
				e.Details[k] = v
			}
		}
		c.Enrichment = &e
	}
	if r.Raw != nil {
		c.Raw = append(json.RawMessage(nil), r.Raw...)
	}
	return c
}

func cloneF(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneI(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
