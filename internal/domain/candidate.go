package domain

import "time"

// CandidateItem is one parsed secondary-source item. ExternalID is scoped to
// the secondary source and only dedupes within it; it is never a merge key.
// Each extracted field keeps the raw text next to its best-effort parse.
type CandidateItem struct {
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	FullText   string `json:"full_text,omitempty"`

	PriceText string   `json:"price_text,omitempty"`
	BasePrice *float64 `json:"base_price,omitempty"`

	DateText    string     `json:"date_text,omitempty"`
	AuctionDate *time.Time `json:"auction_date,omitempty"`

	CourtText string `json:"court_text,omitempty"`
	Court     string `json:"court,omitempty"`

	DepositText    string   `json:"deposit_text,omitempty"`
	MinimumDeposit *float64 `json:"minimum_deposit,omitempty"`

	ProcedureText string `json:"procedure_text,omitempty"`
	CaseNumber    string `json:"case_number,omitempty"`

	PVPID   string            `json:"pvp_id,omitempty"`
	Coords  *Coords           `json:"coords,omitempty"`
	Media   Media             `json:"media"`
	Details map[string]string `json:"details,omitempty"`

	ScrapedAt time.Time `json:"scraped_at"`
}

// FieldScores are the per-field similarities of a MatchCandidate, each in [0,1].
type FieldScores struct {
	Address float64 `json:"address"`
	Court   float64 `json:"court"`
	Date    float64 `json:"date"`
	Price   float64 `json:"price"`
}

// MatchCandidate pairs one primary record with one secondary item. It is
// transient and never persisted.
type MatchCandidate struct {
	Primary    AuctionRecord
	Item       CandidateItem
	Scores     FieldScores
	Confidence float64
}
