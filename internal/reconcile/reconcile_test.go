package reconcile_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"asta_radar/internal/domain"
	"asta_radar/internal/extract"
	"asta_radar/internal/reconcile"
)

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func romePrimary() domain.AuctionRecord {
	return domain.AuctionRecord{
		ExternalID:  "4711",
		Court:       "Tribunale di Roma",
		Address:     "Via Roma 10",
		BasePrice:   ptr(100000.0),
		AuctionDate: day(2024, 5, 10),
	}
}

func romeCandidate() domain.CandidateItem {
	return extract.NormalizeCandidate(domain.CandidateItem{
		ExternalID: "fallcoaste_99",
		URL:        "https://www.fallcoaste.it/avviso-vendita-99.html",
		CourtText:  "Tribunale Roma",
		Address:    "Via Roma, 10",
		PriceText:  "100.500",
		DateText:   "10/05/2024",
		Coords:     &domain.Coords{Lat: 41.9, Lon: 12.5},
		Media:      domain.Media{Photos: []string{"https://img/1.jpg"}, Documents: []string{"https://doc/perizia.pdf"}},
		Details:    map[string]string{"Codice vendita": "ABC"},
		PVPID:      "1234567",
	})
}

func TestSimilarity(t *testing.T) {
	if got := reconcile.Similarity("Via Roma, 10", "via  roma 10"); got != 1 {
		t.Fatalf("expected identical after folding, got %v", got)
	}
	if got := reconcile.Similarity("", "x"); got != 0 {
		t.Fatalf("empty side must score 0, got %v", got)
	}
	got := reconcile.Similarity("Tribunale di Roma", "Tribunale Roma")
	if got < 0.8 || got > 0.85 {
		t.Fatalf("unexpected court similarity %v", got)
	}
	if reconcile.Similarity("Forlì", "forli") != 1 {
		t.Fatalf("diacritics must fold")
	}
}

func TestMatch_AcceptsCloseCandidate(t *testing.T) {
	r := reconcile.New(reconcile.DefaultConfig())
	mc, ok := r.Match(romeCandidate(), []domain.AuctionRecord{romePrimary()})
	if !ok {
		t.Fatalf("expected a match")
	}
	if mc.Confidence < 0.70 {
		t.Fatalf("confidence %v below threshold", mc.Confidence)
	}
	if mc.Scores.Address != 1 || mc.Scores.Date != 1 {
		t.Fatalf("unexpected field scores %+v", mc.Scores)
	}
	if mc.Scores.Price <= 0.8 || mc.Scores.Price >= 1 {
		t.Fatalf("price within tolerance should earn partial credit, got %v", mc.Scores.Price)
	}
}

func TestMatch_PicksHighestAndRejectsBelowThreshold(t *testing.T) {
	r := reconcile.New(reconcile.DefaultConfig())
	other := domain.AuctionRecord{
		ExternalID:  "9",
		Court:       "Tribunale di Torino",
		Address:     "Corso Francia 200",
		BasePrice:   ptr(300000.0),
		AuctionDate: day(2024, 9, 1),
	}
	mc, ok := r.Match(romeCandidate(), []domain.AuctionRecord{other, romePrimary()})
	if !ok || mc.Primary.ExternalID != "4711" {
		t.Fatalf("expected match on 4711, got %v %+v", ok, mc.Primary.ExternalID)
	}
	if _, ok := r.Match(romeCandidate(), []domain.AuctionRecord{other}); ok {
		t.Fatalf("unrelated primary must not match")
	}
	if _, ok := r.Match(romeCandidate(), nil); ok {
		t.Fatalf("empty primary set must not match")
	}
}

func TestDateAndPriceBands(t *testing.T) {
	r := reconcile.New(reconcile.DefaultConfig())
	p := romePrimary()
	c := romeCandidate()

	c.AuctionDate = day(2024, 5, 15)
	if got := r.Compare(p, c).Scores.Date; got != 0.7 {
		t.Fatalf("5 days apart: %v", got)
	}
	c.AuctionDate = day(2024, 6, 1)
	if got := r.Compare(p, c).Scores.Date; got != 0.4 {
		t.Fatalf("22 days apart: %v", got)
	}
	c.AuctionDate = day(2024, 8, 1)
	if got := r.Compare(p, c).Scores.Date; got != 0 {
		t.Fatalf("far dates: %v", got)
	}

	c.BasePrice = ptr(110000.0)
	if got := r.Compare(p, c).Scores.Price; got != 0 {
		t.Fatalf("10%% apart must score 0, got %v", got)
	}
	c.BasePrice = ptr(100000.0)
	if got := r.Compare(p, c).Scores.Price; got != 1 {
		t.Fatalf("equal prices must score 1, got %v", got)
	}
}

func TestMatchAll_ThresholdMonotonic(t *testing.T) {
	primaries := []domain.AuctionRecord{
		romePrimary(),
		{ExternalID: "2", Court: "Tribunale di Milano", Address: "Via Dante 3", BasePrice: ptr(250000.0), AuctionDate: day(2024, 6, 1)},
		{ExternalID: "3", Court: "Tribunale di Napoli", Address: "Via Toledo 100", BasePrice: ptr(80000.0), AuctionDate: day(2024, 7, 1)},
	}
	items := []domain.CandidateItem{
		romeCandidate(),
		{ExternalID: "f2", Court: "Tribunale di Milano", Address: "Via Dante 5", BasePrice: ptr(251000.0), AuctionDate: day(2024, 6, 3)},
		{ExternalID: "f3", Court: "Tribunale di Napoli", Address: "Via Chiaia 4", BasePrice: ptr(60000.0), AuctionDate: day(2024, 7, 20)},
		{ExternalID: "f4", Court: "Tribunale di Roma", Address: "Via Roma 12", BasePrice: ptr(99000.0), AuctionDate: day(2024, 5, 10)},
		{ExternalID: "f5", Court: "Tribunale di Bari", Address: "Lungomare 1"},
	}

	prev := -1
	for _, min := range []float64{0.95, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0} {
		cfg := reconcile.DefaultConfig()
		cfg.MinScore = min
		got, err := reconcile.New(cfg).MatchAll(context.Background(), items, primaries)
		if err != nil {
			t.Fatalf("MatchAll: %v", err)
		}
		if len(got) < prev {
			t.Fatalf("lowering threshold to %v reduced matches from %d to %d", min, prev, len(got))
		}
		prev = len(got)
	}
}

func TestMatchAll_OneMergePerPrimary(t *testing.T) {
	r := reconcile.New(reconcile.DefaultConfig())
	strong := romeCandidate()
	weaker := romeCandidate()
	weaker.ExternalID = "fallcoaste_100"
	weaker.BasePrice = ptr(103000.0)

	got, err := r.MatchAll(context.Background(), []domain.CandidateItem{weaker, strong}, []domain.AuctionRecord{romePrimary()})
	if err != nil {
		t.Fatalf("MatchAll: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one merge for the primary, got %d", len(got))
	}
	if got[0].Item.ExternalID != "fallcoaste_99" {
		t.Fatalf("higher-confidence item should win, got %s", got[0].Item.ExternalID)
	}
}

func TestMerge_NonDestructive(t *testing.T) {
	r := reconcile.New(reconcile.DefaultConfig())
	p := romePrimary()
	p.Title = "Appartamento"
	before := p.Clone()
	c := romeCandidate()
	c.Title = "Altro titolo"
	c.CaseNumber = "123/2022"
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	out := r.Merge(p, c, 0.93, now)

	if out.ExternalID != before.ExternalID || out.Title != before.Title || out.Court != before.Court || out.Address != before.Address {
		t.Fatalf("populated scalar fields changed: %+v", out)
	}
	if *out.BasePrice != 100000 || !out.AuctionDate.Equal(*before.AuctionDate) {
		t.Fatalf("price/date must stay primary's")
	}
	if out.CaseNumber != "123/2022" {
		t.Fatalf("empty case number should be filled, got %q", out.CaseNumber)
	}
	if out.Coords == nil || out.Coords.Lat != 41.9 {
		t.Fatalf("coords should be filled")
	}
	if !reflect.DeepEqual(out.Media.Photos, c.Media.Photos) || !reflect.DeepEqual(out.Media.Documents, c.Media.Documents) {
		t.Fatalf("media should be copied: %+v", out.Media)
	}
	if len(out.Media.FloorPlans) != 0 {
		t.Fatalf("candidate had no floor plans; field must stay empty")
	}
	e := out.Enrichment
	if e == nil || e.SecondaryID != "fallcoaste_99" || e.PVPID != "1234567" || e.Confidence != 0.93 || !e.EnrichedAt.Equal(now) || e.Details["Codice vendita"] != "ABC" {
		t.Fatalf("unexpected enrichment %+v", e)
	}
	if !reflect.DeepEqual(p, before) {
		t.Fatalf("merge mutated its input")
	}
}

func TestMerge_KeepsExistingMedia(t *testing.T) {
	r := reconcile.New(reconcile.DefaultConfig())
	p := romePrimary()
	p.Media.Photos = []string{"https://pvp/a.jpg"}
	p.Coords = &domain.Coords{Lat: 1, Lon: 2}
	out := r.Merge(p, romeCandidate(), 0.8, time.Now())
	if len(out.Media.Photos) != 1 || out.Media.Photos[0] != "https://pvp/a.jpg" {
		t.Fatalf("existing photos replaced: %v", out.Media.Photos)
	}
	if out.Coords.Lat != 1 {
		t.Fatalf("existing coords replaced")
	}
}

func TestCompare_ConfidenceBounded(t *testing.T) {
	cfg := reconcile.DefaultConfig()
	r := reconcile.New(cfg)
	mc := r.Compare(romePrimary(), romeCandidate())
	w := cfg.Weights
	want := w.Address*mc.Scores.Address + w.Court*mc.Scores.Court + w.Date*mc.Scores.Date + w.Price*mc.Scores.Price
	if math.Abs(mc.Confidence-want) > 1e-9 || mc.Confidence < 0 || mc.Confidence > 1 {
		t.Fatalf("confidence %v, want %v", mc.Confidence, want)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := reconcile.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
	bad := map[string]func(*reconcile.Config){
		"weights sum":    func(c *reconcile.Config) { c.Weights.Price = 0.5 },
		"negative":       func(c *reconcile.Config) { c.Weights.Date, c.Weights.Price = -0.05, 0.40 },
		"min score":      func(c *reconcile.Config) { c.MinScore = 1.5 },
		"tolerance":      func(c *reconcile.Config) { c.PriceTolerance = 0 },
		"inverted bands": func(c *reconcile.Config) { c.DateNearDays, c.DateFarDays = 30, 7 },
	}
	for name, mutate := range bad {
		c := reconcile.DefaultConfig()
		mutate(&c)
		if err := c.Validate(); !errors.Is(err, reconcile.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}
