package ranking

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"asta_radar/internal/domain"
	"asta_radar/internal/extract"
)

// Engine computes the convenience score. It is stateless across records.
type Engine struct{ w Weights }

// New fails closed on weights that do not validate.
func New(w Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Engine{w: w}, nil
}

func (e *Engine) Weights() Weights { return e.w }

// Score returns the overall score in [0,100] rounded to two decimals, and the
// five sub-scores.
func (e *Engine) Score(rec domain.AuctionRecord) (float64, domain.ScoreBreakdown) {
	text := rec.Text()
	b := domain.ScoreBreakdown{
		PriceDiscount:   round2(PriceDiscountScore(rec)),
		Location:        round2(LocationScore(rec.City)),
		Condition:       round2(ConditionScore(text)),
		LegalComplexity: round2(LegalScore(text, rec.AuctionRound, rec.IsOccupied)),
		Liquidity:       round2(LiquidityScore(rec.PropertyType, rec.SurfaceSqm)),
	}
	overall := e.w.PriceDiscount*b.PriceDiscount +
		e.w.Location*b.Location +
		e.w.Condition*b.Condition +
		e.w.Legal*b.LegalComplexity +
		e.w.Liquidity*b.Liquidity
	return round2(clamp(overall)), b
}

// Apply scores rec and writes the score fields onto a copy.
func (e *Engine) Apply(rec domain.AuctionRecord) domain.AuctionRecord {
	out := rec.Clone()
	s, b := e.Score(out)
	out.Score = &s
	out.Breakdown = &b
	return out
}

// ScoreAll scores recs in place using up to workers goroutines. Each worker
// writes only its own index.
func (e *Engine) ScoreAll(ctx context.Context, recs []domain.AuctionRecord, workers int) error {
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range recs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs[i] = e.Apply(recs[i])
			return nil
		})
	}
	return g.Wait()
}

// EstimateMarketValue derives a value as surface × €/m² of the city tier ×
// property-type multiplier.
func EstimateMarketValue(surfaceSqm float64, city string, t domain.PropertyType) float64 {
	if surfaceSqm <= 0 {
		surfaceSqm = defaultSurfaceSqm
	}
	key := extract.FoldKey(city)
	perSqm := float64(pricePerSqmOther)
	switch {
	case pricePerSqmTier1[key]:
		perSqm = pricePerSqm1
	case pricePerSqmTier2[key]:
		perSqm = pricePerSqm2
	}
	mult, ok := typeMultiplier[t]
	if !ok {
		mult = 1.0
	}
	return surfaceSqm * perSqm * mult
}

// PriceDiscountScore is clamp(discount × 200), or 50 when price or estimate is unusable.
func PriceDiscountScore(rec domain.AuctionRecord) float64 {
	if rec.BasePrice == nil || *rec.BasePrice <= 0 {
		return 50
	}
	var estimate float64
	if rec.EstimatedValue != nil {
		estimate = *rec.EstimatedValue
	} else {
		surface := 0.0
		if rec.SurfaceSqm != nil {
			surface = *rec.SurfaceSqm
		}
		estimate = EstimateMarketValue(surface, rec.City, rec.PropertyType)
	}
	if estimate <= 0 {
		return 50
	}
	discount := (estimate - *rec.BasePrice) / estimate
	return clamp(discount * 200)
}

func LocationScore(city string) float64 {
	key := extract.FoldKey(city)
	for _, tier := range locationTiers {
		if tier.cities[key] {
			return tier.score
		}
	}
	return defaultLocationScore
}

// ConditionScore returns the score of the highest-priority condition found, else 60.
func ConditionScore(text string) float64 {
	if label, ok := conditionLexicon.First(text); ok {
		return conditionScores[label]
	}
	return defaultCondition
}

// LegalScore starts at 70, applies each keyword delta once, then the
// auction-round penalty. occupied, when known, counts as the occupancy keyword.
func LegalScore(text string, round int, occupied *bool) float64 {
	score := float64(legalBase)
	found := map[string]bool{}
	for _, label := range legalLexicon.Labels(text) {
		found[label] = true
	}
	if occupied != nil {
		if *occupied {
			found[legalOccupied] = true
		} else {
			found[legalVacant] = true
		}
	}
	for label, ok := range found {
		if ok {
			score += legalDelta[label]
		}
	}
	switch {
	case round >= 3:
		score -= 10
	case round == 2:
		score -= 5
	}
	return clamp(score)
}

// LiquidityScore is the type base plus, for apartments, +10 in 60–120 m² and
// +5 in 40–60 or 120–150 m². Missing surface counts as 80 m².
func LiquidityScore(t domain.PropertyType, surfaceSqm *float64) float64 {
	score, ok := liquidityBase[t]
	if !ok {
		score = defaultLiquidity
	}
	if t == domain.Apartment {
		s := float64(defaultSurfaceSqm)
		if surfaceSqm != nil && *surfaceSqm > 0 {
			s = *surfaceSqm
		}
		switch {
		case s >= 60 && s <= 120:
			score += 10
		case (s >= 40 && s < 60) || (s > 120 && s <= 150):
			score += 5
		}
	}
	return math.Min(score, 100)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
