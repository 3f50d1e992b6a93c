package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"asta_radar/internal/domain"
)

var ErrInvalidConfig = errors.New("reconcile: invalid config")

const weightSumTolerance = 1e-6

type Weights struct {
	Address float64
	Court   float64
	Date    float64
	Price   float64
}

// Validate requires non-negative weights summing to 1.0 within 1e-6.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Address, w.Court, w.Date, w.Price} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: negative or non-finite weight %v", ErrInvalidConfig, v)
		}
	}
	sum := w.Address + w.Court + w.Date + w.Price
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: match weights sum to %.8f, want 1.0", ErrInvalidConfig, sum)
	}
	return nil
}

type Config struct {
	MinScore float64
	Weights  Weights
	// PriceTolerance is the largest relative price difference that still earns credit.
	PriceTolerance float64
	DateNearDays   int
	DateFarDays    int
	DateNearCredit float64
	DateFarCredit  float64
	// Workers bounds MatchAll parallelism.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		MinScore:       0.70,
		Weights:        Weights{Address: 0.35, Court: 0.30, Date: 0.15, Price: 0.20},
		PriceTolerance: 0.05,
		DateNearDays:   7,
		DateFarDays:    30,
		DateNearCredit: 0.7,
		DateFarCredit:  0.4,
		Workers:        4,
	}
}

func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.MinScore < 0 || c.MinScore > 1 || math.IsNaN(c.MinScore) {
		return fmt.Errorf("%w: min score %v outside [0,1]", ErrInvalidConfig, c.MinScore)
	}
	if c.PriceTolerance <= 0 || math.IsNaN(c.PriceTolerance) {
		return fmt.Errorf("%w: price tolerance %v must be positive", ErrInvalidConfig, c.PriceTolerance)
	}
	if c.DateNearDays < 0 || c.DateFarDays < c.DateNearDays {
		return fmt.Errorf("%w: date bands %d/%d", ErrInvalidConfig, c.DateNearDays, c.DateFarDays)
	}
	return nil
}

// Reconciler matches secondary items against the primary record set and merges
// accepted pairs. It holds no per-record state and is safe for concurrent use.
type Reconciler struct{ cfg Config }

func New(cfg Config) *Reconciler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Reconciler{cfg: cfg}
}

func (r *Reconciler) Config() Config { return r.cfg }

// Compare scores one primary/item pair.
func (r *Reconciler) Compare(p domain.AuctionRecord, c domain.CandidateItem) domain.MatchCandidate {
	s := domain.FieldScores{
		Address: addressSimilarity(p, c),
		Court:   courtSimilarity(p, c),
		Date:    r.dateSimilarity(p.AuctionDate, c.AuctionDate),
		Price:   r.priceSimilarity(p.BasePrice, c.BasePrice),
	}
	w := r.cfg.Weights
	conf := w.Address*s.Address + w.Court*s.Court + w.Date*s.Date + w.Price*s.Price
	return domain.MatchCandidate{Primary: p, Item: c, Scores: s, Confidence: clamp01(conf)}
}

// Match returns the best-scoring primary for c when it reaches MinScore.
// Ties keep the earliest primary.
func (r *Reconciler) Match(c domain.CandidateItem, primaries []domain.AuctionRecord) (domain.MatchCandidate, bool) {
	best, ok := r.best(c, primaries)
	if !ok || best.Confidence < r.cfg.MinScore {
		return domain.MatchCandidate{}, false
	}
	return best, true
}

func (r *Reconciler) best(c domain.CandidateItem, primaries []domain.AuctionRecord) (domain.MatchCandidate, bool) {
	var (
		best  domain.MatchCandidate
		found bool
	)
	for _, p := range primaries {
		mc := r.Compare(p, c)
		if !found || mc.Confidence > best.Confidence {
			best, found = mc, true
		}
	}
	return best, found
}

// MatchAll reconciles a batch. Each item is scored independently and in
// parallel; accepted pairs are then assigned in descending confidence so a
// primary record receives at most one merge per pass. Items whose best primary
// is already claimed are dropped, never re-targeted.
func (r *Reconciler) MatchAll(ctx context.Context, items []domain.CandidateItem, primaries []domain.AuctionRecord) ([]domain.MatchCandidate, error) {
	bests := make([]domain.MatchCandidate, len(items))
	accepted := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bests[i], accepted[i] = r.Match(items[i], primaries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	order := make([]int, 0, len(items))
	for i, ok := range accepted {
		if ok {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bests[order[a]].Confidence > bests[order[b]].Confidence
	})

	claimed := make(map[string]bool, len(order))
	out := make([]domain.MatchCandidate, 0, len(order))
	for _, i := range order {
		id := bests[i].Primary.ExternalID
		if claimed[id] {
			continue
		}
		claimed[id] = true
		out = append(out, bests[i])
	}
	return out, nil
}

func addressSimilarity(p domain.AuctionRecord, c domain.CandidateItem) float64 {
	direct := Similarity(p.Address, c.Address)
	if p.City == "" && c.City == "" {
		return direct
	}
	withCity := Similarity(joinNonEmpty(p.Address, p.City), joinNonEmpty(c.Address, c.City))
	return math.Max(direct, withCity)
}

func courtSimilarity(p domain.AuctionRecord, c domain.CandidateItem) float64 {
	court := c.Court
	if court == "" {
		court = c.CourtText
	}
	return Similarity(p.Court, court)
}

// dateSimilarity compares calendar days: same day 1, within DateNearDays the
// near credit, within DateFarDays the far credit, else 0.
func (r *Reconciler) dateSimilarity(a, b *time.Time) float64 {
	if a == nil || b == nil {
		return 0
	}
	days := math.Abs(dayNumber(*a) - dayNumber(*b))
	switch {
	case days == 0:
		return 1
	case days <= float64(r.cfg.DateNearDays):
		return r.cfg.DateNearCredit
	case days <= float64(r.cfg.DateFarDays):
		return r.cfg.DateFarCredit
	}
	return 0
}

func dayNumber(t time.Time) float64 {
	y, m, d := t.Date()
	return float64(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// priceSimilarity is 1 at equal prices, falling linearly to 0 at PriceTolerance.
func (r *Reconciler) priceSimilarity(a, b *float64) float64 {
	if a == nil || b == nil || *a <= 0 || *b <= 0 {
		return 0
	}
	diff := math.Abs(*a-*b) / math.Max(*a, *b)
	if r.cfg.PriceTolerance <= 0 {
		if diff == 0 {
			return 1
		}
		return 0
	}
	if diff > r.cfg.PriceTolerance {
		return 0
	}
	return 1 - diff/r.cfg.PriceTolerance
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += p
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
