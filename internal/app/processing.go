package app

import (
	"context"

	"asta_radar/internal/adapters/observability"
	"asta_radar/internal/domain"
	"asta_radar/internal/extract"
	"asta_radar/internal/ranking"
)

// ProcessingService normalizes records and scores them. It holds no
// per-record state.
type ProcessingService struct {
	engine  *ranking.Engine
	workers int
}

func NewProcessingService(e *ranking.Engine, workers int) *ProcessingService {
	if workers <= 0 {
		workers = 1
	}
	return &ProcessingService{engine: e, workers: workers}
}

// Process returns a normalized, scored copy of rec.
func (s *ProcessingService) Process(rec domain.AuctionRecord) domain.AuctionRecord {
	out := s.engine.Apply(extract.Normalize(rec))
	if out.Score != nil {
		observability.ObserveScore(*out.Score)
	}
	return out
}

// ProcessAll normalizes and scores recs with bounded parallelism. The input
// slice is not modified.
func (s *ProcessingService) ProcessAll(ctx context.Context, recs []domain.AuctionRecord) ([]domain.AuctionRecord, error) {
	out := make([]domain.AuctionRecord, len(recs))
	for i, r := range recs {
		out[i] = extract.Normalize(r)
	}
	if err := s.engine.ScoreAll(ctx, out, s.workers); err != nil {
		return nil, err
	}
	for _, r := range out {
		observability.ObserveScore(*r.Score)
	}
	return out, nil
}

// Score normalizes rec and returns its overall score and breakdown.
func (s *ProcessingService) Score(rec domain.AuctionRecord) (float64, domain.ScoreBreakdown) {
	return s.engine.Score(extract.Normalize(rec))
}

func (s *ProcessingService) ExtractEntities(title, description, fullText string) extract.Entities {
	return extract.ExtractEntities(title, description, fullText)
}
