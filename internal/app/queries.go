package app

import (
	"context"
	"fmt"
	"time"

	"asta_radar/internal/domain"
)

const (
	DefaultRunsLimit = 20
	MaxRunsLimit     = 100
)

// Limits whose cached run lists are evicted after every cycle. Other limits
// expire with the cache TTL.
var runsCacheLimits = []int{DefaultRunsLimit, 50, MaxRunsLimit}

func runsCacheKey(limit int) string { return fmt.Sprintf("runs:%d", limit) }

type QueryService struct {
	runs     domain.RunLog
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.RunLog, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{runs: r, cache: c, cacheTTL: ttl}
}

// ListRuns returns the latest run reports, newest first, read through the cache.
func (s *QueryService) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	if limit > MaxRunsLimit {
		limit = MaxRunsLimit
	}
	key := runsCacheKey(limit)
	var out []domain.RunReport
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	rs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	// copy to avoid aliasing the store's backing array
	out = make([]domain.RunReport, len(rs))
	copy(out, rs)

	if s.cache != nil && s.cacheTTL > 0 {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}
