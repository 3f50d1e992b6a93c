package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"asta_radar/internal/adapters/fetcher"
	"asta_radar/internal/adapters/observability"
	"asta_radar/internal/domain"
	"asta_radar/internal/reconcile"
)

// PrimarySource produces canonical auction records.
type PrimarySource interface {
	Run(ctx context.Context, maxPages int, emit func(domain.AuctionRecord) error) (domain.RunReport, error)
}

// SecondarySource produces enrichment candidates.
type SecondarySource interface {
	Run(ctx context.Context, maxPages int, emit func(domain.CandidateItem) error) (domain.RunReport, error)
}

type CycleConfig struct {
	PrimaryMaxPages   int
	SecondaryMaxPages int
	// SourceCooldown separates the primary and secondary runs of one cycle.
	SourceCooldown time.Duration
	// BanCooldown is how long a banned source is skipped.
	BanCooldown time.Duration
}

// CycleReport holds the run reports of one cycle, primary first.
type CycleReport struct {
	Primary   domain.RunReport `json:"primary"`
	Secondary domain.RunReport `json:"secondary"`
}

// Failed reports whether a run ended on a ban or an exhausted failure budget.
func (c CycleReport) Failed() bool {
	for _, r := range []domain.RunReport{c.Primary, c.Secondary} {
		if r.Reason == domain.ReasonBanned || r.Reason == domain.ReasonFailureBudget {
			return true
		}
	}
	return false
}

type IngestionService struct {
	primary   PrimarySource
	secondary SecondarySource
	proc      *ProcessingService
	rec       *reconcile.Reconciler
	pub       domain.Publisher
	store     domain.PrimaryStore
	runs      domain.RunLog
	cache     domain.Cache
	cfg       CycleConfig
	log       zerolog.Logger
	now       func() time.Time
}

func NewIngestionService(
	primary PrimarySource,
	secondary SecondarySource,
	proc *ProcessingService,
	rec *reconcile.Reconciler,
	pub domain.Publisher,
	store domain.PrimaryStore,
	runs domain.RunLog,
	cache domain.Cache,
	cfg CycleConfig,
	log zerolog.Logger,
) *IngestionService {
	return &IngestionService{
		primary: primary, secondary: secondary, proc: proc, rec: rec,
		pub: pub, store: store, runs: runs, cache: cache,
		cfg: cfg, log: log, now: time.Now,
	}
}

func cooldownKey(source string) string { return "cooldown:" + source }

// RunCycle runs the primary ingestor, waits the source cooldown, then runs the
// secondary ingestor and reconciles its candidates against the primary set.
// A ban on one source does not stop the other.
func (s *IngestionService) RunCycle(ctx context.Context) CycleReport {
	var out CycleReport
	defer s.invalidateRuns(context.WithoutCancel(ctx))

	fresh, rep := s.runPrimary(ctx)
	out.Primary = rep
	s.finishRun(ctx, rep)

	if err := fetcher.Sleep(ctx, s.cfg.SourceCooldown); err != nil {
		out.Secondary = domain.NewRunReport(domain.SourceFallcoaste, s.now())
		out.Secondary.Finish(domain.ReasonCanceled, err, s.now())
		s.finishRun(ctx, out.Secondary)
		return out
	}

	out.Secondary = s.runSecondary(ctx, fresh)
	s.finishRun(ctx, out.Secondary)
	return out
}

func (s *IngestionService) runPrimary(ctx context.Context) ([]domain.AuctionRecord, domain.RunReport) {
	if rep, skip := s.coolingDown(ctx, domain.SourcePVP); skip {
		return nil, rep
	}
	var published []domain.AuctionRecord
	rep, err := s.primary.Run(ctx, s.cfg.PrimaryMaxPages, func(r domain.AuctionRecord) error {
		p := s.proc.Process(r)
		if err := s.pub.PublishAuction(ctx, p); err != nil {
			s.log.Warn().Err(err).Str("external_id", p.ExternalID).Msg("publish failed, record dropped for this cycle")
			return err
		}
		published = append(published, p)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("source", domain.SourcePVP).Msg("primary run aborted")
	}
	s.afterRun(ctx, domain.SourcePVP, rep)
	return published, rep
}

func (s *IngestionService) runSecondary(ctx context.Context, fresh []domain.AuctionRecord) domain.RunReport {
	if rep, skip := s.coolingDown(ctx, domain.SourceFallcoaste); skip {
		return rep
	}

	primaries, err := s.store.ListPrimary(ctx)
	if err != nil {
		s.log.Warn().Err(err).Int("fallback", len(fresh)).Msg("primary set unavailable, using this cycle's records")
	}
	if err != nil || len(primaries) == 0 {
		primaries = fresh
	}
	if len(primaries) == 0 {
		rep := domain.NewRunReport(domain.SourceFallcoaste, s.now())
		rep.Finish(domain.ReasonNoPrimary, err, s.now())
		observability.ObserveMatch("no_primary")
		s.log.Info().Msg("no primary records to reconcile against, secondary run skipped")
		return rep
	}

	var items []domain.CandidateItem
	rep, runErr := s.secondary.Run(ctx, s.cfg.SecondaryMaxPages, func(c domain.CandidateItem) error {
		items = append(items, c)
		return nil
	})
	if runErr != nil {
		s.log.Error().Err(runErr).Str("source", domain.SourceFallcoaste).Msg("secondary run aborted")
	}
	s.afterRun(ctx, domain.SourceFallcoaste, rep)
	if ctx.Err() != nil || len(items) == 0 {
		return rep
	}

	matches, err := s.rec.MatchAll(ctx, items, primaries)
	if err != nil {
		s.log.Warn().Err(err).Msg("reconciliation interrupted")
		return rep
	}
	s.observeOutcomes(items, primaries, matches)

	now := s.now()
	for _, m := range matches {
		rep.Matched++
		merged := s.proc.Process(s.rec.Merge(m.Primary, m.Item, m.Confidence, now))
		if err := s.pub.PublishAuction(ctx, merged); err != nil {
			rep.Failed++
			s.log.Warn().Err(err).Str("external_id", merged.ExternalID).Msg("publish of enriched record failed")
			continue
		}
		rep.Published++
		s.log.Debug().
			Str("external_id", merged.ExternalID).
			Str("secondary_id", m.Item.ExternalID).
			Float64("confidence", m.Confidence).
			Msg("record enriched")
	}
	return rep
}

// observeOutcomes labels every unmerged item as either below threshold or
// beaten to its primary by a stronger candidate.
func (s *IngestionService) observeOutcomes(items []domain.CandidateItem, primaries []domain.AuctionRecord, matches []domain.MatchCandidate) {
	merged := make(map[string]bool, len(matches))
	for _, m := range matches {
		merged[m.Item.ExternalID] = true
		observability.ObserveMatch("matched")
	}
	for _, it := range items {
		if merged[it.ExternalID] {
			continue
		}
		if _, ok := s.rec.Match(it, primaries); ok {
			observability.ObserveMatch("claimed")
		} else {
			observability.ObserveMatch("below_threshold")
		}
	}
}

// coolingDown reports whether source carries a live ban marker. Cache errors
// never block a run.
func (s *IngestionService) coolingDown(ctx context.Context, source string) (domain.RunReport, bool) {
	if s.cache == nil {
		return domain.RunReport{}, false
	}
	var until time.Time
	ok, err := s.cache.Get(ctx, cooldownKey(source), &until)
	if err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("cooldown lookup failed")
		return domain.RunReport{}, false
	}
	if !ok || !until.After(s.now()) {
		return domain.RunReport{}, false
	}
	rep := domain.NewRunReport(source, s.now())
	rep.Finish(domain.ReasonCooldown, nil, s.now())
	s.log.Info().Str("source", source).Time("until", until).Msg("source cooling down after ban, skipped")
	return rep, true
}

func (s *IngestionService) afterRun(ctx context.Context, source string, rep domain.RunReport) {
	if rep.Reason != domain.ReasonBanned || s.cache == nil || s.cfg.BanCooldown <= 0 {
		return
	}
	until := s.now().Add(s.cfg.BanCooldown).UTC()
	if err := s.cache.Set(context.WithoutCancel(ctx), cooldownKey(source), until, int(s.cfg.BanCooldown.Seconds())); err != nil {
		s.log.Error().Err(err).Str("source", source).Msg("could not store ban cooldown")
		return
	}
	s.log.Warn().Str("source", source).Time("until", until).Msg("ban cooldown set")
}

func (s *IngestionService) finishRun(ctx context.Context, rep domain.RunReport) {
	observability.ObserveRun(rep.Source, string(rep.Reason))
	ev := s.log.Info()
	if rep.Reason == domain.ReasonBanned || rep.Reason == domain.ReasonFailureBudget {
		ev = s.log.Warn()
	}
	ev.Str("run_id", rep.ID).
		Str("source", rep.Source).
		Str("reason", string(rep.Reason)).
		Int("pages", rep.Pages).
		Int("fetched", rep.Fetched).
		Int("matched", rep.Matched).
		Int("published", rep.Published).
		Int("failed", rep.Failed).
		Msg("run finished")

	if s.runs == nil {
		return
	}
	if err := s.runs.RecordRun(context.WithoutCancel(ctx), rep); err != nil {
		s.log.Error().Err(err).Str("run_id", rep.ID).Msg("record run failed")
	}
}

func (s *IngestionService) invalidateRuns(ctx context.Context) {
	if s.cache == nil {
		return
	}
	for _, lim := range runsCacheLimits {
		_ = s.cache.Del(ctx, runsCacheKey(lim))
	}
}
