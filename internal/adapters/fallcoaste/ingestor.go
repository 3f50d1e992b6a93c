// Package fallcoaste ingests the enrichment source: an HTML listing plus one
// detail page per result. Its items are candidates for reconciliation and
// never become auctions on their own.
package fallcoaste

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"asta_radar/internal/adapters/fetcher"
	"asta_radar/internal/domain"
)

type Doer interface {
	Fetch(ctx context.Context, domain string, spec fetcher.RequestSpec) (*fetcher.Response, error)
}

type Config struct {
	BaseURL    string
	SearchPath string
	// Filter is the listing's category/radius/state filter expression.
	Filter                 string
	MaxConsecutiveFailures int
	// DetailCacheTTL bounds how long a parsed detail page is reused across cycles.
	DetailCacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:                "https://www.fallcoaste.it",
		SearchPath:             "/ricerca.html",
		Filter:                 "macro|527^input_categoria|Beni Immobili^ubicazione_dst|50^stato|1",
		MaxConsecutiveFailures: 3,
		DetailCacheTTL:         24 * time.Hour,
	}
}

type Ingestor struct {
	f      Doer
	cfg    Config
	domain string
	cache  domain.Cache
	log    zerolog.Logger
	now    func() time.Time
}

func NewIngestor(f Doer, cfg Config, log zerolog.Logger) *Ingestor {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.SearchPath == "" {
		cfg.SearchPath = def.SearchPath
	}
	if cfg.Filter == "" {
		cfg.Filter = def.Filter
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.DetailCacheTTL <= 0 {
		cfg.DetailCacheTTL = def.DetailCacheTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &Ingestor{
		f:      f,
		cfg:    cfg,
		domain: host,
		log:    log.With().Str("source", domain.SourceFallcoaste).Logger(),
		now:    time.Now,
	}
}

// WithCache enables the detail-page cache. A nil cache disables it.
func (in *Ingestor) WithCache(c domain.Cache) *Ingestor {
	in.cache = c
	return in
}

// Run pages through the listing, fetching every new item's detail page through
// the same per-domain throttle. A page with no results or a failed fetch
// spends the failure budget; a page with only already-seen results ends the run.
func (in *Ingestor) Run(ctx context.Context, maxPages int, emit func(domain.CandidateItem) error) (domain.RunReport, error) {
	rep := domain.NewRunReport(domain.SourceFallcoaste, in.now())
	log := in.log.With().Str("run_id", rep.ID).Logger()
	budget := fetcher.NewFailureBudget(in.cfg.MaxConsecutiveFailures)
	seen := make(map[string]struct{})

	fatal := func(err error) bool {
		reason := domain.ReasonCanceled
		switch {
		case fetcher.IsBanned(err):
			reason = domain.ReasonBanned
			log.Error().Err(err).Msg("source banned us, aborting run")
		case fetcher.KindOf(err) == fetcher.Canceled || ctx.Err() != nil:
		default:
			return false
		}
		rep.Finish(reason, err, in.now())
		return true
	}

	for i := 0; i < maxPages; i++ {
		if err := ctx.Err(); err != nil {
			rep.Finish(domain.ReasonCanceled, err, in.now())
			return rep, err
		}
		page := i + 1
		links, err := in.listing(ctx, page)
		rep.Pages++
		if err != nil {
			if fatal(err) {
				return rep, err
			}
			log.Warn().Err(err).Int("page", page).Msg("listing page failed")
			if budget.Fail() {
				rep.Finish(domain.ReasonFailureBudget, err, in.now())
				return rep, nil
			}
			continue
		}
		if len(links) == 0 {
			log.Warn().Int("page", page).Int("consecutive_failures", budget.Count()+1).Msg("listing page without results")
			if budget.Fail() {
				rep.Finish(domain.ReasonFailureBudget, errors.New("consecutive listing pages without results"), in.now())
				return rep, nil
			}
			continue
		}
		budget.Reset()

		fresh := 0
		for _, l := range links {
			if _, dup := seen[l.ExternalID]; dup {
				continue
			}
			seen[l.ExternalID] = struct{}{}
			fresh++

			d, err := in.detail(ctx, l)
			if err != nil {
				if fatal(err) {
					return rep, err
				}
				log.Warn().Err(err).Str("url", l.URL).Msg("detail page failed, keeping listing data")
			}
			c := BuildCandidate(l, d, in.now())
			rep.Fetched++
			if err := emit(c); err != nil {
				rep.Failed++
				log.Warn().Err(err).Str("external_id", c.ExternalID).Msg("candidate dropped")
			}
		}
		if fresh == 0 {
			log.Info().Int("page", page).Msg("listing repeats known results, run complete")
			rep.Finish(domain.ReasonCompleted, nil, in.now())
			return rep, nil
		}
	}
	rep.Finish(domain.ReasonPageBudget, nil, in.now())
	return rep, nil
}

func (in *Ingestor) listing(ctx context.Context, page int) ([]ListingLink, error) {
	q := url.Values{}
	q.Set("filter", in.cfg.Filter)
	q.Set("page", strconv.Itoa(page))
	resp, err := in.f.Fetch(ctx, in.domain, fetcher.RequestSpec{
		URL:      in.cfg.BaseURL + in.cfg.SearchPath + "?" + q.Encode(),
		Endpoint: "listing",
	})
	if err != nil {
		return nil, err
	}
	return ParseListing(resp.Body, in.cfg.BaseURL), nil
}

func (in *Ingestor) detail(ctx context.Context, l ListingLink) (DetailPage, error) {
	key := "fallcoaste:detail:" + l.ExternalID
	if in.cache != nil {
		var d DetailPage
		if ok, err := in.cache.Get(ctx, key, &d); err == nil && ok {
			return d, nil
		} else if err != nil {
			in.log.Debug().Err(err).Str("key", key).Msg("detail cache read failed")
		}
	}

	resp, err := in.f.Fetch(ctx, in.domain, fetcher.RequestSpec{
		URL:      l.URL,
		Endpoint: "detail",
		Header:   http.Header{"Referer": {in.cfg.BaseURL + in.cfg.SearchPath}},
	})
	if err != nil {
		return DetailPage{}, err
	}
	d := ParseDetail(resp.Body)
	resolveMedia(l.URL, &d.Media)

	if in.cache != nil {
		if err := in.cache.Set(ctx, key, d, int(in.cfg.DetailCacheTTL.Seconds())); err != nil {
			in.log.Debug().Err(err).Str("key", key).Msg("detail cache write failed")
		}
	}
	return d, nil
}

func resolveMedia(pageURL string, m *domain.Media) {
	base, _ := url.Parse(pageURL)
	for _, list := range [][]string{m.Photos, m.FloorPlans, m.Documents} {
		for i, s := range list {
			list[i] = resolve(base, s)
		}
	}
}
