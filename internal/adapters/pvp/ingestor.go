// Package pvp ingests the authoritative auction source: the ministerial sales
// portal's paginated JSON search.
package pvp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"asta_radar/internal/adapters/fetcher"
	"asta_radar/internal/domain"
)

// Doer is the slice of PoliteFetcher the ingestors need.
type Doer interface {
	Fetch(ctx context.Context, domain string, spec fetcher.RequestSpec) (*fetcher.Response, error)
}

type Config struct {
	BaseURL    string
	SearchPath string
	PageSize   int
	// StartPage is the provider's first page index.
	StartPage int
	// MaxConsecutiveFailures pages without data end the run early.
	MaxConsecutiveFailures int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:                "https://pvp.giustizia.it",
		SearchPath:             "/ric-496b258c-986a1b71/ric-ms/ricerca/vendite",
		PageSize:               50,
		MaxConsecutiveFailures: 3,
	}
}

// PageFetchError reports a page that could not be fetched or decoded.
type PageFetchError struct {
	Page int
	Err  error
}

func (e *PageFetchError) Error() string { return fmt.Sprintf("pvp: page %d: %v", e.Page, e.Err) }
func (e *PageFetchError) Unwrap() error { return e.Err }

var searchBody = []byte(`{"tipoLotto":"IMMOBILI","categoriaBene":[],"flagRicerca":0,"coordIndirizzo":"","raggioIndirizzo":"25"}`)

type searchResponse struct {
	Body struct {
		Content       []map[string]any `json:"content"`
		TotalElements int              `json:"totalElements"`
	} `json:"body"`
}

type Ingestor struct {
	f      Doer
	cfg    Config
	domain string
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
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Ingestor{
		f:      f,
		cfg:    cfg,
		domain: hostOf(cfg.BaseURL),
		log:    log.With().Str("source", domain.SourcePVP).Logger(),
		now:    time.Now,
	}
}

// Run pages through the search sequentially and emits each new record. It
// stops on an empty page, on the last page by total count, on page or failure
// budget exhaustion, or on a ban. An emit error counts the record as failed
// and the run continues.
func (in *Ingestor) Run(ctx context.Context, maxPages int, emit func(domain.AuctionRecord) error) (domain.RunReport, error) {
	rep := domain.NewRunReport(domain.SourcePVP, in.now())
	log := in.log.With().Str("run_id", rep.ID).Logger()
	budget := fetcher.NewFailureBudget(in.cfg.MaxConsecutiveFailures)
	seen := make(map[string]struct{})

	for i := 0; i < maxPages; i++ {
		if err := ctx.Err(); err != nil {
			rep.Finish(domain.ReasonCanceled, err, in.now())
			return rep, err
		}
		page := in.cfg.StartPage + i
		items, total, err := in.fetchPage(ctx, page)
		rep.Pages++
		if err != nil {
			if fetcher.IsBanned(err) {
				log.Error().Err(err).Int("page", page).Msg("source banned us, aborting run")
				rep.Finish(domain.ReasonBanned, err, in.now())
				return rep, err
			}
			if fetcher.KindOf(err) == fetcher.Canceled || ctx.Err() != nil {
				rep.Finish(domain.ReasonCanceled, err, in.now())
				return rep, err
			}
			log.Warn().Err(err).Int("page", page).Int("consecutive_failures", budget.Count()+1).Msg("page failed")
			if budget.Fail() {
				rep.Finish(domain.ReasonFailureBudget, err, in.now())
				return rep, nil
			}
			continue
		}
		if len(items) == 0 {
			log.Info().Int("page", page).Msg("empty page, run complete")
			rep.Finish(domain.ReasonCompleted, nil, in.now())
			return rep, nil
		}

		mapped := 0
		for _, it := range items {
			rec, ok := MapRecord(it)
			if !ok {
				rep.Failed++
				log.Debug().Int("page", page).Msg("item without identifier discarded")
				continue
			}
			mapped++
			if _, dup := seen[rec.ExternalID]; dup {
				continue
			}
			seen[rec.ExternalID] = struct{}{}
			rec.SourceURL = in.cfg.BaseURL + "/pvp/it/dettaglio_annuncio.page?idAnnuncio=" + url.QueryEscape(rec.ExternalID)
			rec.ScrapedAt = in.now().UTC()
			resolveMedia(in.cfg.BaseURL, &rec.Media)
			rep.Fetched++

			if err := emit(rec); err != nil {
				rep.Failed++
				log.Warn().Err(err).Str("external_id", rec.ExternalID).Msg("emit failed, record dropped for this cycle")
				continue
			}
			rep.Published++
		}
		if mapped == 0 {
			log.Warn().Int("page", page).Msg("page yielded no usable records")
			if budget.Fail() {
				rep.Finish(domain.ReasonFailureBudget, errors.New("consecutive pages without usable records"), in.now())
				return rep, nil
			}
		} else {
			budget.Reset()
		}

		if total > 0 && (i+1)*in.cfg.PageSize >= total {
			rep.Finish(domain.ReasonCompleted, nil, in.now())
			return rep, nil
		}
	}
	rep.Finish(domain.ReasonPageBudget, nil, in.now())
	return rep, nil
}

func (in *Ingestor) fetchPage(ctx context.Context, page int) ([]map[string]any, int, error) {
	q := url.Values{}
	q.Set("language", "it")
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(in.cfg.PageSize))
	q.Add("sort", "dataOraVendita,asc")
	q.Add("sort", "citta,asc")

	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", in.cfg.BaseURL)
	h.Set("Referer", in.cfg.BaseURL+"/pvp/it/lista_annunci.page")

	resp, err := in.f.Fetch(ctx, in.domain, fetcher.RequestSpec{
		Method:   http.MethodPost,
		URL:      in.cfg.BaseURL + in.cfg.SearchPath + "?" + q.Encode(),
		Body:     searchBody,
		Header:   h,
		Endpoint: "search",
	})
	if err != nil {
		return nil, 0, &PageFetchError{Page: page, Err: err}
	}
	var out searchResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, 0, &PageFetchError{Page: page, Err: fmt.Errorf("decode: %w", err)}
	}
	return out.Body.Content, out.Body.TotalElements, nil
}

func hostOf(base string) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		return u.Host
	}
	return base
}

// resolveMedia makes site-relative media paths absolute.
func resolveMedia(base string, m *domain.Media) {
	for _, list := range [][]string{m.Photos, m.FloorPlans, m.Documents} {
		for i, s := range list {
			if strings.HasPrefix(s, "/") {
				list[i] = base + s
			}
		}
	}
}
