package fallcoaste_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asta_radar/internal/adapters/fallcoaste"
	"asta_radar/internal/adapters/fetcher"
	"asta_radar/internal/domain"
)

const listingHTML = `<html><body>
<div class="results-wrapper">
  <div class="result-card">
    <h3>Appartamento in Via Roma 10</h3>
    <a href="/avviso-vendita/appartamento-roma-101.html">Dettagli</a>
    <span>Prezzo base: € 100.500,00</span>
    <span>Data vendita: 10/05/2024</span>
    <span>Tribunale di Roma</span>
  </div>
  <div class="result-card">
    <a href="https://www.fallcoaste.it/avviso-vendita/box-milano-102.html">Box auto Milano</a>
  </div>
  <div class="result-card">
    <a href="/chi-siamo.html">Chi siamo</a>
  </div>
</div>
</body></html>`

// siteListingHTML only links back to the serving host.
const siteListingHTML = `<html><body>
<div class="result-card">
  <h3>Appartamento in Via Roma 10</h3>
  <a href="/avviso-vendita/appartamento-roma-101.html">Dettagli</a>
  <span>Prezzo base: € 100.500,00</span>
</div>
<div class="result-card">
  <a href="/avviso-vendita/box-milano-102.html">Box auto Milano</a>
</div>
</body></html>`

const fallbackHTML = `<html><body>
<ul>
  <li><a href="/vendita/villa-napoli-201.html">Villa a Napoli</a></li>
  <li><a href="/vendita/villa-napoli-201.html">Villa a Napoli (foto)</a></li>
  <li><a href="/news/articolo-5.html">Notizie</a></li>
</ul>
</body></html>`

const detailHTML = `<html><head><meta property="og:image" content="/og.jpg"></head><body>
<h1>Appartamento in Via Roma 10, Roma</h1>
<dl>
  <dt>Procedura n</dt><dd>123/2020</dd>
  <dt>Tribunale</dt><dd>Roma</dd>
  <dt>Data vendita</dt><dd>10/05/2024 ore 10:00</dd>
  <dt>Prezzo base:</dt><dd>€ 100.500,00</dd>
  <dt>Cauzione minima: € 10.050,00</dt>
  <dt>Codice vendita</dt><dd>ABC-1</dd>
  <dt>Link inserzione ministeriale</dt><dd><a href="https://pvp.giustizia.it/pvp/it/dettaglio.page?idAnnuncio=987654">vai</a></dd>
</dl>
<dl><dd>Indirizzo: Via Roma, 10</dd></dl>
<div class="gallery">
  <img src="/img/1.jpg"><img data-src="/img/2.jpg" src="placeholder.gif">
  <img src="/img/planimetria.jpg" alt="Planimetria">
</div>
<a href="/docs/perizia.pdf">Perizia</a>
<a href="/docs/planimetria_catastale.pdf">Planimetria catastale</a>
<div id="map" data-lat="41.9028" data-lng="12.4964"></div>
<script>var x = "Tribunale di Milano";</script>
</body></html>`

func TestParseListing_StructuredContainers(t *testing.T) {
	got := fallcoaste.ParseListing([]byte(listingHTML), "https://www.fallcoaste.it")
	if len(got) != 2 {
		t.Fatalf("expected 2 links, got %d: %+v", len(got), got)
	}
	first := got[0]
	if first.URL != "https://www.fallcoaste.it/avviso-vendita/appartamento-roma-101.html" || first.ExternalID != "fallcoaste_101" {
		t.Fatalf("unexpected first link %+v", first)
	}
	if first.Title != "Appartamento in Via Roma 10" {
		t.Fatalf("title: %q", first.Title)
	}
	if !strings.Contains(first.PriceText, "100.500") || !strings.Contains(first.DateText, "10/05/2024") || first.CourtText != "Tribunale di Roma" {
		t.Fatalf("listing snippets: %+v", first)
	}
	if got[1].ExternalID != "fallcoaste_102" || got[1].Title != "Box auto Milano" {
		t.Fatalf("unexpected second link %+v", got[1])
	}
}

func TestParseListing_FallsBackToLinkPattern(t *testing.T) {
	got := fallcoaste.ParseListing([]byte(fallbackHTML), "https://www.fallcoaste.it")
	if len(got) != 1 || got[0].ExternalID != "fallcoaste_201" || got[0].Title != "Villa a Napoli" {
		t.Fatalf("unexpected fallback links %+v", got)
	}
}

func TestExternalIDFromURL(t *testing.T) {
	if id, ok := fallcoaste.ExternalIDFromURL("https://x/avviso-vendita/casa-42.html"); !ok || id != "fallcoaste_42" {
		t.Fatalf("got %q %v", id, ok)
	}
	if _, ok := fallcoaste.ExternalIDFromURL("https://x/chi-siamo.html"); ok {
		t.Fatal("url without numeric id must not yield an id")
	}
}

func TestParseDetail(t *testing.T) {
	d := fallcoaste.ParseDetail([]byte(detailHTML))
	want := map[string]string{
		"Procedura n":     "123/2020",
		"Tribunale":       "Roma",
		"Data vendita":    "10/05/2024 ore 10:00",
		"Prezzo base":     "€ 100.500,00",
		"Cauzione minima": "€ 10.050,00",
		"Codice vendita":  "ABC-1",
		"Indirizzo":       "Via Roma, 10",
	}
	for k, v := range want {
		if d.Fields[k] != v {
			t.Errorf("field %q = %q, want %q", k, d.Fields[k], v)
		}
	}
	if d.PVPID != "987654" {
		t.Errorf("pvp id: %q", d.PVPID)
	}
	if len(d.Media.Photos) != 2 || d.Media.Photos[1] != "/img/2.jpg" {
		t.Errorf("photos: %v", d.Media.Photos)
	}
	if len(d.Media.FloorPlans) != 2 || len(d.Media.Documents) != 1 || d.Media.Documents[0] != "/docs/perizia.pdf" {
		t.Errorf("floor plans %v documents %v", d.Media.FloorPlans, d.Media.Documents)
	}
	if d.Coords == nil || d.Coords.Lat != 41.9028 || d.Coords.Lon != 12.4964 {
		t.Errorf("coords: %+v", d.Coords)
	}
	if strings.Contains(d.FullText, "Tribunale di Milano") {
		t.Errorf("script content leaked into full text")
	}
}

func TestBuildCandidate(t *testing.T) {
	link := fallcoaste.ListingLink{
		URL:        "https://www.fallcoaste.it/avviso-vendita/appartamento-roma-101.html",
		ExternalID: "fallcoaste_101",
		Title:      "Appartamento",
		PriceText:  "€ 1",
	}
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	c := fallcoaste.BuildCandidate(link, fallcoaste.ParseDetail([]byte(detailHTML)), now)

	if c.BasePrice == nil || *c.BasePrice != 100500 || c.PriceText != "€ 100.500,00" {
		t.Fatalf("price: %v %q", c.BasePrice, c.PriceText)
	}
	if c.Court != "Tribunale di Roma" || c.CourtText != "Roma" {
		t.Fatalf("court: %q %q", c.Court, c.CourtText)
	}
	if c.AuctionDate == nil || c.AuctionDate.Format("2006-01-02") != "2024-05-10" {
		t.Fatalf("date: %v", c.AuctionDate)
	}
	if c.MinimumDeposit == nil || *c.MinimumDeposit != 10050 {
		t.Fatalf("deposit: %v", c.MinimumDeposit)
	}
	if c.CaseNumber != "123/2020" || c.PVPID != "987654" || c.Address != "Via Roma, 10" || c.City != "Roma" {
		t.Fatalf("identity fields: %+v", c)
	}
	if c.Details["sale_code"] != "ABC-1" || c.Details["minimum_deposit"] != "€ 10.050,00" {
		t.Fatalf("details: %v", c.Details)
	}
	if !c.ScrapedAt.Equal(now) {
		t.Fatalf("scraped at: %v", c.ScrapedAt)
	}
}

func TestBuildCandidate_AliasLabelsDeterministic(t *testing.T) {
	d := fallcoaste.DetailPage{Fields: map[string]string{
		"Procedura":    "1/2019",
		"Procedura n":  "123/2020",
		"Data asta":    "01/02/2024",
		"Data vendita": "10/05/2024",
		"Indirizzo":    "Via Roma, 10",
		"Ubicazione":   "Roma centro",
	}}
	link := fallcoaste.ListingLink{URL: "https://www.fallcoaste.it/avviso-vendita/x-7.html", ExternalID: "fallcoaste_7"}
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		c := fallcoaste.BuildCandidate(link, d, now)
		if c.ProcedureText != "123/2020" || c.DateText != "10/05/2024" || c.Address != "Roma centro" {
			t.Fatalf("iteration %d: procedure %q date %q address %q", i, c.ProcedureText, c.DateText, c.Address)
		}
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memCache) Set(_ context.Context, key string, v any, _ int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = b
	m.mu.Unlock()
	return nil
}

func (m *memCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// siteServer serves one listing page with two items, then empty pages.
func siteServer(t *testing.T, listingHits, detailHits *int32, detailStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ricerca.html":
			atomic.AddInt32(listingHits, 1)
			if r.URL.Query().Get("filter") == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if r.URL.Query().Get("page") != "1" {
				_, _ = w.Write([]byte(`<html><body><p>Nessun risultato</p></body></html>`))
				return
			}
			_, _ = w.Write([]byte(siteListingHTML))
		case strings.HasPrefix(r.URL.Path, "/avviso-vendita/"):
			atomic.AddInt32(detailHits, 1)
			if detailStatus != http.StatusOK {
				w.WriteHeader(detailStatus)
				return
			}
			_, _ = w.Write([]byte(detailHTML))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newIngestor(ts *httptest.Server) *fallcoaste.Ingestor {
	f := fetcher.New(fetcher.Config{BackoffBase: time.Millisecond}, ts.Client(), zerolog.Nop())
	return fallcoaste.NewIngestor(f, fallcoaste.Config{BaseURL: ts.URL, MaxConsecutiveFailures: 2}, zerolog.Nop())
}

func TestRun_ListingAndDetails(t *testing.T) {
	var listingHits, detailHits int32
	ts := siteServer(t, &listingHits, &detailHits, http.StatusOK)
	defer ts.Close()

	var got []domain.CandidateItem
	rep, err := newIngestor(ts).Run(context.Background(), 10, func(c domain.CandidateItem) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// page 1 has results; pages 2 and 3 are empty and spend the budget of 2
	if rep.Reason != domain.ReasonFailureBudget || atomic.LoadInt32(&listingHits) != 3 {
		t.Fatalf("unexpected report %+v (listing hits %d)", rep, listingHits)
	}
	if len(got) != 2 || rep.Fetched != 2 || atomic.LoadInt32(&detailHits) != 2 {
		t.Fatalf("expected 2 candidates with 2 detail fetches, got %d (%+v, detail hits %d)", len(got), rep, detailHits)
	}
	var local domain.CandidateItem
	for _, c := range got {
		if c.ExternalID == "fallcoaste_101" {
			local = c
		}
	}
	if local.PVPID != "987654" || local.Coords == nil {
		t.Fatalf("detail data missing from candidate %+v", local)
	}
	if len(local.Media.Photos) == 0 || !strings.HasPrefix(local.Media.Photos[0], ts.URL) {
		t.Fatalf("media must be absolute: %v", local.Media.Photos)
	}
}

func TestRun_DetailCacheSkipsRefetch(t *testing.T) {
	var listingHits, detailHits int32
	ts := siteServer(t, &listingHits, &detailHits, http.StatusOK)
	defer ts.Close()

	cache := newMemCache()
	in := newIngestor(ts).WithCache(cache)
	noop := func(domain.CandidateItem) error { return nil }

	if _, err := in.Run(context.Background(), 1, noop); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := atomic.LoadInt32(&detailHits)
	if first != 2 {
		t.Fatalf("expected two detail fetches, got %d", first)
	}
	if _, err := in.Run(context.Background(), 1, noop); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := atomic.LoadInt32(&detailHits); n != first {
		t.Fatalf("cached detail page was fetched again (%d → %d)", first, n)
	}
}

func TestRun_BanOnDetailStopsRun(t *testing.T) {
	var listingHits, detailHits int32
	ts := siteServer(t, &listingHits, &detailHits, http.StatusForbidden)
	defer ts.Close()

	emitted := 0
	rep, err := newIngestor(ts).Run(context.Background(), 10, func(domain.CandidateItem) error {
		emitted++
		return nil
	})
	if !errors.Is(err, domain.ErrBanned) || rep.Reason != domain.ReasonBanned {
		t.Fatalf("expected banned run, got %v %+v", err, rep)
	}
	if emitted != 0 || atomic.LoadInt32(&listingHits) != 1 || atomic.LoadInt32(&detailHits) != 1 {
		t.Fatalf("no work expected after the ban: emitted %d, listing %d, detail %d", emitted, listingHits, detailHits)
	}
}

func TestRun_EmitErrorsCounted(t *testing.T) {
	var listingHits, detailHits int32
	ts := siteServer(t, &listingHits, &detailHits, http.StatusOK)
	defer ts.Close()

	rep, err := newIngestor(ts).Run(context.Background(), 1, func(c domain.CandidateItem) error {
		return fmt.Errorf("reject %s", c.ExternalID)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != rep.Fetched || rep.Reason != domain.ReasonPageBudget {
		t.Fatalf("unexpected report %+v", rep)
	}
}
