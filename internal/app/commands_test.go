package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asta_radar/internal/app"
	"asta_radar/internal/domain"
	"asta_radar/internal/ranking"
	"asta_radar/internal/reconcile"
)

var saleDay = time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC)

func primaryRecords() []domain.AuctionRecord {
	return []domain.AuctionRecord{
		{
			ExternalID: "A1", Title: "Appartamento trilocale", Address: "Via Roma 10", City: "Milano",
			Court: "Tribunale di Milano", BasePrice: ptr(100000.0), AuctionDate: ptr(saleDay),
			SurfaceSqm: ptr(85.0), Status: domain.StatusActive,
		},
		{
			ExternalID: "A2", Title: "Capannone industriale", Address: "Corso Italia 5", City: "Torino",
			Court: "Tribunale di Torino", BasePrice: ptr(300000.0), AuctionDate: ptr(saleDay.AddDate(0, 0, 40)),
			Status: domain.StatusActive,
		},
	}
}

func candidates() []domain.CandidateItem {
	return []domain.CandidateItem{
		{
			ExternalID: "F1", URL: "https://www.fallcoaste.it/vendita/appartamento-1.html",
			Address: "Via Roma 10", City: "Milano", Court: "Tribunale di Milano",
			BasePrice: ptr(100000.0), AuctionDate: ptr(saleDay),
			Media:   domain.Media{Photos: []string{"https://www.fallcoaste.it/img/1.jpg"}},
			Details: map[string]string{"sale_code": "ABC123"},
		},
		{
			ExternalID: "F2", URL: "https://www.fallcoaste.it/vendita/villa-2.html",
			Address: "Piazza Garibaldi 3", City: "Napoli", Court: "Tribunale di Napoli",
			BasePrice: ptr(55000.0), AuctionDate: ptr(saleDay.AddDate(0, 0, 200)),
		},
	}
}

type harness struct {
	svc       *app.IngestionService
	primary   *fakePrimary
	secondary *fakeSecondary
	sink      *fakeSink
	runs      *fakeRunLog
	cache     *memCache
}

func newHarness(t *testing.T, cfg app.CycleConfig) *harness {
	t.Helper()
	eng, err := ranking.New(ranking.DefaultWeights())
	if err != nil {
		t.Fatalf("ranking.New: %v", err)
	}
	h := &harness{
		primary:   &fakePrimary{recs: primaryRecords()},
		secondary: &fakeSecondary{items: candidates()},
		sink:      newSink(),
		runs:      &fakeRunLog{},
		cache:     newMemCache(),
	}
	h.svc = app.NewIngestionService(
		h.primary, h.secondary,
		app.NewProcessingService(eng, 2),
		reconcile.New(reconcile.DefaultConfig()),
		h.sink, h.sink, h.runs, h.cache,
		cfg, zerolog.Nop(),
	)
	return h
}

func TestRunCycle_PublishesAndEnriches(t *testing.T) {
	h := newHarness(t, app.CycleConfig{PrimaryMaxPages: 5, SecondaryMaxPages: 5, BanCooldown: time.Hour})
	h.cache.store["runs:20"] = []byte(`[]`)

	rep := h.svc.RunCycle(context.Background())

	if rep.Primary.Reason != domain.ReasonCompleted || rep.Primary.Published != 2 {
		t.Fatalf("primary report = %+v", rep.Primary)
	}
	if rep.Secondary.Reason != domain.ReasonCompleted || rep.Secondary.Fetched != 2 {
		t.Fatalf("secondary report = %+v", rep.Secondary)
	}
	if rep.Secondary.Matched != 1 || rep.Secondary.Published != 1 || rep.Secondary.Failed != 0 {
		t.Fatalf("secondary counts = %+v", rep.Secondary)
	}
	if rep.Failed() {
		t.Fatal("cycle must not be marked failed")
	}

	a1 := h.sink.byID["A1"]
	if a1.Enrichment == nil || a1.Enrichment.SecondaryID != "F1" || a1.Enrichment.Details["sale_code"] != "ABC123" {
		t.Fatalf("A1 not enriched: %+v", a1.Enrichment)
	}
	if len(a1.Media.Photos) != 1 {
		t.Fatalf("A1 media = %+v", a1.Media)
	}
	if a1.Score == nil || a1.Breakdown == nil {
		t.Fatal("published records must carry a score")
	}
	if h.sink.byID["A2"].Enrichment != nil {
		t.Fatal("A2 has no matching candidate")
	}
	if _, ok := h.sink.byID["F1"]; ok {
		t.Fatal("secondary items must never be published under their own id")
	}
	if len(h.sink.calls) != 3 {
		t.Fatalf("publish calls = %v", h.sink.calls)
	}

	if len(h.runs.reps) != 2 || h.runs.reps[0].Source != domain.SourcePVP || h.runs.reps[1].Source != domain.SourceFallcoaste {
		t.Fatalf("recorded runs = %+v", h.runs.reps)
	}
	if _, ok := h.cache.store["runs:20"]; ok {
		t.Fatal("run list cache must be invalidated after a cycle")
	}
}

func TestRunCycle_PublishFailureAbsorbed(t *testing.T) {
	h := newHarness(t, app.CycleConfig{})
	h.sink.fail["A2"] = true

	rep := h.svc.RunCycle(context.Background())

	if rep.Primary.Published != 1 || rep.Primary.Failed != 1 || rep.Primary.Reason != domain.ReasonCompleted {
		t.Fatalf("primary report = %+v", rep.Primary)
	}
	if rep.Secondary.Published != 1 {
		t.Fatalf("secondary must still enrich A1: %+v", rep.Secondary)
	}
}

func TestRunCycle_EnrichedPublishFailureCounted(t *testing.T) {
	h := newHarness(t, app.CycleConfig{})
	// Seed the store so the secondary pass has primaries, then fail every publish.
	for _, r := range primaryRecords() {
		h.sink.byID[r.ExternalID] = r
	}
	h.primary.recs = nil
	h.sink.fail["A1"] = true

	rep := h.svc.RunCycle(context.Background())
	if rep.Secondary.Matched != 1 || rep.Secondary.Published != 0 || rep.Secondary.Failed != 1 {
		t.Fatalf("secondary report = %+v", rep.Secondary)
	}
}

func TestRunCycle_BanSetsCooldownAndSkipsNextRun(t *testing.T) {
	h := newHarness(t, app.CycleConfig{BanCooldown: 2 * time.Hour})
	h.primary.reason = domain.ReasonBanned
	h.primary.err = domain.ErrBanned

	first := h.svc.RunCycle(context.Background())
	if first.Primary.Reason != domain.ReasonBanned || !first.Failed() {
		t.Fatalf("first cycle = %+v", first.Primary)
	}
	// A primary ban does not stop the secondary source.
	if h.secondary.calls != 1 || first.Secondary.Reason != domain.ReasonCompleted {
		t.Fatalf("secondary must still run: calls=%d rep=%+v", h.secondary.calls, first.Secondary)
	}
	if h.cache.ttl["cooldown:pvp"] != 7200 {
		t.Fatalf("cooldown ttl = %d", h.cache.ttl["cooldown:pvp"])
	}

	second := h.svc.RunCycle(context.Background())
	if second.Primary.Reason != domain.ReasonCooldown || h.primary.calls != 1 {
		t.Fatalf("primary must be skipped while cooling down: %+v calls=%d", second.Primary, h.primary.calls)
	}
	if h.secondary.calls != 2 {
		t.Fatalf("secondary calls = %d", h.secondary.calls)
	}
}

func TestRunCycle_ExpiredCooldownIgnored(t *testing.T) {
	h := newHarness(t, app.CycleConfig{})
	_ = h.cache.Set(context.Background(), "cooldown:pvp", time.Now().Add(-time.Minute), 60)

	rep := h.svc.RunCycle(context.Background())
	if rep.Primary.Reason != domain.ReasonCompleted || h.primary.calls != 1 {
		t.Fatalf("expired marker must not skip: %+v", rep.Primary)
	}
}

func TestRunCycle_NoPrimarySkipsSecondary(t *testing.T) {
	h := newHarness(t, app.CycleConfig{})
	h.primary.recs = nil

	rep := h.svc.RunCycle(context.Background())
	if rep.Secondary.Reason != domain.ReasonNoPrimary {
		t.Fatalf("secondary reason = %s", rep.Secondary.Reason)
	}
	if h.secondary.calls != 0 {
		t.Fatal("secondary source must not be fetched without primaries")
	}
}

func TestRunCycle_StoreFailureFallsBackToCycleRecords(t *testing.T) {
	h := newHarness(t, app.CycleConfig{})
	h.sink.storeErr = errors.New("db down")

	rep := h.svc.RunCycle(context.Background())
	if rep.Secondary.Matched != 1 || rep.Secondary.Published != 1 {
		t.Fatalf("secondary report = %+v", rep.Secondary)
	}
}

func TestRunCycle_CanceledDuringSourceCooldown(t *testing.T) {
	h := newHarness(t, app.CycleConfig{SourceCooldown: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan app.CycleReport, 1)
	go func() { done <- h.svc.RunCycle(ctx) }()

	select {
	case rep := <-done:
		if rep.Secondary.Reason != domain.ReasonCanceled {
			t.Fatalf("secondary reason = %s", rep.Secondary.Reason)
		}
		if h.secondary.calls != 0 {
			t.Fatal("secondary must not run after cancel")
		}
		if len(h.runs.reps) != 2 {
			t.Fatalf("both runs must be logged, got %d", len(h.runs.reps))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunCycle did not honor cancellation during the source cooldown")
	}
}

func TestRunCycle_RunLogFailureIgnored(t *testing.T) {
	h := newHarness(t, app.CycleConfig{})
	h.runs.err = errors.New("insert failed")

	rep := h.svc.RunCycle(context.Background())
	if rep.Primary.Published != 2 || rep.Secondary.Published != 1 {
		t.Fatalf("cycle must complete despite run log errors: %+v", rep)
	}
}
