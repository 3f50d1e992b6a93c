package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"asta_radar/internal/domain"
)

// ---- fakes ----

type fakePrimary struct {
	recs   []domain.AuctionRecord
	reason domain.TerminationReason
	err    error
	calls  int
}

func (f *fakePrimary) Run(ctx context.Context, maxPages int, emit func(domain.AuctionRecord) error) (domain.RunReport, error) {
	f.calls++
	rep := domain.NewRunReport(domain.SourcePVP, time.Now())
	rep.Pages = 1
	for _, r := range f.recs {
		rep.Fetched++
		if err := emit(r); err != nil {
			rep.Failed++
			continue
		}
		rep.Published++
	}
	reason := f.reason
	if reason == "" {
		reason = domain.ReasonCompleted
	}
	rep.Finish(reason, f.err, time.Now())
	return rep, f.err
}

type fakeSecondary struct {
	items  []domain.CandidateItem
	reason domain.TerminationReason
	err    error
	calls  int
}

func (f *fakeSecondary) Run(ctx context.Context, maxPages int, emit func(domain.CandidateItem) error) (domain.RunReport, error) {
	f.calls++
	rep := domain.NewRunReport(domain.SourceFallcoaste, time.Now())
	rep.Pages = 1
	for _, it := range f.items {
		rep.Fetched++
		if err := emit(it); err != nil {
			rep.Failed++
		}
	}
	reason := f.reason
	if reason == "" {
		reason = domain.ReasonCompleted
	}
	rep.Finish(reason, f.err, time.Now())
	return rep, f.err
}

// fakeSink is both the publisher and the primary store.
type fakeSink struct {
	mu       sync.Mutex
	byID     map[string]domain.AuctionRecord
	calls    []string
	fail     map[string]bool
	storeErr error
}

func newSink() *fakeSink {
	return &fakeSink{byID: map[string]domain.AuctionRecord{}, fail: map[string]bool{}}
}

func (f *fakeSink) PublishAuction(ctx context.Context, r domain.AuctionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.ExternalID)
	if f.fail[r.ExternalID] {
		return errors.New("downstream unavailable")
	}
	f.byID[r.ExternalID] = r
	return nil
}

func (f *fakeSink) ListPrimary(ctx context.Context) ([]domain.AuctionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	out := make([]domain.AuctionRecord, 0, len(f.byID))
	for _, r := range f.byID {
		if r.Status == domain.StatusActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

type fakeRunLog struct {
	reps []domain.RunReport
	err  error
}

func (f *fakeRunLog) RecordRun(ctx context.Context, r domain.RunReport) error {
	f.reps = append(f.reps, r)
	return f.err
}

func (f *fakeRunLog) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.reps) {
		return f.reps[:limit], nil
	}
	return f.reps, nil
}

// memCache stores JSON like the redis adapter so values round-trip by type.
type memCache struct {
	store map[string][]byte
	ttl   map[string]int
	dels  []string
}

func newMemCache() *memCache {
	return &memCache{store: map[string][]byte{}, ttl: map[string]int{}}
}

func (c *memCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	c.ttl[key] = ttlSec
	return nil
}

func (c *memCache) Del(ctx context.Context, key string) error {
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func ptr[T any](v T) *T { return &v }
