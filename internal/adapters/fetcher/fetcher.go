package fetcher

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"asta_radar/internal/adapters/observability"
)

type Config struct {
	// MinInterval is the minimum spacing between two requests to one domain.
	MinInterval time.Duration
	// MinDelay and MaxDelay bound the uniform jitter added after MinInterval.
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxRetries bounds retries after the first attempt on 429, 5xx and network errors.
	MaxRetries  int
	BackoffBase time.Duration
	// Max429 is the number of 429 responses within one fetch that classifies it as Banned.
	Max429 int
	// RequestsPerMinute caps the per-domain request rate on top of MinInterval. 0 disables it.
	RequestsPerMinute int
	MaxBodyBytes      int64
}

func DefaultConfig() Config {
	return Config{
		MinInterval:  time.Second,
		MinDelay:     500 * time.Millisecond,
		MaxDelay:     1500 * time.Millisecond,
		MaxRetries:   3,
		BackoffBase:  2 * time.Second,
		Max429:       2,
		MaxBodyBytes: 10 << 20,
	}
}

type RequestSpec struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
	// Endpoint labels the request in metrics (e.g. "search", "listing", "detail").
	Endpoint string
}

type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Attempts int
}

// PoliteFetcher issues throttled, retried requests on behalf of every ingestor.
// State is per domain: a cancellable mutex, an optional token bucket and the
// issue time of the last request.
type PoliteFetcher struct {
	cfg Config
	hc  *http.Client
	log zerolog.Logger

	mu    sync.Mutex
	gates map[string]*gate
}

type gate struct {
	sem  *semaphore.Weighted
	lim  *rate.Limiter
	last time.Time
}

func New(cfg Config, hc *http.Client, log zerolog.Logger) *PoliteFetcher {
	if hc == nil {
		hc = NewHTTPClient(10*time.Second, 30*time.Second)
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.Max429 <= 0 {
		cfg.Max429 = 2
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &PoliteFetcher{cfg: cfg, hc: hc, log: log, gates: make(map[string]*gate)}
}

// NewHTTPClient builds a client with separate connect and total timeouts.
func NewHTTPClient(connect, total time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = connect
	return &http.Client{Timeout: total, Transport: tr}
}

// Fetch performs one logical request against domain, retrying 429/5xx/network
// failures with exponential backoff. 403, or Max429 rate-limit responses,
// yield a Banned FetchError immediately.
func (f *PoliteFetcher) Fetch(ctx context.Context, domain string, spec RequestSpec) (*Response, error) {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = "page"
	}

	var (
		lastErr    error
		lastStatus int
		n429       int
	)
	for attempt := 1; ; attempt++ {
		waited, err := f.wait(ctx, domain)
		if err != nil {
			return nil, f.finish(&FetchError{Kind: Canceled, Domain: domain, URL: spec.URL, Status: lastStatus, Attempts: attempt - 1, Err: err}, waited)
		}

		// build a fresh request each attempt
		var body io.Reader
		if spec.Body != nil {
			body = bytes.NewReader(spec.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
		if err != nil {
			return nil, f.finish(&FetchError{Kind: Client, Domain: domain, URL: spec.URL, Attempts: attempt, Err: err}, waited)
		}
		setBrowserHeaders(req, spec.Header)

		start := time.Now()
		resp, err := f.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(domain, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, f.finish(&FetchError{Kind: Canceled, Domain: domain, URL: spec.URL, Attempts: attempt, Err: ctx.Err()}, waited)
			}
			f.log.Debug().Err(err).Str("domain", domain).Int("attempt", attempt).
				Str("err_type", observability.LabelErr(err)).Msg("transport error")
			lastErr, lastStatus = err, 0
		} else {
			lastStatus = resp.StatusCode
			observability.ObserveExternal(domain, endpoint, resp.StatusCode, time.Since(start))

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				b, rerr := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
				resp.Body.Close()
				if rerr == nil {
					f.log.Debug().Str("domain", domain).Str("url", spec.URL).Int("attempt", attempt).
						Dur("wait", waited).Int("status", resp.StatusCode).Str("outcome", "ok").Msg("fetch")
					return &Response{Status: resp.StatusCode, Header: resp.Header, Body: b, Attempts: attempt}, nil
				}
				if ctx.Err() != nil {
					return nil, f.finish(&FetchError{Kind: Canceled, Domain: domain, URL: spec.URL, Attempts: attempt, Err: ctx.Err()}, waited)
				}
				lastErr = fmt.Errorf("read body: %w", rerr)

			case resp.StatusCode == http.StatusForbidden:
				drain(resp)
				return nil, f.finish(&FetchError{Kind: Banned, Domain: domain, URL: spec.URL, Status: resp.StatusCode, Attempts: attempt, Err: errors.New("forbidden")}, waited)

			case resp.StatusCode == http.StatusTooManyRequests:
				n429++
				ra := retryAfter(resp)
				drain(resp)
				if n429 >= f.cfg.Max429 {
					return nil, f.finish(&FetchError{Kind: Banned, Domain: domain, URL: spec.URL, Status: resp.StatusCode, Attempts: attempt, Err: fmt.Errorf("rate limited %d times", n429)}, waited)
				}
				lastErr = errors.New("rate limited")
				if attempt <= f.cfg.MaxRetries {
					if err := f.retryWait(ctx, domain, attempt, ra); err != nil {
						return nil, f.finish(&FetchError{Kind: Canceled, Domain: domain, URL: spec.URL, Status: resp.StatusCode, Attempts: attempt, Err: err}, waited)
					}
					continue
				}

			case resp.StatusCode >= 500:
				ra := retryAfter(resp)
				drain(resp)
				lastErr = fmt.Errorf("remote %d", resp.StatusCode)
				if attempt <= f.cfg.MaxRetries {
					if err := f.retryWait(ctx, domain, attempt, ra); err != nil {
						return nil, f.finish(&FetchError{Kind: Canceled, Domain: domain, URL: spec.URL, Status: resp.StatusCode, Attempts: attempt, Err: err}, waited)
					}
					continue
				}

			default:
				// read a small error body for diagnostics
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
				return nil, f.finish(&FetchError{Kind: Client, Domain: domain, URL: spec.URL, Status: resp.StatusCode, Attempts: attempt,
					Err: fmt.Errorf("bad status: %s", strings.TrimSpace(string(b)))}, waited)
			}
		}

		if attempt > f.cfg.MaxRetries {
			return nil, f.finish(&FetchError{Kind: Transient, Domain: domain, URL: spec.URL, Status: lastStatus, Attempts: attempt, Err: lastErr}, waited)
		}
		f.log.Warn().Str("domain", domain).Str("url", spec.URL).Int("attempt", attempt).
			Int("status", lastStatus).Err(lastErr).Msg("fetch attempt failed")
		if err := f.retryWait(ctx, domain, attempt, 0); err != nil {
			return nil, f.finish(&FetchError{Kind: Canceled, Domain: domain, URL: spec.URL, Status: lastStatus, Attempts: attempt, Err: err}, waited)
		}
	}
}

// wait blocks until a request to domain may be issued: MinInterval since the
// previous issue time, then a uniform jitter. Same-domain callers are serialised.
func (f *PoliteFetcher) wait(ctx context.Context, domain string) (time.Duration, error) {
	g := f.gateFor(domain)
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return time.Since(start), err
	}
	defer g.sem.Release(1)

	if g.lim != nil {
		if err := g.lim.Wait(ctx); err != nil {
			return time.Since(start), err
		}
	}
	if !g.last.IsZero() {
		if d := f.cfg.MinInterval - time.Since(g.last); d > 0 {
			if err := Sleep(ctx, d); err != nil {
				return time.Since(start), err
			}
		}
	}
	if err := Sleep(ctx, f.jitter()); err != nil {
		return time.Since(start), err
	}
	g.last = time.Now()
	return time.Since(start), nil
}

func (f *PoliteFetcher) gateFor(domain string) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[domain]
	if !ok {
		g = &gate{sem: semaphore.NewWeighted(1)}
		if f.cfg.RequestsPerMinute > 0 {
			g.lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(f.cfg.RequestsPerMinute)), 1)
		}
		f.gates[domain] = g
	}
	return g
}

func (f *PoliteFetcher) jitter() time.Duration {
	span := f.cfg.MaxDelay - f.cfg.MinDelay
	if span <= 0 {
		return f.cfg.MinDelay
	}
	return f.cfg.MinDelay + time.Duration(rand.Int64N(int64(span)+1))
}

// retryWait sleeps before the next attempt, preferring a server-provided Retry-After.
func (f *PoliteFetcher) retryWait(ctx context.Context, domain string, attempt int, serverWait time.Duration) error {
	d := serverWait
	if d == 0 {
		d = backoff(f.cfg.BackoffBase, attempt-1)
	}
	observability.ObserveRetry(domain)
	f.log.Debug().Str("domain", domain).Int("attempt", attempt).Dur("backoff", d).Msg("fetch retry scheduled")
	return Sleep(ctx, d)
}

// finish logs the terminal outcome of a failed fetch and returns fe.
func (f *PoliteFetcher) finish(fe *FetchError, waited time.Duration) error {
	ev := f.log.Warn()
	if fe.Kind == Banned {
		observability.ObserveBan(fe.Domain)
		ev = f.log.Error()
	}
	ev.Str("domain", fe.Domain).Str("url", fe.URL).Int("attempt", fe.Attempts).Dur("wait", waited).
		Int("status", fe.Status).Str("outcome", fe.Kind.String()).Err(fe.Err).Msg("fetch failed")
	return fe
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// Sleep waits for d or returns ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns base*2^i plus up to 50% of base as jitter.
func backoff(base time.Duration, i int) time.Duration {
	d := base << i
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return d
	}
	f := float64(b[0]) / 255.0
	return d + time.Duration(0.5*f*float64(base))
}
