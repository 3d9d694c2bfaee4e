package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/gocolly/colly/v2"
)

const (
	ctxKeyPhase  = "phase"
	ctxKeyStart  = "start"
	ctxKeyBody   = "body"
	ctxKeyStatus = "status"
)

// Fetcher downloads pages through a colly collector with politeness delays and retries.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	headers   http.Header
	logger    *slog.Logger
	metrics   *Metrics

	wait    waitFunc
	uniform uniformFunc

	requestCount int64
	retryCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewFetcher builds a synchronous collector restricted to the configured source hosts.
func NewFetcher(cfg *config.Config, logger *slog.Logger, metrics *Metrics) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(cfg.AllowedHosts()...),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	headers := http.Header{}
	headers.Set("User-Agent", cfg.UserAgent)
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	headers.Set("Accept-Language", "en-US,en;q=0.5")
	headers.Set("Upgrade-Insecure-Requests", "1")

	f := &Fetcher{
		cfg:          cfg,
		collector:    collector,
		headers:      headers,
		logger:       logger.With(slog.String("component", "fetcher")),
		metrics:      metrics,
		wait:         sleepCtx,
		uniform:      randomBetween,
		errorsByType: make(map[string]int),
	}
	f.registerHandlers()
	return f, nil
}

func (f *Fetcher) registerHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxKeyStart, time.Now())
		atomic.AddInt64(&f.requestCount, 1)
		f.metrics.IncRequest(r.Ctx.Get(ctxKeyPhase))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxKeyBody, r.Body)
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		f.observe(r.Ctx)
	})

	f.collector.OnError(func(r *colly.Response, _ error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		f.observe(r.Ctx)
	})
}

func (f *Fetcher) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny(ctxKeyStart).(time.Time); ok {
		f.metrics.ObserveDuration(ctx.Get(ctxKeyPhase), time.Since(start))
	}
}

// AllowHosts extends the collector allow-list. It must not run concurrently with fetches.
func (f *Fetcher) AllowHosts(hosts ...string) {
	if len(f.collector.AllowedDomains) == 0 {
		return
	}
	for _, host := range hosts {
		if host != "" && !slices.Contains(f.collector.AllowedDomains, host) {
			f.collector.AllowedDomains = append(f.collector.AllowedDomains, host)
		}
	}
}

// Fetch downloads a detail page and parses it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	return f.fetch(ctx, rawURL, phaseDetail)
}

// fetch waits a random politeness delay before every attempt and backs off
// exponentially between failed attempts. MaxRetries counts every attempt.
func (f *Fetcher) fetch(ctx context.Context, rawURL, phase string) (*goquery.Document, error) {
	attempts := f.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&f.retryCount, 1)
			f.metrics.IncRetries()

			backoff := f.backoff(attempt - 1)
			f.logger.Warn("retrying request",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", attempts),
				slog.Duration("backoff", backoff),
				slog.Any("error", lastErr),
			)
			if err := f.wait(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if err := f.wait(ctx, f.uniform(f.cfg.DelayMin, f.cfg.DelayMax)); err != nil {
			return nil, err
		}

		doc, err := f.do(rawURL, phase)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		f.recordError(rawURL, err)
		if isRejected(err) {
			f.logger.Warn("request rejected by collector", slog.String("url", rawURL), slog.Any("error", err))
			return nil, fmt.Errorf("request not sent: %w", err)
		}
	}

	f.logger.Error("giving up on url",
		slog.String("url", rawURL),
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr),
	)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrFetchExhausted, attempts, lastErr)
}

func (f *Fetcher) do(rawURL, phase string) (*goquery.Document, error) {
	reqCtx := colly.NewContext()
	reqCtx.Put(ctxKeyPhase, phase)

	err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, f.headers.Clone())
	status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
	if err != nil {
		return nil, classifyError(err, status)
	}

	body, ok := reqCtx.GetAny(ctxKeyBody).([]byte)
	if !ok {
		return nil, classifyError(errors.New("no response body"), status)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", rawURL, err)
	}
	return doc, nil
}

// backoff returns RetryBackoff * 2^attempt plus jitter in [0, RetryJitter].
func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}

	delay := f.cfg.RetryBackoff * time.Duration(1<<attempt)
	delay += f.uniform(0, f.cfg.RetryJitter)
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (f *Fetcher) recordError(rawURL string, err error) {
	category := errorTypeLabel(err)

	f.mu.Lock()
	f.errorsByType[category]++
	f.mu.Unlock()

	f.metrics.IncError(category)
	f.logger.Debug("request failed",
		slog.String("url", rawURL),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

// RequestCount is the number of HTTP requests issued so far.
func (f *Fetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// RetryCount is the number of attempts made after a failed attempt.
func (f *Fetcher) RetryCount() int {
	return int(atomic.LoadInt64(&f.retryCount))
}

// ErrorsByType returns a copy of the failed-attempt counts per error type.
func (f *Fetcher) ErrorsByType() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		out[k] = v
	}
	return out
}
