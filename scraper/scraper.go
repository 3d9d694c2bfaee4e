// Package scraper crawls the plant listings and their detail pages.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/aluiziolira/go-scrape-plants/models"
	"github.com/aluiziolira/go-scrape-plants/parser"
)

// Scraper reads every configured listing, merges the references and runs the
// detail phase in batches.
type Scraper struct {
	cfg       *config.Config
	logger    *slog.Logger
	fetcher   *Fetcher
	lists     *parser.ListExtractor
	scheduler *BatchScheduler
	Metrics   *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "scraper")),
		fetcher:   fetcher,
		lists:     parser.NewListExtractor(logger),
		scheduler: NewBatchScheduler(fetcher, parser.NewDetailExtractor(logger), cfg, logger, metrics),
		Metrics:   metrics,
	}, nil
}

// CollectReferences fetches each source listing in order and merges the
// references. A listing that cannot be fetched is reported in the returned
// error strings and the remaining sources are still read.
func (s *Scraper) CollectReferences(ctx context.Context) ([]models.Reference, []string) {
	index := NewMergeIndex()
	var failures []string

	for _, src := range s.cfg.Sources {
		if ctx.Err() != nil {
			break
		}

		s.logger.Info("fetching plant list", slog.String("tag", src.Tag), slog.String("url", src.URL))
		doc, err := s.fetcher.fetch(ctx, src.URL, phaseListing)
		if err != nil {
			s.logger.Error("fetching plant list",
				slog.String("tag", src.Tag),
				slog.String("url", src.URL),
				slog.Any("error", err),
			)
			failures = append(failures, fmt.Sprintf("failed to fetch plant list for %s", src.Tag))
			continue
		}

		refs := s.lists.Extract(doc, origin(src.URL))
		index.Add(src.Tag, refs)
		s.logger.Info("plant list parsed",
			slog.String("tag", src.Tag),
			slog.Int("plants", len(refs)),
			slog.Int("unique_total", index.Len()),
		)
	}

	return index.References(), failures
}

// Run crawls everything and appends each plant to sink as it is extracted.
// The returned error is non-nil only when ctx ended the run early; the partial
// result is still returned.
func (s *Scraper) Run(ctx context.Context, sink Sink) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sink == nil {
		return nil, fmt.Errorf("scraper sink is nil")
	}

	start := time.Now()
	refs, failures := s.CollectReferences(ctx)
	if s.cfg.Limit > 0 && len(refs) > s.cfg.Limit {
		s.logger.Info("limiting references", slog.Int("found", len(refs)), slog.Int("limit", s.cfg.Limit))
		refs = refs[:s.cfg.Limit]
	}
	s.fetcher.AllowHosts(referenceHosts(refs)...)
	s.logger.Info("starting detail phase",
		slog.Int("plants", len(refs)),
		slog.Int("concurrency", s.cfg.Concurrency),
	)

	result := s.scheduler.Run(ctx, refs, sink)
	result.Errors = append(failures, result.Errors...)
	if result.Errors == nil {
		result.Errors = []string{}
	}
	result.References = len(refs)
	result.StartTime = start
	result.EndTime = time.Now()
	result.RequestCount = s.fetcher.RequestCount()
	result.RetryCount = s.fetcher.RetryCount()
	result.ErrorsByType = s.fetcher.ErrorsByType()

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("scrape interrupted: %w", err)
	}
	return result, nil
}

func origin(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	return parsed.Scheme + "://" + parsed.Host
}

func referenceHosts(refs []models.Reference) []string {
	hosts := make([]string, 0, len(refs))
	for _, ref := range refs {
		if parsed, err := url.Parse(ref.URL); err == nil && parsed.Hostname() != "" {
			hosts = append(hosts, parsed.Hostname())
		}
	}
	return hosts
}
