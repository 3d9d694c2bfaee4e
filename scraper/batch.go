package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/aluiziolira/go-scrape-plants/models"
	"github.com/aluiziolira/go-scrape-plants/parser"
	"github.com/aluiziolira/go-scrape-plants/pipeline"
	"golang.org/x/sync/errgroup"
)

// Sink receives each plant as soon as it is extracted.
type Sink interface {
	Append(plant *models.Plant) error
}

type documentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// BatchScheduler runs detail fetches in groups of bounded size, waiting for a
// whole group before starting the next one.
type BatchScheduler struct {
	fetcher     documentFetcher
	extractor   *parser.DetailExtractor
	size        int
	batchDelay  time.Duration
	batchJitter time.Duration
	logger      *slog.Logger
	metrics     *Metrics

	wait    waitFunc
	uniform uniformFunc
}

// NewBatchScheduler builds a scheduler using cfg.Concurrency, cfg.BatchDelay and cfg.BatchJitter.
func NewBatchScheduler(fetcher documentFetcher, extractor *parser.DetailExtractor, cfg *config.Config, logger *slog.Logger, metrics *Metrics) *BatchScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchScheduler{
		fetcher:     fetcher,
		extractor:   extractor,
		size:        cfg.Concurrency,
		batchDelay:  cfg.BatchDelay,
		batchJitter: cfg.BatchJitter,
		logger:      logger.With(slog.String("component", "batch_scheduler")),
		metrics:     metrics,
		wait:        sleepCtx,
		uniform:     randomBetween,
	}
}

// Partition splits refs into consecutive groups of at most size elements.
func Partition(refs []models.Reference, size int) [][]models.Reference {
	if size < 1 {
		size = 1
	}
	groups := make([][]models.Reference, 0, (len(refs)+size-1)/size)
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		groups = append(groups, refs[start:end])
	}
	return groups
}

type taskOutcome struct {
	plant     *models.Plant
	err       error
	skipped   bool
	duplicate bool
}

// Run processes refs group by group and aggregates the outcomes. Cancelling ctx
// stops the run before the next group starts.
func (b *BatchScheduler) Run(ctx context.Context, refs []models.Reference, sink Sink) *models.ScraperResult {
	result := &models.ScraperResult{
		Plants: []*models.Plant{},
		Errors: []string{},
	}

	groups := Partition(refs, b.size)
	for i, group := range groups {
		if err := ctx.Err(); err != nil {
			b.logger.Warn("stopping before batch", slog.Int("batch", i+1), slog.Any("error", err))
			break
		}

		b.logger.Info("processing batch",
			slog.Int("batch", i+1),
			slog.Int("batches", len(groups)),
			slog.Int("size", len(group)),
		)

		outcomes := make([]taskOutcome, len(group))
		var g errgroup.Group
		for j, ref := range group {
			j, ref := j, ref
			g.Go(func() error {
				outcomes[j] = b.safeProcess(ctx, ref, sink)
				return nil
			})
		}
		_ = g.Wait()

		for _, outcome := range outcomes {
			switch {
			case outcome.err != nil:
				result.Errors = append(result.Errors, outcome.err.Error())
			case outcome.skipped:
				result.Skipped++
			case outcome.duplicate:
				result.Duplicates++
			case outcome.plant != nil:
				result.Plants = append(result.Plants, outcome.plant)
			}
		}
		result.Batches++
		b.metrics.IncBatches()

		if i == len(groups)-1 {
			break
		}
		pause := b.uniform(b.batchDelay, b.batchDelay+b.batchJitter)
		b.logger.Debug("waiting before next batch", slog.Duration("delay", pause))
		if err := b.wait(ctx, pause); err != nil {
			b.logger.Warn("batch delay interrupted", slog.Any("error", err))
			break
		}
	}

	result.Saved = len(result.Plants)
	return result
}

// safeProcess turns a panic anywhere in the task into an item error.
func (b *BatchScheduler) safeProcess(ctx context.Context, ref models.Reference, sink Sink) (outcome taskOutcome) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("task panicked", slog.String("url", ref.URL), slog.Any("panic", r))
			outcome = taskOutcome{err: fmt.Errorf("failed to fetch or process %s: panic: %v", ref.URL, r)}
		}
	}()
	return b.process(ctx, ref, sink)
}

func (b *BatchScheduler) process(ctx context.Context, ref models.Reference, sink Sink) taskOutcome {
	doc, err := b.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return taskOutcome{err: fmt.Errorf("failed to fetch or process %s: %w", ref.URL, err)}
	}

	plant, err := b.extractor.Extract(doc, ref, ref.URL)
	if errors.Is(err, parser.ErrNotApplicable) {
		b.metrics.IncSkipped("not_applicable")
		return taskOutcome{skipped: true}
	}
	if err != nil {
		return taskOutcome{err: fmt.Errorf("failed to fetch or process %s: %w", ref.URL, err)}
	}

	if err := sink.Append(plant); err != nil {
		if errors.Is(err, pipeline.ErrDuplicateRecord) {
			b.metrics.IncSkipped("duplicate")
			return taskOutcome{duplicate: true}
		}
		b.logger.Error("appending plant", slog.String("url", plant.URL), slog.Any("error", err))
		b.metrics.IncSkipped("write_failed")
		return taskOutcome{plant: plant}
	}

	b.metrics.IncSaved()
	b.logger.Debug("plant saved", slog.String("name", plant.Name), slog.String("url", plant.URL))
	return taskOutcome{plant: plant}
}
