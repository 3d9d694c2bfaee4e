package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/aluiziolira/go-scrape-plants/models"
	"github.com/aluiziolira/go-scrape-plants/parser"
	"github.com/aluiziolira/go-scrape-plants/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	pages map[string]string
}

func (sf *stubFetcher) Fetch(_ context.Context, rawURL string) (*goquery.Document, error) {
	page, ok := sf.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("%w after 1 attempts: %w", ErrFetchExhausted, classifyError(errors.New("Not Found"), 404))
	}
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

type scriptedSink struct {
	mu    sync.Mutex
	fail  map[string]error
	names []string
}

func (ss *scriptedSink) Append(plant *models.Plant) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if err := ss.fail[plant.URL]; err != nil {
		return err
	}
	ss.names = append(ss.names, plant.Name)
	return nil
}

func refsFor(n int) ([]models.Reference, map[string]string) {
	refs := make([]models.Reference, 0, n)
	pages := make(map[string]string, n)
	for i := 1; i <= n; i++ {
		url := fmt.Sprintf("%s/plants/%d", testHost, i)
		name := fmt.Sprintf("Plant %d", i)
		refs = append(refs, models.Reference{Name: name, URL: url})
		pages[url] = detailPage(name, "Toxic to Dogs")
	}
	return refs, pages
}

func newTestScheduler(cfg *config.Config, fetcher documentFetcher) (*BatchScheduler, *waitRecorder) {
	recorder := &waitRecorder{}
	b := NewBatchScheduler(fetcher, parser.NewDetailExtractor(testLogger()), cfg, testLogger(), nil)
	b.wait = recorder.wait
	return b, recorder
}

func TestPartition(t *testing.T) {
	refs, _ := refsFor(7)

	var sizes []int
	for _, group := range Partition(refs, 3) {
		sizes = append(sizes, len(group))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Empty(t, Partition(nil, 3))
	assert.Len(t, Partition(refs, 0), 7)
}

func TestBatchSchedulerWaitsBetweenGroups(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 3
	cfg.BatchDelay = 2 * time.Second
	cfg.BatchJitter = 2 * time.Second

	refs, pages := refsFor(7)
	b, recorder := newTestScheduler(cfg, &stubFetcher{pages: pages})

	sink := &scriptedSink{}
	result := b.Run(context.Background(), refs, sink)

	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, 7, result.Saved)
	assert.Empty(t, result.Errors)

	waits := recorder.all()
	require.Len(t, waits, 2)
	for _, w := range waits {
		assert.GreaterOrEqual(t, w, 2*time.Second)
		assert.LessOrEqual(t, w, 4*time.Second)
	}

	var names []string
	for _, p := range result.Plants {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Plant 1", "Plant 2", "Plant 3", "Plant 4", "Plant 5", "Plant 6", "Plant 7"}, names)
	assert.Len(t, sink.names, 7)
}

func TestBatchSchedulerOutcomes(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2

	refs, pages := refsFor(5)
	pages[refs[1].URL] = detailPage("Plant 2", "Toxic to Horses")
	delete(pages, refs[2].URL)

	sink := &scriptedSink{fail: map[string]error{
		refs[3].URL: pipeline.ErrDuplicateRecord,
		refs[4].URL: errors.New("disk full"),
	}}

	b, _ := newTestScheduler(cfg, &stubFetcher{pages: pages})
	result := b.Run(context.Background(), refs, sink)

	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "failed to fetch or process "+refs[2].URL+": "))
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Saved)
	assert.Equal(t, "Plant 1", result.Plants[0].Name)
	assert.Equal(t, "Plant 5", result.Plants[1].Name)
	assert.Equal(t, []string{"Plant 1"}, sink.names)
}

func TestBatchSchedulerStopsWhenCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2

	refs, pages := refsFor(6)
	b, _ := newTestScheduler(cfg, &stubFetcher{pages: pages})

	ctx, cancel := context.WithCancel(context.Background())
	b.wait = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	result := b.Run(ctx, refs, &scriptedSink{})
	assert.Equal(t, 1, result.Batches)
	assert.Equal(t, 2, result.Saved)
}

func TestBatchSchedulerEmpty(t *testing.T) {
	b, recorder := newTestScheduler(testConfig(), &stubFetcher{})
	result := b.Run(context.Background(), nil, &scriptedSink{})

	assert.Zero(t, result.Batches)
	assert.NotNil(t, result.Plants)
	assert.Empty(t, recorder.all())
}

// trackingFetcher records task starts and the peak number of concurrent fetches.
type trackingFetcher struct {
	stubFetcher

	mu       sync.Mutex
	inFlight int
	peak     int
	events   []string
}

func (tf *trackingFetcher) record(event string) {
	tf.mu.Lock()
	tf.events = append(tf.events, event)
	tf.mu.Unlock()
}

func (tf *trackingFetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	tf.mu.Lock()
	tf.inFlight++
	if tf.inFlight > tf.peak {
		tf.peak = tf.inFlight
	}
	tf.events = append(tf.events, rawURL)
	tf.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	tf.mu.Lock()
	tf.inFlight--
	tf.mu.Unlock()
	return tf.stubFetcher.Fetch(ctx, rawURL)
}

func TestBatchSchedulerBoundsConcurrencyAndWaitsBetweenGroups(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 3

	refs, pages := refsFor(7)
	fetcher := &trackingFetcher{stubFetcher: stubFetcher{pages: pages}}
	b, _ := newTestScheduler(cfg, fetcher)
	b.wait = func(ctx context.Context, _ time.Duration) error {
		fetcher.record("WAIT")
		return nil
	}

	result := b.Run(context.Background(), refs, &scriptedSink{})
	require.Equal(t, 7, result.Saved)

	assert.LessOrEqual(t, fetcher.peak, cfg.Concurrency)
	assert.GreaterOrEqual(t, fetcher.peak, 1)

	var groups [][]string
	current := []string{}
	for _, event := range fetcher.events {
		if event == "WAIT" {
			groups = append(groups, current)
			current = []string{}
			continue
		}
		current = append(current, event)
	}
	groups = append(groups, current)

	require.Len(t, groups, 3, "events: %v", fetcher.events)
	for i, group := range Partition(refs, cfg.Concurrency) {
		var want []string
		for _, ref := range group {
			want = append(want, ref.URL)
		}
		assert.ElementsMatch(t, want, groups[i], "group %d", i+1)
	}
}

type panickingSink struct {
	url string
}

func (ps *panickingSink) Append(plant *models.Plant) error {
	if plant.URL == ps.url {
		panic("sink exploded")
	}
	return nil
}

func TestBatchSchedulerRecoversTaskPanic(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2

	refs, pages := refsFor(4)
	b, _ := newTestScheduler(cfg, &stubFetcher{pages: pages})

	result := b.Run(context.Background(), refs, &panickingSink{url: refs[1].URL})

	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "failed to fetch or process "+refs[1].URL+": panic: sink exploded"))
	assert.Equal(t, 3, result.Saved)
	assert.Equal(t, 2, result.Batches)
}

func counterValue(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}
			for _, pair := range metric.GetLabel() {
				if pair.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestBatchSchedulerWriteFailureNotCountedAsSaved(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2

	refs, pages := refsFor(2)
	metrics := NewMetrics()
	b := NewBatchScheduler(&stubFetcher{pages: pages}, parser.NewDetailExtractor(testLogger()), cfg, testLogger(), metrics)
	b.wait = (&waitRecorder{}).wait

	sink := &scriptedSink{fail: map[string]error{refs[1].URL: errors.New("disk full")}}
	result := b.Run(context.Background(), refs, sink)

	assert.Len(t, result.Plants, 2, "failed writes stay in the snapshot")
	assert.Equal(t, 1.0, counterValue(t, metrics, "plant_scraper_plants_saved_total", ""))
	assert.Equal(t, 1.0, counterValue(t, metrics, "plant_scraper_skipped_total", "write_failed"))
}
