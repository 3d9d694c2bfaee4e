package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/aluiziolira/go-scrape-plants/models"
)

type mockWriter struct {
	mu       sync.Mutex
	batches  [][]*models.Plant
	closed   bool
	writeErr error
}

func (mw *mockWriter) Write(plants []*models.Plant) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.Plant, len(plants))
	copy(copyBatch, plants)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return nil
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func newTestPipeline(t *testing.T, writer OutputWriter, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(writer, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestPipelineAppendValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, config.DefaultConfig())

	valid := samplePlant()
	invalid := samplePlant()
	invalid.Name = ""
	duplicate := samplePlant()

	if err := p.Append(valid); err != nil {
		t.Fatalf("append valid: %v", err)
	}
	if err := p.Append(invalid); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("append invalid: got %v, want ErrInvalidRecord", err)
	}
	if err := p.Append(duplicate); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("append duplicate: got %v, want ErrDuplicateRecord", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written plants = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	if processed := metrics["processed_plants"].(int64); processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_url"] == 0 {
		t.Fatalf("expected duplicate_url validation error")
	}
}

func TestPipelineAppendAfterClose(t *testing.T) {
	p := newTestPipeline(t, &mockWriter{}, config.DefaultConfig())
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Append(samplePlant()); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("append after close: got %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineWriteErrorCounted(t *testing.T) {
	writer := &mockWriter{writeErr: errors.New("disk full")}
	p := newTestPipeline(t, writer, config.DefaultConfig())

	if err := p.Append(samplePlant()); err == nil {
		t.Fatalf("expected write error")
	}
	if got := p.GetMetrics()["write_errors"].(int64); got != 1 {
		t.Fatalf("write errors = %d, want 1", got)
	}
}

func TestPipelineConcurrentAppends(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer, config.DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plant := samplePlant()
			plant.URL = "http://example.test/plants/" + strconv.Itoa(i%50)
			_ = p.Append(plant)
		}(i)
	}
	wg.Wait()

	if got := writer.totalWritten(); got != 50 {
		t.Fatalf("written plants = %d, want 50", got)
	}
}

func TestNewPipelineRejectsNilWriter(t *testing.T) {
	if _, err := NewPipeline(nil, config.DefaultConfig(), nil); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}
