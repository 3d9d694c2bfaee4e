package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-plants/config"
	"github.com/aluiziolira/go-scrape-plants/models"
	"github.com/aluiziolira/go-scrape-plants/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Append is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrDuplicateRecord is returned when a plant URL was already written this run.
	ErrDuplicateRecord = errors.New("pipeline: duplicate record")
	// ErrInvalidRecord is returned when a plant fails validation.
	ErrInvalidRecord = errors.New("pipeline: invalid record")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(plants []*models.Plant) error
	Close() error
	Validate() error
}

// Pipeline validates, de-duplicates and appends plants to the output writer.
type Pipeline struct {
	writer OutputWriter
	logger *slog.Logger

	mu     sync.Mutex // guards seen, closed and write ordering
	seen   *lru.Cache[string, struct{}]
	closed bool

	metrics metrics

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline that remembers up to cfg.DedupeMaxSize plant URLs.
func NewPipeline(writer OutputWriter, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if writer == nil {
		return nil, fmt.Errorf("pipeline writer is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	size := cfg.DedupeMaxSize
	if size <= 0 {
		size = config.DefaultConfig().DedupeMaxSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	return &Pipeline{
		writer:   writer,
		logger:   logger.With(slog.String("component", "pipeline")),
		seen:     seen,
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}, nil
}

// Append writes one plant row. Invalid and already-written plants are rejected
// with ErrInvalidRecord and ErrDuplicateRecord.
func (p *Pipeline) Append(plant *models.Plant) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}

	if err := parser.ValidatePlant(plant); err != nil {
		p.metrics.addValidation("invalid_record")
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if p.seen.Contains(plant.URL) {
		p.metrics.addValidation("duplicate_url")
		return ErrDuplicateRecord
	}
	p.seen.Add(plant.URL, struct{}{})

	if err := p.writer.Write([]*models.Plant{plant}); err != nil {
		p.metrics.incrementWriteErrors()
		return fmt.Errorf("write record: %w", err)
	}

	p.metrics.incrementProcessed()
	return nil
}

// Close prevents more submissions and stops progress reporting. It does not close the writer.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				p.logger.Info("pipeline progress",
					slog.Int64("processed", metrics["processed_plants"].(int64)),
					slog.Int64("write_errors", metrics["write_errors"].(int64)),
					slog.Any("validation_errors", metrics["validation_errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

type metrics struct {
	mu          sync.Mutex
	processed   int64
	writeErrors int64
	validation  map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) incrementWriteErrors() {
	m.mu.Lock()
	m.writeErrors++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_plants":  m.processed,
		"write_errors":      m.writeErrors,
		"validation_errors": copyValidation,
	}
}
