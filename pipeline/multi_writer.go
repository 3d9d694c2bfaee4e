package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-plants/models"
)

// MultiWriter fans every batch out to several writers.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter combines writers; nil entries are ignored.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write hands plants to every writer. A failing writer does not stop the others.
func (mw *MultiWriter) Write(plants []*models.Plant) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Write(plants); err != nil {
			errs = append(errs, fmt.Errorf("writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every writer.
func (mw *MultiWriter) Validate() error {
	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
