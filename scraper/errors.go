package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gocolly/colly/v2"
)

// ErrFetchExhausted is returned once every attempt for a URL has failed.
var ErrFetchExhausted = errors.New("fetch exhausted")

// Failure kinds reported in metrics and ScraperResult.ErrorsByType.
const (
	KindTimeout     = "timeout"
	KindConnection  = "connection"
	KindForbidden   = "forbidden"
	KindNotFound    = "not_found"
	KindRateLimited = "rate_limited"
	KindRejected    = "rejected"
	KindOther       = "other"
)

// rejectedErrors are raised by the collector before any request is sent. Retrying
// them cannot succeed.
var rejectedErrors = []error{
	colly.ErrForbiddenDomain,
	colly.ErrForbiddenURL,
	colly.ErrMissingURL,
	colly.ErrNoURLFiltersMatch,
	colly.ErrRobotsTxtBlocked,
	colly.ErrMaxDepth,
}

// FetchError is a classified request failure.
type FetchError struct {
	Kind       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return KindOther
}

// classifyError maps a transport error and response status onto a FetchError.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}

	for _, rejected := range rejectedErrors {
		if errors.Is(err, rejected) {
			return &FetchError{Kind: KindRejected, Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &FetchError{Kind: KindConnection, Err: err}
	}

	kind := KindOther
	switch statusCode {
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	return &FetchError{Kind: kind, StatusCode: statusCode, Err: err}
}

func isRejected(err error) bool {
	return errorTypeLabel(err) == KindRejected
}
