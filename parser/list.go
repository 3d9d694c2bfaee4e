package parser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-plants/models"
)

const (
	listingRowSelector  = ".views-row"
	listingLinkSelector = ".views-field-path a"
	listingBlobSelector = ".views-field-path .field-content"
)

// ListExtractor turns a listing page into plant references.
type ListExtractor struct {
	logger *slog.Logger
}

// NewListExtractor builds a ListExtractor that logs through logger.
func NewListExtractor(logger *slog.Logger) *ListExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListExtractor{logger: logger.With(slog.String("component", "list_extractor"))}
}

// Extract returns one reference per usable listing row, in document order.
// Rows without a name or link are skipped; a row that fails to parse is logged and skipped.
func (e *ListExtractor) Extract(doc *goquery.Document, baseURL string) []models.Reference {
	refs := []models.Reference{}
	if doc == nil {
		return refs
	}

	base := parseBaseURL(baseURL)
	doc.Find(listingRowSelector).Each(func(i int, row *goquery.Selection) {
		if ref, ok := e.extractRow(i, row, base); ok {
			refs = append(refs, ref)
		}
	})

	e.logger.Info("extracted plant references", slog.Int("count", len(refs)))
	return refs
}

func (e *ListExtractor) extractRow(index int, row *goquery.Selection, base *url.URL) (ref models.Reference, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("skipping listing row",
				slog.Int("row", index),
				slog.Any("error", r),
			)
			ok = false
		}
	}()

	link := row.Find(listingLinkSelector).First()
	name := NormalizeText(link.Text())
	href := strings.TrimSpace(link.AttrOr("href", ""))
	if name == "" || href == "" {
		return models.Reference{}, false
	}

	blob := ParseListingBlob(row.Find(listingBlobSelector).Text())
	return models.Reference{
		Name:           name,
		URL:            resolveURL(base, href),
		CommonNames:    blob.CommonNames,
		ScientificName: blob.ScientificName,
		Family:         blob.Family,
	}, true
}
