package parser

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-plants/models"
)

var (
	// ErrNotApplicable marks a detail page that cannot or should not become a record,
	// such as one without a heading or one not toxic to dogs or cats.
	ErrNotApplicable = errors.New("parser: page not applicable")
	// ErrExtractFailed marks an unexpected failure while reading a detail page.
	ErrExtractFailed = errors.New("parser: extraction failed")
)

const (
	nameSelector            = "h1"
	toxicitySelector        = ".field-name-field-toxicity .values"
	toxicPrinciplesSelector = ".field-name-field-toxic-principles .values"
	clinicalSignsSelector   = ".field-name-field-clinical-signs .values"
)

// DetailExtractor builds plant records from detail pages.
type DetailExtractor struct {
	logger *slog.Logger
}

// NewDetailExtractor builds a DetailExtractor that logs through logger.
func NewDetailExtractor(logger *slog.Logger) *DetailExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailExtractor{logger: logger.With(slog.String("component", "detail_extractor"))}
}

// Extract reads doc into a Plant. It returns ErrNotApplicable when the page has no
// heading or lists neither dogs nor cats, and ErrExtractFailed on anything unexpected.
func (e *DetailExtractor) Extract(doc *goquery.Document, ref models.Reference, baseURL string) (plant *models.Plant, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extracting plant details",
				slog.String("url", ref.URL),
				slog.Any("error", r),
			)
			plant = nil
			err = fmt.Errorf("%w: %v", ErrExtractFailed, r)
		}
	}()

	if doc == nil {
		return nil, fmt.Errorf("%w: nil document for %s", ErrExtractFailed, ref.URL)
	}

	name := NormalizeText(doc.Find(nameSelector).First().Text())
	if name == "" {
		e.logger.Warn("no plant name found", slog.String("url", ref.URL))
		return nil, fmt.Errorf("%w: no plant name on %s", ErrNotApplicable, ref.URL)
	}

	toxicity := FilterPetToxicity(ParseToxicity(fieldEntries(doc, toxicitySelector)))
	if len(toxicity) == 0 {
		e.logger.Debug("plant not toxic to dogs or cats", slog.String("url", ref.URL))
		return nil, fmt.Errorf("%w: %s is not toxic to dogs or cats", ErrNotApplicable, ref.URL)
	}

	return &models.Plant{
		Name:            name,
		CommonNames:     append([]string{}, ref.CommonNames...),
		ScientificName:  ref.ScientificName,
		Family:          ref.Family,
		Toxicity:        toxicity,
		ToxicPrinciples: NormalizeText(doc.Find(toxicPrinciplesSelector).Text()),
		ClinicalSigns:   NormalizeText(doc.Find(clinicalSignsSelector).Text()),
		URL:             ref.URL,
		ImageURL:        ResolveImageURL(doc, baseURL),
	}, nil
}

func fieldEntries(doc *goquery.Document, selector string) []string {
	entries := []string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := NormalizeText(s.Text()); text != "" {
			entries = append(entries, text)
		}
	})
	return entries
}
