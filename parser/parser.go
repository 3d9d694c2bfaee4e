package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-plants/models"
)

// ValidatePlant ensures the extractor captured the required fields.
func ValidatePlant(p *models.Plant) error {
	if p == nil {
		return fmt.Errorf("plant is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plant missing name")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("plant missing url for %s", p.Name)
	}
	if len(p.Toxicity) == 0 {
		return fmt.Errorf("plant missing toxicity for %s", p.Name)
	}
	for _, t := range p.Toxicity {
		if !isPetTag(t) {
			return fmt.Errorf("plant %s has unexpected toxicity %q", p.Name, t)
		}
	}
	return nil
}

// NormalizeText collapses whitespace runs into single spaces and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// EscapeQuotes doubles every double-quote so the value can sit inside a quoted CSV field.
func EscapeQuotes(text string) string {
	return strings.ReplaceAll(text, `"`, `""`)
}

// SanitizeField normalizes whitespace and escapes quotes for row serialization.
func SanitizeField(text string) string {
	return EscapeQuotes(NormalizeText(text))
}

func parseBaseURL(raw string) *url.URL {
	base, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || base.Host == "" {
		return nil
	}
	return base
}

// resolveURL makes ref absolute against base. Unresolvable references are returned unchanged.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base == nil || parsed.IsAbs() {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
