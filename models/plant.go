// Package models defines data structures for the scraper.
package models

import "time"

// Reference is a plant row taken from a listing page, before its detail page is read.
type Reference struct {
	Name           string   `json:"name"`
	URL            string   `json:"url"`
	CommonNames    []string `json:"common_names"`
	ScientificName string   `json:"scientific_name"`
	Family         string   `json:"family"`
	Sources        []string `json:"sources"`
}

// ReferenceKey identifies a plant across listing pages.
type ReferenceKey struct {
	Name           string
	ScientificName string
}

// Key returns the identity used for deduplication.
func (r Reference) Key() ReferenceKey {
	return ReferenceKey{Name: r.Name, ScientificName: r.ScientificName}
}

// Plant is a fully enriched record built from a detail page.
type Plant struct {
	Name            string   `json:"name"`
	CommonNames     []string `json:"commonNames"`
	ScientificName  string   `json:"scientificName"`
	Family          string   `json:"family"`
	Toxicity        []string `json:"toxicity"`
	ToxicPrinciples string   `json:"toxicPrinciples"`
	ClinicalSigns   string   `json:"clinicalSigns"`
	URL             string   `json:"url"`
	ImageURL        string   `json:"imageUrl,omitempty"`
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	Plants       []*Plant
	Errors       []string
	StartTime    time.Time
	EndTime      time.Time
	References   int
	Saved        int
	Skipped      int
	Duplicates   int
	Batches      int
	ErrorsByType map[string]int
	RetryCount   int
	RequestCount int
}
