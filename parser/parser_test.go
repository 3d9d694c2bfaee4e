package parser

import (
	"reflect"
	"testing"

	"github.com/aluiziolira/go-scrape-plants/models"
)

func TestValidatePlant(t *testing.T) {
	tests := []struct {
		name    string
		plant   *models.Plant
		wantErr bool
	}{
		{
			name: "valid plant",
			plant: &models.Plant{
				Name:     "Aloe",
				Toxicity: []string{"Dogs", "Cats"},
				URL:      "http://example.test/aloe",
			},
			wantErr: false,
		},
		{
			name:    "nil plant",
			plant:   nil,
			wantErr: true,
		},
		{
			name: "missing name",
			plant: &models.Plant{
				Toxicity: []string{"Dogs"},
				URL:      "http://example.test/aloe",
			},
			wantErr: true,
		},
		{
			name: "missing url",
			plant: &models.Plant{
				Name:     "Aloe",
				Toxicity: []string{"Dogs"},
			},
			wantErr: true,
		},
		{
			name: "non pet toxicity",
			plant: &models.Plant{
				Name:     "Aloe",
				Toxicity: []string{"Horses"},
				URL:      "http://example.test/aloe",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlant(tt.plant)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlant() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "surrounding whitespace", input: "  Aloe  ", expected: "Aloe"},
		{name: "internal runs", input: "Vomiting,\n\t  depression", expected: "Vomiting, depression"},
		{name: "quotes untouched", input: `say "hi"`, expected: `say "hi"`},
		{name: "empty string", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.expected {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "embedded quote", input: `Devil's "Ivy"`, expected: `Devil's ""Ivy""`},
		{name: "whitespace and quote", input: "  a \n \"b\"  ", expected: `a ""b""`},
		{name: "plain", input: "Araceae", expected: "Araceae"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeField(tt.input); got != tt.expected {
				t.Errorf("SanitizeField(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseListingBlob(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ListingBlob
	}{
		{
			name:  "all segments",
			input: "Adam-and-Eve (Arum, Lord-and-Ladies, Wake Robin) | Scientific Names: Arum maculatum | Family: Araceae",
			expected: ListingBlob{
				CommonNames:    []string{"Arum", "Lord-and-Ladies", "Wake Robin"},
				ScientificName: "Arum maculatum",
				Family:         "Araceae",
			},
		},
		{
			name:  "including label",
			input: "Lily (including: Easter Lily, Tiger Lily,) | Scientific Names: Lilium sp. | Family: Liliaceae",
			expected: ListingBlob{
				CommonNames:    []string{"Easter Lily", "Tiger Lily"},
				ScientificName: "Lilium sp.",
				Family:         "Liliaceae",
			},
		},
		{
			name:  "no common names",
			input: "Aloe | Scientific Names: Aloe vera | Family: Liliaceae",
			expected: ListingBlob{
				CommonNames:    []string{},
				ScientificName: "Aloe vera",
				Family:         "Liliaceae",
			},
		},
		{
			name:  "missing family",
			input: "Aloe | Scientific Name: Aloe vera",
			expected: ListingBlob{
				CommonNames:    []string{},
				ScientificName: "Aloe vera",
			},
		},
		{
			name:     "empty",
			input:    "",
			expected: ListingBlob{CommonNames: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseListingBlob(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseListingBlob(%q) = %+v, want %+v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseToxicity(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		parsed   []string
		filtered []string
	}{
		{
			name:     "horses only",
			input:    []string{"Toxic to Horses"},
			parsed:   []string{"Horses"},
			filtered: []string{},
		},
		{
			name:     "dogs and horses",
			input:    []string{"Toxic to Dogs, Horses"},
			parsed:   []string{"Dogs", "Horses"},
			filtered: []string{"Dogs"},
		},
		{
			name:     "separate entries",
			input:    []string{"Toxic to Dogs", "Toxic to Cats", "Toxic to Horses"},
			parsed:   []string{"Dogs", "Cats", "Horses"},
			filtered: []string{"Dogs", "Cats"},
		},
		{
			name:     "repeated tag",
			input:    []string{"Toxic to Cats, Toxic to Cats"},
			parsed:   []string{"Cats", "Cats"},
			filtered: []string{"Cats"},
		},
		{
			name:     "non toxic wording",
			input:    []string{"Non-Toxic to Dogs"},
			parsed:   []string{"Non-Toxic to Dogs"},
			filtered: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseToxicity(tt.input)
			if !reflect.DeepEqual(parsed, tt.parsed) {
				t.Fatalf("ParseToxicity(%v) = %v, want %v", tt.input, parsed, tt.parsed)
			}
			if filtered := FilterPetToxicity(parsed); !reflect.DeepEqual(filtered, tt.filtered) {
				t.Fatalf("FilterPetToxicity(%v) = %v, want %v", parsed, filtered, tt.filtered)
			}
		})
	}
}
