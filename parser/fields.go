package parser

import (
	"regexp"
	"strings"
)

const (
	blobSeparator     = "|"
	toxicPrefix       = "Toxic to "
	commonNamesLabel  = "including:"
	familyLabel       = "Family:"
	scientificLabel   = "Scientific Name:"
	scientificPlLabel = "Scientific Names:"
	commonNameListSep = ","
	toxicityListSep   = ","

	tagDogs = "Dogs"
	tagCats = "Cats"
)

var parenthesized = regexp.MustCompile(`\((.*?)\)`)

// ListingBlob is the auxiliary text of a listing row, split into its labelled parts.
type ListingBlob struct {
	CommonNames    []string
	ScientificName string
	Family         string
}

// ParseListingBlob splits "Name (a, b) | Scientific Names: X | Family: Y".
// Missing segments leave the matching field empty.
func ParseListingBlob(text string) ListingBlob {
	parts := strings.Split(text, blobSeparator)

	blob := ListingBlob{CommonNames: []string{}}
	blob.CommonNames = ParseCommonNames(parts[0])
	if len(parts) > 1 {
		blob.ScientificName = ParseScientificName(parts[1])
	}
	if len(parts) > 2 {
		blob.Family = ParseFamily(parts[2])
	}
	return blob
}

// ParseCommonNames reads the first parenthesized group as a comma-separated list.
func ParseCommonNames(segment string) []string {
	names := []string{}
	match := parenthesized.FindStringSubmatch(segment)
	if len(match) < 2 {
		return names
	}

	cleaned := strings.ReplaceAll(match[1], commonNamesLabel, "")
	for _, name := range strings.Split(cleaned, commonNameListSep) {
		if name = NormalizeText(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ParseScientificName strips the "Scientific Names:" label.
func ParseScientificName(segment string) string {
	segment = strings.Replace(segment, scientificPlLabel, "", 1)
	segment = strings.Replace(segment, scientificLabel, "", 1)
	return NormalizeText(segment)
}

// ParseFamily strips the "Family:" label.
func ParseFamily(segment string) string {
	return NormalizeText(strings.Replace(segment, familyLabel, "", 1))
}

// ParseToxicity flattens toxicity field entries into animal names, dropping the "Toxic to " label.
func ParseToxicity(entries []string) []string {
	out := []string{}
	for _, entry := range entries {
		for _, item := range strings.Split(entry, toxicityListSep) {
			item = strings.TrimPrefix(NormalizeText(item), toxicPrefix)
			if item = NormalizeText(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// FilterPetToxicity keeps the exact "Dogs" and "Cats" tags, first occurrence order.
func FilterPetToxicity(tags []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, 2)
	for _, tag := range tags {
		if !isPetTag(tag) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func isPetTag(tag string) bool {
	return tag == tagDogs || tag == tagCats
}
