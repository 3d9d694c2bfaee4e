package scraper

import "github.com/aluiziolira/go-scrape-plants/models"

// SourceListing is the references read from one tagged listing page.
type SourceListing struct {
	Tag        string
	References []models.Reference
}

// MergeIndex folds references from several listings into one entry per
// (name, scientific name), keeping first-seen order and collecting source tags.
type MergeIndex struct {
	order   []models.ReferenceKey
	entries map[models.ReferenceKey]*models.Reference
}

func NewMergeIndex() *MergeIndex {
	return &MergeIndex{entries: make(map[models.ReferenceKey]*models.Reference)}
}

// Add records refs as found under tag.
func (m *MergeIndex) Add(tag string, refs []models.Reference) {
	for _, ref := range refs {
		key := ref.Key()
		if existing, ok := m.entries[key]; ok {
			if !containsTag(existing.Sources, tag) {
				existing.Sources = append(existing.Sources, tag)
			}
			continue
		}

		entry := ref
		entry.CommonNames = append([]string(nil), ref.CommonNames...)
		entry.Sources = []string{tag}
		m.entries[key] = &entry
		m.order = append(m.order, key)
	}
}

// References returns the merged references in first-insertion order.
func (m *MergeIndex) References() []models.Reference {
	out := make([]models.Reference, 0, len(m.order))
	for _, key := range m.order {
		entry := *m.entries[key]
		entry.Sources = append([]string(nil), entry.Sources...)
		out = append(out, entry)
	}
	return out
}

// Len is the number of distinct plants seen.
func (m *MergeIndex) Len() int {
	return len(m.order)
}

// Merge combines listings in order.
func Merge(listings []SourceListing) []models.Reference {
	index := NewMergeIndex()
	for _, listing := range listings {
		index.Add(listing.Tag, listing.References)
	}
	return index.References()
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
