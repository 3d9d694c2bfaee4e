package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	primaryImageSelector = ".field-name-field-image img"
	contentImageSelector = ".l-content img"
)

var (
	placeholderMarkers = []string{"imageunavailable", "image_placeholder.gif"}
	lazySourceAttrs    = []string{"data-echo", "data-src", "src"}
)

// ResolveImageURL picks the plant image: the dedicated image field first, then the first
// usable image in the content area. It returns "" when no real image is present.
func ResolveImageURL(doc *goquery.Document, baseURL string) string {
	if doc == nil {
		return ""
	}
	base := parseBaseURL(baseURL)

	if src := imageSource(doc.Find(primaryImageSelector).First(), base); src != "" {
		return src
	}

	found := ""
	doc.Find(contentImageSelector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		found = imageSource(img, base)
		return found == ""
	})
	return found
}

func imageSource(img *goquery.Selection, base *url.URL) string {
	if img.Length() == 0 {
		return ""
	}

	if srcset, ok := img.Attr("srcset"); ok {
		if best := lastSrcsetCandidate(srcset); best != "" && !isPlaceholder(best) {
			return resolveURL(base, best)
		}
	}

	for _, attr := range lazySourceAttrs {
		src := strings.TrimSpace(img.AttrOr(attr, ""))
		if src == "" || isPlaceholder(src) {
			continue
		}
		return resolveURL(base, src)
	}
	return ""
}

// lastSrcsetCandidate returns the URL of the last (largest) srcset entry.
func lastSrcsetCandidate(srcset string) string {
	best := ""
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			best = fields[0]
		}
	}
	return best
}

func isPlaceholder(src string) bool {
	for _, marker := range placeholderMarkers {
		if strings.Contains(src, marker) {
			return true
		}
	}
	return false
}
