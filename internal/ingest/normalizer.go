package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var descriptionPolicy = bluemonday.UGCPolicy()

// blockSelectors end a line when a description is flattened to text.
const blockSelectors = "p, div, li, br, tr, h1, h2, h3, h4, h5, h6"

// TruncateText cuts a string to maxLen runes, appending an ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen > 3 {
		return string(runes[:maxLen-3]) + "..."
	}
	return string(runes[:maxLen])
}

// DescriptionText flattens a TenderNed description (plain text or HTML) to
// single-spaced text for keyword matching.
func DescriptionText(s string) string {
	if !strings.Contains(s, "<") {
		return normalizeSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normalizeSpace(s)
	}
	doc.Find("script, style").Remove()
	doc.Find(blockSelectors).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return normalizeSpace(doc.Text())
}

// SanitizeHTML keeps only user-content-safe markup of a description for display.
func SanitizeHTML(s string) string {
	return strings.TrimSpace(descriptionPolicy.Sanitize(s))
}
