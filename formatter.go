package tidepool

import "strings"

// FormatDocs renders extracted documents for display. Each document gets
// a heading from its title, falling back to the source URL, followed by
// its markdown content (plain text when no markdown was rendered).
// Documents are separated by blank lines.
func FormatDocs(docs []*ExtractedDoc) string {
	if len(docs) == 0 {
		return ""
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		header := doc.Title
		if header == "" {
			header = doc.URL
		}
		content := doc.ContentMarkdown
		if content == "" {
			content = doc.ContentText
		}
		parts = append(parts, "## Document: "+header+"\n"+content)
	}

	return strings.Join(parts, "\n\n")
}
