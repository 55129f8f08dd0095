package tidepool

// Converter converts HTML to Markdown.
type Converter interface {
	// Convert transforms an HTML content fragment into Markdown.
	// The input should be the extracted content, not a full page.
	Convert(html string) (string, error)
}
