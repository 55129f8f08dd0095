package tidepool

import "time"

// ExtractedDoc is the result of extracting content from an HTML page.
type ExtractedDoc struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Byline          string    `json:"byline,omitempty"`
	PublishedAt     time.Time `json:"publishedAt,omitzero"`
	ContentMarkdown string    `json:"contentMarkdown"`
	ContentText     string    `json:"contentText"`

	// Links holds absolute URLs found in the extracted content, in first
	// occurrence order with duplicates removed.
	Links []string `json:"links,omitempty"`

	// Sections is the heading outline of ContentMarkdown. Empty when no
	// markdown was rendered.
	Sections []Section `json:"sections,omitempty"`

	// QualityScore is a 0-100 heuristic confidence in the extraction.
	QualityScore int `json:"qualityScore"`

	Metadata ExtractionMetadata `json:"metadata"`
}

// ExtractionMetadata records how a document was produced.
type ExtractionMetadata struct {
	// Strategy names the extractor and mode that produced the document,
	// e.g. "wasm:article" or "goquery:full_page".
	Strategy string `json:"strategy"`

	// UsedFallback is true when the sandbox did not produce the document.
	UsedFallback bool `json:"usedFallback"`

	// Duration is the elapsed wall clock time of the call.
	Duration time.Duration `json:"duration"`

	// PeakMemoryPages is the highest sandbox memory page count observed
	// during the call. Zero for fallback extractions.
	PeakMemoryPages uint32 `json:"peakMemoryPages,omitempty"`
}

// Validate returns an error if the document contains invalid fields.
func (d *ExtractedDoc) Validate() error {
	if d.URL == "" {
		return Errorf(EINVALID, "document URL required")
	}
	if d.QualityScore < 0 || d.QualityScore > 100 {
		return Errorf(EINVALID, "quality score %d outside 0-100", d.QualityScore)
	}
	return nil
}
