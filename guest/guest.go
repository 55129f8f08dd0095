// Package guest defines the wire schema spoken by the sandboxed extractor
// module and the conversions between it and the host domain. The two
// vocabularies are kept independent so the module ABI can evolve without
// leaking into host types.
//
// Requests carry a Mode record; responses carry an Envelope holding either
// a Document or an Error. All records cross the sandbox boundary as JSON.
package guest

// Mode is the extraction mode record sent to the module.
type Mode struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector,omitempty"`
}

// Wire mode kinds. Note "full" versus the host's "full_page".
const (
	KindArticle  = "article"
	KindFull     = "full"
	KindMetadata = "metadata"
	KindCustom   = "custom"
)

// Document is the extraction result record produced by the module.
type Document struct {
	URL          string   `json:"url,omitempty"`
	Title        string   `json:"title,omitempty"`
	Byline       string   `json:"byline,omitempty"`
	PublishedISO string   `json:"published_iso,omitempty"`
	Markdown     string   `json:"markdown"`
	Text         string   `json:"text"`
	Links        []string `json:"links,omitempty"`
	QualityScore int      `json:"quality_score"`
}

// Error is the failure record produced by the module.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Wire error codes.
const (
	CodeInvalidHTML     = "invalid-html"
	CodeUnsupportedMode = "unsupported-mode"
	CodeResourceLimit   = "resource-limit"
	CodeExtractorError  = "extractor-error"
	CodeInternalError   = "internal-error"
)

// Envelope is the module's response. Exactly one of Doc or Err is set; a
// set Err wins if a module ever populates both.
type Envelope struct {
	Doc *Document `json:"doc,omitempty"`
	Err *Error    `json:"err,omitempty"`
}

// Info is the module's self-description returned by its info export.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
