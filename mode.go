package tidepool

// ModeKind identifies an extraction mode.
type ModeKind string

// Extraction mode kinds.
const (
	ModeArticle  ModeKind = "article"
	ModeFullPage ModeKind = "full_page"
	ModeMetadata ModeKind = "metadata"
	ModeCustom   ModeKind = "custom"
)

// ExtractionMode selects what an extractor pulls out of a page. The zero
// value is invalid; use one of the constructors.
type ExtractionMode struct {
	Kind ModeKind `json:"kind"`

	// Selector is the CSS selector for ModeCustom. Empty for other kinds.
	Selector string `json:"selector,omitempty"`
}

// Article returns the mode that extracts the main article content.
func Article() ExtractionMode { return ExtractionMode{Kind: ModeArticle} }

// FullPage returns the mode that extracts the whole page body.
func FullPage() ExtractionMode { return ExtractionMode{Kind: ModeFullPage} }

// Metadata returns the mode that extracts page metadata only.
func Metadata() ExtractionMode { return ExtractionMode{Kind: ModeMetadata} }

// CustomSelector returns the mode that extracts content matching a CSS
// selector.
func CustomSelector(selector string) ExtractionMode {
	return ExtractionMode{Kind: ModeCustom, Selector: selector}
}

// Validate returns an error if the mode is malformed.
func (m ExtractionMode) Validate() error {
	switch m.Kind {
	case ModeArticle, ModeFullPage, ModeMetadata:
		if m.Selector != "" {
			return Errorf(EINVALID, "selector not allowed for %s mode", m.Kind)
		}
		return nil
	case ModeCustom:
		if m.Selector == "" {
			return Errorf(EINVALID, "custom mode requires a selector")
		}
		return nil
	default:
		return Errorf(EINVALID, "unknown extraction mode %q", string(m.Kind))
	}
}

// String returns the mode as a log-friendly label.
func (m ExtractionMode) String() string {
	if m.Kind == ModeCustom {
		return string(m.Kind) + ":" + m.Selector
	}
	return string(m.Kind)
}
