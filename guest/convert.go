package guest

import (
	"encoding/json"
	"time"

	"github.com/foofork/tidepool"
)

// EncodeMode converts a host extraction mode to its wire form.
func EncodeMode(m tidepool.ExtractionMode) Mode {
	switch m.Kind {
	case tidepool.ModeFullPage:
		return Mode{Kind: KindFull}
	case tidepool.ModeMetadata:
		return Mode{Kind: KindMetadata}
	case tidepool.ModeCustom:
		return Mode{Kind: KindCustom, Selector: m.Selector}
	default:
		return Mode{Kind: KindArticle}
	}
}

// DecodeMode converts a wire mode back to the host domain. Returns
// EINVALID for kinds the host does not know.
func DecodeMode(m Mode) (tidepool.ExtractionMode, error) {
	switch m.Kind {
	case KindArticle:
		return tidepool.Article(), nil
	case KindFull:
		return tidepool.FullPage(), nil
	case KindMetadata:
		return tidepool.Metadata(), nil
	case KindCustom:
		mode := tidepool.CustomSelector(m.Selector)
		return mode, mode.Validate()
	default:
		return tidepool.ExtractionMode{}, tidepool.Errorf(tidepool.EINVALID, "unknown wire mode %q", m.Kind)
	}
}

// DecodeDocument converts a wire document to a host document. The wire
// URL wins over fallbackURL when both are set. Quality scores are clamped
// to 0-100 and links are deduplicated preserving first occurrence order.
// Unparseable timestamps are dropped rather than failing the call.
func DecodeDocument(d *Document, fallbackURL string) *tidepool.ExtractedDoc {
	doc := &tidepool.ExtractedDoc{
		URL:             d.URL,
		Title:           d.Title,
		Byline:          d.Byline,
		ContentMarkdown: d.Markdown,
		ContentText:     d.Text,
		Links:           dedupe(d.Links),
		Sections:        tidepool.ExtractSections(d.Markdown),
		QualityScore:    clampScore(d.QualityScore),
	}
	if doc.URL == "" {
		doc.URL = fallbackURL
	}
	if d.PublishedISO != "" {
		if ts, err := time.Parse(time.RFC3339, d.PublishedISO); err == nil {
			doc.PublishedAt = ts
		}
	}
	return doc
}

// DecodeError converts a wire error to a host error. Unknown wire codes
// map to EINTERNAL so a newer module never crashes an older host.
func DecodeError(e *Error) error {
	switch e.Code {
	case CodeInvalidHTML, CodeUnsupportedMode:
		return tidepool.Errorf(tidepool.EINVALID, "%s", e.Message)
	case CodeResourceLimit:
		return tidepool.Errorf(tidepool.ERESOURCE, "%s", e.Message)
	case CodeExtractorError, CodeInternalError:
		return tidepool.Errorf(tidepool.EINTERNAL, "%s", e.Message)
	default:
		return tidepool.Errorf(tidepool.EINTERNAL, "module error %s: %s", e.Code, e.Message)
	}
}

// DecodeEnvelope parses a raw module response and converts it to the host
// domain. Malformed or empty envelopes become EINTERNAL errors.
func DecodeEnvelope(data []byte, fallbackURL string) (*tidepool.ExtractedDoc, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, tidepool.Errorf(tidepool.EINTERNAL, "malformed response envelope: %v", err)
	}
	switch {
	case env.Err != nil:
		return nil, DecodeError(env.Err)
	case env.Doc != nil:
		return DecodeDocument(env.Doc, fallbackURL), nil
	default:
		return nil, tidepool.Errorf(tidepool.EINTERNAL, "empty response envelope")
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func dedupe(links []string) []string {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}
