// Package trafilatura implements an article extractor on top of
// go-trafilatura's content detection. It handles the article and
// metadata modes; page-wide and selector-driven extraction belong to the
// goquery extractor.
package trafilatura

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"

	"github.com/foofork/tidepool"
)

// Extractor wraps go-trafilatura to extract main content from HTML.
type Extractor struct {
	converter tidepool.Converter
}

// NewExtractor creates an Extractor. The converter renders content
// Markdown; when nil, documents carry text only.
func NewExtractor(converter tidepool.Converter) *Extractor {
	return &Extractor{converter: converter}
}

// Extract processes raw HTML fetched from pageURL. Only the article and
// metadata modes are supported.
func (e *Extractor) Extract(ctx context.Context, rawHTML, pageURL string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode.Kind != tidepool.ModeArticle && mode.Kind != tidepool.ModeMetadata {
		return nil, tidepool.Errorf(tidepool.EINVALID, "mode %s not supported by the trafilatura extractor", mode.Kind)
	}
	if rawHTML == "" {
		return nil, tidepool.Errorf(tidepool.EINVALID, "empty HTML input")
	}

	opts := trafilatura.Options{
		EnableFallback: true,
	}
	if parsed, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = parsed
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil {
		return nil, tidepool.Errorf(tidepool.EINTERNAL, "trafilatura: %v", err)
	}

	doc := &tidepool.ExtractedDoc{
		URL:         pageURL,
		Title:       result.Metadata.Title,
		Byline:      result.Metadata.Author,
		PublishedAt: result.Metadata.Date,
		Metadata: tidepool.ExtractionMetadata{
			Strategy: "trafilatura:" + mode.String(),
		},
	}

	if mode.Kind == tidepool.ModeArticle {
		doc.ContentText = strings.TrimSpace(result.ContentText)
		if e.converter != nil && result.ContentNode != nil {
			if contentHTML, err := renderNode(result.ContentNode); err == nil {
				if md, err := e.converter.Convert(contentHTML); err == nil {
					doc.ContentMarkdown = strings.TrimSpace(md)
					doc.Sections = tidepool.ExtractSections(doc.ContentMarkdown)
				}
			}
		}
	}

	doc.QualityScore = tidepool.ScoreExtraction(
		doc.Title != "",
		doc.Byline != "",
		!doc.PublishedAt.IsZero(),
		len(strings.Fields(doc.ContentText)),
		0,
	)
	return doc, nil
}

// renderNode converts an html.Node to a string.
func renderNode(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
