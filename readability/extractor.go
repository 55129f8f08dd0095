// Package readability implements an article extractor on top of
// go-readability's Arc90 content scoring. Like the trafilatura
// extractor, it handles the article and metadata modes only.
package readability

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/foofork/tidepool"
)

// Extractor wraps go-readability to extract main content from HTML.
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
		return nil, tidepool.Errorf(tidepool.EINVALID, "mode %s not supported by the readability extractor", mode.Kind)
	}
	if rawHTML == "" {
		return nil, tidepool.Errorf(tidepool.EINVALID, "empty HTML input")
	}

	parsed, _ := url.Parse(pageURL)

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		return nil, tidepool.Errorf(tidepool.EINVALID, "readability: %v", err)
	}

	doc := &tidepool.ExtractedDoc{
		URL:    pageURL,
		Title:  article.Title,
		Byline: article.Byline,
		Metadata: tidepool.ExtractionMetadata{
			Strategy: "readability:" + mode.String(),
		},
	}
	if article.PublishedTime != nil {
		doc.PublishedAt = *article.PublishedTime
	}

	if mode.Kind == tidepool.ModeArticle {
		doc.ContentText = strings.TrimSpace(article.TextContent)
		if e.converter != nil && article.Content != "" {
			if md, err := e.converter.Convert(article.Content); err == nil {
				doc.ContentMarkdown = strings.TrimSpace(md)
				doc.Sections = tidepool.ExtractSections(doc.ContentMarkdown)
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
