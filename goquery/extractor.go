// Package goquery implements a native HTML extractor driven by CSS
// selector heuristics. It runs without a sandbox, which makes it the
// degraded fallback path when the sandboxed extractor cannot serve a
// call, and a usable extractor in its own right.
package goquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/foofork/tidepool"
)

// articleSelectors are tried in order for article mode. The first
// candidate whose text exceeds articleMinChars wins; thin matches are
// usually navigation shells.
var articleSelectors = []string{
	"article",
	"main",
	"[role='main']",
	".article-content",
	".post-content",
	".entry-content",
	"#content",
}

const (
	articleMinChars = 200
	maxTextChars    = 5000
	maxLinks        = 50
	snippetChars    = 2000
)

// Extractor extracts structured content from HTML with CSS selectors.
type Extractor struct {
	converter tidepool.Converter
}

// NewExtractor returns an extractor that renders content Markdown with
// converter. A nil converter degrades Markdown to a title heading plus a
// text snippet.
func NewExtractor(converter tidepool.Converter) *Extractor {
	return &Extractor{converter: converter}
}

// Extract processes raw HTML fetched from url according to mode.
func (e *Extractor) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (*tidepool.ExtractedDoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, tidepool.Errorf(tidepool.EINVALID, "failed to parse HTML: %v", err)
	}

	title := extractTitle(doc)
	byline := metaContent(doc, "author", "article:author")
	published := parsePublished(metaContent(doc, "article:published_time", "datePublished"))

	contentHTML, text, err := contentForMode(doc, mode)
	if err != nil {
		return nil, err
	}
	text = truncate(normalizeSpace(text), maxTextChars)
	links := extractLinks(doc, url, maxLinks)
	md := e.markdown(contentHTML, title, text)

	return &tidepool.ExtractedDoc{
		URL:             url,
		Title:           title,
		Byline:          byline,
		PublishedAt:     published,
		ContentMarkdown: md,
		ContentText:     text,
		Links:           links,
		Sections:        tidepool.ExtractSections(md),
		QualityScore:    tidepool.ScoreExtraction(title != "", byline != "", !published.IsZero(), len(strings.Fields(text)), len(links)),
		Metadata: tidepool.ExtractionMetadata{
			Strategy: "goquery:" + mode.String(),
		},
	}, nil
}

// contentForMode selects the content region for the requested mode and
// returns it as HTML and as plain text. Custom selectors come from
// callers, so they are compiled with cascadia directly; goquery's Find
// panics on a selector it cannot parse.
func contentForMode(doc *goquery.Document, mode tidepool.ExtractionMode) (string, string, error) {
	switch mode.Kind {
	case tidepool.ModeMetadata:
		return "", "", nil
	case tidepool.ModeFullPage:
		body := doc.Find("body").First()
		return selectionHTML(body), selectionText(body), nil
	case tidepool.ModeCustom:
		matcher, err := cascadia.Compile(mode.Selector)
		if err != nil {
			return "", "", tidepool.Errorf(tidepool.EINVALID, "invalid selector %q: %v", mode.Selector, err)
		}
		sel := doc.FindMatcher(matcher)
		return selectionHTML(sel), selectionText(sel), nil
	default:
		for _, selector := range articleSelectors {
			sel := doc.Find(selector).First()
			if sel.Length() == 0 {
				continue
			}
			if len(strings.TrimSpace(sel.Text())) > articleMinChars {
				return selectionHTML(sel), selectionText(sel), nil
			}
		}
		body := doc.Find("body").First()
		return selectionHTML(body), selectionText(body), nil
	}
}

func selectionHTML(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			b.WriteString(html)
			b.WriteString("\n")
		}
	})
	return b.String()
}

func selectionText(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

// markdown renders the content region through the converter, degrading
// to a heading plus text snippet when conversion is unavailable.
func (e *Extractor) markdown(contentHTML, title, text string) string {
	if e.converter != nil && contentHTML != "" {
		if md, err := e.converter.Convert(contentHTML); err == nil {
			return strings.TrimSpace(md)
		}
	}
	snippet := truncate(text, snippetChars)
	if title == "" {
		return snippet
	}
	if snippet == "" {
		return "# " + title
	}
	return "# " + title + "\n\n" + snippet
}

// extractTitle prefers the title tag, then Open Graph, then the first h1.
func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if c, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// metaContent returns the first non-empty content attribute among
// meta[property=name] and meta[name=name] for each name in order.
func metaContent(doc *goquery.Document, names ...string) string {
	for _, name := range names {
		for _, attr := range []string{"property", "name"} {
			sel := fmt.Sprintf(`meta[%s="%s"]`, attr, name)
			if c, ok := doc.Find(sel).First().Attr("content"); ok {
				if c = strings.TrimSpace(c); c != "" {
					return c
				}
			}
		}
	}
	return ""
}

func parsePublished(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
