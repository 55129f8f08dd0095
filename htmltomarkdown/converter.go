// Package htmltomarkdown renders extracted content fragments as Markdown.
package htmltomarkdown

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/foofork/tidepool"
)

// Ensure Converter implements tidepool.Converter at compile time.
var _ tidepool.Converter = (*Converter)(nil)

// Converter renders HTML fragments as Markdown with CommonMark and table
// support. Output is normalized: no leading or trailing blank lines, and
// runs of blank lines collapse to one.
type Converter struct {
	conv *converter.Converter
}

// NewConverter creates a new Converter.
func NewConverter() *Converter {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Converter{conv: conv}
}

// Convert transforms an HTML content fragment into Markdown.
func (c *Converter) Convert(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", tidepool.Errorf(tidepool.EINVALID, "empty HTML input")
	}

	md, err := c.conv.ConvertString(html)
	if err != nil {
		return "", tidepool.Errorf(tidepool.EINTERNAL, "converting to markdown: %v", err)
	}

	return normalize(md), nil
}

// normalize trims the fragment and collapses the blank-line runs left
// behind by removed block elements.
func normalize(md string) string {
	md = strings.TrimSpace(md)
	for strings.Contains(md, "\n\n\n") {
		md = strings.ReplaceAll(md, "\n\n\n", "\n\n")
	}
	return md
}
