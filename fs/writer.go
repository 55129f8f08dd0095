// Package fs writes extracted documents as markdown files on disk.
package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/foofork/tidepool"
)

// URLToPath converts a page URL to a relative markdown file path.
// Example: https://example.com/news/tides -> news/tides.md
func URLToPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	path := u.Path

	// Root or empty path becomes index.md.
	if path == "" || path == "/" {
		return "index.md", nil
	}

	path = strings.TrimPrefix(path, "/")

	// A trailing slash becomes index.md in that directory.
	if strings.HasSuffix(path, "/") {
		return path + "index.md", nil
	}

	// Replace an HTML extension rather than stacking .md on top of it.
	path = strings.TrimSuffix(path, ".html")
	path = strings.TrimSuffix(path, ".htm")

	return path + ".md", nil
}

// FormatDoc renders a document with YAML frontmatter followed by its
// markdown content. Plain text is used when no markdown was produced.
func FormatDoc(doc *tidepool.ExtractedDoc) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "source: %s\n", doc.URL)
	fmt.Fprintf(&b, "title: %s\n", doc.Title)
	if doc.Byline != "" {
		fmt.Fprintf(&b, "byline: %s\n", doc.Byline)
	}
	if !doc.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "published: %s\n", doc.PublishedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "strategy: %s\n", doc.Metadata.Strategy)
	fmt.Fprintf(&b, "quality: %d\n", doc.QualityScore)
	b.WriteString("---\n\n")

	if doc.ContentMarkdown != "" {
		b.WriteString(doc.ContentMarkdown)
	} else {
		b.WriteString(doc.ContentText)
	}
	return b.String()
}

// Ensure Writer implements tidepool.DocWriter at compile time.
var _ tidepool.DocWriter = (*Writer)(nil)

// Writer writes documents as markdown files under a base directory,
// with each file's location derived from the document URL.
type Writer struct {
	baseDir string
}

// NewWriter creates a new Writer rooted at the given base directory.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// WriteDoc writes a document to disk as a markdown file.
func (w *Writer) WriteDoc(ctx context.Context, doc *tidepool.ExtractedDoc) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	relPath, err := URLToPath(doc.URL)
	if err != nil {
		return err
	}
	relPath = filepath.FromSlash(relPath)
	if !filepath.IsLocal(relPath) {
		// Dot segments in the URL path survive parsing and would walk
		// out of the base directory.
		return tidepool.Errorf(tidepool.EINVALID, "document path %q escapes the output directory", relPath)
	}

	fullPath := filepath.Join(w.baseDir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	return os.WriteFile(fullPath, []byte(FormatDoc(doc)), 0644)
}
