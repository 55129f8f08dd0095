package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foofork/tidepool"
	"golang.org/x/sync/errgroup"
)

// Run executes the extract command.
func (c *ExtractCmd) Run(deps *Dependencies) error {
	mode := c.mode()
	if err := mode.Validate(); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
		return err
	}

	if c.URL != "" && len(c.Inputs) > 1 {
		err := tidepool.Errorf(tidepool.EINVALID, "--url applies to a single input; got %d inputs", len(c.Inputs))
		fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
		return err
	}

	docs, err := extractAll(deps.Ctx, deps, c.Inputs, mode, c.URL, c.Timeout, c.Concurrency)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
		return err
	}

	if c.Out != "" {
		for _, doc := range docs {
			if err := deps.Writer.WriteDoc(deps.Ctx, doc); err != nil {
				fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
				return err
			}
		}
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	if c.Full {
		fmt.Fprintln(deps.Stdout, tidepool.FormatDocs(docs))
		return nil
	}

	for i, doc := range docs {
		marker := ""
		if doc.Metadata.UsedFallback {
			marker = "  (fallback)"
		}
		fmt.Fprintf(deps.Stdout, "%s  %q  %s  quality=%d%s\n",
			c.Inputs[i], doc.Title, doc.Metadata.Strategy, doc.QualityScore, marker)
	}

	return nil
}

// mode builds the extraction mode selected by the --mode and --selector
// flags.
func (c *ExtractCmd) mode() tidepool.ExtractionMode {
	switch c.Mode {
	case "full_page":
		return tidepool.FullPage()
	case "metadata":
		return tidepool.Metadata()
	case "custom":
		return tidepool.CustomSelector(c.Selector)
	default:
		return tidepool.Article()
	}
}

// extractAll loads every input and extracts a document from each.
// Results are indexed by input position so output order matches
// argument order regardless of completion order.
func extractAll(ctx context.Context, deps *Dependencies, inputs []string, mode tidepool.ExtractionMode, overrideURL string, timeout time.Duration, concurrency int) ([]*tidepool.ExtractedDoc, error) {
	docs := make([]*tidepool.ExtractedDoc, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, input := range inputs {
		g.Go(func() error {
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			html, pageURL, err := loadInput(callCtx, deps, input)
			if err != nil {
				return err
			}
			if overrideURL != "" {
				pageURL = overrideURL
			}

			doc, err := deps.Extractor.Extract(callCtx, html, pageURL, mode)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", input, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// loadInput returns the HTML and source URL for one input. URL inputs
// go through the fetcher; everything else is read from disk.
func loadInput(ctx context.Context, deps *Dependencies, input string) (string, string, error) {
	if isURL(input) {
		html, err := deps.Fetcher.Fetch(ctx, input)
		if err != nil {
			return "", "", fmt.Errorf("fetching %s: %w", input, err)
		}
		return html, input, nil
	}

	b, err := os.ReadFile(input)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", input, err)
	}
	return string(b), fileURL(input), nil
}

func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

// fileURL converts a local path to a file:// URL so extracted links have
// a base to resolve against.
func fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
