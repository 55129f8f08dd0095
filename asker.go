package tidepool

import "context"

// Asker answers natural language questions about extracted documents.
type Asker interface {
	// Ask answers a question using only the supplied documents as
	// context. Returns EINVALID when no documents are supplied or when
	// the combined context exceeds the implementation's token budget.
	Ask(ctx context.Context, docs []*ExtractedDoc, question string) (string, error)
}
