package mock

import (
	"context"

	"github.com/foofork/tidepool"
)

var _ tidepool.Asker = (*Asker)(nil)

// Asker is a mock implementation of tidepool.Asker.
type Asker struct {
	AskFn func(ctx context.Context, docs []*tidepool.ExtractedDoc, question string) (string, error)
}

func (a *Asker) Ask(ctx context.Context, docs []*tidepool.ExtractedDoc, question string) (string, error) {
	return a.AskFn(ctx, docs, question)
}
