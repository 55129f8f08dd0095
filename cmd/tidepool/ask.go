package main

import (
	"fmt"

	"github.com/foofork/tidepool"
)

// Run executes the ask command: extract every input, then answer the
// question from the extracted documents.
func (c *AskCmd) Run(deps *Dependencies) error {
	docs, err := extractAll(deps.Ctx, deps, c.Inputs, tidepool.Article(), "", c.Timeout, c.Concurrency)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
		return err
	}

	answer, err := deps.Asker.Ask(deps.Ctx, docs, c.Question)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", tidepool.ErrorMessage(err))
		return err
	}

	fmt.Fprintln(deps.Stdout, answer)
	return nil
}
