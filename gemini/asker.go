// Package gemini answers questions about extracted documents using the
// Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/foofork/tidepool"
	"google.golang.org/genai"
)

// MaxPromptTokens caps the assembled prompt. The flash models accept a
// 1,048,576 token context; staying under a million leaves headroom for
// the system instruction and the answer.
const MaxPromptTokens = 1_000_000

// Ensure Asker implements tidepool.Asker at compile time.
var _ tidepool.Asker = (*Asker)(nil)

// Asker implements tidepool.Asker using Google Gemini. When a token
// counter is configured, prompts over MaxPromptTokens are rejected
// before the API call.
type Asker struct {
	client  *genai.Client
	counter tidepool.TokenCounter
	model   string
}

// NewAsker creates a new Asker. counter may be nil to skip the prompt
// budget check.
func NewAsker(client *genai.Client, counter tidepool.TokenCounter, model string) *Asker {
	return &Asker{client: client, counter: counter, model: model}
}

// Ask answers a natural language question about the given documents.
func (a *Asker) Ask(ctx context.Context, docs []*tidepool.ExtractedDoc, question string) (string, error) {
	if len(docs) == 0 {
		return "", tidepool.Errorf(tidepool.EINVALID, "no documents provided")
	}
	if question == "" {
		return "", tidepool.Errorf(tidepool.EINVALID, "question required")
	}

	prompt := BuildUserPrompt(docs, question)

	if a.counter != nil {
		n, err := a.counter.CountTokens(ctx, prompt)
		if err != nil {
			return "", err
		}
		if n > MaxPromptTokens {
			return "", tidepool.Errorf(tidepool.EINVALID, "documents exceed the %d token prompt budget (%d tokens)", MaxPromptTokens, n)
		}
	}

	result, err := a.client.Models.GenerateContent(ctx, a.model,
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: prompt}},
		}},
		BuildConfig(),
	)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", tidepool.Errorf(tidepool.EINTERNAL, "gemini returned nil result")
	}

	return result.Text(), nil
}

// BuildConfig returns the GenerateContentConfig for Gemini API calls.
func BuildConfig() *genai.GenerateContentConfig {
	temp := float32(0.4)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You are a helpful assistant answering questions about web pages. Answer based only on the page content provided. If the answer is not in the pages, say so.",
			}},
		},
		Temperature: &temp,
	}
}

// BuildUserPrompt builds the user prompt containing the documents and
// the question. Markdown content is preferred; plain text is used for
// documents that have no markdown rendering.
func BuildUserPrompt(docs []*tidepool.ExtractedDoc, question string) string {
	var sb strings.Builder
	sb.WriteString("<documents>\n")
	for i, doc := range docs {
		title := doc.Title
		if title == "" {
			title = doc.URL
		}
		content := doc.ContentMarkdown
		if content == "" {
			content = doc.ContentText
		}
		sb.WriteString("<document>\n")
		fmt.Fprintf(&sb, "<index>%d</index>\n", i+1)
		fmt.Fprintf(&sb, "<title>%s</title>\n", title)
		fmt.Fprintf(&sb, "<source>%s</source>\n", doc.URL)
		fmt.Fprintf(&sb, "<content>%s</content>\n", content)
		sb.WriteString("</document>\n")
	}
	sb.WriteString("</documents>\n\n")
	fmt.Fprintf(&sb, "Question: %s", question)
	return sb.String()
}
