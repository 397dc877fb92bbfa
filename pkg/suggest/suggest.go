// Package suggest asks a text-completion model for reading goals.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultPrompt is used when the caller supplies none.
const DefaultPrompt = `You are a reading coach. Read the document below and answer with a single JSON object:
{"readingProgress": "<one paragraph on what a reader should focus on>",
 "readingGoals": [{"goalName": "<short name>", "goalDescription": "<one sentence>"}]}
Propose between three and five goals. Do not add any text outside the JSON object.`

// DefaultMaxDocumentChars bounds the document text sent with the prompt.
const DefaultMaxDocumentChars = 48000

var ErrEmptyDocument = errors.New("document text is empty")

type Goal struct {
	GoalName        string `json:"goalName"`
	GoalDescription string `json:"goalDescription"`
}

type Suggestion struct {
	ReadingProgress string `json:"readingProgress"`
	ReadingGoals    []Goal `json:"readingGoals"`
}

// Suggester produces reading suggestions for a document. There is no retry;
// callers leave suggestions absent on error.
type Suggester interface {
	Suggest(ctx context.Context, prompt, documentText string) (*Suggestion, error)
}

// Generator is an opaque text-completion call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMSuggester builds the completion prompt and parses the JSON answer.
type LLMSuggester struct {
	gen      Generator
	maxChars int
}

func NewLLMSuggester(gen Generator) *LLMSuggester {
	return &LLMSuggester{gen: gen, maxChars: DefaultMaxDocumentChars}
}

// SetMaxDocumentChars changes how much document text is sent. Zero or less disables truncation.
func (s *LLMSuggester) SetMaxDocumentChars(n int) {
	s.maxChars = n
}

func (s *LLMSuggester) Suggest(ctx context.Context, prompt, documentText string) (*Suggestion, error) {
	if strings.TrimSpace(documentText) == "" {
		return nil, ErrEmptyDocument
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	text := documentText
	if r := []rune(text); s.maxChars > 0 && len(r) > s.maxChars {
		text = string(r[:s.maxChars])
	}

	resp, err := s.gen.Generate(ctx, prompt+"\n\nDOCUMENT:\n"+text)
	if err != nil {
		return nil, fmt.Errorf("suggestion request failed: %w", err)
	}

	out, err := ParseJSON[Suggestion](resp)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
