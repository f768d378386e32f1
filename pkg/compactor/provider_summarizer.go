package compactor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/provider"
)

// summarizePrompt is the fixed instruction prefacing every turn-summary
// call. Grounded in the original implementation's forge_domain::summarize.rs
// turn-summary prompt (SPEC_FULL.md item 3): summaries must preserve
// decisions, open questions, and file paths touched, since those are what a
// later turn needs to stay coherent after the original messages are gone.
const summarizePrompt = "Summarize the following conversation turn in a few sentences. " +
	"Preserve any decisions made, open questions, and file paths or identifiers mentioned. " +
	"Do not add commentary outside the summary itself."

// ProviderSummarizer implements Summarizer by delegating to a chat Provider:
// it wraps the turn's messages in a one-off Context carrying summarizePrompt
// as the system message and folds the resulting stream into plain text.
type ProviderSummarizer struct {
	provider provider.Provider
}

// NewProviderSummarizer builds a Summarizer backed by prov.
func NewProviderSummarizer(prov provider.Provider) *ProviderSummarizer {
	return &ProviderSummarizer{provider: prov}
}

// SummarizeTurn asks the provider for a prose summary of turn's messages.
func (s *ProviderSummarizer) SummarizeTurn(ctx context.Context, modelID string, turn []forgetype.Message) (string, error) {
	ctxt := forgetype.Context{
		ModelID:  modelID,
		Messages: append([]forgetype.Message{forgetype.NewSystemMessage(summarizePrompt)}, turn...),
	}

	deltas, err := s.provider.Chat(ctx, modelID, ctxt)
	if err != nil {
		return "", errors.Wrap(err, "summarize turn")
	}

	fold, err := provider.FoldStream(ctx, deltas, nil)
	if err != nil {
		return "", errors.Wrap(err, "fold summary stream")
	}
	return fold.Message.Content, nil
}
