// Package provider implements the Provider Stream Folder (spec.md §4.4): it
// consumes an unordered stream of chat-completion deltas and collapses them
// into one materialized assistant message plus the list of complete tool
// calls the model emitted, retrying transport failures under exponential
// backoff.
package provider

import "github.com/vanshchauhan21/forge/pkg/forgetype"

// ToolCallDelta is one streamed fragment of a tool call, the lowest common
// denominator shape every concrete Provider backend (Anthropic, OpenAI,
// Google) translates its native stream into before folding — grounded in
// the OpenAI-compatible wire format the original implementation's primary
// provider (OpenRouter) speaks (see SPEC_FULL.md "Supplemented features" 5).
type ToolCallDelta struct {
	// Index keys this fragment into the accumulator slot it belongs to.
	// Providers that omit an index are keyed by first-non-empty-id instead;
	// see Folder.Push.
	Index *int
	ID     string
	Name   string
	ArgsFrag string
}

// FinishReason mirrors the provider's terminal marker for one message.
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Delta is one element of the unordered stream a Provider yields per turn.
// Each element carries at most one of: a text fragment, zero-or-more
// tool-call fragments, a finish reason, or usage.
type Delta struct {
	TextFrag  string
	ToolCalls []ToolCallDelta
	Finish    FinishReason
	Usage     *forgetype.Usage
}

// Model describes one selectable model as returned by Provider.Models.
type Model struct {
	ID          string
	DisplayName string
	Description string
}

// FoldResult is what folding one turn's stream produces.
type FoldResult struct {
	Message   forgetype.Message
	ToolCalls []forgetype.ToolCallFull
	Usage     *forgetype.Usage
}
