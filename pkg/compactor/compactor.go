// Package compactor implements the Context Compactor (spec.md §4.2): it
// shrinks an over-long Context by turn-wise summarization while preserving
// semantics, recursing into summary-of-summaries when necessary.
package compactor

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// Summarizer produces a short prose summary of the messages within one
// turn. It is backed by a provider call in production; tests supply a
// deterministic stub. Grounded in the original implementation's
// forge_domain::summarize.rs turn-summary prompt (see SPEC_FULL.md item 3).
type Summarizer interface {
	SummarizeTurn(ctx context.Context, modelID string, turn []forgetype.Message) (string, error)
}

// Config holds the compactor's tunables.
type Config struct {
	// TokenThreshold is the proxy-token count above which compaction runs.
	TokenThreshold int
}

// DefaultConfig returns sane defaults; callers overlay model-specific
// thresholds computed from the provider's advertised context window.
func DefaultConfig() Config {
	return Config{TokenThreshold: 100_000}
}

// Compactor shrinks Contexts per the algorithm in spec.md §4.2.
type Compactor struct {
	summarizer Summarizer
	cfg        Config
}

// New constructs a Compactor backed by the given Summarizer.
func New(summarizer Summarizer, cfg Config) *Compactor {
	return &Compactor{summarizer: summarizer, cfg: cfg}
}

// Result reports before/after token and message counts for one compaction
// run, aggregated by the Conversation State Store across every AgentState
// that has a Context.
type Result struct {
	TokensBefore   int
	TokensAfter    int
	MessagesBefore int
	MessagesAfter  int
}

// EstimateTokens is the proxy token estimator: words × 0.75. spec.md §9
// flags this as a placeholder that real implementations may replace with a
// tokenizer; the spec requires only monotonicity, not accuracy.
func EstimateTokens(ctx forgetype.Context) int {
	words := 0
	for _, m := range ctx.Messages {
		words += len(strings.Fields(m.Content))
	}
	return int(float64(words) * 0.75)
}

// turn is a contiguous run of messages starting at a User message (or at
// index 0 if the sequence begins without one) and ending immediately before
// the next User message.
type turn struct {
	start, end int // half-open [start, end) into the message slice, excluding any leading System message
}

// partitionTurns splits messages (with any leading System message already
// excluded by the caller) into turns per spec.md §4.2 step 1.
func partitionTurns(messages []forgetype.Message) []turn {
	var turns []turn
	start := -1
	if len(messages) > 0 && messages[0].Role != forgetype.RoleUser {
		// Messages ahead of the first User message (or a sequence with no
		// User message at all) form one turn starting at index 0, so they
		// can still be summarized and are never dropped.
		start = 0
	}
	for i, m := range messages {
		if m.Role == forgetype.RoleUser {
			if start != -1 {
				turns = append(turns, turn{start, i})
			}
			start = i
		}
	}
	if start != -1 {
		turns = append(turns, turn{start, len(messages)})
	}
	return turns
}

// Compact runs the algorithm of spec.md §4.2 to completion, recursing
// (summary-of-summaries) until the context is under threshold or no further
// turn can be summarized.
func (c *Compactor) Compact(ctx context.Context, modelID string, input forgetype.Context) (forgetype.Context, Result) {
	before := Result{
		TokensBefore:   EstimateTokens(input),
		MessagesBefore: len(input.Messages),
	}

	if input.IsEmpty() {
		after := EstimateTokens(input)
		return input, Result{before.TokensBefore, after, before.MessagesBefore, len(input.Messages)}
	}

	current := input
	for EstimateTokens(current) > c.cfg.TokenThreshold {
		tokensBeforePass := EstimateTokens(current)
		next, summarizedAny := c.compactOnePass(ctx, modelID, current)
		if !summarizedAny {
			// No turn could be summarized: return what we have (spec.md:
			// "the compactor returns the original Context").
			break
		}
		current = next
		if EstimateTokens(current) >= tokensBeforePass {
			// A pass that doesn't shrink anything would recurse forever;
			// stop here rather than loop (summary-of-summaries has bottomed
			// out for this summarizer).
			break
		}
	}

	return current, Result{
		TokensBefore:   before.TokensBefore,
		TokensAfter:    EstimateTokens(current),
		MessagesBefore: before.MessagesBefore,
		MessagesAfter:  len(current.Messages),
	}
}

// compactOnePass performs one full sweep: summarize every turn in
// oldest-first order (on a later pass this includes turns that already hold
// a work_summary, which is how summary-of-summaries happens), skipping
// (leaving intact) any turn whose
// summarizer call fails. Returns the resulting Context and whether any turn
// was actually replaced.
func (c *Compactor) compactOnePass(ctx context.Context, modelID string, input forgetype.Context) (forgetype.Context, bool) {
	var leadingSystem []forgetype.Message
	rest := input.Messages
	if len(rest) > 0 && rest[0].Role == forgetype.RoleSystem {
		leadingSystem = rest[:1]
		rest = rest[1:]
	}

	turns := partitionTurns(rest)
	if len(turns) == 0 {
		return input, false
	}

	var errs error
	out := append([]forgetype.Message(nil), leadingSystem...)
	summarizedAny := false
	for _, t := range turns {
		turnMsgs := rest[t.start:t.end]
		summary, err := c.summarizer.SummarizeTurn(ctx, modelID, turnMsgs)
		if err != nil {
			logger.G(ctx).WithError(err).Debug("turn summarization failed, leaving turn intact")
			errs = multierror.Append(errs, err)
			out = append(out, turnMsgs...)
			continue
		}
		summarizedAny = true
		for _, m := range turnMsgs {
			if m.Role == forgetype.RoleUser {
				out = append(out, m)
			}
		}
		out = append(out, forgetype.NewAssistantMessage("<work_summary>"+summary+"</work_summary>"))
	}

	if errs != nil {
		logger.G(ctx).WithError(errs).Debug("one or more turns could not be summarized this pass")
	}

	return forgetype.Context{Messages: out, ModelID: input.ModelID, Tools: input.Tools, ToolChoice: input.ToolChoice}, summarizedAny
}
