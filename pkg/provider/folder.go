package provider

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// toolAccumulator is one in-progress tool call being folded. Grounded almost
// directly in the teacher's index-keyed delta accumulation for OpenAI
// streaming chat completions (pkg/llm/openai/openai.go
// createStreamingChatCompletion): id/name are set once non-empty and
// argument fragments are concatenated in arrival order.
type toolAccumulator struct {
	id, name string
	args     strings.Builder
	// firstSeenOrder preserves "order of arrival" when the provider omits
	// indices and two calls would otherwise be keyed identically.
	firstSeenOrder int
}

// Folder owns the partial-accumulator buffer for the lifetime of one
// provider call (spec.md §3 "Stream Folder owns its partial-accumulator
// buffer"). It is not safe for concurrent use — one Folder per in-flight
// turn.
type Folder struct {
	textBuilder strings.Builder
	byIndex     map[int]*toolAccumulator
	byID        map[string]*toolAccumulator
	order       []*toolAccumulator
	finish      FinishReason
	usage       *forgetype.Usage

	// onText, when set, is invoked for every non-empty text fragment as it
	// arrives so the caller can stream ChatResponse::text{is_complete:false}
	// immediately (spec.md §4.4 rule 1).
	onText func(fragment string)
}

// NewFolder constructs an empty Folder. onText may be nil.
func NewFolder(onText func(fragment string)) *Folder {
	return &Folder{
		byIndex: make(map[int]*toolAccumulator),
		byID:    make(map[string]*toolAccumulator),
		onText:  onText,
	}
}

// Push folds one Delta into the accumulator state. Deltas may arrive in any
// order relative to each other's fields, but within one field (text, a given
// tool-call key) arrival order is preserved by the caller and by Push.
func (f *Folder) Push(d Delta) {
	if d.TextFrag != "" {
		f.textBuilder.WriteString(d.TextFrag)
		if f.onText != nil {
			f.onText(d.TextFrag)
		}
	}

	for _, tc := range d.ToolCalls {
		f.foldToolCallDelta(tc)
	}

	if d.Finish != FinishNone {
		f.finish = d.Finish
	}
	if d.Usage != nil {
		f.usage = d.Usage
	}
}

// foldToolCallDelta keys a fragment by index when the provider supplies one,
// else by the first non-empty id seen, else by position (a lone implicit
// call with no id and no index at all).
func (f *Folder) foldToolCallDelta(tc ToolCallDelta) {
	var acc *toolAccumulator

	switch {
	case tc.Index != nil:
		acc = f.byIndex[*tc.Index]
		if acc == nil {
			acc = &toolAccumulator{firstSeenOrder: len(f.order)}
			f.byIndex[*tc.Index] = acc
			f.order = append(f.order, acc)
		}
	case tc.ID != "":
		acc = f.byID[tc.ID]
		if acc == nil {
			acc = &toolAccumulator{firstSeenOrder: len(f.order)}
			f.byID[tc.ID] = acc
			f.order = append(f.order, acc)
		}
	default:
		// No index, no id: a provider that streams exactly one tool call
		// without any correlation token. Fold into the single existing
		// accumulator if one is already open, else start one.
		if len(f.order) > 0 {
			acc = f.order[len(f.order)-1]
		} else {
			acc = &toolAccumulator{firstSeenOrder: 0}
			f.order = append(f.order, acc)
		}
	}

	if tc.ID != "" {
		acc.id = tc.ID
		f.byID[tc.ID] = acc
	}
	if tc.Name != "" {
		acc.name = tc.Name
	}
	acc.args.WriteString(tc.ArgsFrag)
}

// Finish parses every open tool-call accumulator and returns the folded
// message plus the complete ToolCallFull list. Parse failures are recorded
// on the individual ToolCallFull (ParseError) rather than aborting the
// turn, per spec.md §4.4 rule 3.
func (f *Folder) Finish() FoldResult {
	text := f.textBuilder.String()

	calls := f.foldedToolCalls()
	if len(calls) == 0 {
		// Alternate encoding: scan the final text for the XML fallback form
		// when the provider channel carried no structured tool calls.
		if xmlCalls, remainder := parseXMLToolCalls(text); len(xmlCalls) > 0 {
			calls = xmlCalls
			text = remainder
		}
	}

	msg := forgetype.NewAssistantMessage(text, calls...)
	return FoldResult{Message: msg, ToolCalls: calls, Usage: f.usage}
}

func (f *Folder) foldedToolCalls() []forgetype.ToolCallFull {
	sort.SliceStable(f.order, func(i, j int) bool {
		return f.order[i].firstSeenOrder < f.order[j].firstSeenOrder
	})

	out := make([]forgetype.ToolCallFull, 0, len(f.order))
	for _, acc := range f.order {
		raw := acc.args.String()
		call := forgetype.ToolCallFull{
			ID:           acc.id,
			Name:         acc.name,
			RawArguments: raw,
		}
		if raw == "" {
			call.Arguments = map[string]any{}
		} else if err := json.Unmarshal([]byte(raw), &call.Arguments); err != nil {
			call.ParseError = err
		}
		out = append(out, call)
	}
	return out
}

// FinishReason reports the terminal marker observed, if any.
func (f *Folder) FinishReason() FinishReason { return f.finish }

// FoldStream drains a channel of Deltas to completion, honoring ctx
// cancellation, and returns the final FoldResult. This is the async
// state-machine shape spec.md §9 calls for ("the Stream Folder is an async
// state machine consuming one item at a time").
func FoldStream(ctx context.Context, deltas <-chan Delta, onText func(string)) (FoldResult, error) {
	f := NewFolder(onText)
	for {
		select {
		case <-ctx.Done():
			return f.Finish(), ctx.Err()
		case d, ok := <-deltas:
			if !ok {
				return f.Finish(), nil
			}
			f.Push(d)
			if d.Finish != FinishNone {
				return f.Finish(), nil
			}
		}
	}
}
