package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// CompletionToolName is the distinguished tool whose invocation signals the
// end of an activation (spec.md §4.3, Glossary "Completion").
const CompletionToolName = "completion"

// CompletionInput carries the activation's final summary text.
type CompletionInput struct {
	Summary string `json:"summary" jsonschema_description:"final summary of the work performed this activation"`
}

// CompletionTool marks the enclosing orchestrator loop as done; the
// orchestrator recognizes calls to CompletionToolName and, instead of
// looping back to Calling, transitions to Handover/Terminal, emitting the
// summary as ChatResponse::text{is_summary:true}.
type CompletionTool struct{}

func (CompletionTool) Name() string        { return CompletionToolName }
func (CompletionTool) Description() string { return "Signal that the current activation is complete." }
func (CompletionTool) Schema() *jsonschema.Schema {
	return GenerateSchema[CompletionInput]()
}

func (CompletionTool) ValidateInput(raw json.RawMessage) error {
	var in CompletionInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.Wrap(err, "invalid completion arguments")
	}
	return nil
}

func (CompletionTool) Call(ctx context.Context, tcc *ToolCallContext, raw json.RawMessage) (string, error) {
	var in CompletionInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", err
	}
	tcc.SetComplete()
	return in.Summary, nil
}

// EventDispatchToolName is the distinguished tool that re-enqueues a new
// Event into the conversation's event queue, enabling agent handovers
// outside the declared Handover list (spec.md §4.3, "Event dispatch").
const EventDispatchToolName = "event_dispatch"

// EventDispatchInput names the event to enqueue and its carried value.
type EventDispatchInput struct {
	Name  string `json:"name" jsonschema_description:"event name to enqueue, matching [A-Za-z0-9_.-]+"`
	Value string `json:"value" jsonschema_description:"value carried on the enqueued event"`
}

// EventDispatchTool enqueues a new Event into the owning conversation.
type EventDispatchTool struct{}

func (EventDispatchTool) Name() string        { return EventDispatchToolName }
func (EventDispatchTool) Description() string { return "Enqueue a new event into this conversation." }
func (EventDispatchTool) Schema() *jsonschema.Schema {
	return GenerateSchema[EventDispatchInput]()
}

func (EventDispatchTool) ValidateInput(raw json.RawMessage) error {
	var in EventDispatchInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.Wrap(err, "invalid event_dispatch arguments")
	}
	if in.Name == "" {
		return errors.New("event_dispatch requires a non-empty name")
	}
	return nil
}

func (EventDispatchTool) Call(ctx context.Context, tcc *ToolCallContext, raw json.RawMessage) (string, error) {
	var in EventDispatchInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", err
	}
	evt, err := forgetype.NewEvent(in.Name, in.Value)
	if err != nil {
		return "", err
	}
	if tcc.EnqueueEvent == nil {
		return "", errors.New("event_dispatch: no conversation event queue bound to this call")
	}
	if err := tcc.EnqueueEvent(evt); err != nil {
		return "", err
	}
	return "enqueued event " + evt.Name, nil
}
