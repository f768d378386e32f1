package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
	"github.com/vanshchauhan21/forge/pkg/telemetry"
)

// Registry holds every tool available to the dispatcher, keyed by name. It
// carries no other mutable state: it is constructed once at startup and
// shared by reference thereafter (spec.md §5).
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from the given tools, keyed by their own
// Name(). Later entries with a duplicate name overwrite earlier ones.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// List enumerates registered tools with their schema and description,
// sorted by name for deterministic output.
func (r *Registry) List() []forgetype.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)

	defs := make([]forgetype.ToolDefinition, 0, len(names))
	for _, n := range names {
		defs = append(defs, Definition(r.tools[n]))
	}
	return defs
}

// DefinitionsFor returns the advertised ToolDefinition for each name in
// names that is actually registered, in the given order. Unregistered names
// are silently skipped; Call (not List) is the place an unknown name
// surfaces as an error.
func (r *Registry) DefinitionsFor(names []string) []forgetype.ToolDefinition {
	defs := make([]forgetype.ToolDefinition, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			defs = append(defs, Definition(t))
		}
	}
	return defs
}

// AllowedTools appends the always-available special tools (Completion, Event
// dispatch) to an agent's declared tool set, deduplicated, so an agent can
// always signal completion or enqueue a handover event regardless of its
// declared tool list (the agent definition's `tools` frontmatter key). An empty agentTools already means "every
// registered tool is allowed" (spec.md §4.3); that meaning is preserved by
// returning nil rather than narrowing it to just the two special tools.
func AllowedTools(agentTools []string) []string {
	if len(agentTools) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(agentTools)+2)
	out := make([]string, 0, len(agentTools)+2)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range agentTools {
		add(n)
	}
	add(CompletionToolName)
	add(EventDispatchToolName)
	return out
}

// resolve returns the tool registered under name, restricted to the subset
// named in allowed when allowed is non-empty (an agent's declared tool
// set). It is not an error for a caller to ask for an unresolved name; that
// is reported as an is-error ToolResult by Call, not a Go error, per
// spec.md §4.3 ("non-fatal" unknown-tool condition).
func (r *Registry) resolve(name string, allowed []string) (Tool, bool) {
	if len(allowed) > 0 {
		found := false
		for _, a := range allowed {
			if a == name {
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	t, ok := r.tools[name]
	return t, ok
}

// Call invokes the executor named by call.Name, restricted to allowedTools
// (the activating agent's declared tool set; pass nil to allow any
// registered tool). It never returns a Go error for a dispatch-level
// failure (unknown name, bad arguments, tool panic/error): all of those
// become an is_error ToolResult so the model may self-correct, per
// spec.md §4.3 and §7.
func (r *Registry) Call(ctx context.Context, tcc *ToolCallContext, call forgetype.ToolCallFull, allowedTools []string) (res forgetype.ToolResult) {
	log := logger.G(ctx).WithField("tool", call.Name)
	defer func() {
		if p := recover(); p != nil {
			res = forgetype.ToolResult{ToolName: call.Name, CallID: call.ID, Content: fmt.Sprintf("tool %s panicked: %v", call.Name, p), IsError: true}
		}
	}()

	if call.ParseError != nil {
		return forgetype.ToolResult{
			ToolName: call.Name,
			CallID:   call.ID,
			Content:  fmt.Sprintf("arguments for %s did not parse as JSON: %v", call.Name, call.ParseError),
			IsError:  true,
		}
	}

	t, ok := r.resolve(call.Name, allowedTools)
	if !ok {
		available := r.namesFor(allowedTools)
		msg := fmt.Sprintf("No tool with name %s was found; available: %s", call.Name, strings.Join(available, ", "))
		log.Debug(msg)
		return forgetype.ToolResult{ToolName: call.Name, CallID: call.ID, Content: msg, IsError: true}
	}

	rawArgs, err := json.Marshal(call.Arguments)
	if err != nil {
		return forgetype.ToolResult{ToolName: call.Name, CallID: call.ID, Content: fmt.Sprintf("failed to re-marshal arguments: %v", err), IsError: true}
	}

	if err := t.ValidateInput(rawArgs); err != nil {
		return forgetype.ToolResult{ToolName: call.Name, CallID: call.ID, Content: err.Error(), IsError: true}
	}

	ctx, span := telemetry.Tracer("dispatcher").Start(ctx, "tool.call")
	defer span.End()

	result, callErr := t.Call(ctx, tcc.WithCall(call.ID), rawArgs)
	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return forgetype.ToolResult{ToolName: call.Name, CallID: call.ID, Content: callErr.Error(), IsError: true}
	}

	span.SetStatus(codes.Ok, "")
	return forgetype.ToolResult{ToolName: call.Name, CallID: call.ID, Content: result}
}

func (r *Registry) namesFor(allowed []string) []string {
	if len(allowed) > 0 {
		out := append([]string(nil), allowed...)
		sort.Strings(out)
		return out
	}
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
