// Package dispatcher implements the Tool Dispatcher (spec.md §4.3): it
// resolves a tool name to an executor, validates arguments against the
// tool's schema, and returns a uniform ToolResult envelope.
package dispatcher

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

// Tool is one executor the dispatcher can invoke by name.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the jsonschema.Schema describing the tool's input
	// struct, generated via invopop/jsonschema at registration time.
	Schema() *jsonschema.Schema
	// ValidateInput unmarshals and validates rawArgs, returning the
	// validation error (if any) so the dispatcher can turn it into an
	// is-error ToolResult without invoking Call.
	ValidateInput(rawArgs json.RawMessage) error
	// Call executes the tool. The returned string becomes ToolResult.Content
	// on success.
	Call(ctx context.Context, tcc *ToolCallContext, rawArgs json.RawMessage) (string, error)
}

// GenerateSchema reflects a Go struct type into a JSON schema, exactly the
// way the teacher's tool package does for its own tools.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	var v T
	return reflector.Reflect(v)
}

func schemaToMap(s *jsonschema.Schema) map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// Definition converts a registered Tool into its advertised ToolDefinition.
func Definition(t Tool) forgetype.ToolDefinition {
	return forgetype.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: schemaToMap(t.Schema()),
	}
}
