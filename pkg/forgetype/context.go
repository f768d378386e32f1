package forgetype

// ToolDefinition is what the Tool Dispatcher advertises for a registered
// tool: its name, description, and JSON input schema (generated via
// invopop/jsonschema at registration time).
type ToolDefinition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
}

// ToolChoicePolicy constrains which, if any, tools the model may call on a
// given turn.
type ToolChoicePolicy string

const (
	ToolChoiceAuto     ToolChoicePolicy = "auto"
	ToolChoiceNone     ToolChoicePolicy = "none"
	ToolChoiceRequired ToolChoicePolicy = "required"
)

// Context is the ordered message history plus tool set sent to the provider
// for one turn. The first message, if present, is always a System message.
type Context struct {
	Messages    []Message        `json:"messages"`
	ModelID     string           `json:"model_id"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	ToolChoice  ToolChoicePolicy `json:"tool_choice,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
}

// Clone returns a deep-enough copy of the Context for use in one provider
// invocation; the authoritative copy continues to live in the AgentState.
func (c Context) Clone() Context {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		mm := m
		if m.ToolCalls != nil {
			mm.ToolCalls = append([]ToolCallFull(nil), m.ToolCalls...)
		}
		if m.Attachments != nil {
			mm.Attachments = append([]Attachment(nil), m.Attachments...)
		}
		out.Messages[i] = mm
	}
	out.Tools = append([]ToolDefinition(nil), c.Tools...)
	return out
}

// IsEmpty reports whether the Context carries no messages or only a leading
// System message — the no-op case for compaction.
func (c Context) IsEmpty() bool {
	if len(c.Messages) == 0 {
		return true
	}
	if len(c.Messages) == 1 && c.Messages[0].Role == RoleSystem {
		return true
	}
	return false
}
