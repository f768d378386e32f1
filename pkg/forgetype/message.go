package forgetype

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallPart is one streamed fragment of a tool call as it arrives from the
// provider, before the Stream Folder has collapsed it. Order of arrival is
// preserved by the caller; the fragment itself carries none.
type ToolCallPart struct {
	ID       string
	Name     string
	ArgsFrag string
}

// ToolCallFull is a complete, folded tool call: either its arguments parsed
// successfully as JSON, or an error recorded at fold time (e.g. invalid JSON,
// or a name that never resolves in the registry).
type ToolCallFull struct {
	ID        string
	Name      string
	Arguments map[string]any
	// RawArguments preserves the original argument string even when parsing
	// failed, so dispatch can still surface it in an error ToolResult.
	RawArguments string
	ParseError   error
}

// ToolResult is the uniform envelope the Tool Dispatcher produces for every
// call, whether it succeeded, failed validation, or named an unknown tool.
type ToolResult struct {
	ToolName string `json:"tool_name"`
	CallID   string `json:"call_id,omitempty"`
	Content  string `json:"content"`
	IsError  bool   `json:"is_error"`
	// StructuredData is an optional machine-readable payload alongside the
	// textual Content, mirroring the teacher's StructuredToolResult pattern.
	StructuredData any `json:"structured_data,omitempty"`
}

// Message is one entry in a Context's ordered history. Role-specific fields
// are populated only for their role: ToolCalls only on Assistant messages,
// ToolCallID only on Tool messages.
type Message struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	ToolCalls   []ToolCallFull `json:"tool_calls,omitempty"`
	ToolCallID  string         `json:"tool_call_id,omitempty"`
	// ToolName carries the invoked tool's name on a Tool-role message,
	// letting providers that correlate results by name rather than id (e.g.
	// Google's FunctionResponse) rebuild their native prompt shape.
	ToolName    string       `json:"tool_name,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// NewSystemMessage, NewUserMessage, NewAssistantMessage, NewToolMessage build
// well-formed Messages for their respective roles.

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string, attachments ...Attachment) Message {
	return Message{Role: RoleUser, Content: content, Attachments: attachments}
}

func NewAssistantMessage(content string, calls ...ToolCallFull) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func NewToolMessage(callID string, result ToolResult) Message {
	return Message{Role: RoleTool, Content: result.Content, ToolCallID: callID, ToolName: result.ToolName}
}
