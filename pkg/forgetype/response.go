package forgetype

// Usage reports token and cost accounting for one provider call, forwarded
// to the caller as a ChatResponse event.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost,omitempty"`
}

// Errata is a human-readable terminal-error payload: a title and an
// optional longer description, with no stack trace, suitable for a caller to
// format for display. Grounded in the original implementation's errata type
// (see SPEC_FULL.md "Supplemented features").
type Errata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ChatResponseKind discriminates the variant carried by a ChatResponse.
type ChatResponseKind string

const (
	ChatResponseText            ChatResponseKind = "text"
	ChatResponseToolCallStart   ChatResponseKind = "tool_call_start"
	ChatResponseToolCallEnd     ChatResponseKind = "tool_call_end"
	ChatResponseUsage           ChatResponseKind = "usage"
	ChatResponseVariableSet     ChatResponseKind = "variable_set"
	ChatResponseError           ChatResponseKind = "error"
)

// ChatResponse is one item in the bounded stream the orchestrator emits to
// its caller. Exactly one of the payload fields is meaningful, selected by
// Kind.
type ChatResponse struct {
	Kind    ChatResponseKind `json:"kind"`
	AgentID string           `json:"agent_id,omitempty"`

	// ChatResponseText
	Text       string `json:"text,omitempty"`
	IsComplete bool   `json:"is_complete,omitempty"`
	IsMarkdown bool   `json:"is_md,omitempty"`
	IsSummary  bool   `json:"is_summary,omitempty"`

	// ChatResponseToolCallStart / ChatResponseToolCallEnd
	ToolCallID   string     `json:"tool_call_id,omitempty"`
	ToolName     string     `json:"tool_name,omitempty"`
	ToolResult   ToolResult `json:"tool_result,omitempty"`

	// ChatResponseUsage
	Usage Usage `json:"usage,omitempty"`

	// ChatResponseVariableSet
	VariableName  string `json:"variable_name,omitempty"`
	VariableValue any    `json:"variable_value,omitempty"`

	// ChatResponseError
	Error Errata `json:"error,omitempty"`
}

// TextFragment builds a streamed, incomplete text ChatResponse.
func TextFragment(agentID, text string) ChatResponse {
	return ChatResponse{Kind: ChatResponseText, AgentID: agentID, Text: text}
}

// TextFinal builds the terminal text ChatResponse for an activation.
func TextFinal(agentID, text string, isSummary bool) ChatResponse {
	return ChatResponse{Kind: ChatResponseText, AgentID: agentID, Text: text, IsComplete: true, IsSummary: isSummary}
}

// ToolCallStart builds a tool-call-started ChatResponse.
func ToolCallStart(agentID, callID, name string) ChatResponse {
	return ChatResponse{Kind: ChatResponseToolCallStart, AgentID: agentID, ToolCallID: callID, ToolName: name}
}

// ToolCallEnd builds a tool-call-ended ChatResponse.
func ToolCallEnd(agentID, callID, name string, result ToolResult) ChatResponse {
	return ChatResponse{Kind: ChatResponseToolCallEnd, AgentID: agentID, ToolCallID: callID, ToolName: name, ToolResult: result}
}

// ErrorResponse builds a terminal error ChatResponse.
func ErrorResponse(agentID string, err Errata) ChatResponse {
	return ChatResponse{Kind: ChatResponseError, AgentID: agentID, Error: err}
}
