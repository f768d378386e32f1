package forgetype

// Handover describes a downstream agent to notify when this agent's
// activation completes. When Wait is true the upstream activation blocks
// until the downstream one terminates before it is itself considered done.
type Handover struct {
	AgentID string `json:"agent_id" yaml:"id"`
	Wait    bool   `json:"wait" yaml:"wait"`
}

// Agent is a named, model-bound, tool-scoped actor participating in a
// Workflow.
type Agent struct {
	ID                 string     `json:"id" yaml:"id"`
	Description        string     `json:"description" yaml:"description"`
	ModelID            string     `json:"model_id" yaml:"model"`
	SystemPromptTmpl   string     `json:"system_prompt_template" yaml:"system_prompt"`
	UserPromptTmpl     string     `json:"user_prompt_template" yaml:"user_prompt"`
	SubscribedEvents   []string   `json:"subscribed_events" yaml:"subscribe"`
	ToolNames          []string   `json:"tool_names" yaml:"tools"`
	Handovers          []Handover `json:"handovers,omitempty" yaml:"handovers,omitempty"`
	MaxTurns           int        `json:"max_turns" yaml:"max_turns"`
	Ephemeral          bool       `json:"ephemeral,omitempty" yaml:"ephemeral,omitempty"`
	Suggestions        bool       `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	WalkerDepth        *int       `json:"walker_depth,omitempty" yaml:"walker_depth,omitempty"`
}

// Subscribes reports whether the agent is triggered by an event of the given
// name.
func (a Agent) Subscribes(eventName string) bool {
	for _, n := range a.SubscribedEvents {
		if n == eventName {
			return true
		}
	}
	return false
}

// Workflow is an ordered sequence of Agents plus a shared variable map.
// Agent ids are unique within a Workflow.
type Workflow struct {
	Agents    []Agent        `json:"agents" yaml:"agents"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// AgentByID looks up an agent by id, returning false if it is not defined in
// the workflow.
func (w Workflow) AgentByID(id string) (Agent, bool) {
	for _, a := range w.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// AgentState is the per-conversation, per-agent runtime state layered on top
// of the immutable Agent definition.
type AgentState struct {
	TurnCount int      `json:"turn_count"`
	Context   *Context `json:"context,omitempty"`
}
