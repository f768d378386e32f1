package forgetype

import "github.com/pkg/errors"

// Sentinel and typed errors implementing the taxonomy of spec.md §7. Callers
// use errors.Is/errors.As rather than string matching.
var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrAgentUndefined        = errors.New("agent undefined")
	ErrHeadAgentUndefined    = errors.New("head agent undefined")
	ErrMissingModel          = errors.New("agent missing model id")
	ErrMissingAgentDescription = errors.New("agent missing description")
)

// MaxTurnsReachedError is terminal for the activation that hit it.
type MaxTurnsReachedError struct {
	AgentID string
	Limit   int
}

func (e *MaxTurnsReachedError) Error() string {
	return "max turns reached for agent " + e.AgentID
}

// Errata converts the error into the user-visible terminal payload.
func (e *MaxTurnsReachedError) Errata() Errata {
	return Errata{
		Title:       "Turn limit reached",
		Description: "agent " + e.AgentID + " reached its configured turn limit",
	}
}
