package orchestrator

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/vanshchauhan21/forge/pkg/attachment"
	"github.com/vanshchauhan21/forge/pkg/conversation"
	"github.com/vanshchauhan21/forge/pkg/dispatcher"
	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// promptContext is the serializable value handed to the TemplateRenderer,
// carrying the workflow's shared variables, the event that triggered this
// activation, and the ambient inputs spec.md §4.5's Preparing state requires:
// the environment, the agent's advertised tools, the event's attachments, a
// walker_depth-limited file list, and (for suggestions-enabled agents) an
// opaque suggestions list.
type promptContext struct {
	AgentID          string                     `json:"agent_id"`
	Variables        map[string]any             `json:"variables"`
	Event            string                     `json:"event"`
	EventName        string                     `json:"event_name"`
	Environment      attachment.Environment     `json:"environment"`
	ToolDescriptions []forgetype.ToolDefinition `json:"tool_descriptions"`
	Attachments      []forgetype.Attachment     `json:"attachments"`
	Files            []string                   `json:"files"`
	Suggestions      []string                   `json:"suggestions,omitempty"`
}

// prepare implements the Preparing transition (spec.md §4.5): it returns the
// agent's Context, seeding it with a rendered System message on an agent's
// first-ever activation and always appending a rendered User message for the
// triggering Event.
func (o *Orchestrator) prepare(ctx context.Context, conversationID string, agent forgetype.Agent, evt forgetype.Event) (forgetype.Context, error) {
	conv, ok := o.store.Find(conversationID)
	if !ok {
		return forgetype.Context{}, errors.Wrapf(forgetype.ErrConversationNotFound, "id %s", conversationID)
	}

	allowed := dispatcher.AllowedTools(agent.ToolNames)
	tools := o.dispatcher.DefinitionsFor(nonEmptyOr(allowed, o.allToolNames()))

	env := attachment.NewEnvironment()
	walkerDepth := 0
	if agent.WalkerDepth != nil {
		walkerDepth = *agent.WalkerDepth
	}

	pc := promptContext{
		AgentID:          agent.ID,
		Variables:        conv.Variables,
		Event:            evt.ValueString(),
		EventName:        evt.Name,
		Environment:      env,
		ToolDescriptions: tools,
		Attachments:      evt.Attachments,
		Files:            attachment.WalkLimited(env.WorkingDirectory, walkerDepth),
		Suggestions:      suggestionsFor(agent, conv.Variables),
	}

	st := conv.AgentStates[agent.ID]

	var ctxt forgetype.Context
	if st.Context == nil {
		sys, err := o.renderer.Render(agent.SystemPromptTmpl, pc)
		if err != nil {
			return forgetype.Context{}, errors.Wrapf(err, "render system prompt for agent %s", agent.ID)
		}
		ctxt = forgetype.Context{Messages: []forgetype.Message{forgetype.NewSystemMessage(sys)}}
	} else {
		ctxt = st.Context.Clone()
	}

	ctxt.ModelID = agent.ModelID
	ctxt.Tools = tools

	user, err := o.renderer.Render(agent.UserPromptTmpl, pc)
	if err != nil {
		return forgetype.Context{}, errors.Wrapf(err, "render user prompt for agent %s", agent.ID)
	}
	ctxt.Messages = append(ctxt.Messages, forgetype.NewUserMessage(user, evt.Attachments...))

	return ctxt, nil
}

func (o *Orchestrator) allToolNames() []string {
	defs := o.dispatcher.List()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

// suggestionsFor resolves the suggestions template key for a
// suggestions-enabled agent. The original implementation's suggestion
// lookup backs onto a vector index over prior conversations (out of scope
// here, per SPEC_FULL.md); the seam this core owns is structural, so the
// workflow's "suggestions" variable — an opaque []string an upstream
// collaborator can populate by whatever means it likes — is handed into the
// template context verbatim.
func suggestionsFor(agent forgetype.Agent, variables map[string]any) []string {
	if !agent.Suggestions {
		return nil
	}
	raw, ok := variables["suggestions"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func nonEmptyOr(names, fallback []string) []string {
	if len(names) > 0 {
		return names
	}
	return fallback
}

// handover implements the Handover transition (spec.md §4.5): for every
// downstream agent the just-terminated activation lists, enqueue a synthetic
// "agent.<id>" Event and immediately dispatch it, forwarding its responses
// into the same merged stream. A Wait handover blocks until the downstream
// activation has fully terminated; a fire-and-forget handover runs
// concurrently with whatever this activation does next (its own Terminal
// emission). fanout is registered with before every such background
// goroutine starts, so runActivations's close(merged) waits for it too
// instead of racing a send against the channel close.
func (o *Orchestrator) handover(ctx context.Context, conversationID string, agent forgetype.Agent, summary string, merged chan<- forgetype.ChatResponse, fanout *sync.WaitGroup) {
	for _, h := range agent.Handovers {
		evt, err := forgetype.NewEvent("agent."+h.AgentID, summary)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("target_agent", h.AgentID).Warn("failed to build handover event")
			continue
		}
		o.recordEvent(conversationID, evt)

		sub := o.Dispatch(ctx, conversationID, evt)
		if h.Wait {
			for resp := range sub {
				o.send(ctx, merged, resp)
			}
			continue
		}
		fanout.Add(1)
		go func() {
			defer fanout.Done()
			for resp := range sub {
				o.send(ctx, merged, resp)
			}
		}()
	}
}

// handleEnqueuedEvent backs ToolCallContext.EnqueueEvent: it records the
// event_dispatch tool's event on the conversation's queue and dispatches it
// immediately in the background, forwarding its stream into the calling
// activation's merged channel without blocking the tool call itself. Like
// handover's fire-and-forget branch, it registers with fanout before
// starting so the top-level merged channel cannot close out from under it.
func (o *Orchestrator) handleEnqueuedEvent(ctx context.Context, conversationID string, evt forgetype.Event, merged chan<- forgetype.ChatResponse, fanout *sync.WaitGroup) error {
	o.recordEvent(conversationID, evt)
	fanout.Add(1)
	go func() {
		defer fanout.Done()
		sub := o.Dispatch(ctx, conversationID, evt)
		for resp := range sub {
			o.send(ctx, merged, resp)
		}
	}()
	return nil
}

func (o *Orchestrator) recordEvent(conversationID string, evt forgetype.Event) {
	_, _ = conversation.Update(context.Background(), o.store, conversationID, func(c *forgetype.Conversation) (struct{}, error) {
		c.EventQueue = append(c.EventQueue, evt)
		return struct{}{}, nil
	})
}
