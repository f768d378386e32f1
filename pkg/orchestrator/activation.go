package orchestrator

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vanshchauhan21/forge/pkg/compactor"
	"github.com/vanshchauhan21/forge/pkg/conversation"
	"github.com/vanshchauhan21/forge/pkg/dispatcher"
	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
	"github.com/vanshchauhan21/forge/pkg/provider"
	"github.com/vanshchauhan21/forge/pkg/telemetry"
)

// activate runs the full per-agent state machine of spec.md §4.5 for one
// activation: Preparing → Calling → Folding → (ExecutingTool)* → either loop
// back to Calling or proceed to Handover → Terminal. Every ChatResponse it
// produces is sent to merged; merged is never closed by activate (the
// caller owns its lifetime).
func (o *Orchestrator) activate(ctx context.Context, conversationID string, agent forgetype.Agent, evt forgetype.Event, merged chan<- forgetype.ChatResponse, fanout *sync.WaitGroup) {
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "activation", trace.WithAttributes(
		attribute.String("agent_id", agent.ID),
		attribute.String("conversation_id", conversationID),
	))
	defer span.End()

	log := logger.G(ctx).WithField("agent_id", agent.ID).WithField("conversation_id", conversationID)

	// Preparing: seed the Context if this is the agent's first activation.
	ctxt, err := o.prepare(ctx, conversationID, agent, evt)
	if err != nil {
		o.send(ctx, merged, forgetype.ErrorResponse(agent.ID, errataFor(err)))
		return
	}

	enqueue := func(e forgetype.Event) error {
		return o.handleEnqueuedEvent(ctx, conversationID, e, merged, fanout)
	}
	allowed := dispatcher.AllowedTools(agent.ToolNames)

	var lastAssistantText string
	isSummary := false

	for {
		// Compaction hook: before each Calling transition, check the
		// proxy-token fraction of the model's advertised context window.
		window := o.cfg.ContextWindowForModel(agent.ModelID)
		if window > 0 && float64(compactor.EstimateTokens(ctxt)) > o.cfg.CompactionRatio*float64(window) {
			shrunk, _ := o.compactor.Compact(ctx, agent.ModelID, ctxt)
			ctxt = shrunk
			o.persistContext(conversationID, agent.ID, ctxt)
		}

		// Calling: invoke the provider and hand the stream to the Folder.
		deltas, callErr := o.provider.Chat(ctx, agent.ModelID, ctxt)
		if callErr != nil {
			log.WithError(callErr).Warn("provider call failed")
			o.send(ctx, merged, forgetype.ErrorResponse(agent.ID, forgetype.Errata{
				Title:       "Provider call failed",
				Description: callErr.Error(),
			}))
			return
		}

		// Folding: accumulate text (streaming fragments immediately) and
		// fold tool calls.
		fold, foldErr := provider.FoldStream(ctx, deltas, func(frag string) {
			o.send(ctx, merged, forgetype.TextFragment(agent.ID, frag))
		})
		if foldErr != nil {
			if errors.Is(foldErr, context.Canceled) {
				return // cancellation is silent (spec.md §7)
			}
			o.send(ctx, merged, forgetype.ErrorResponse(agent.ID, forgetype.Errata{
				Title: "Stream folding failed", Description: foldErr.Error(),
			}))
			return
		}
		lastAssistantText = fold.Message.Content

		if fold.Usage != nil {
			o.send(ctx, merged, forgetype.ChatResponse{Kind: forgetype.ChatResponseUsage, AgentID: agent.ID, Usage: *fold.Usage})
		}

		ctxt.Messages = append(ctxt.Messages, fold.Message)

		completed := false
		if len(fold.ToolCalls) > 0 {
			tcc := dispatcher.NewToolCallContext(conversationID, agent.ID, merged, enqueue)
			// ExecutingTool: tool calls within one turn execute strictly
			// sequentially, in folder-emitted order (spec.md §4.3).
			for _, call := range fold.ToolCalls {
				o.send(ctx, merged, forgetype.ToolCallStart(agent.ID, call.ID, call.Name))
				result := o.dispatcher.Call(ctx, tcc, call, allowed)
				ctxt.Messages = append(ctxt.Messages, forgetype.NewToolMessage(call.ID, result))
				o.send(ctx, merged, forgetype.ToolCallEnd(agent.ID, call.ID, call.Name, result))

				if call.Name == dispatcher.CompletionToolName && !result.IsError {
					completed = true
					isSummary = true
					lastAssistantText = result.Content
				}
			}
			if ctx.Err() != nil {
				return // response receiver dropped; stop scheduling further work
			}
		} else {
			completed = true
		}

		o.persistContext(conversationID, agent.ID, ctxt)

		if completed {
			break
		}

		// Turn accounting: one completed provider call is one turn.
		turns, terr := o.incrementTurn(conversationID, agent.ID)
		if terr != nil {
			o.send(ctx, merged, forgetype.ErrorResponse(agent.ID, errataFor(terr)))
			return
		}
		if turns >= agent.MaxTurns {
			o.send(ctx, merged, forgetype.ErrorResponse(agent.ID, (&forgetype.MaxTurnsReachedError{AgentID: agent.ID, Limit: agent.MaxTurns}).Errata()))
			return
		}
	}

	// One final turn is attributed to the activation even when it
	// terminated without emitting another tool call, so max_turns still
	// bounds total provider calls.
	if _, terr := o.incrementTurn(conversationID, agent.ID); terr != nil {
		o.send(ctx, merged, forgetype.ErrorResponse(agent.ID, errataFor(terr)))
		return
	}

	// This activation's own Terminal emission must land in merged before a
	// Wait handover's downstream sub-stream is drained into it, so the
	// top-level stream preserves Planner-before-Coder ordering (spec.md §8
	// scenario S4) even though handover() blocks for Wait=true targets.
	o.send(ctx, merged, forgetype.TextFinal(agent.ID, lastAssistantText, isSummary))

	// Handover: enqueue a synthetic event per downstream agent.
	o.handover(ctx, conversationID, agent, lastAssistantText, merged, fanout)
}

func (o *Orchestrator) send(ctx context.Context, out chan<- forgetype.ChatResponse, resp forgetype.ChatResponse) {
	select {
	case out <- resp:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) incrementTurn(conversationID, agentID string) (int, error) {
	return conversation.Update(context.Background(), o.store, conversationID, func(c *forgetype.Conversation) (int, error) {
		st := c.AgentStates[agentID]
		st.TurnCount++
		c.AgentStates[agentID] = st
		return st.TurnCount, nil
	})
}

func (o *Orchestrator) persistContext(conversationID, agentID string, ctxt forgetype.Context) {
	_, _ = conversation.Update(context.Background(), o.store, conversationID, func(c *forgetype.Conversation) (struct{}, error) {
		st := c.AgentStates[agentID]
		cp := ctxt.Clone()
		st.Context = &cp
		c.AgentStates[agentID] = st
		return struct{}{}, nil
	})
}

func errataFor(err error) forgetype.Errata {
	return forgetype.Errata{Title: "Activation failed", Description: err.Error()}
}
