// Package orchestrator implements the Orchestrator (spec.md §4.5): the
// top-level driver that turns an incoming Event into a bounded stream of
// ChatResponse items, walking the agent graph, enforcing turn limits,
// streaming partial output, and handing over between agents.
package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vanshchauhan21/forge/pkg/compactor"
	"github.com/vanshchauhan21/forge/pkg/conversation"
	"github.com/vanshchauhan21/forge/pkg/dispatcher"
	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
	"github.com/vanshchauhan21/forge/pkg/provider"
	"github.com/vanshchauhan21/forge/pkg/telemetry"
)

// TemplateRenderer is the external Template renderer collaborator (spec.md
// §6): renders a named template against a serializable context in strict
// mode (missing variables fail the render).
type TemplateRenderer interface {
	Render(templateName string, promptContext any) (string, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	// CompactionRatio is the fraction of a model's advertised context
	// window above which the Compaction hook fires before a Calling
	// transition (spec.md §4.5, default 0.8).
	CompactionRatio float64
	// ContextWindowForModel resolves a model id to its advertised context
	// window size in (proxy) tokens, for the compaction-ratio check.
	ContextWindowForModel func(modelID string) int
	// ResponseBufferSize is the bounded response channel's capacity
	// (spec.md §5, default 1).
	ResponseBufferSize int
}

// DefaultConfig returns the defaults named in spec.md §4.5/§5.
func DefaultConfig() Config {
	return Config{
		CompactionRatio:       0.8,
		ContextWindowForModel: func(string) int { return 200_000 },
		ResponseBufferSize:    1,
	}
}

// Orchestrator is the capability-set handle described in spec.md §9: it
// holds exactly the external collaborators it needs (Provider, Tool
// Dispatcher, Conversation State Store, Template renderer, Context
// Compactor) rather than being polymorphic over a wider service graph.
type Orchestrator struct {
	store      *conversation.Store
	dispatcher *dispatcher.Registry
	provider   provider.Provider
	renderer   TemplateRenderer
	compactor  *compactor.Compactor
	cfg        Config
}

// New constructs an Orchestrator from its capabilities.
func New(store *conversation.Store, reg *dispatcher.Registry, prov provider.Provider, renderer TemplateRenderer, comp *compactor.Compactor, cfg Config) *Orchestrator {
	return &Orchestrator{store: store, dispatcher: reg, provider: prov, renderer: renderer, compactor: comp, cfg: cfg}
}

// Dispatch is the Orchestrator's top-level entry point: given a conversation
// id and an Event, it activates every subscribed, non-exhausted agent in
// parallel and returns a channel the caller reads ChatResponses from. The
// channel is closed when every activation has finished.
//
// An empty Event queue (no event given) or an Event matching no agent's
// subscription yields an immediately-empty stream, not an error, per
// spec.md §8's round-trip laws.
func (o *Orchestrator) Dispatch(ctx context.Context, conversationID string, evt forgetype.Event) <-chan forgetype.ChatResponse {
	out := make(chan forgetype.ChatResponse, o.cfg.ResponseBufferSize)

	conv, ok := o.store.Find(conversationID)
	if !ok {
		logger.G(ctx).WithField("conversation_id", conversationID).Warn("dispatch on unknown conversation")
		go func() {
			defer close(out)
			out <- forgetype.ErrorResponse("", forgetype.Errata{
				Title:       "Conversation not found",
				Description: conversationID,
			})
		}()
		return out
	}

	var toActivate []forgetype.Agent
	for _, a := range conv.Workflow.Agents {
		st := conv.AgentStates[a.ID]
		if a.Subscribes(evt.Name) && st.TurnCount < a.MaxTurns {
			toActivate = append(toActivate, a)
		}
	}

	if len(toActivate) == 0 {
		close(out)
		return out
	}

	go o.runActivations(ctx, conversationID, evt, toActivate, out)
	return out
}

// runActivations fans out one activation goroutine per agent and fairly
// merges their sub-streams into out, closing out once every activation has
// finished (spec.md §4.5 "Per-event fan-out").
func (o *Orchestrator) runActivations(ctx context.Context, conversationID string, evt forgetype.Event, agents []forgetype.Agent, out chan<- forgetype.ChatResponse) {
	defer close(out)

	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "dispatch")
	defer span.End()

	logger.G(ctx).WithField("conversation_id", conversationID).
		WithField("event", evt.Name).
		WithField("agent_count", len(agents)).
		Debug("fanning out activations")

	g, gctx := errgroup.WithContext(ctx)
	merged := make(chan forgetype.ChatResponse, o.cfg.ResponseBufferSize)

	// fanout tracks fire-and-forget handover/event_dispatch forwarding
	// goroutines (prepare.go's handover/handleEnqueuedEvent), which outlive
	// the activate() call that spawned them. merged must not close until
	// those have drained too, or a late send on it panics.
	var fanout sync.WaitGroup

	for _, a := range agents {
		agent := a
		g.Go(func() error {
			o.activate(gctx, conversationID, agent, evt, merged, &fanout)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		fanout.Wait()
		close(merged)
	}()

	for resp := range merged {
		select {
		case out <- resp:
		case <-ctx.Done():
			return
		}
	}
}
