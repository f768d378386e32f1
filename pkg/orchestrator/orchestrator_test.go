package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshchauhan21/forge/pkg/compactor"
	"github.com/vanshchauhan21/forge/pkg/conversation"
	"github.com/vanshchauhan21/forge/pkg/dispatcher"
	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/provider"
)

// fakeRenderer renders every template as a fixed string tagged with the
// template name, so tests can assert on which template was asked for
// without a real workflow on disk.
type fakeRenderer struct{}

func (fakeRenderer) Render(templateName string, _ any) (string, error) {
	return "rendered:" + templateName, nil
}

// fakeSummarizer returns a fixed summary, counting how many times it was
// invoked so compaction tests can assert it actually fired.
type fakeSummarizer struct {
	calls int
}

func (f *fakeSummarizer) SummarizeTurn(_ context.Context, _ string, _ []forgetype.Message) (string, error) {
	f.calls++
	return "summary", nil
}

// scriptedProvider replays one queued turn (a slice of Deltas) per Chat
// call, in order, so a test can script exactly what the model "says" turn
// by turn (spec.md §8's scenario shape).
type scriptedProvider struct {
	turns [][]provider.Delta
	calls int
}

func (p *scriptedProvider) Chat(ctx context.Context, modelID string, c forgetype.Context) (<-chan provider.Delta, error) {
	idx := p.calls
	p.calls++
	ch := make(chan provider.Delta, len(p.turns[idx]))
	for _, d := range p.turns[idx] {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Models(context.Context) ([]provider.Model, error) { return nil, nil }

// blockingProvider hangs until its context is canceled, modeling a
// mid-stream cancellation (spec.md §8 scenario S6).
type blockingProvider struct{}

func (blockingProvider) Chat(ctx context.Context, _ string, _ forgetype.Context) (<-chan provider.Delta, error) {
	ch := make(chan provider.Delta)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (blockingProvider) Models(context.Context) ([]provider.Model, error) { return nil, nil }

// echoTool is a trivial Tool used to exercise the single-tool-loop scenario.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input back" }
func (echoTool) Schema() *jsonschema.Schema {
	return dispatcher.GenerateSchema[struct {
		Text string `json:"text"`
	}]()
}
func (echoTool) ValidateInput(json.RawMessage) error { return nil }
func (echoTool) Call(_ context.Context, _ *dispatcher.ToolCallContext, raw json.RawMessage) (string, error) {
	var in struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(raw, &in)
	return "echo: " + in.Text, nil
}

func testWorkflow(agent forgetype.Agent) forgetype.Workflow {
	return forgetype.Workflow{Agents: []forgetype.Agent{agent}}
}

func newTestOrchestrator(prov provider.Provider, reg *dispatcher.Registry, cfg Config) (*Orchestrator, *conversation.Store) {
	store := conversation.NewStore()
	comp := compactor.New(&fakeSummarizer{}, compactor.DefaultConfig())
	orch := New(store, reg, prov, fakeRenderer{}, comp, cfg)
	return orch, store
}

func drain(t *testing.T, ch <-chan forgetype.ChatResponse, timeout time.Duration) []forgetype.ChatResponse {
	t.Helper()
	var out []forgetype.ChatResponse
	deadline := time.After(timeout)
	for {
		select {
		case resp, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, resp)
		case <-deadline:
			t.Fatal("timed out draining response stream")
			return out
		}
	}
}

// S1: a simple answer with no tool calls completes in one turn.
func TestDispatchSimpleAnswer(t *testing.T) {
	agent := forgetype.Agent{
		ID: "a", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"user_task_init"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
	}
	prov := &scriptedProvider{turns: [][]provider.Delta{
		{{TextFrag: "hello"}, {Finish: provider.FinishStop}},
	}}
	reg := dispatcher.NewRegistry(dispatcher.CompletionTool{}, dispatcher.EventDispatchTool{})
	orch, store := newTestOrchestrator(prov, reg, DefaultConfig())

	conv := store.Create(testWorkflow(agent))
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	resps := drain(t, orch.Dispatch(context.Background(), conv.ID, evt), time.Second)

	var finals []forgetype.ChatResponse
	for _, r := range resps {
		if r.Kind == forgetype.ChatResponseText && r.IsComplete {
			finals = append(finals, r)
		}
	}
	require.Len(t, finals, 1)
	assert.Equal(t, "hello", finals[0].Text)
	assert.False(t, finals[0].IsSummary)

	got, _ := store.Find(conv.ID)
	assert.Equal(t, 1, got.AgentStates["a"].TurnCount)
}

// S2: one tool call loop, then a completion call terminates the activation.
func TestDispatchSingleToolLoop(t *testing.T) {
	agent := forgetype.Agent{
		ID: "a", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"user_task_init"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
	}
	prov := &scriptedProvider{turns: [][]provider.Delta{
		{{ToolCalls: []provider.ToolCallDelta{{ID: "1", Name: "echo", ArgsFrag: `{"text":"hi"}`}}}, {Finish: provider.FinishToolCalls}},
		{{ToolCalls: []provider.ToolCallDelta{{ID: "2", Name: "completion", ArgsFrag: `{"summary":"done"}`}}}, {Finish: provider.FinishToolCalls}},
	}}
	reg := dispatcher.NewRegistry(echoTool{}, dispatcher.CompletionTool{}, dispatcher.EventDispatchTool{})
	orch, store := newTestOrchestrator(prov, reg, DefaultConfig())

	conv := store.Create(testWorkflow(agent))
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	resps := drain(t, orch.Dispatch(context.Background(), conv.ID, evt), time.Second)

	var toolEnds []forgetype.ChatResponse
	var finalText *forgetype.ChatResponse
	for i := range resps {
		r := resps[i]
		if r.Kind == forgetype.ChatResponseToolCallEnd {
			toolEnds = append(toolEnds, r)
		}
		if r.Kind == forgetype.ChatResponseText && r.IsComplete {
			finalText = &r
		}
	}
	require.Len(t, toolEnds, 2)
	assert.Equal(t, "echo: hi", toolEnds[0].ToolResult.Content)
	require.NotNil(t, finalText)
	assert.True(t, finalText.IsSummary)
	assert.Equal(t, "done", finalText.Text)
}

// S3: an agent that never calls completion is stopped once MaxTurns is hit.
func TestDispatchMaxTurnsReached(t *testing.T) {
	agent := forgetype.Agent{
		ID: "a", ModelID: "m", MaxTurns: 2,
		SubscribedEvents: []string{"user_task_init"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
	}
	loopTurn := []provider.Delta{
		{ToolCalls: []provider.ToolCallDelta{{ID: "1", Name: "echo", ArgsFrag: `{"text":"x"}`}}},
		{Finish: provider.FinishToolCalls},
	}
	prov := &scriptedProvider{turns: [][]provider.Delta{loopTurn, loopTurn, loopTurn}}
	reg := dispatcher.NewRegistry(echoTool{}, dispatcher.CompletionTool{}, dispatcher.EventDispatchTool{})
	orch, store := newTestOrchestrator(prov, reg, DefaultConfig())

	conv := store.Create(testWorkflow(agent))
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	resps := drain(t, orch.Dispatch(context.Background(), conv.ID, evt), time.Second)

	var errs []forgetype.ChatResponse
	for _, r := range resps {
		if r.Kind == forgetype.ChatResponseError {
			errs = append(errs, r)
		}
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error.Title, "Turn limit")
}

// S4: a Wait handover blocks the upstream activation until the downstream
// agent's own activation has fully terminated.
func TestDispatchHandoverWait(t *testing.T) {
	upstream := forgetype.Agent{
		ID: "up", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"user_task_init"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
		Handovers: []forgetype.Handover{{AgentID: "down", Wait: true}},
	}
	downstream := forgetype.Agent{
		ID: "down", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"agent.down"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
	}
	prov := &scriptedProvider{turns: [][]provider.Delta{
		{{TextFrag: "up done"}, {Finish: provider.FinishStop}},
		{{TextFrag: "down done"}, {Finish: provider.FinishStop}},
	}}
	reg := dispatcher.NewRegistry(dispatcher.CompletionTool{}, dispatcher.EventDispatchTool{})
	orch, store := newTestOrchestrator(prov, reg, DefaultConfig())

	conv := store.Create(forgetype.Workflow{Agents: []forgetype.Agent{upstream, downstream}})
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	resps := drain(t, orch.Dispatch(context.Background(), conv.ID, evt), time.Second)

	byAgent := map[string][]string{}
	upFinalIdx, downFirstIdx := -1, -1
	for i, r := range resps {
		if r.Kind == forgetype.ChatResponseText && r.IsComplete {
			byAgent[r.AgentID] = append(byAgent[r.AgentID], r.Text)
			if r.AgentID == "up" && upFinalIdx == -1 {
				upFinalIdx = i
			}
		}
		if r.AgentID == "down" && downFirstIdx == -1 {
			downFirstIdx = i
		}
	}
	assert.Equal(t, []string{"up done"}, byAgent["up"])
	assert.Equal(t, []string{"down done"}, byAgent["down"])

	// spec.md §8 scenario S4: the upstream activation's own terminal
	// response must precede any of the downstream handover's events in the
	// merged top-level stream, even though Wait=true blocks the upstream
	// activation from returning until the downstream one terminates.
	require.NotEqual(t, -1, upFinalIdx)
	require.NotEqual(t, -1, downFirstIdx)
	assert.Less(t, upFinalIdx, downFirstIdx)
}

// S5: compaction fires before a Calling transition once the estimated token
// count crosses CompactionRatio of the model's advertised context window.
func TestDispatchCompactionTriggered(t *testing.T) {
	agent := forgetype.Agent{
		ID: "a", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"user_task_init"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
	}
	prov := &scriptedProvider{turns: [][]provider.Delta{
		{{TextFrag: "hello"}, {Finish: provider.FinishStop}},
	}}
	reg := dispatcher.NewRegistry(dispatcher.CompletionTool{}, dispatcher.EventDispatchTool{})

	summarizer := &fakeSummarizer{}
	store := conversation.NewStore()
	// The prepared context ("rendered:sys" + "rendered:user") estimates to 1
	// token, so the compactor's own threshold must be below that for it to
	// summarize anything.
	comp := compactor.New(summarizer, compactor.Config{TokenThreshold: 0})
	cfg := DefaultConfig()
	cfg.ContextWindowForModel = func(string) int { return 1 }
	cfg.CompactionRatio = 0.0
	orch := New(store, reg, prov, fakeRenderer{}, comp, cfg)

	conv := store.Create(testWorkflow(agent))
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	drain(t, orch.Dispatch(context.Background(), conv.ID, evt), time.Second)

	assert.Greater(t, summarizer.calls, 0, "expected compaction to invoke the summarizer at least once")
}

// S6: canceling the context mid-stream silently stops the activation (no
// error ChatResponse), per spec.md §7.
func TestDispatchCancellationMidStream(t *testing.T) {
	agent := forgetype.Agent{
		ID: "a", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"user_task_init"},
		SystemPromptTmpl: "sys", UserPromptTmpl: "user",
	}
	reg := dispatcher.NewRegistry(dispatcher.CompletionTool{}, dispatcher.EventDispatchTool{})
	orch, store := newTestOrchestrator(blockingProvider{}, reg, DefaultConfig())

	conv := store.Create(testWorkflow(agent))
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := orch.Dispatch(ctx, conv.ID, evt)
	cancel()

	resps := drain(t, ch, time.Second)
	for _, r := range resps {
		assert.NotEqual(t, forgetype.ChatResponseError, r.Kind)
	}
}

// An Event matching no agent's subscription yields an immediately-closed,
// empty stream rather than an error.
func TestDispatchNoSubscribedAgents(t *testing.T) {
	agent := forgetype.Agent{
		ID: "a", ModelID: "m", MaxTurns: 5,
		SubscribedEvents: []string{"other_event"},
	}
	reg := dispatcher.NewRegistry()
	orch, store := newTestOrchestrator(&scriptedProvider{}, reg, DefaultConfig())

	conv := store.Create(testWorkflow(agent))
	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	resps := drain(t, orch.Dispatch(context.Background(), conv.ID, evt), time.Second)
	assert.Empty(t, resps)
}

// Dispatching against an unknown conversation id yields one terminal error.
func TestDispatchUnknownConversation(t *testing.T) {
	reg := dispatcher.NewRegistry()
	orch, _ := newTestOrchestrator(&scriptedProvider{}, reg, DefaultConfig())

	evt, err := forgetype.NewEvent("user_task_init", "go")
	require.NoError(t, err)

	resps := drain(t, orch.Dispatch(context.Background(), "missing", evt), time.Second)
	require.Len(t, resps, 1)
	assert.Equal(t, forgetype.ChatResponseError, resps[0].Kind)
}
