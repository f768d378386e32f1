package provider

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
// Unlike the OpenAI backend, the Anthropic SDK folds its own stream via
// anthropic.Message.Accumulate — this backend replays that already-folded
// shape onto the provider-agnostic Delta channel so the same Folder can
// consume either provider uniformly (spec.md §4.4 is provider-agnostic by
// design; see pkg/llm/anthropic/anthropic.go's stream.Next()/Accumulate
// loop for the grounding).
type AnthropicProvider struct {
	client    *anthropic.Client
	retry     RetryConfig
	maxTokens int64
}

// defaultMaxTokens is used when a caller does not override it via
// NewAnthropicProviderWithMaxTokens.
const defaultMaxTokens = 4096

// NewAnthropicProvider builds a Provider backed by the given Anthropic SDK
// client, with spec.md's default max_tokens (4096).
func NewAnthropicProvider(client *anthropic.Client, retry RetryConfig) *AnthropicProvider {
	return NewAnthropicProviderWithMaxTokens(client, retry, defaultMaxTokens)
}

// NewAnthropicProviderWithMaxTokens builds a Provider with an explicit
// max_tokens override, letting deployments configure it per config.Config's
// max_tokens field.
func NewAnthropicProviderWithMaxTokens(client *anthropic.Client, retry RetryConfig, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicProvider{client: client, retry: retry, maxTokens: maxTokens}
}

func toAnthropicMessages(c forgetype.Context) (system string, msgs []anthropic.MessageParam) {
	for _, m := range c.Messages {
		switch m.Role {
		case forgetype.RoleSystem:
			system = m.Content
		case forgetype.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case forgetype.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Name, tc.RawArguments))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		case forgetype.RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return system, msgs
}

func toAnthropicTools(defs []forgetype.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
			},
		})
	}
	return out
}

// Chat invokes the Anthropic streaming Messages API, accumulates it the way
// the SDK intends, and only once the full message has landed successfully
// replays it as a small sequence of Deltas (text blocks in order, then one
// tool-call fragment per ToolUseBlock, then a terminal finish marker). The
// accumulate loop itself never pushes onto out: a mid-stream failure that
// triggers a retry reopens a brand-new stream from scratch, and forwarding
// fragments live would have already leaked the first attempt's partial text
// to the caller before the retry replayed it again from the top.
func (p *AnthropicProvider) Chat(ctx context.Context, modelID string, c forgetype.Context) (<-chan Delta, error) {
	system, msgs := toAnthropicMessages(c)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: p.maxTokens,
		Messages:  msgs,
		Tools:     toAnthropicTools(c.Tools),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	out := make(chan Delta, 1)

	message, err := WithRetry(ctx, p.retry, func() (*anthropic.Message, error) {
		stream := p.client.Messages.NewStreaming(ctx, params, option.WithMaxRetries(p.retry.Attempts))
		defer stream.Close()

		msg := &anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if accErr := msg.Accumulate(event); accErr != nil {
				logger.G(ctx).WithError(accErr).Warn("anthropic message accumulate failed")
			}
		}
		if stream.Err() != nil {
			return nil, stream.Err()
		}
		return msg, nil
	})
	if err != nil {
		close(out)
		return nil, err
	}

	go func() {
		defer close(out)
		finish := FinishStop
		idx := 0
		for _, block := range message.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				if variant.Text == "" {
					continue
				}
				select {
				case out <- Delta{TextFrag: variant.Text}:
				case <-ctx.Done():
					return
				}
			case anthropic.ToolUseBlock:
				finish = FinishToolCalls
				i := idx
				idx++
				select {
				case out <- Delta{ToolCalls: []ToolCallDelta{{
					Index: &i, ID: variant.ID, Name: variant.Name, ArgsFrag: string(variant.Input),
				}}}:
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case out <- Delta{
			Finish: finish,
			Usage: &forgetype.Usage{
				InputTokens:  int(message.Usage.InputTokens),
				OutputTokens: int(message.Usage.OutputTokens),
			},
		}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// Models lists the provider's selectable models. The Anthropic SDK does not
// expose a dynamic model-listing endpoint consumed elsewhere in the
// teacher; selectable models are a small fixed set. The workflow loader does
// not check agent.model_id against it; it only requires a non-empty id.
func (p *AnthropicProvider) Models(ctx context.Context) ([]Model, error) {
	return []Model{
		{ID: "claude-sonnet-4-0", DisplayName: "Claude Sonnet 4"},
		{ID: "claude-3-5-haiku-latest", DisplayName: "Claude 3.5 Haiku"},
	}, nil
}
