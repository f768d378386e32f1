package provider

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// openAIStatusError adapts go-openai's *openai.APIError to the
// provider.StatusCodeError interface the retry middleware keys off.
type openAIStatusError struct{ inner *openai.APIError }

func (e *openAIStatusError) Error() string   { return e.inner.Error() }
func (e *openAIStatusError) StatusCode() int { return e.inner.HTTPStatusCode }
func (e *openAIStatusError) Unwrap() error   { return e.inner }

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &openAIStatusError{inner: apiErr}
	}
	return err
}

// OpenAIProvider implements Provider against an OpenAI-compatible chat
// completions endpoint, grounded directly in the teacher's
// createStreamingChatCompletion index-keyed delta accumulation
// (pkg/llm/openai/openai.go) — the template this package's Folder
// generalizes into a provider-agnostic shape.
type OpenAIProvider struct {
	client    *openai.Client
	retry     RetryConfig
	maxTokens int
}

// NewOpenAIProvider builds a Provider backed by the given go-openai client,
// leaving max_tokens unset (the API's own default applies).
func NewOpenAIProvider(client *openai.Client, retry RetryConfig) *OpenAIProvider {
	return &OpenAIProvider{client: client, retry: retry}
}

// NewOpenAIProviderWithMaxTokens builds a Provider with an explicit
// max_tokens cap, letting deployments configure it per config.Config's
// max_tokens field.
func NewOpenAIProviderWithMaxTokens(client *openai.Client, retry RetryConfig, maxTokens int) *OpenAIProvider {
	return &OpenAIProvider{client: client, retry: retry, maxTokens: maxTokens}
}

func toOpenAIMessages(c forgetype.Context) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case forgetype.RoleSystem:
			msg.Role = openai.ChatMessageRoleSystem
		case forgetype.RoleUser:
			msg.Role = openai.ChatMessageRoleUser
		case forgetype.RoleAssistant:
			msg.Role = openai.ChatMessageRoleAssistant
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.RawArguments,
					},
				})
			}
		case forgetype.RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(defs []forgetype.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

// Chat streams deltas from the OpenAI-compatible endpoint, translating the
// SDK's ChatCompletionStreamResponse into the provider-agnostic Delta shape
// and retrying the whole call under the configured exponential backoff.
func (p *OpenAIProvider) Chat(ctx context.Context, modelID string, c forgetype.Context) (<-chan Delta, error) {
	req := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: toOpenAIMessages(c),
		Tools:    toOpenAITools(c.Tools),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}

	stream, err := WithRetry(ctx, p.retry, func() (*openai.ChatCompletionStream, error) {
		s, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, wrapOpenAIError(err)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Delta, 1)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					return
				}
				logger.G(ctx).WithError(err).Warn("openai stream recv failed")
				return
			}
			for _, choice := range resp.Choices {
				d := Delta{TextFrag: choice.Delta.Content}
				for _, tc := range choice.Delta.ToolCalls {
					idx := tc.Index
					d.ToolCalls = append(d.ToolCalls, ToolCallDelta{
						Index:    idx,
						ID:       tc.ID,
						Name:     tc.Function.Name,
						ArgsFrag: tc.Function.Arguments,
					})
				}
				if choice.FinishReason != "" {
					d.Finish = FinishReason(choice.FinishReason)
				}
				if resp.Usage != nil {
					d.Usage = &forgetype.Usage{
						InputTokens:  resp.Usage.PromptTokens,
						OutputTokens: resp.Usage.CompletionTokens,
					}
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Models lists the provider's selectable models.
func (p *OpenAIProvider) Models(ctx context.Context) ([]Model, error) {
	list, err := WithRetry(ctx, p.retry, func() (openai.ModelsList, error) {
		l, err := p.client.ListModels(ctx)
		if err != nil {
			return openai.ModelsList{}, wrapOpenAIError(err)
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Model, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, Model{ID: m.ID, DisplayName: m.ID})
	}
	return out, nil
}
