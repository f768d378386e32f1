package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// GoogleProvider implements Provider against Google's GenAI API, grounded
// directly in the teacher's Thread.processMessageExchange/processPart
// folding loop (pkg/llm/google/streaming.go) and its toGoogleTools/
// convertToGoogleSchema tool conversion (pkg/llm/google/tools.go) — unlike
// Anthropic/OpenAI, genai groups every function declaration for one call
// under a single genai.Tool and streams chunks via a range-over-func
// iterator rather than a Recv()-style loop.
type GoogleProvider struct {
	client    *genai.Client
	retry     RetryConfig
	maxTokens int
}

// NewGoogleProvider builds a Provider backed by the given genai client,
// leaving max_tokens unset (the API's own default applies).
func NewGoogleProvider(client *genai.Client, retry RetryConfig) *GoogleProvider {
	return &GoogleProvider{client: client, retry: retry}
}

// NewGoogleProviderWithMaxTokens builds a Provider with an explicit
// max_tokens cap, letting deployments configure it per config.Config's
// max_tokens field.
func NewGoogleProviderWithMaxTokens(client *genai.Client, retry RetryConfig, maxTokens int) *GoogleProvider {
	return &GoogleProvider{client: client, retry: retry, maxTokens: maxTokens}
}

// toGooglePrompt folds a Context's message history into genai's []*genai.Content
// shape: the system message (if any) becomes a leading user-role content
// block (the teacher's Thread.buildPrompt does the same, since genai has no
// separate system-message slot in the streaming call this backend uses),
// assistant tool calls become FunctionCall parts, and tool results become
// FunctionResponse parts.
func toGooglePrompt(c forgetype.Context) []*genai.Content {
	prompt := make([]*genai.Content, 0, len(c.Messages))
	for _, m := range c.Messages {
		switch m.Role {
		case forgetype.RoleSystem:
			if m.Content != "" {
				prompt = append(prompt, genai.NewContentFromParts(
					[]*genai.Part{genai.NewPartFromText(m.Content)}, genai.RoleUser))
			}
		case forgetype.RoleUser:
			prompt = append(prompt, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromText(m.Content)}, genai.RoleUser))
		case forgetype.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Arguments},
				})
			}
			if len(parts) > 0 {
				prompt = append(prompt, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case forgetype.RoleTool:
			prompt = append(prompt, genai.NewContentFromParts([]*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     m.ToolName,
					Response: map[string]any{"call_id": m.ToolCallID, "result": m.Content},
				},
			}}, genai.RoleUser))
		}
	}
	return prompt
}

// toGoogleTools groups every advertised ToolDefinition's schema under a
// single genai.Tool, matching genai's one-tool-many-functions shape.
func toGoogleTools(defs []forgetype.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  convertToGoogleSchema(d.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertToGoogleSchema hand-converts the map[string]any JSON schema the
// rest of this repo's providers consume directly into genai's typed
// *genai.Schema shape.
func convertToGoogleSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}

	out := &genai.Schema{Type: convertSchemaType(stringField(schema, "type"))}
	if desc := stringField(schema, "description"); desc != "" {
		out.Description = desc
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, propSchema := range props {
			if ps, ok := propSchema.(map[string]any); ok {
				out.Properties[name] = convertToGoogleSchema(ps)
			}
		}
	}

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = convertToGoogleSchema(items)
	}

	return out
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func convertSchemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeObject
	}
}

// Chat streams deltas from genai's GenerateContentStream range-over-func
// iterator, translating each part (text, function call, or usage metadata
// on the chunk) into the provider-agnostic Delta shape.
func (p *GoogleProvider) Chat(ctx context.Context, modelID string, c forgetype.Context) (<-chan Delta, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: toGoogleTools(c.Tools),
	}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.maxTokens)
	}

	prompt := toGooglePrompt(c)

	out := make(chan Delta, 1)
	go func() {
		defer close(out)

		_, err := WithRetry(ctx, p.retry, func() (struct{}, error) {
			idx := 0
			finish := FinishStop
			for chunk, chunkErr := range p.client.Models.GenerateContentStream(ctx, modelID, prompt, cfg) {
				if chunkErr != nil {
					return struct{}{}, errors.Wrap(chunkErr, "google stream failed")
				}
				if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
					continue
				}
				for _, part := range chunk.Candidates[0].Content.Parts {
					switch {
					case part.Text != "" && !part.Thought:
						select {
						case out <- Delta{TextFrag: part.Text}:
						case <-ctx.Done():
							return struct{}{}, ctx.Err()
						}
					case part.FunctionCall != nil:
						finish = FinishToolCalls
						argsJSON, marshalErr := json.Marshal(part.FunctionCall.Args)
						if marshalErr != nil {
							logger.G(ctx).WithError(marshalErr).Warn("failed to marshal google function call arguments")
							continue
						}
						i := idx
						idx++
						select {
						case out <- Delta{ToolCalls: []ToolCallDelta{{
							Index: &i, ID: uuid.NewString(), Name: part.FunctionCall.Name, ArgsFrag: string(argsJSON),
						}}}:
						case <-ctx.Done():
							return struct{}{}, ctx.Err()
						}
					}
				}
				if chunk.UsageMetadata != nil {
					select {
					case out <- Delta{Usage: &forgetype.Usage{
						InputTokens:  int(chunk.UsageMetadata.PromptTokenCount),
						OutputTokens: int(chunk.UsageMetadata.CandidatesTokenCount),
					}}:
					case <-ctx.Done():
						return struct{}{}, ctx.Err()
					}
				}
			}
			select {
			case out <- Delta{Finish: finish}:
			case <-ctx.Done():
			}
			return struct{}{}, nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.G(ctx).WithError(err).Warn("google stream recv failed")
		}
	}()

	return out, nil
}

// Models lists the provider's selectable models. genai does not expose a
// dynamic model-listing endpoint consumed elsewhere in this repo; selectable
// models are a small fixed set, mirroring AnthropicProvider.Models. The
// workflow loader does not check agent.model_id against it.
func (p *GoogleProvider) Models(ctx context.Context) ([]Model, error) {
	return []Model{
		{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash"},
		{ID: "gemini-2.0-pro", DisplayName: "Gemini 2.0 Pro"},
	}, nil
}
