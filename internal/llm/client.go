// Package llm wraps the OpenAI API behind the small surface the task
// subsystem needs: one tool-calling chat completion and one embedding
// call. Callers see neutral types so the SDK stays contained here.
package llm

import (
	"context"
	"fmt"

	"advisorhub/pkg/config"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// ToolDef describes one callable function in the schema handed to the
// model. Parameters is a JSON-schema object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ChatResult carries the model's reply.
type ChatResult struct {
	Content     string
	ToolCalls   []ToolCall
	TotalTokens int64
}

// Client is an OpenAI-backed chat and embedding client.
type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
}

// NewClient creates a client from the OpenAI config section.
func NewClient(cfg config.OpenAIConfig) *Client {
	return &Client{
		api:        openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbeddingModel,
	}
}

// ChatWithTools runs one chat completion with the given tool schema and
// returns the reply text plus any tool invocations the model requested.
func (c *Client) ChatWithTools(ctx context.Context, systemPrompt, userMessage string, tools []ToolDef) (*ChatResult, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
	}

	for _, tool := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  shared.FunctionParameters(tool.Parameters),
		}))
	}

	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	message := completion.Choices[0].Message
	result := &ChatResult{
		Content:     message.Content,
		TotalTokens: completion.Usage.TotalTokens,
	}
	for _, call := range message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return result, nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}
	return resp.Data[0].Embedding, nil
}
