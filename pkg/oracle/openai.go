package oracle

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIClient implements Client using the Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a GPT-backed oracle client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete sends a single-turn completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	// The Responses API takes a single input string; fold the system prompt in.
	inputText := req.Prompt
	if req.System != "" {
		inputText = fmt.Sprintf("System: %s\n\n%s", req.System, req.Prompt)
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(req.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("openai completion failed: %w", err)
	}

	return Response{
		Content:    resp.OutputText(),
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}
