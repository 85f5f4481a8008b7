package oracle

import (
	"context"
	"strings"
	"sync"
)

// MockClient is a deterministic Client for tests and offline runs. Queued
// responses are returned in order; once exhausted it answers with a canned
// assessment or approval depending on the prompt.
type MockClient struct {
	mu        sync.Mutex
	responses []Response
	err       error
	calls     int
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueResponse appends a canned response.
func (c *MockClient) QueueResponse(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, Response{Content: content, TokensUsed: len(content) / 4})
}

// FailWith makes every Complete call return err.
func (c *MockClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls returns how many completions were requested.
func (c *MockClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Model returns the mock model name.
func (c *MockClient) Model() string {
	return "mock"
}

// Complete pops the next queued response or synthesizes one.
func (c *MockClient) Complete(_ context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	if c.err != nil {
		return Response{}, c.err
	}

	if len(c.responses) > 0 {
		resp := c.responses[0]
		c.responses = c.responses[1:]
		return resp, nil
	}

	if strings.Contains(req.Prompt, "verdict") {
		return Response{
			Content:    `{"verdict": "APPROVE", "summary": "Changes look reasonable.", "comments": []}`,
			TokensUsed: 20,
		}, nil
	}
	return Response{
		Content:    `{"complexity": "simple", "estimated_files": 1, "reasoning": "Small self-contained change."}`,
		TokensUsed: 20,
	}, nil
}
