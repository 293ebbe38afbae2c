package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient is a scripted implementation of LLMClient for tests and offline
// runs. Queued responses are returned in order; once the queue is empty the
// mock echoes the last user message.
type MockClient struct {
	mu        sync.Mutex
	responses []mockReply
	requests  []ChatCompletionRequest
}

type mockReply struct {
	resp *ChatCompletionResponse
	err  error
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueResponse appends a response to return.
func (m *MockClient) QueueResponse(resp *ChatCompletionResponse) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockReply{resp: resp})
	return m
}

// QueueError appends an error to return.
func (m *MockClient) QueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockReply{err: err})
	return m
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []ChatCompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatCompletionRequest(nil), m.requests...)
}

// CreateChatCompletion records the request and returns the next scripted reply.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, *req)

	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		return next.resp, next.err
	}

	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	return TextResponse(fmt.Sprintf("[MOCK] Received your message: %q", truncate(lastUserMessage, 100))), nil
}

// TextResponse builds a completion holding a plain assistant message.
func TextResponse(content string) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []Choice{{
			Message:      ChatMessage{Role: RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	}
}

// ToolCallResponse builds a completion requesting the given tool calls.
func ToolCallResponse(calls ...ToolCall) *ChatCompletionResponse {
	for i := range calls {
		if calls[i].Type == "" {
			calls[i].Type = "function"
		}
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Choices: []Choice{{
			Message:      ChatMessage{Role: RoleAssistant, ToolCalls: calls},
			FinishReason: FinishReasonToolCalls,
		}},
	}
}
