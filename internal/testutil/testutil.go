// Package testutil provides common test utilities shared across packages.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"

	"github.com/CMCFame/ACEBotV2/internal/genai"
)

// MockAIClient is a scriptable genai.ClientInterface for tests. Queue tool
// responses with QueueToolCall; prose generations return PromptResponse or an
// error when GenerateErr is set.
type MockAIClient struct {
	PromptResponse string
	GenerateErr    error
	toolResponses  []*genai.ToolCallResponse
	// ToolCallsMade counts GenerateWithTools invocations.
	ToolCallsMade int
}

// NewMockAIClient creates a mock client with a neutral prose response.
func NewMockAIClient() *MockAIClient {
	return &MockAIClient{PromptResponse: "mock response"}
}

// QueueToolCall enqueues one classification tool response with the given
// function name and JSON-marshalable arguments.
func (m *MockAIClient) QueueToolCall(name string, args interface{}) {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	m.toolResponses = append(m.toolResponses, &genai.ToolCallResponse{
		ToolCalls: []genai.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: genai.FunctionCall{Name: name, Arguments: data},
		}},
	})
}

func (m *MockAIClient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	return m.PromptResponse, nil
}

func (m *MockAIClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	return m.PromptResponse, nil
}

func (m *MockAIClient) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	m.ToolCallsMade++
	if m.GenerateErr != nil {
		return nil, m.GenerateErr
	}
	if len(m.toolResponses) == 0 {
		return &genai.ToolCallResponse{Content: m.PromptResponse}, nil
	}
	resp := m.toolResponses[0]
	m.toolResponses = m.toolResponses[1:]
	return resp, nil
}

// AssertHTTPStatus checks the HTTP status code and fails the test on mismatch.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}
