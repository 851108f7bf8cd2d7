// Package testutil provides test doubles for code that calls llm.Client.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/tripsync/llm"
)

// MockLLMClient is a thread-safe stand-in for llm.Client.
//
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{
//	        {Content: "not json", Model: "test-model"},
//	        {Content: `{"days": []}`, Model: "test-model"},
//	    },
//	}
//
// Responses are returned in order; after they run out an empty response is
// returned. Err, when set, is returned from every call.
type MockLLMClient struct {
	mu            sync.Mutex
	Responses     []*llm.Response
	Err           error
	requests      []llm.Request
	responseIndex int
}

// Complete records req and returns the next configured response.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}
	return &llm.Response{Model: "test-model"}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded requests and rewinds the responses.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responseIndex = 0
}
