package llm

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for requests that fail basic validation.
var ErrInvalidRequest = errors.New("invalid llm request")

// Message is one chat turn. Role is system, user or assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request for a capability.
type Request struct {
	Capability string
	Messages   []Message

	// Temperature nil uses the endpoint default; 0 is deterministic.
	Temperature *float64

	// MaxTokens 0 uses the endpoint default.
	MaxTokens int

	// JSONMode asks for a single JSON object. Providers without a native
	// switch fall back to an instruction.
	JSONMode bool
}

func (r Request) validate() error {
	if r.Capability == "" {
		return fmt.Errorf("%w: capability is required", ErrInvalidRequest)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	return nil
}

// TokenUsage is the token consumption of one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completion result.
type Response struct {
	// RequestID matches the CallRecord of the call.
	RequestID string

	Content string

	// Model is the model that actually answered.
	Model string

	Usage        TokenUsage
	FinishReason string
}
