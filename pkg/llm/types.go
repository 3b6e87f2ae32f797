// Copyright 2026 Stageflow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package llm talks to chat-completion providers and runs the tool-calling
// conversation loop on top of them.
package llm

import (
	"context"
	"errors"

	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

var (
	// ErrInvalidInput marks a completion prompt the adapter cannot execute.
	ErrInvalidInput = errors.New("invalid completion input")

	// ErrToolMissing marks a model-requested function that is not registered.
	ErrToolMissing = errors.New("requested tool is not registered")

	// ErrProvider wraps failures reported by the chat provider.
	ErrProvider = errors.New("chat provider error")
)

// Message is one chat message on the provider wire.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall

	// ToolCallID links a tool-result message back to the call it answers.
	ToolCallID string
}

// ToolCall is a function invocation requested by the model. Arguments is the
// raw JSON argument string as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Request is one round of a chat conversation.
type Request struct {
	Model          string
	Messages       []Message
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	Tools          []scenario.FunctionSpec
	ToolChoice     scenario.ToolChoice
	ResponseFormat *scenario.ResponseFormat
}

// Response is the provider's answer to one Request round.
type Response struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	ToolCalls    []ToolCall
	Usage        *TokenUsage
}

// TokenUsage counts tokens consumed by one or more conversation rounds.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func (u *TokenUsage) add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ChatClient executes a single chat-completion round against a provider.
type ChatClient interface {
	CompleteChat(ctx context.Context, req *Request) (*Response, error)
}

// ToolCallAudit records one executed tool call of a conversation.
type ToolCallAudit struct {
	ID           string `json:"id"`
	FunctionName string `json:"functionName"`
	Arguments    string `json:"arguments"`
	Result       string `json:"result"`
}

// ResultMetadata carries the provider-side details of a completed
// conversation.
type ResultMetadata struct {
	// ID is the provider's identifier of the final conversation round.
	ID string

	Model        string
	FinishReason string
	ToolCalls    []ToolCallAudit
	Usage        *TokenUsage

	// Extra holds the free-form turn parameters the prompt carried.
	Extra map[string]any
}

// CompletionResult is the outcome of running one completion prompt through
// the conversation loop.
type CompletionResult struct {
	SessionID    string
	SystemPrompt string
	UserPrompt   string
	Content      string
	Metadata     ResultMetadata
}
