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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stageflow-ai/stageflow/pkg/httpclient"
	"github.com/stageflow-ai/stageflow/pkg/scenario"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI chat client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	OrganizationID string
	ProjectID      string
	TimeoutSeconds int
	MaxRetries     int
}

// OpenAIClient is a chat-completions client over the retrying HTTP client.
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *httpclient.Client
}

// NewOpenAIClient creates a client with sane defaults: 60s timeout, the
// public OpenAI endpoint, and rate-limit-aware retries.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 60
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	)

	return &OpenAIClient{
		config:     cfg,
		httpClient: httpClient,
	}
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	TopP           *float64              `json:"top_p,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ToolChoice     any                   `json:"tool_choice,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	Strict      bool           `json:"strict"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// CompleteChat runs one chat-completion round.
func (c *OpenAIClient) CompleteChat(ctx context.Context, req *Request) (*Response, error) {
	wireReq, err := buildOpenAIRequest(req)
	if err != nil {
		return nil, err
	}

	wireResp, err := c.makeRequest(ctx, wireReq)
	if err != nil {
		return nil, err
	}

	if wireResp.Error != nil {
		return nil, fmt.Errorf("%w: %s (type: %s, code: %s)",
			ErrProvider, wireResp.Error.Message, wireResp.Error.Type, wireResp.Error.Code)
	}
	if len(wireResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices returned", ErrProvider)
	}

	choice := wireResp.Choices[0]
	resp := &Response{
		ID:           wireResp.ID,
		Model:        wireResp.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}

	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if wireResp.Usage != nil {
		resp.Usage = &TokenUsage{
			InputTokens:  wireResp.Usage.PromptTokens,
			OutputTokens: wireResp.Usage.CompletionTokens,
			TotalTokens:  wireResp.Usage.TotalTokens,
		}
	}

	return resp, nil
}

func buildOpenAIRequest(req *Request) (*openAIRequest, error) {
	wire := &openAIRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	for _, m := range req.Messages {
		wm := openAIMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		wire.Messages = append(wire.Messages, wm)
	}

	for _, tool := range req.Tools {
		var params map[string]any
		if err := json.Unmarshal([]byte(tool.Parameters), &params); err != nil {
			return nil, fmt.Errorf("%w: invalid parameter schema for tool %s: %v",
				ErrInvalidInput, tool.Name, err)
		}
		// Every declared function runs in strict mode so the provider
		// validates arguments against the schema.
		wire.Tools = append(wire.Tools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
				Strict:      true,
			},
		})
	}

	if len(wire.Tools) > 0 {
		switch req.ToolChoice.Mode {
		case scenario.ToolChoiceNone:
			wire.ToolChoice = "none"
		case scenario.ToolChoiceFunction:
			wire.ToolChoice = map[string]any{
				"type":     "function",
				"function": map[string]any{"name": req.ToolChoice.Name},
			}
		default:
			wire.ToolChoice = "auto"
		}
	}

	if req.ResponseFormat != nil {
		format, err := buildResponseFormat(req.ResponseFormat)
		if err != nil {
			return nil, err
		}
		wire.ResponseFormat = format
	}

	return wire, nil
}

func buildResponseFormat(rf *scenario.ResponseFormat) (*openAIResponseFormat, error) {
	switch rf.Type {
	case scenario.ResponseFormatText, "":
		return nil, nil
	case scenario.ResponseFormatJSONObject:
		return &openAIResponseFormat{Type: "json_object"}, nil
	case scenario.ResponseFormatJSONSchema:
		var schemaMap map[string]any
		if err := json.Unmarshal([]byte(rf.Schema), &schemaMap); err != nil {
			return nil, fmt.Errorf("%w: invalid response schema: %v", ErrInvalidInput, err)
		}
		name := rf.SchemaName
		if name == "" {
			name = "response"
		}
		return &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   name,
				Schema: schemaMap,
				Strict: true,
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown response format type %q", ErrInvalidInput, rf.Type)
	}
}

func (c *OpenAIClient) makeRequest(ctx context.Context, request *openAIRequest) (*openAIResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.OrganizationID != "" {
		req.Header.Set("OpenAI-Organization", c.config.OrganizationID)
	}
	if c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}

	resp, err := c.httpClient.Do(req)
	// The retrying client may return both a response and an error for non-2xx
	// statuses; the body still carries the provider's error details.
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			errorBody := string(body)
			if readErr != nil {
				errorBody = fmt.Sprintf("(failed to read error body: %v)", readErr)
			}
			if apiErr := parseErrorResponse(body); apiErr != nil {
				return nil, fmt.Errorf("%w: request failed with status %d: %s (type: %s, code: %s)",
					ErrProvider, resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code)
			}
			return nil, fmt.Errorf("%w: request failed with status %d: %s", ErrProvider, resp.StatusCode, errorBody)
		}
	}

	if err != nil {
		// Cancellation and deadline expiry are the caller's doing, not the
		// provider's.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response received", ErrProvider)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

func parseErrorResponse(body []byte) *openAIError {
	var wrapper struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil
	}
	return wrapper.Error
}

var _ ChatClient = (*OpenAIClient)(nil)
