package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Native talks to a remote chat-completion-style API. Tools are passed as
// JSON-schema function descriptors; returned tool calls are normalized to
// the uniform shape.
type Native struct {
	apiBase      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

func NewNative(apiBase, apiKey, defaultModel string) *Native {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	return &Native{
		apiBase:      strings.TrimRight(apiBase, "/"),
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *Native) Name() string { return "native" }

func (p *Native) Capabilities() Capabilities {
	return Capabilities{Docs: true, Attachments: true}
}

type nativeToolDef struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type nativeMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []nativeToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type nativeToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type nativeResponse struct {
	Choices []struct {
		Message      nativeMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *Native) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]nativeMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		nm := nativeMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var ntc nativeToolCall
			ntc.ID = tc.ID
			ntc.Type = "function"
			ntc.Function.Name = tc.Name
			ntc.Function.Arguments = string(tc.Args)
			nm.ToolCalls = append(nm.ToolCalls, ntc)
		}
		msgs = append(msgs, nm)
	}

	body := map[string]any{
		"model":    model,
		"messages": msgs,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		defs := make([]nativeToolDef, 0, len(req.Tools))
		for _, t := range req.Tools {
			var d nativeToolDef
			d.Type = "function"
			d.Function.Name = t.Name
			d.Function.Description = t.Description
			d.Function.Parameters = t.InputSchema
			defs = append(defs, d)
		}
		body["tools"] = defs
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("native: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("native: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("native: %w", ErrTimeout)
		}
		return nil, fmt.Errorf("native: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("native: read response: %w", err)
	}

	var out nativeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("native: decode response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("native: api error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("native: status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("native: empty choices")
	}

	choice := out.Choices[0].Message
	result := &Response{Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	if out.Usage != nil {
		result.Usage = &Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	return result, nil
}
