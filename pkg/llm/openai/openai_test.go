package openai

import (
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

func TestBuildMessages(t *testing.T) {
	req := llmtypes.Request{
		SystemPrompt: "You are helpful.",
		Messages: []llmtypes.Message{
			{Role: llmtypes.RoleUser, Content: "find the deals"},
			{
				Role:    llmtypes.RoleAssistant,
				Content: "looking them up",
				ToolCalls: []llmtypes.ToolCall{
					{ID: "call_1", Name: "read_context", Input: json.RawMessage(`{"path":"deals"}`)},
				},
			},
			{Role: llmtypes.RoleTool, ToolCallID: "call_1", ToolName: "read_context", Content: "[]"},
		},
	}

	messages := buildMessages(req)
	require.Len(t, messages, 4)

	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, "You are helpful.", messages[0].Content)

	assert.Equal(t, openai.ChatMessageRoleUser, messages[1].Role)

	assert.Equal(t, openai.ChatMessageRoleAssistant, messages[2].Role)
	require.Len(t, messages[2].ToolCalls, 1)
	assert.Equal(t, "call_1", messages[2].ToolCalls[0].ID)
	assert.Equal(t, openai.ToolTypeFunction, messages[2].ToolCalls[0].Type)
	assert.Equal(t, "read_context", messages[2].ToolCalls[0].Function.Name)
	assert.Equal(t, `{"path":"deals"}`, messages[2].ToolCalls[0].Function.Arguments)

	assert.Equal(t, openai.ChatMessageRoleTool, messages[3].Role)
	assert.Equal(t, "call_1", messages[3].ToolCallID)
}

func TestBuildMessagesWithoutSystemPrompt(t *testing.T) {
	req := llmtypes.Request{
		Messages: []llmtypes.Message{{Role: llmtypes.RoleUser, Content: "hi"}},
	}
	messages := buildMessages(req)
	require.Len(t, messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, messages[0].Role)
}

func TestBuildTools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	tools := buildTools([]llmtypes.ToolDefinition{
		{Name: "read_context", Description: "Read a value.", Schema: schema},
	})

	require.Len(t, tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, "read_context", tools[0].Function.Name)

	assert.Nil(t, buildTools(nil))
}

func TestParseResponse(t *testing.T) {
	t.Run("text response", func(t *testing.T) {
		response := &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Content: "hello"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 100, CompletionTokens: 20},
		}

		resp := parseResponse(response, "gpt-4.1")
		assert.Equal(t, "hello", resp.Content)
		assert.Equal(t, llmtypes.StopEndTurn, resp.StopReason)
		assert.Equal(t, 100, resp.Usage.InputTokens)
		assert.Equal(t, 20, resp.Usage.OutputTokens)
		assert.InDelta(t, 100*0.000002+20*0.000008, resp.Usage.TotalCost(), 1e-12)
	})

	t.Run("tool calls", func(t *testing.T) {
		response := &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					ToolCalls: []openai.ToolCall{{
						ID:       "call_9",
						Type:     openai.ToolTypeFunction,
						Function: openai.FunctionCall{Name: "filter_items", Arguments: `{"source":"deals"}`},
					}},
				},
				FinishReason: openai.FinishReasonToolCalls,
			}},
		}

		resp := parseResponse(response, "gpt-4.1")
		assert.Equal(t, llmtypes.StopToolUse, resp.StopReason)
		require.Len(t, resp.ToolCalls, 1)
		assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
		assert.Equal(t, "filter_items", resp.ToolCalls[0].Name)
	})

	t.Run("cached tokens split out", func(t *testing.T) {
		response := &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Content: "ok"},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{
				PromptTokens:        100,
				CompletionTokens:    10,
				PromptTokensDetails: &openai.PromptTokensDetails{CachedTokens: 40},
			},
		}

		resp := parseResponse(response, "gpt-4.1")
		assert.Equal(t, 60, resp.Usage.InputTokens)
		assert.Equal(t, 40, resp.Usage.CacheReadInputTokens)
	})

	t.Run("length finish reason", func(t *testing.T) {
		response := &openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Content: "trunc"},
				FinishReason: openai.FinishReasonLength,
			}},
		}
		assert.Equal(t, llmtypes.StopMaxTokens, parseResponse(response, "gpt-4.1").StopReason)
	})
}

func TestWrapError(t *testing.T) {
	err := wrapError("gpt-4.1", &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"})
	var providerErr *llmtypes.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "openai", providerErr.Provider)
	assert.Equal(t, 429, providerErr.StatusCode)
	assert.True(t, providerErr.Retryable())
}

func TestGetModelPricing(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{name: "exact match", model: "gpt-4.1", want: "gpt-4.1"},
		{name: "mini family", model: "gpt-5-mini", want: "gpt-4.1-mini"},
		{name: "o-series", model: "o3-pro", want: "o3"},
		{name: "4o family", model: "chatgpt-4o-latest", want: "gpt-4o"},
		{name: "unknown falls back", model: "gpt-99", want: "gpt-4.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ModelPricingMap[tt.want], getModelPricing(tt.model))
		})
	}
}
