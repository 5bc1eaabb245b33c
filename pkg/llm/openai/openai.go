// Package openai adapts the normalized capability router request/response
// shapes to the OpenAI chat completions API, which also covers
// OpenAI-compatible gateways via a custom base URL.
package openai

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// Adapter implements the capability router's ProviderAdapter for OpenAI.
type Adapter struct{}

// New returns an OpenAI adapter.
func New() *Adapter {
	return &Adapter{}
}

// Provider returns the routing name.
func (a *Adapter) Provider() string {
	return "openai"
}

// Complete sends one normalized request to the chat completions API and
// normalizes the response.
func (a *Adapter) Complete(ctx context.Context, model string, creds llmtypes.Credentials, req llmtypes.Request) (*llmtypes.Response, error) {
	clientConfig := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		clientConfig.BaseURL = creds.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildMessages(req),
		Tools:       buildTools(req.Tools),
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		request.MaxCompletionTokens = req.MaxTokens
	}

	response, err := client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, wrapError(model, err)
	}
	if len(response.Choices) == 0 {
		return nil, &llmtypes.ProviderError{
			Provider: "openai",
			Model:    model,
			Err:      errors.New("response contained no choices"),
		}
	}

	return parseResponse(&response, model), nil
}

func buildMessages(req llmtypes.Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case llmtypes.RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		case llmtypes.RoleAssistant:
			assistant := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Input),
					},
				})
			}
			messages = append(messages, assistant)
		case llmtypes.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return messages
}

func buildTools(defs []llmtypes.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(def.Schema),
			},
		})
	}
	return tools
}

func parseResponse(response *openai.ChatCompletionResponse, model string) *llmtypes.Response {
	choice := response.Choices[0]
	resp := &llmtypes.Response{Content: choice.Message.Content}

	for _, call := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llmtypes.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}

	switch choice.FinishReason {
	case openai.FinishReasonStop:
		resp.StopReason = llmtypes.StopEndTurn
	case openai.FinishReasonToolCalls:
		resp.StopReason = llmtypes.StopToolUse
	case openai.FinishReasonLength:
		resp.StopReason = llmtypes.StopMaxTokens
	default:
		resp.StopReason = llmtypes.StopOther
	}

	resp.Usage = llmtypes.Usage{
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}
	if response.Usage.PromptTokensDetails != nil {
		resp.Usage.CacheReadInputTokens = response.Usage.PromptTokensDetails.CachedTokens
		resp.Usage.InputTokens -= response.Usage.PromptTokensDetails.CachedTokens
	}
	getModelPricing(model).Cost(&resp.Usage)

	return resp
}

func wrapError(model string, err error) error {
	statusCode := 0
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		statusCode = apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		statusCode = reqErr.HTTPStatusCode
	}
	return &llmtypes.ProviderError{
		Provider:   "openai",
		Model:      model,
		StatusCode: statusCode,
		Err:        err,
	}
}
