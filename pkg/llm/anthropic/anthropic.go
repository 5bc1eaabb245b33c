// Package anthropic adapts the normalized capability router request/response
// shapes to Anthropic's Messages API, including tool declarations, tool-use
// content blocks and prompt-cache-aware usage accounting.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// Adapter implements the capability router's ProviderAdapter for Anthropic.
type Adapter struct{}

// New returns an Anthropic adapter.
func New() *Adapter {
	return &Adapter{}
}

// Provider returns the routing name.
func (a *Adapter) Provider() string {
	return "anthropic"
}

// Complete sends one normalized request to the Messages API and normalizes
// the response.
func (a *Adapter) Complete(ctx context.Context, model string, creds llmtypes.Credentials, req llmtypes.Request) (*llmtypes.Response, error) {
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  buildMessages(req.Messages),
		Tools:     buildTools(req.Tools),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	response, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(model, err)
	}

	return parseResponse(response, model), nil
}

// buildMessages converts normalized history into Anthropic message params.
// Tool result pseudo-messages become tool_result blocks on user turns, the
// format the Messages API expects.
func buildMessages(messages []llmtypes.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llmtypes.RoleUser:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case llmtypes.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: json.RawMessage(call.Input),
					},
				})
			}
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		case llmtypes.RoleTool:
			params = append(params, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError),
			))
		}
	}
	return params
}

func buildTools(defs []llmtypes.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		_ = json.Unmarshal(def.Schema, &schema)
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema["properties"],
				},
			},
		})
	}
	return tools
}

func parseResponse(response *anthropic.Message, model string) *llmtypes.Response {
	resp := &llmtypes.Response{}

	for _, block := range response.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, llmtypes.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: json.RawMessage(variant.JSON.Input.Raw()),
			})
		}
	}

	switch response.StopReason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		resp.StopReason = llmtypes.StopEndTurn
	case anthropic.StopReasonToolUse:
		resp.StopReason = llmtypes.StopToolUse
	case anthropic.StopReasonMaxTokens:
		resp.StopReason = llmtypes.StopMaxTokens
	default:
		resp.StopReason = llmtypes.StopOther
	}

	resp.Usage = llmtypes.Usage{
		InputTokens:              int(response.Usage.InputTokens),
		OutputTokens:             int(response.Usage.OutputTokens),
		CacheCreationInputTokens: int(response.Usage.CacheCreationInputTokens),
		CacheReadInputTokens:     int(response.Usage.CacheReadInputTokens),
	}
	getModelPricing(model).Cost(&resp.Usage)

	return resp
}

func wrapError(model string, err error) error {
	statusCode := 0
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode = apiErr.StatusCode
	}
	return &llmtypes.ProviderError{
		Provider:   "anthropic",
		Model:      model,
		StatusCode: statusCode,
		Err:        err,
	}
}
