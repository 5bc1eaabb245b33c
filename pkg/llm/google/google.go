// Package google adapts the normalized capability router request/response
// shapes to Google's GenAI API (Gemini). Tool declarations are converted to
// function declarations and function calls back into normalized tool calls.
package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// Adapter implements the capability router's ProviderAdapter for Google.
type Adapter struct{}

// New returns a Google GenAI adapter.
func New() *Adapter {
	return &Adapter{}
}

// Provider returns the routing name.
func (a *Adapter) Provider() string {
	return "google"
}

// Complete sends one normalized request to the GenAI API and normalizes the
// response. The client is constructed per call because credentials are
// resolved per tenant.
func (a *Adapter) Complete(ctx context.Context, model string, creds llmtypes.Credentials, req llmtypes.Request) (*llmtypes.Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  creds.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrapError(model, errors.Wrap(err, "failed to create GenAI client"))
	}

	config := &genai.GenerateContentConfig{
		Tools: buildTools(req.Tools),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	response, err := client.Models.GenerateContent(ctx, model, buildContents(req.Messages), config)
	if err != nil {
		return nil, wrapError(model, err)
	}

	return parseResponse(response, model)
}

// buildContents converts normalized history into GenAI contents. All
// function responses for one turn must share a single user message.
func buildContents(messages []llmtypes.Message) []*genai.Content {
	var contents []*genai.Content
	var pendingToolResults []*genai.Part

	flushToolResults := func() {
		if len(pendingToolResults) > 0 {
			contents = append(contents, genai.NewContentFromParts(pendingToolResults, genai.RoleUser))
			pendingToolResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case llmtypes.RoleUser:
			flushToolResults()
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case llmtypes.RoleAssistant:
			flushToolResults()
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(call.Input, &args)
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: call.Name, Args: args},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case llmtypes.RoleTool:
			pendingToolResults = append(pendingToolResults, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name: msg.ToolName,
					Response: map[string]any{
						"call_id": msg.ToolCallID,
						"result":  msg.Content,
						"error":   msg.IsError,
					},
				},
			})
		}
	}
	flushToolResults()
	return contents
}

// buildTools groups every function declaration under a single Tool, the
// grouping GenAI expects.
func buildTools(defs []llmtypes.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		_ = json.Unmarshal(def.Schema, &schema)
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  convertSchema(schema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema converts a JSON-schema document to GenAI's schema type.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	converted := &genai.Schema{Type: convertSchemaType(schema["type"])}

	if description, ok := schema["description"].(string); ok {
		converted.Description = description
	}
	if properties, ok := schema["properties"].(map[string]any); ok {
		converted.Properties = make(map[string]*genai.Schema, len(properties))
		for name, prop := range properties {
			if propSchema, ok := prop.(map[string]any); ok {
				converted.Properties[name] = convertSchema(propSchema)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, field := range required {
			if name, ok := field.(string); ok {
				converted.Required = append(converted.Required, name)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		converted.Items = convertSchema(items)
	}
	return converted
}

func convertSchemaType(schemaType any) genai.Type {
	name, _ := schemaType.(string)
	switch name {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func parseResponse(response *genai.GenerateContentResponse, model string) (*llmtypes.Response, error) {
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil, &llmtypes.ProviderError{
			Provider: "google",
			Model:    model,
			Err:      errors.New("response contained no candidates"),
		}
	}

	candidate := response.Candidates[0]
	resp := &llmtypes.Response{}

	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "" && !part.Thought:
			resp.Content += part.Text
		case part.FunctionCall != nil:
			input, _ := json.Marshal(part.FunctionCall.Args)
			id := part.FunctionCall.ID
			if id == "" {
				id = generateToolCallID()
			}
			resp.ToolCalls = append(resp.ToolCalls, llmtypes.ToolCall{
				ID:    id,
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		}
	}

	switch {
	case len(resp.ToolCalls) > 0:
		resp.StopReason = llmtypes.StopToolUse
	case candidate.FinishReason == genai.FinishReasonMaxTokens:
		resp.StopReason = llmtypes.StopMaxTokens
	case candidate.FinishReason == genai.FinishReasonStop:
		resp.StopReason = llmtypes.StopEndTurn
	default:
		resp.StopReason = llmtypes.StopOther
	}

	if response.UsageMetadata != nil {
		resp.Usage = llmtypes.Usage{
			InputTokens:          int(response.UsageMetadata.PromptTokenCount),
			OutputTokens:         int(response.UsageMetadata.CandidatesTokenCount),
			CacheReadInputTokens: int(response.UsageMetadata.CachedContentTokenCount),
		}
	}
	getModelPricing(model).Cost(&resp.Usage)

	return resp, nil
}

// generateToolCallID fills in correlation IDs for providers that omit them.
func generateToolCallID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return "call_fallback"
	}
	return fmt.Sprintf("call_%s", hex.EncodeToString(bytes))
}

func wrapError(model string, err error) error {
	statusCode := 0
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		statusCode = apiErr.Code
	}
	return &llmtypes.ProviderError{
		Provider:   "google",
		Model:      model,
		StatusCode: statusCode,
		Err:        err,
	}
}
