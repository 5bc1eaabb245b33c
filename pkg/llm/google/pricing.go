package google

import (
	"strings"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// ModelPricingMap maps model names to their per-token pricing.
var ModelPricingMap = map[string]llmtypes.ModelPricing{
	"gemini-2.5-pro": {
		Input:             0.00000125,    // $1.25 per million tokens
		Output:            0.00001,       // $10.00 per million tokens
		PromptCachingRead: 0.0000003125,  // $0.3125 per million tokens
		ContextWindow:     1_048_576,
	},
	"gemini-2.5-flash": {
		Input:             0.0000003,     // $0.30 per million tokens
		Output:            0.0000025,     // $2.50 per million tokens
		PromptCachingRead: 0.000000075,   // $0.075 per million tokens
		ContextWindow:     1_048_576,
	},
	"gemini-2.0-flash": {
		Input:             0.0000001,     // $0.10 per million tokens
		Output:            0.0000004,     // $0.40 per million tokens
		PromptCachingRead: 0.000000025,   // $0.025 per million tokens
		ContextWindow:     1_048_576,
	},
}

// getModelPricing returns pricing for a model, falling back to a family
// match and finally to flash rates.
func getModelPricing(model string) llmtypes.ModelPricing {
	if pricing, ok := ModelPricingMap[model]; ok {
		return pricing
	}
	lowerModel := strings.ToLower(model)
	if strings.Contains(lowerModel, "pro") {
		return ModelPricingMap["gemini-2.5-pro"]
	}
	return ModelPricingMap["gemini-2.5-flash"]
}
