package anthropic

import (
	"strings"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// ModelPricingMap maps model names to their per-token pricing.
var ModelPricingMap = map[string]llmtypes.ModelPricing{
	"claude-sonnet-4-0": {
		Input:              0.000003,   // $3.00 per million tokens
		Output:             0.000015,   // $15.00 per million tokens
		PromptCachingWrite: 0.00000375, // $3.75 per million tokens
		PromptCachingRead:  0.0000003,  // $0.30 per million tokens
		ContextWindow:      200_000,
	},
	"claude-opus-4-1": {
		Input:              0.000015,   // $15.00 per million tokens
		Output:             0.000075,   // $75.00 per million tokens
		PromptCachingWrite: 0.00001875, // $18.75 per million tokens
		PromptCachingRead:  0.0000015,  // $1.50 per million tokens
		ContextWindow:      200_000,
	},
	"claude-3-7-sonnet-latest": {
		Input:              0.000003,   // $3.00 per million tokens
		Output:             0.000015,   // $15.00 per million tokens
		PromptCachingWrite: 0.00000375, // $3.75 per million tokens
		PromptCachingRead:  0.0000003,  // $0.30 per million tokens
		ContextWindow:      200_000,
	},
	"claude-3-5-haiku-latest": {
		Input:              0.0000008,  // $0.80 per million tokens
		Output:             0.000004,   // $4.00 per million tokens
		PromptCachingWrite: 0.000001,   // $1.00 per million tokens
		PromptCachingRead:  0.00000008, // $0.08 per million tokens
		ContextWindow:      200_000,
	},
	"claude-3-haiku-20240307": {
		Input:              0.00000025, // $0.25 per million tokens
		Output:             0.00000125, // $1.25 per million tokens
		PromptCachingWrite: 0.0000003,  // $0.30 per million tokens
		PromptCachingRead:  0.00000003, // $0.03 per million tokens
		ContextWindow:      200_000,
	},
}

// getModelPricing returns pricing for a model, falling back to a family
// match and finally to Sonnet rates so cost estimates are never zero.
func getModelPricing(model string) llmtypes.ModelPricing {
	if pricing, ok := ModelPricingMap[model]; ok {
		return pricing
	}
	lowerModel := strings.ToLower(model)
	switch {
	case strings.Contains(lowerModel, "opus"):
		return ModelPricingMap["claude-opus-4-1"]
	case strings.Contains(lowerModel, "haiku"):
		return ModelPricingMap["claude-3-5-haiku-latest"]
	case strings.Contains(lowerModel, "sonnet-4"):
		return ModelPricingMap["claude-sonnet-4-0"]
	}
	return ModelPricingMap["claude-3-7-sonnet-latest"]
}
