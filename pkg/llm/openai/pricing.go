package openai

import (
	"strings"

	llmtypes "github.com/relaycrm/skillengine/pkg/types/llm"
)

// ModelPricingMap maps model names to their per-token pricing. Cached prompt
// tokens bill at the cache-read rate; OpenAI has no cache-write premium.
var ModelPricingMap = map[string]llmtypes.ModelPricing{
	"gpt-4.1": {
		Input:             0.000002,  // $2.00 per million tokens
		Output:            0.000008,  // $8.00 per million tokens
		PromptCachingRead: 0.0000005, // $0.50 per million tokens
		ContextWindow:     1_047_576,
	},
	"gpt-4.1-mini": {
		Input:             0.0000004,  // $0.40 per million tokens
		Output:            0.0000016,  // $1.60 per million tokens
		PromptCachingRead: 0.0000001,  // $0.10 per million tokens
		ContextWindow:     1_047_576,
	},
	"gpt-4o": {
		Input:             0.0000025,  // $2.50 per million tokens
		Output:            0.00001,    // $10.00 per million tokens
		PromptCachingRead: 0.00000125, // $1.25 per million tokens
		ContextWindow:     128_000,
	},
	"gpt-4o-mini": {
		Input:             0.00000015,  // $0.15 per million tokens
		Output:            0.0000006,   // $0.60 per million tokens
		PromptCachingRead: 0.000000075, // $0.075 per million tokens
		ContextWindow:     128_000,
	},
	"o3": {
		Input:             0.000002,  // $2.00 per million tokens
		Output:            0.000008,  // $8.00 per million tokens
		PromptCachingRead: 0.0000005, // $0.50 per million tokens
		ContextWindow:     200_000,
	},
}

// getModelPricing returns pricing for a model, falling back to a family
// match and finally to gpt-4.1 rates.
func getModelPricing(model string) llmtypes.ModelPricing {
	if pricing, ok := ModelPricingMap[model]; ok {
		return pricing
	}
	lowerModel := strings.ToLower(model)
	switch {
	case strings.Contains(lowerModel, "mini"):
		return ModelPricingMap["gpt-4.1-mini"]
	case strings.HasPrefix(lowerModel, "o3") || strings.HasPrefix(lowerModel, "o1"):
		return ModelPricingMap["o3"]
	case strings.Contains(lowerModel, "4o"):
		return ModelPricingMap["gpt-4o"]
	}
	return ModelPricingMap["gpt-4.1"]
}
