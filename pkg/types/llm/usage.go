package llm

// Usage represents token usage for one or more provider calls, with the
// per-category USD costs derived from the model's pricing.
type Usage struct {
	InputTokens              int
	OutputTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
	InputCost                float64
	OutputCost               float64
	CacheCreationCost        float64
	CacheReadCost            float64
}

// TotalTokens returns the total number of tokens across all categories.
func (u *Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// TotalCost returns the total estimated cost in USD.
func (u *Usage) TotalCost() float64 {
	return u.InputCost + u.OutputCost + u.CacheCreationCost + u.CacheReadCost
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.InputCost += other.InputCost
	u.OutputCost += other.OutputCost
	u.CacheCreationCost += other.CacheCreationCost
	u.CacheReadCost += other.CacheReadCost
}

// ModelPricing holds per-token USD rates for a model. Cache rates apply only
// where the provider supports prompt caching.
type ModelPricing struct {
	Input              float64
	Output             float64
	PromptCachingWrite float64
	PromptCachingRead  float64
	ContextWindow      int
}

// Cost fills in the cost fields of usage based on its token counts.
func (p ModelPricing) Cost(usage *Usage) {
	usage.InputCost = float64(usage.InputTokens) * p.Input
	usage.OutputCost = float64(usage.OutputTokens) * p.Output
	usage.CacheCreationCost = float64(usage.CacheCreationInputTokens) * p.PromptCachingWrite
	usage.CacheReadCost = float64(usage.CacheReadInputTokens) * p.PromptCachingRead
}
