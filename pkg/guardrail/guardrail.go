// Package guardrail enforces pre-flight budget checks before any AI step
// executes: an estimated token ceiling on the rendered prompt and, for
// classification steps, a cardinality cap on accumulated collections.
// Guardrails fail fast so an oversized workflow never reaches a provider.
package guardrail

import (
	"context"
	"encoding/json"
	"math"

	"github.com/relaycrm/skillengine/pkg/logger"
	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// Limits holds the guardrail thresholds. Token estimates use a fixed
// character ratio rather than a tokenizer: fast, and conservative enough for
// a pre-flight check.
type Limits struct {
	CharsPerToken    float64
	SoftTokenCeiling int
	HardTokenCeiling int
	ClassifyItemCap  int
}

// DefaultLimits returns the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		CharsPerToken:    3.5,
		SoftTokenCeiling: 100_000,
		HardTokenCeiling: 150_000,
		ClassifyItemCap:  50,
	}
}

// Guardrail validates AI steps against configured limits.
type Guardrail struct {
	limits Limits
}

// New returns a guardrail with the given limits; zero-value fields fall back
// to defaults.
func New(limits Limits) *Guardrail {
	defaults := DefaultLimits()
	if limits.CharsPerToken <= 0 {
		limits.CharsPerToken = defaults.CharsPerToken
	}
	if limits.SoftTokenCeiling <= 0 {
		limits.SoftTokenCeiling = defaults.SoftTokenCeiling
	}
	if limits.HardTokenCeiling <= 0 {
		limits.HardTokenCeiling = defaults.HardTokenCeiling
	}
	if limits.ClassifyItemCap <= 0 {
		limits.ClassifyItemCap = defaults.ClassifyItemCap
	}
	return &Guardrail{limits: limits}
}

// EstimateTokens approximates the token count of a rendered prompt.
func (g *Guardrail) EstimateTokens(prompt string) int {
	return int(math.Ceil(float64(len(prompt)) / g.limits.CharsPerToken))
}

// Validate checks a rendered AI step prompt before any provider call.
// Exceeding the hard ceiling is a configuration error: the workflow author
// must add aggregation steps to shrink the payload. The soft ceiling only
// logs a warning. Classification steps additionally reject any accumulated
// array longer than the item cap, since classification prompts degrade badly
// with long lists.
func (g *Guardrail) Validate(ctx context.Context, step *skilltypes.Step, renderedPrompt string, ec *skilltypes.ExecutionContext) error {
	estimated := g.EstimateTokens(renderedPrompt)
	log := logger.G(ctx).WithField("step", step.ID).WithField("estimated_tokens", estimated)

	if estimated > g.limits.HardTokenCeiling {
		return skilltypes.NewConfigurationError(
			"step %s: rendered prompt is an estimated %d tokens, over the %d hard ceiling; add an aggregation step to reduce the payload",
			step.ID, estimated, g.limits.HardTokenCeiling)
	}
	if estimated > g.limits.SoftTokenCeiling {
		log.Warn("rendered prompt exceeds soft token ceiling")
	}

	if step.Tier == skilltypes.TierClassify {
		if key, length, found := g.findOversizedArray(ec.StepResults()); found {
			return skilltypes.NewConfigurationError(
				"step %s: step output %q holds %d items, over the %d cap for classification steps; pre-aggregate before classifying",
				step.ID, key, length, g.limits.ClassifyItemCap)
		}
	}
	return nil
}

// findOversizedArray scans step outputs for arrays over the item cap,
// checking both top-level values and the direct fields of object values.
func (g *Guardrail) findOversizedArray(results map[string]any) (string, int, bool) {
	for key, value := range results {
		if length, ok := arrayLen(value); ok && length > g.limits.ClassifyItemCap {
			return key, length, true
		}
		if m, ok := value.(map[string]any); ok {
			for field, nested := range m {
				if length, ok := arrayLen(nested); ok && length > g.limits.ClassifyItemCap {
					return key + "." + field, length, true
				}
			}
		}
	}
	return "", 0, false
}

func arrayLen(v any) (int, bool) {
	switch s := v.(type) {
	case []any:
		return len(s), true
	case nil:
		return 0, false
	}
	raw, err := json.Marshal(v)
	if err != nil || len(raw) == 0 || raw[0] != '[' {
		return 0, false
	}
	var s []any
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	return len(s), true
}
