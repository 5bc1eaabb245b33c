package guardrail

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

func aiStep(id string, tier skilltypes.Tier) *skilltypes.Step {
	return &skilltypes.Step{
		ID:        id,
		Tier:      tier,
		OutputKey: id + "_out",
		Prompt:    &skilltypes.PromptSpec{Template: "irrelevant"},
	}
}

func TestEstimateTokens(t *testing.T) {
	g := New(DefaultLimits())

	tests := []struct {
		name   string
		prompt string
		want   int
	}{
		{name: "empty", prompt: "", want: 0},
		{name: "exact multiple", prompt: "1234567", want: 2},
		{name: "rounds up", prompt: "12345678", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.EstimateTokens(tt.prompt))
		})
	}
}

func TestValidateHardCeiling(t *testing.T) {
	g := New(Limits{CharsPerToken: 1, HardTokenCeiling: 10, SoftTokenCeiling: 5})
	ec := skilltypes.NewExecutionContext("tenant-1", nil, nil)

	err := g.Validate(context.Background(), aiStep("big", skilltypes.TierReason), strings.Repeat("x", 11), ec)
	require.Error(t, err)

	var configErr *skilltypes.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Contains(t, err.Error(), "hard ceiling")
}

func TestValidateSoftCeilingOnlyWarns(t *testing.T) {
	g := New(Limits{CharsPerToken: 1, HardTokenCeiling: 100, SoftTokenCeiling: 5})
	ec := skilltypes.NewExecutionContext("tenant-1", nil, nil)

	err := g.Validate(context.Background(), aiStep("medium", skilltypes.TierReason), strings.Repeat("x", 50), ec)
	assert.NoError(t, err)
}

func TestValidateClassifyItemCap(t *testing.T) {
	g := New(Limits{ClassifyItemCap: 3})
	ec := skilltypes.NewExecutionContext("tenant-1", nil, nil)
	require.NoError(t, ec.StoreResult("deals", []any{1, 2, 3, 4}))

	t.Run("classify step rejected", func(t *testing.T) {
		err := g.Validate(context.Background(), aiStep("label", skilltypes.TierClassify), "short", ec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "deals")
		assert.Contains(t, err.Error(), "4 items")
	})

	t.Run("other tiers unaffected", func(t *testing.T) {
		err := g.Validate(context.Background(), aiStep("think", skilltypes.TierReason), "short", ec)
		assert.NoError(t, err)
	})
}

func TestValidateClassifyNestedArray(t *testing.T) {
	g := New(Limits{ClassifyItemCap: 2})
	ec := skilltypes.NewExecutionContext("tenant-1", nil, nil)
	require.NoError(t, ec.StoreResult("report", map[string]any{
		"items": []any{1, 2, 3},
	}))

	err := g.Validate(context.Background(), aiStep("label", skilltypes.TierClassify), "short", ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.items")
}

func TestValidateClassifyUnderCap(t *testing.T) {
	g := New(Limits{ClassifyItemCap: 10})
	ec := skilltypes.NewExecutionContext("tenant-1", nil, nil)
	require.NoError(t, ec.StoreResult("deals", []any{1, 2}))

	err := g.Validate(context.Background(), aiStep("label", skilltypes.TierClassify), "short", ec)
	assert.NoError(t, err)
}

func TestNewFillsZeroLimits(t *testing.T) {
	g := New(Limits{})
	assert.Equal(t, DefaultLimits(), g.limits)
}
