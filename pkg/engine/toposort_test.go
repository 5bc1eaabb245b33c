package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

func step(id string, deps ...string) skilltypes.Step {
	return skilltypes.Step{
		ID:        id,
		Tier:      skilltypes.TierCompute,
		DependsOn: deps,
		OutputKey: id + "_out",
		Compute:   &skilltypes.ComputeSpec{Function: "noop"},
	}
}

func orderOf(t *testing.T, wf *skilltypes.Workflow) []string {
	t.Helper()
	order, err := topoSort(wf)
	require.NoError(t, err)
	ids := make([]string, len(order))
	for i, s := range order {
		ids[i] = s.ID
	}
	return ids
}

func TestTopoSortDependenciesFirst(t *testing.T) {
	wf := &skilltypes.Workflow{
		ID: "wf",
		Steps: []skilltypes.Step{
			step("report", "analyze"),
			step("analyze", "fetch"),
			step("fetch"),
		},
	}

	assert.Equal(t, []string{"fetch", "analyze", "report"}, orderOf(t, wf))
}

func TestTopoSortDeterministicForIndependentSteps(t *testing.T) {
	wf := &skilltypes.Workflow{
		ID: "wf",
		Steps: []skilltypes.Step{
			step("c"),
			step("a"),
			step("b"),
		},
	}

	// Independent steps keep declaration order, every time.
	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{"c", "a", "b"}, orderOf(t, wf))
	}
}

func TestTopoSortDiamond(t *testing.T) {
	wf := &skilltypes.Workflow{
		ID: "wf",
		Steps: []skilltypes.Step{
			step("merge", "left", "right"),
			step("left", "root"),
			step("right", "root"),
			step("root"),
		},
	}

	ids := orderOf(t, wf)
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}
	assert.Less(t, position["root"], position["left"])
	assert.Less(t, position["root"], position["right"])
	assert.Less(t, position["left"], position["merge"])
	assert.Less(t, position["right"], position["merge"])
}

func TestTopoSortCycle(t *testing.T) {
	wf := &skilltypes.Workflow{
		ID: "wf",
		Steps: []skilltypes.Step{
			step("a", "c"),
			step("b", "a"),
			step("c", "b"),
		},
	}

	_, err := topoSort(wf)
	require.Error(t, err)
	var configErr *skilltypes.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTopoSortSelfCycle(t *testing.T) {
	wf := &skilltypes.Workflow{
		ID:    "wf",
		Steps: []skilltypes.Step{step("a", "a")},
	}

	_, err := topoSort(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestTopoSortUnknownDependency(t *testing.T) {
	wf := &skilltypes.Workflow{
		ID:    "wf",
		Steps: []skilltypes.Step{step("a", "ghost")},
	}

	_, err := topoSort(wf)
	require.Error(t, err)
	var configErr *skilltypes.ConfigurationError
	assert.ErrorAs(t, err, &configErr)
	assert.Contains(t, err.Error(), "ghost")
}
