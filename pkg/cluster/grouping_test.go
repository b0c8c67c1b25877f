package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGroupsMergesIdenticalAccessSets(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_GetOrders":    {"dbo·customers", "dbo·orders"},
		"dbo·usp_ListOrders":   {"dbo·customers", "dbo·orders"},
		"dbo·usp_GetInventory": {"dbo·products"},
	}

	groups := BuildGroups(access)
	require.Len(t, groups, 2)

	// Larger access set first.
	g0 := groups[0]
	assert.Equal(t, "G0", g0.GroupID)
	assert.Equal(t, []string{"dbo·usp_GetOrders", "dbo·usp_ListOrders"}, g0.Procedures)
	assert.Equal(t, []string{"dbo·customers", "dbo·orders"}, g0.Tables)
	assert.False(t, g0.IsSingleton)

	g1 := groups[1]
	assert.Equal(t, "G1", g1.GroupID)
	assert.True(t, g1.IsSingleton)
	assert.Equal(t, "dbo·usp_GetInventory", g1.DisplayName)
}

func TestBuildGroupsDeterministicOrdering(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_B": {"dbo·t1"},
		"dbo·usp_A": {"dbo·t2"},
		"dbo·usp_C": {"dbo·t3", "dbo·t4"},
	}

	// Equal-size classes tie-break on first procedure name; the map
	// iteration order must not leak into the ids.
	for i := 0; i < 20; i++ {
		groups := BuildGroups(access)
		require.Len(t, groups, 3)
		assert.Equal(t, []string{"dbo·usp_C"}, groups[0].Procedures)
		assert.Equal(t, []string{"dbo·usp_A"}, groups[1].Procedures)
		assert.Equal(t, []string{"dbo·usp_B"}, groups[2].Procedures)
	}
}

func TestBuildGroupsEmpty(t *testing.T) {
	assert.Empty(t, BuildGroups(nil))
}

func TestBuildGroupsSortsProcedures(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_Zeta":  {"dbo·orders"},
		"dbo·usp_Alpha": {"dbo·orders"},
	}

	groups := BuildGroups(access)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"dbo·usp_Alpha", "dbo·usp_Zeta"}, groups[0].Procedures)
}
