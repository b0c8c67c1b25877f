package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procmap-io/procmap/pkg/models"
)

func TestJaccard(t *testing.T) {
	a := tableSet([]string{"x", "y"})
	b := tableSet([]string{"y", "z"})

	assert.InDelta(t, 1.0/3.0, Jaccard(a, b), 1e-9)
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.Equal(t, 0.0, Jaccard(a, tableSet(nil)))
	assert.Equal(t, 0.0, Jaccard(nil, nil))
}

func makeGroups(access map[string][]string) []models.ProcedureGroup {
	return BuildGroups(access)
}

func clusterByGroup(clusters []models.Cluster) map[string]string {
	out := make(map[string]string)
	for _, c := range clusters {
		for _, gid := range c.GroupIDs {
			out[gid] = c.ClusterID
		}
	}
	return out
}

func TestAssignTwoPhaseIsolatesZeroSimilarityGroups(t *testing.T) {
	groups := makeGroups(map[string][]string{
		"dbo·usp_Orders":    {"dbo·orders", "dbo·orderitems"},
		"dbo·usp_Inventory": {"dbo·products", "dbo·warehouses"},
		"dbo·usp_Billing":   {"dbo·invoices"},
	})

	clusters := AssignClusters(groups, models.DefaultParameters(), nil)

	// No shared tables anywhere: every group gets its own cluster.
	require.Len(t, clusters, 3)
	for i, c := range clusters {
		assert.Len(t, c.GroupIDs, 1, "cluster %d", i)
	}
	for _, g := range groups {
		assert.NotEmpty(t, g.ClusterID)
	}
}

func TestAssignTwoPhaseBreaksWeakChains(t *testing.T) {
	// A shares one table with B, B shares a different table with C, A and C
	// have zero overlap. With an assignment floor the greedy pass refuses
	// the weak links; union-find merges the whole chain regardless.
	access := map[string][]string{
		"dbo·usp_A": {"dbo·t1", "dbo·t2", "dbo·t3"},
		"dbo·usp_B": {"dbo·t3", "dbo·t4", "dbo·t5"},
		"dbo·usp_C": {"dbo·t5", "dbo·t6", "dbo·t7"},
	}

	params := models.DefaultParameters()
	params.MinAssignmentSimilarity = 0.25
	twoPhase := AssignClusters(makeGroups(access), params, nil)
	require.Len(t, twoPhase, 3)

	legacy := models.DefaultParameters()
	legacy.UseTwoPhase = false
	unionFind := AssignClusters(makeGroups(access), legacy, nil)
	require.Len(t, unionFind, 1)
	assert.Len(t, unionFind[0].GroupIDs, 3)
}

func TestAssignUnionFindMergesTransitively(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_A": {"dbo·t1", "dbo·t2", "dbo·t3"},
		"dbo·usp_B": {"dbo·t3", "dbo·t4", "dbo·t5"},
		"dbo·usp_C": {"dbo·t5", "dbo·t6", "dbo·t7"},
	}
	groups := makeGroups(access)

	params := models.DefaultParameters()
	params.UseTwoPhase = false
	clusters := AssignClusters(groups, params, nil)

	// The legacy algorithm folds the whole chain into one component.
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].GroupIDs, 3)
}

func TestAssignTwoPhaseMinAssignmentSimilarity(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_A": {"dbo·t1", "dbo·t2", "dbo·t3", "dbo·t4"},
		"dbo·usp_B": {"dbo·t4", "dbo·t5", "dbo·t6", "dbo·t7"},
	}

	low := models.DefaultParameters()
	groupsLow := makeGroups(access)
	clustersLow := AssignClusters(groupsLow, low, nil)
	require.Len(t, clustersLow, 1, "similarity 1/7 clears a zero floor")

	high := models.DefaultParameters()
	high.MinAssignmentSimilarity = 0.5
	groupsHigh := makeGroups(access)
	clustersHigh := AssignClusters(groupsHigh, high, nil)
	require.Len(t, clustersHigh, 2, "similarity 1/7 is below a 0.5 floor")
}

func TestAssignTwoPhaseSmallGroupsGetFreshClusters(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_Big1": {"dbo·t1", "dbo·t2", "dbo·t3"},
		"dbo·usp_Big2": {"dbo·t2", "dbo·t3", "dbo·t4"},
		"dbo·usp_Tiny": {"dbo·t2"},
	}
	groups := makeGroups(access)

	params := models.DefaultParameters()
	params.MinGroupSize = 2
	clusters := AssignClusters(groups, params, nil)
	byGroup := clusterByGroup(clusters)

	var tinyCluster string
	for _, g := range groups {
		if g.Procedures[0] == "dbo·usp_Tiny" {
			tinyCluster = byGroup[g.GroupID]
		}
	}
	require.NotEmpty(t, tinyCluster)
	// Below-minimum groups never join an existing cluster even when they
	// overlap one.
	for _, c := range clusters {
		if c.ClusterID == tinyCluster {
			assert.Len(t, c.GroupIDs, 1)
		}
	}
	require.Len(t, clusters, 2)
}

func TestAssignClustersIdempotent(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_A": {"dbo·t1", "dbo·t2", "dbo·t3"},
		"dbo·usp_B": {"dbo·t2", "dbo·t3", "dbo·t4"},
		"dbo·usp_C": {"dbo·t9"},
		"dbo·usp_D": {"dbo·t4", "dbo·t5"},
		"dbo·usp_E": {"dbo·t1", "dbo·t5", "dbo·t6"},
	}
	params := models.DefaultParameters()

	first := makeGroups(access)
	want := AssignClusters(first, params, nil)
	wantByGroup := clusterByGroup(want)

	for i := 0; i < 10; i++ {
		groups := makeGroups(access)
		got := AssignClusters(groups, params, nil)
		require.Len(t, got, len(want), "iteration %d", i)
		assert.Equal(t, wantByGroup, clusterByGroup(got), "iteration %d", i)
	}
}

func TestBuildSimilarityEdges(t *testing.T) {
	groups := []models.ProcedureGroup{
		{GroupID: "G0", Tables: []string{"dbo·t1", "dbo·t2", "dbo·t3"}},
		{GroupID: "G1", Tables: []string{"dbo·t2", "dbo·t3", "dbo·t4"}},
		{GroupID: "G2", Tables: []string{"dbo·t9"}},
	}

	edges := BuildSimilarityEdges(groups, 1, 0.5)
	require.Len(t, edges, 1)
	assert.Equal(t, "G0", edges[0].Source)
	assert.Equal(t, "G1", edges[0].Target)
	assert.InDelta(t, 0.5, edges[0].Similarity, 1e-9)

	// Raising the threshold above the pair similarity drops the edge.
	assert.Empty(t, BuildSimilarityEdges(groups, 1, 0.6))

	// Groups below the minimum size never index their tables.
	small := []models.ProcedureGroup{
		{GroupID: "G0", Tables: []string{"dbo·t1"}},
		{GroupID: "G1", Tables: []string{"dbo·t1"}},
	}
	assert.Empty(t, BuildSimilarityEdges(small, 2, 0.0))
}
