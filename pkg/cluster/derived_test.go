package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procmap-io/procmap/pkg/models"
)

// sharedState builds a fixture where dbo·audit is touched from two distinct
// clusters, making it global under the default threshold.
func sharedState(t *testing.T) *State {
	t.Helper()
	access := map[string][]string{
		"dbo·usp_Orders1":   {"dbo·audit", "dbo·orderitems", "dbo·orders"},
		"dbo·usp_Orders2":   {"dbo·audit", "dbo·orderitems", "dbo·orders"},
		"dbo·usp_Inventory": {"dbo·audit", "dbo·products", "dbo·warehouses"},
	}
	groups := BuildGroups(access)
	params := models.DefaultParameters()
	// Keep the audit overlap from merging the two clusters.
	params.MinAssignmentSimilarity = 0.5
	clusters := AssignClusters(groups, params, nil)
	known := map[string]string{
		"dbo·audit":      "dbo·Audit",
		"dbo·orders":     "dbo·Orders",
		"dbo·orderitems": "dbo·OrderItems",
		"dbo·products":   "dbo·Products",
		"dbo·warehouses": "dbo·Warehouses",
		"dbo·archive":    "dbo·Archive",
	}
	s := NewState(groups, clusters, known, params, "catalog.json")
	require.NoError(t, s.Validate())
	require.Len(t, s.ClusterOrder, 2)
	return s
}

func TestRecomputeClusterRollups(t *testing.T) {
	s := orderState(t)

	c0 := s.Clusters["C0"]
	assert.Equal(t, []string{"dbo·usp_GetOrders", "dbo·usp_ListOrders"}, c0.Procedures)
	assert.Equal(t, []string{"dbo·customers", "dbo·orders"}, c0.Tables)

	c1 := s.Clusters["C1"]
	assert.Equal(t, []string{"dbo·usp_GetInventory"}, c1.Procedures)
	assert.Equal(t, []string{"dbo·products"}, c1.Tables)
}

func TestRecomputeGlobalTables(t *testing.T) {
	s := sharedState(t)

	assert.Contains(t, s.GlobalTables, "dbo·audit")
	assert.NotContains(t, s.GlobalTables, "dbo·orders")

	// Brute-force check: a table is global exactly when the clusters
	// touching it number at least MinGlobalClusters.
	for _, node := range s.TableNodes {
		touching := make(map[string]struct{})
		for _, gid := range s.GroupOrder {
			g := s.Groups[gid]
			for _, tab := range g.Tables {
				if tab == node.Table {
					touching[g.ClusterID] = struct{}{}
				}
			}
		}
		want := len(touching) >= s.Params.MinGlobalClusters
		assert.Equal(t, want, node.IsGlobal, "table %s", node.Table)
	}
}

func TestRecomputeOrphanedAndMissing(t *testing.T) {
	s := sharedState(t)

	// Known but referenced by no group.
	assert.Contains(t, s.OrphanedTables, "dbo·archive")
	assert.Empty(t, s.MissingTables)

	// Dropping a referenced table from the catalog flips it to missing.
	delete(s.KnownTables, "dbo·orders")
	s.Recompute()
	assert.Contains(t, s.MissingTables, "dbo·orders")
	assert.NotContains(t, s.OrphanedTables, "dbo·orders")
}

func TestRecomputeTableUsage(t *testing.T) {
	s := sharedState(t)

	// Usage counts procedures, not groups: the two-member group counts
	// twice per table.
	assert.Equal(t, 3, s.TableUsage["dbo·audit"])
	assert.Equal(t, 2, s.TableUsage["dbo·orders"])
	assert.Equal(t, 1, s.TableUsage["dbo·products"])
	assert.Zero(t, s.TableUsage["dbo·archive"])
}

func TestRecomputeTableNodesCoverKnownAndReferenced(t *testing.T) {
	s := sharedState(t)

	byName := make(map[string]models.TableNode)
	for _, n := range s.TableNodes {
		byName[n.Table] = n
	}
	require.Contains(t, byName, "dbo·archive")
	assert.True(t, byName["dbo·archive"].IsOrphaned)
	assert.True(t, byName["dbo·audit"].IsGlobal)
	assert.Equal(t, 2, byName["dbo·orderitems"].UsageCount)
}

func TestCoreEdgesExcludeGlobalTables(t *testing.T) {
	access := map[string][]string{
		"dbo·usp_A": {"dbo·audit", "dbo·t1", "dbo·t2"},
		"dbo·usp_B": {"dbo·audit", "dbo·t1", "dbo·t3"},
	}
	groups := BuildGroups(access)
	params := models.DefaultParameters()
	params.SimilarityThreshold = 0.3
	clusters := AssignClusters(groups, params, nil)
	s := NewState(groups, clusters, map[string]string{
		"dbo·audit": "dbo·Audit", "dbo·t1": "dbo·T1",
		"dbo·t2": "dbo·T2", "dbo·t3": "dbo·T3",
	}, params, "catalog.json")

	// Both groups share audit and t1. With both groups in one cluster no
	// table is global, so the shared pair counts fully.
	require.Len(t, s.SimilarityEdges, 1)
	assert.InDelta(t, 0.5, s.SimilarityEdges[0].Similarity, 1e-9)

	// Force audit global by splitting the groups across clusters: the edge
	// must now be computed over core tables only, 1 shared of 3.
	res := s.MoveGroup(s.GroupOrder[1], s.AddCluster("", "split").Data.(map[string]string)["cluster_id"])
	require.True(t, res.OK, res.Message)
	require.Contains(t, s.GlobalTables, "dbo·audit")
	require.Contains(t, s.GlobalTables, "dbo·t1")

	// audit and t1 both went global, leaving one core table per group and
	// no overlap.
	assert.Empty(t, s.SimilarityEdges)
}
