package cluster

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/models"
)

// Jaccard returns |A∩B| / |A∪B|. Two empty sets yield 0 so comparisons
// stay totally ordered.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tableSet(tables []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[t] = struct{}{}
	}
	return set
}

// AssignClusters distributes procedure groups across clusters and stamps
// each group's ClusterID. The default is the two-phase greedy algorithm;
// UseTwoPhase=false selects the legacy union-find for comparison runs.
//
// Groups must already carry deterministic ids (BuildGroups order); cluster
// ids C<n> are assigned in creation order, so identical input and
// parameters reproduce identical assignments.
func AssignClusters(groups []models.ProcedureGroup, params models.Parameters, logger *zap.Logger) []models.Cluster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.UseTwoPhase {
		return assignTwoPhase(groups, params, logger)
	}
	return assignUnionFind(groups, logger)
}

// assignTwoPhase implements the two-phase greedy assignment.
//
// Phase 1 pulls out isolated groups: eligible groups whose similarity to
// every other eligible group is exactly zero become singleton clusters
// immediately. Zero-overlap groups have no shared-table basis for merging;
// leaving them in the general pass is what lets transitive chains (A–B
// share a table, B–C share a different one) pull unrelated groups into one
// cluster under union-find.
//
// Phase 2 processes the remaining groups in descending table-count order
// and greedily assigns each to the existing phase-2 cluster with the
// highest Jaccard similarity against the cluster's running table union,
// subject to MinAssignmentSimilarity. The assignment is online: each
// placement updates the union seen by later groups.
func assignTwoPhase(groups []models.ProcedureGroup, params models.Parameters, logger *zap.Logger) []models.Cluster {
	sets := make([]map[string]struct{}, len(groups))
	for i := range groups {
		sets[i] = tableSet(groups[i].Tables)
	}

	minSize := params.MinGroupSize
	if minSize < 0 {
		minSize = 0
	}
	var eligible, small []int
	for i := range groups {
		if len(sets[i]) >= minSize {
			eligible = append(eligible, i)
		} else {
			small = append(small, i)
		}
	}

	// Phase 1: isolate zero-similarity groups.
	isolated := make(map[int]bool)
	for _, i := range eligible {
		alone := true
		for _, j := range eligible {
			if i == j {
				continue
			}
			if Jaccard(sets[i], sets[j]) > 0 {
				alone = false
				break
			}
		}
		isolated[i] = alone
	}

	type building struct {
		member []int
		union  map[string]struct{}
	}
	var clusters []*building
	newCluster := func(idx int) *building {
		c := &building{
			member: []int{idx},
			union:  make(map[string]struct{}),
		}
		for t := range sets[idx] {
			c.union[t] = struct{}{}
		}
		clusters = append(clusters, c)
		return c
	}

	var remaining []int
	for _, i := range eligible {
		if isolated[i] {
			newCluster(i)
		} else {
			remaining = append(remaining, i)
		}
	}
	isolatedCount := len(clusters)

	// Phase 2: best-fit greedy over the clusters built in this phase.
	sort.Slice(remaining, func(a, b int) bool {
		i, j := remaining[a], remaining[b]
		if len(sets[i]) != len(sets[j]) {
			return len(sets[i]) > len(sets[j])
		}
		return groups[i].GroupID < groups[j].GroupID
	})

	phase2 := clusters[isolatedCount:]
	for _, idx := range remaining {
		var best *building
		bestSim := 0.0
		for _, c := range phase2 {
			sim := Jaccard(sets[idx], c.union)
			switch {
			case sim > bestSim:
				best, bestSim = c, sim
			case sim == bestSim && sim > 0 && best != nil && len(c.member) < len(best.member):
				best = c
			}
		}
		if best != nil && bestSim > 0 && bestSim >= params.MinAssignmentSimilarity {
			best.member = append(best.member, idx)
			for t := range sets[idx] {
				best.union[t] = struct{}{}
			}
		} else {
			c := newCluster(idx)
			phase2 = append(phase2, c)
		}
	}

	// Groups below the similarity floor still need a home: one fresh
	// cluster each, in group order.
	for _, idx := range small {
		newCluster(idx)
	}

	logger.Info("two-phase clustering complete",
		zap.Int("groups", len(groups)),
		zap.Int("isolated", isolatedCount),
		zap.Int("clusters", len(clusters)))

	members := make([][]int, len(clusters))
	for i, c := range clusters {
		members[i] = c.member
	}
	return finishClusters(groups, members)
}

// assignUnionFind is the legacy single-phase algorithm: union-find over
// every positive-similarity pair. Kept selectable for regression
// comparisons; it merges transitively and is not the default.
func assignUnionFind(groups []models.ProcedureGroup, logger *zap.Logger) []models.Cluster {
	parent := make([]int, len(groups))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(n int) int {
		for parent[n] != n {
			parent[n] = parent[parent[n]]
			n = parent[n]
		}
		return n
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	sets := make([]map[string]struct{}, len(groups))
	for i := range groups {
		sets[i] = tableSet(groups[i].Tables)
	}
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			if Jaccard(sets[i], sets[j]) > 0 {
				union(i, j)
			}
		}
	}

	components := make(map[int][]int)
	for i := range groups {
		root := find(i)
		components[root] = append(components[root], i)
	}
	ordered := make([][]int, 0, len(components))
	for _, members := range components {
		sort.Ints(members)
		ordered = append(ordered, members)
	}
	sort.Slice(ordered, func(a, b int) bool {
		if len(ordered[a]) != len(ordered[b]) {
			return len(ordered[a]) > len(ordered[b])
		}
		return ordered[a][0] < ordered[b][0]
	})

	logger.Info("union-find clustering complete",
		zap.Int("groups", len(groups)),
		zap.Int("clusters", len(ordered)))

	return finishClusters(groups, ordered)
}

// finishClusters materializes clusters from member index lists, assigns
// C<n> ids when absent, and stamps each group's ClusterID.
func finishClusters(groups []models.ProcedureGroup, members [][]int) []models.Cluster {
	clusters := make([]models.Cluster, 0, len(members))
	for n, member := range members {
		c := models.Cluster{ClusterID: fmt.Sprintf("C%d", n)}
		for _, idx := range member {
			c.GroupIDs = append(c.GroupIDs, groups[idx].GroupID)
			groups[idx].ClusterID = c.ClusterID
		}
		clusters = append(clusters, c)
	}
	return clusters
}

// BuildSimilarityEdges computes the diagnostic similarity edges between
// groups whose table sets meet the minimum size, keeping pairs at or above
// the threshold. An inverted table index keeps this near-linear in the
// number of shared-table pairs.
func BuildSimilarityEdges(groups []models.ProcedureGroup, minGroupSize int, threshold float64) []models.SimilarityEdge {
	byTable := make(map[string][]int)
	for i, g := range groups {
		if len(g.Tables) < minGroupSize {
			continue
		}
		for _, t := range g.Tables {
			byTable[t] = append(byTable[t], i)
		}
	}

	type pair struct{ left, right int }
	intersections := make(map[pair]int)
	for _, idxs := range byTable {
		sort.Ints(idxs)
		for a := 0; a < len(idxs); a++ {
			for b := a + 1; b < len(idxs); b++ {
				intersections[pair{idxs[a], idxs[b]}]++
			}
		}
	}

	var edges []models.SimilarityEdge
	for p, shared := range intersections {
		union := len(groups[p.left].Tables) + len(groups[p.right].Tables) - shared
		if union <= 0 {
			continue
		}
		sim := float64(shared) / float64(union)
		if sim >= threshold {
			edges = append(edges, models.SimilarityEdge{
				Source:     groups[p.left].GroupID,
				Target:     groups[p.right].GroupID,
				Similarity: sim,
			})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}
